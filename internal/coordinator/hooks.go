package coordinator

import (
	"context"
	"fmt"

	"neurond/internal/governance"
	"neurond/internal/types"
)

// =============================================================================
// COLLABORATOR HOOKS
// =============================================================================
//
// Every external capability is injected as an optional function. A missing
// hook never raises; normalized() installs a documented fallback so callers
// never nil-check. Fallbacks are inert: they acknowledge the call, degrade
// to a bus broadcast, or report the capability as unavailable in the result
// string.

// Hooks bundles the injected collaborator functions.
type Hooks struct {
	// ExecuteTool runs a named external tool. Fallback: reports the tool
	// as unavailable.
	ExecuteTool func(ctx context.Context, tool string, args map[string]interface{}) (string, error)

	// Embed converts text to a vector. Fallback: returns nil (memory
	// operations become no-ops).
	Embed func(ctx context.Context, text string) ([]float32, error)

	// VectorUpsert stores a vector. Fallback: no-op.
	VectorUpsert func(ctx context.Context, id string, vec []float32, meta map[string]string) error

	// VectorSearch queries the vector store. Fallback: returns nothing.
	VectorSearch func(ctx context.Context, vec []float32, limit int) ([]string, error)

	// PersistIntention records an intention externally. Fallback: no-op.
	PersistIntention func(ctx context.Context, i governance.Intention) error

	// PersistMessage records a routed message externally. Fallback: nil
	// (the bus skips its persistence queue entirely).
	PersistMessage func(ctx context.Context, msg *types.Message) error

	// Think generates free-form output from the language collaborator.
	// Fallback: echoes the prompt as unprocessed.
	Think func(ctx context.Context, prompt string) (string, error)

	// SymbolicQuery queries the symbolic engine; self-reflection folds the
	// execution record it returns into the prompt. Fallback: empty result.
	SymbolicQuery func(ctx context.Context, query string) ([]types.Fact, error)

	// AssertFact records a fact with the symbolic engine. Fallback: no-op.
	AssertFact func(ctx context.Context, f types.Fact) error

	// Verify asks the symbolic engine to verify a claim. Fallback: true
	// (absence of a verifier must not block execution).
	Verify func(ctx context.Context, claim string) (bool, error)

	// ProcessChat handles conversational text. Fallback: echoes.
	ProcessChat func(ctx context.Context, input string) (string, error)

	// Display renders text to the user. Fallback: no-op.
	Display func(text string)

	// Speak voices critical notifications. Fallback: no-op.
	Speak func(text string)

	// AvailableTools lists currently registered tool names. Fallback:
	// empty list.
	AvailableTools func() []string

	// ValidateIntention is the safety gate before execution. Returns
	// (false, reason) to block. Fallback: always safe.
	ValidateIntention func(ctx context.Context, i governance.Intention) (bool, string)

	// DiscoverTopic synthesizes a new proposal from recent bus traffic.
	// Fallback: nil (discovery pass is skipped).
	DiscoverTopic func(ctx context.Context, recent []*types.Message) (*governance.Proposal, error)
}

// normalized returns a copy with every nil hook replaced by its fallback.
func (h Hooks) normalized() Hooks {
	if h.ExecuteTool == nil {
		h.ExecuteTool = func(_ context.Context, tool string, _ map[string]interface{}) (string, error) {
			return "", fmt.Errorf("tool %q unavailable: no tool executor configured", tool)
		}
	}
	if h.Embed == nil {
		h.Embed = func(context.Context, string) ([]float32, error) { return nil, nil }
	}
	if h.VectorUpsert == nil {
		h.VectorUpsert = func(context.Context, string, []float32, map[string]string) error { return nil }
	}
	if h.VectorSearch == nil {
		h.VectorSearch = func(context.Context, []float32, int) ([]string, error) { return nil, nil }
	}
	if h.PersistIntention == nil {
		h.PersistIntention = func(context.Context, governance.Intention) error { return nil }
	}
	if h.Think == nil {
		h.Think = func(_ context.Context, prompt string) (string, error) {
			return fmt.Sprintf("unprocessed (no thinker configured): %s", prompt), nil
		}
	}
	if h.SymbolicQuery == nil {
		h.SymbolicQuery = func(context.Context, string) ([]types.Fact, error) { return nil, nil }
	}
	if h.AssertFact == nil {
		h.AssertFact = func(context.Context, types.Fact) error { return nil }
	}
	if h.Verify == nil {
		h.Verify = func(context.Context, string) (bool, error) { return true, nil }
	}
	if h.ProcessChat == nil {
		h.ProcessChat = func(_ context.Context, input string) (string, error) { return input, nil }
	}
	if h.Display == nil {
		h.Display = func(string) {}
	}
	if h.Speak == nil {
		h.Speak = func(string) {}
	}
	if h.AvailableTools == nil {
		h.AvailableTools = func() []string { return nil }
	}
	if h.ValidateIntention == nil {
		h.ValidateIntention = func(context.Context, governance.Intention) (bool, string) { return true, "" }
	}
	// PersistMessage and DiscoverTopic stay nil when absent; callers treat
	// nil as "feature disabled".
	return h
}

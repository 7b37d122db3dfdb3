package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"neurond/internal/config"
	"neurond/internal/logging"
	"neurond/internal/types"
)

var (
	// ErrNotFound is returned when no intention matches the given id.
	ErrNotFound = errors.New("intention not found")

	// ErrAmbiguousPrefix is returned when a partial id matches more than
	// one intention. The operator must supply a longer prefix; there is no
	// silent earliest-match.
	ErrAmbiguousPrefix = errors.New("ambiguous intention id prefix")

	// ErrInvalidTransition is returned when the intention is not in the
	// expected source state for the requested transition.
	ErrInvalidTransition = errors.New("invalid intention state transition")
)

// AttentionFunc is raised when a new intention needs external
// persistence/UI attention.
type AttentionFunc func(i Intention)

// Governance owns the intention ledger. All methods are safe for concurrent
// use; NextApproved is atomic so concurrent execution-loop callers never
// double-dispatch the same intention.
type Governance struct {
	mu         sync.Mutex
	cfg        config.GovernanceConfig
	intentions map[string]*Intention
	order      []string // Creation order
	approved   []string // FIFO by approval order
	attention  AttentionFunc

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an empty governance layer.
func New(cfg config.GovernanceConfig) *Governance {
	return &Governance{
		cfg:        cfg,
		intentions: make(map[string]*Intention),
	}
}

// OnAttention installs the attention callback raised on every proposal.
func (g *Governance) OnAttention(fn AttentionFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attention = fn
}

// =============================================================================
// PROPOSAL
// =============================================================================

// Propose creates a Pending intention with a fresh unique id. Proposals
// that do not require approval are immediately approved and enter the
// execution queue with an audit comment identifying the automatic source.
func (g *Governance) Propose(p Proposal) *Intention {
	now := time.Now()
	i := &Intention{
		ID:               uuid.NewString(),
		Title:            p.Title,
		Description:      p.Description,
		Rationale:        p.Rationale,
		Category:         p.Category,
		Priority:         p.Priority,
		CreatedAt:        now,
		ExpiresAt:        p.ExpiresAt,
		Source:           p.Source,
		Target:           p.Target,
		Action:           p.Action,
		RequiresApproval: p.RequiresApproval,
		Status:           StatusPending,
	}
	if i.ExpiresAt.IsZero() && g.cfg.DefaultTTL > 0 {
		i.ExpiresAt = now.Add(g.cfg.DefaultTTL)
	}

	g.mu.Lock()
	g.intentions[i.ID] = i
	g.order = append(g.order, i.ID)
	if !p.RequiresApproval {
		i.Status = StatusApproved
		i.ActedAt = now
		i.UserComment = "auto: approval not required"
		g.approved = append(g.approved, i.ID)
	}
	attention := g.attention
	snapshot := *i
	g.mu.Unlock()

	logging.Governance("proposed intention %s (%s, category=%s, priority=%s, requires_approval=%v)",
		i.ID[:8], i.Title, i.Category, i.Priority, p.RequiresApproval)
	logging.Audit().IntentionEvent(logging.AuditIntentionPropose, i.ID, i.Source, true, "")

	if attention != nil {
		attention(snapshot)
	}
	return &snapshot
}

// =============================================================================
// APPROVAL
// =============================================================================

// Approve transitions a Pending intention to Approved and enqueues it for
// execution. Fails if the id is unknown or the intention is no longer
// Pending.
func (g *Governance) Approve(id, comment string) error {
	return g.approveAs(id, comment, "operator")
}

func (g *Governance) approveAs(id, comment, actor string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.intentions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	g.expireOne(i, time.Now())
	if !canTransition(i.Status, StatusApproved) {
		return fmt.Errorf("%w: %s is %s, not pending", ErrInvalidTransition, id, i.Status)
	}

	i.Status = StatusApproved
	i.UserComment = comment
	i.ActedAt = time.Now()
	g.approved = append(g.approved, id)

	logging.Governance("approved intention %s (%s)", id[:8], i.Title)
	logging.Audit().IntentionEvent(logging.AuditIntentionApprove, id, actor, true, "")
	return nil
}

// Reject transitions a Pending intention to Rejected with an optional reason.
func (g *Governance) Reject(id, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.intentions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	g.expireOne(i, time.Now())
	if !canTransition(i.Status, StatusRejected) {
		return fmt.Errorf("%w: %s is %s, not pending", ErrInvalidTransition, id, i.Status)
	}

	i.Status = StatusRejected
	i.UserComment = reason
	i.ActedAt = time.Now()

	logging.Governance("rejected intention %s: %s", id[:8], reason)
	logging.Audit().IntentionEvent(logging.AuditIntentionReject, id, "operator", true, reason)
	return nil
}

// ResolvePartialID resolves a short id prefix against the full id space.
// An ambiguous prefix is an error; the caller must disambiguate.
func (g *Governance) ResolvePartialID(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrNotFound)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var match string
	for id := range g.intentions {
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %q", ErrAmbiguousPrefix, prefix)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: prefix %q", ErrNotFound, prefix)
	}
	return match, nil
}

// ApproveByPartialID approves the intention whose id starts with prefix.
func (g *Governance) ApproveByPartialID(prefix, comment string) (string, error) {
	id, err := g.ResolvePartialID(prefix)
	if err != nil {
		return "", err
	}
	return id, g.Approve(id, comment)
}

// RejectByPartialID rejects the intention whose id starts with prefix.
func (g *Governance) RejectByPartialID(prefix, reason string) (string, error) {
	id, err := g.ResolvePartialID(prefix)
	if err != nil {
		return "", err
	}
	return id, g.Reject(id, reason)
}

// ApproveAllLowRisk bulk-approves every Pending intention with
// Priority <= Low. Returns the count approved.
func (g *Governance) ApproveAllLowRisk() int {
	return g.approveAllWhere(func(i *Intention) bool {
		return i.Priority <= types.PriorityLow
	}, "auto: low risk bulk approval", "operator")
}

// ApproveAll bulk-approves every Pending intention with the given audit
// comment. Used by the YOLO override; the comment must identify the
// automatic source.
func (g *Governance) ApproveAll(comment, actor string) int {
	n := g.approveAllWhere(func(*Intention) bool { return true }, comment, actor)
	if n > 0 {
		logging.Audit().PolicyEvent(logging.AuditBulkApprove, actor, fmt.Sprintf("approved %d pending intention(s)", n))
	}
	return n
}

func (g *Governance) approveAllWhere(pred func(*Intention) bool, comment, actor string) int {
	g.mu.Lock()
	now := time.Now()
	var ids []string
	for _, id := range g.order {
		i := g.intentions[id]
		g.expireOne(i, now)
		if i.Status == StatusPending && pred(i) {
			ids = append(ids, id)
		}
	}
	g.mu.Unlock()

	count := 0
	for _, id := range ids {
		if err := g.approveAs(id, comment, actor); err == nil {
			count++
		}
	}
	return count
}

// Cancel transitions a Pending or Approved intention to Cancelled.
func (g *Governance) Cancel(id, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.intentions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !canTransition(i.Status, StatusCancelled) {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, i.Status)
	}

	i.Status = StatusCancelled
	i.UserComment = reason
	i.ActedAt = time.Now()
	g.removeApproved(id)

	logging.Audit().IntentionEvent(logging.AuditIntentionCancel, id, "operator", true, reason)
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Pending returns a stable, creation-ordered snapshot of pending intentions.
// Expired intentions are transitioned out before the snapshot is taken.
func (g *Governance) Pending() []Intention {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	var out []Intention
	for _, id := range g.order {
		i := g.intentions[id]
		g.expireOne(i, now)
		if i.Status == StatusPending {
			out = append(out, *i)
		}
	}
	return out
}

// PendingCount returns the number of pending intentions.
func (g *Governance) PendingCount() int {
	return len(g.Pending())
}

// NextApproved atomically removes and returns the next Approved intention,
// strictly FIFO by approval order. Returns false when none is available.
func (g *Governance) NextApproved() (Intention, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for len(g.approved) > 0 {
		id := g.approved[0]
		g.approved = g.approved[1:]
		i, ok := g.intentions[id]
		if !ok {
			continue
		}
		g.expireOne(i, now)
		if i.Status != StatusApproved {
			continue // Expired or cancelled while queued
		}
		return *i, true
	}
	return Intention{}, false
}

// Get returns a snapshot of the intention with the given id.
func (g *Governance) Get(id string) (Intention, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.intentions[id]
	if !ok {
		return Intention{}, false
	}
	return *i, true
}

// All returns a creation-ordered snapshot of every intention ever proposed.
func (g *Governance) All() []Intention {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Intention, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.intentions[id])
	}
	return out
}

// =============================================================================
// EXECUTION TRANSITIONS
// =============================================================================

// MarkExecuting transitions Approved -> Executing.
func (g *Governance) MarkExecuting(id string) error {
	if err := g.transition(id, StatusExecuting, ""); err != nil {
		return err
	}
	logging.Audit().IntentionEvent(logging.AuditIntentionExecute, id, "executor", true, "")
	return nil
}

// MarkCompleted transitions Executing -> Completed with a human-readable
// result.
func (g *Governance) MarkCompleted(id, result string) error {
	if err := g.transition(id, StatusCompleted, result); err != nil {
		return err
	}
	logging.Audit().IntentionEvent(logging.AuditIntentionComplete, id, "executor", true, "")
	return nil
}

// MarkFailed transitions Executing -> Failed with the error message.
func (g *Governance) MarkFailed(id, errMsg string) error {
	if err := g.transition(id, StatusFailed, errMsg); err != nil {
		return err
	}
	logging.Audit().IntentionEvent(logging.AuditIntentionFail, id, "executor", false, errMsg)
	return nil
}

func (g *Governance) transition(id string, to Status, result string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.intentions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !canTransition(i.Status, to) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, i.Status, to, id)
	}

	i.Status = to
	if result != "" {
		i.ExecutionResult = result
	}
	return nil
}

// =============================================================================
// EXPIRY
// =============================================================================

// expireOne is called with g.mu held.
func (g *Governance) expireOne(i *Intention, now time.Time) {
	if !i.expired(now) {
		return
	}
	i.Status = StatusExpired
	g.removeApproved(i.ID)
	logging.Governance("intention %s expired before being acted on", i.ID[:8])
	logging.Audit().IntentionEvent(logging.AuditIntentionExpire, i.ID, "expiry", true, "")
}

// removeApproved is called with g.mu held.
func (g *Governance) removeApproved(id string) {
	for n, queued := range g.approved {
		if queued == id {
			g.approved = append(g.approved[:n], g.approved[n+1:]...)
			return
		}
	}
}

// sweepExpired transitions every overdue intention.
func (g *Governance) sweepExpired() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	for _, i := range g.intentions {
		g.expireOne(i, now)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start launches the background expiry sweeper. Idempotent.
func (g *Governance) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil
	}
	g.running = true
	g.stopCh = make(chan struct{})
	g.doneCh = make(chan struct{})

	go g.sweepLoop(ctx, g.stopCh, g.doneCh)
	logging.Governance("governance started (sweep interval %v)", g.cfg.ExpirySweepInterval)
	return nil
}

// Stop terminates the sweeper and waits for it to exit. Idempotent.
func (g *Governance) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	close(g.stopCh)
	done := g.doneCh
	g.mu.Unlock()

	<-done
	return nil
}

func (g *Governance) sweepLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(g.cfg.ExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			g.sweepExpired()
		}
	}
}

var _ types.Lifecycle = (*Governance)(nil)

package coordinator

import (
	"context"
	"strings"
	"testing"

	"neurond/internal/bus"
	"neurond/internal/config"
	"neurond/internal/governance"
	"neurond/internal/types"
)

func TestHandleCommand_NonCommandPassesThrough(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})

	if _, handled := c.HandleCommand(context.Background(), "hello there"); handled {
		t.Fatal("plain text must not be treated as a command")
	}
	if _, handled := c.HandleCommand(context.Background(), "  /intentions"); !handled {
		t.Fatal("leading whitespace should not hide a command")
	}
}

func TestHandleCommand_WithoutTopology(t *testing.T) {
	b := bus.New(testBusConfig())
	g := governance.New(config.GovernanceConfig{})
	c := New(testCoordinatorConfig(), b, g, Hooks{})

	out, handled := c.HandleCommand(context.Background(), "/network")
	if !handled || !strings.Contains(out, "No topology attached") {
		t.Fatalf("expected unweighted-routing reply, got %q", out)
	}

	for _, cmd := range []string{"/training", "/training freeze", "/training rate 0.5"} {
		out, handled := c.HandleCommand(context.Background(), cmd)
		if !handled || !strings.Contains(out, "No topology attached") {
			t.Fatalf("%s: expected unweighted-routing reply, got %q", cmd, out)
		}
	}
}

func TestHandleCommand_UnknownCommand(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	out, handled := c.HandleCommand(context.Background(), "/frobnicate")
	if !handled || !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown-command reply, got %q", out)
	}
}

func TestHandleCommand_ApproveRejectByPrefix(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	ctx := context.Background()

	a := c.Governance().Propose(proposal("approve me", true))
	out, _ := c.HandleCommand(ctx, "/approve "+a.ID[:8])
	if !strings.Contains(out, "Approved") {
		t.Fatalf("expected approval confirmation, got %q", out)
	}
	got, _ := c.Governance().Get(a.ID)
	if got.Status != governance.StatusApproved {
		t.Fatalf("intention not approved: %s", got.Status)
	}

	r := c.Governance().Propose(proposal("reject me", true))
	out, _ = c.HandleCommand(ctx, "/reject "+r.ID[:8]+" too vague")
	if !strings.Contains(out, "Rejected") {
		t.Fatalf("expected rejection confirmation, got %q", out)
	}
	got, _ = c.Governance().Get(r.ID)
	if got.Status != governance.StatusRejected || got.UserComment != "too vague" {
		t.Fatalf("rejection reason lost: %+v", got)
	}
}

func TestHandleCommand_ApproveMissingArgs(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	out, _ := c.HandleCommand(context.Background(), "/approve")
	if !strings.Contains(out, "Usage") {
		t.Fatalf("expected usage message, got %q", out)
	}
}

func TestHandleCommand_ApproveBadPrefix(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	out, _ := c.HandleCommand(context.Background(), "/approve zzzz")
	if !strings.Contains(out, "failed") {
		t.Fatalf("expected failure reply for unknown prefix, got %q", out)
	}
}

func TestHandleCommand_ApproveAllSafe(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	c.Governance().Propose(governance.Proposal{
		Title: "low", Category: governance.CategoryExploration,
		Priority: types.PriorityLow, RequiresApproval: true,
	})
	c.Governance().Propose(governance.Proposal{
		Title: "high", Category: governance.CategoryExploration,
		Priority: types.PriorityHigh, RequiresApproval: true,
	})

	out, _ := c.HandleCommand(context.Background(), "/approve-all-safe")
	if !strings.Contains(out, "1") {
		t.Fatalf("expected exactly 1 low-risk approval, got %q", out)
	}
	if len(c.Governance().Pending()) != 1 {
		t.Fatal("high-priority intention must remain pending")
	}
}

func TestHandleCommand_Intentions(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	ctx := context.Background()

	out, _ := c.HandleCommand(ctx, "/intentions")
	if !strings.Contains(out, "No pending") {
		t.Fatalf("expected empty listing, got %q", out)
	}

	i := c.Governance().Propose(proposal("visible task", true))
	out, _ = c.HandleCommand(ctx, "/intentions")
	if !strings.Contains(out, i.ID[:8]) || !strings.Contains(out, "visible task") {
		t.Fatalf("listing should include the pending intention, got %q", out)
	}
}

func TestHandleCommand_NetworkAndBus(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	ctx := context.Background()

	out, _ := c.HandleCommand(ctx, "/network")
	if !strings.Contains(out, "No explicit connections") {
		t.Fatalf("expected empty-topology message, got %q", out)
	}

	c.Bus().Topology().SetConnection("a", "b", 0.6, 0.1)
	out, _ = c.HandleCommand(ctx, "/network")
	if !strings.Contains(out, "a -> b") || !strings.Contains(out, "+0.600") {
		t.Fatalf("expected edge listing, got %q", out)
	}

	out, _ = c.HandleCommand(ctx, "/bus")
	if !strings.Contains(out, "routed=") {
		t.Fatalf("expected bus metrics, got %q", out)
	}
}

func TestHandleCommand_Yolo(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	ctx := context.Background()

	out, _ := c.HandleCommand(ctx, "/yolo")
	if !strings.Contains(out, "OFF") {
		t.Fatalf("expected YOLO off by default, got %q", out)
	}

	c.Governance().Propose(proposal("waiting", true))
	c.HandleCommand(ctx, "/yolo on")
	if !c.YoloEnabled() {
		t.Fatal("YOLO should be on")
	}
	if len(c.Governance().Pending()) != 0 {
		t.Fatal("/yolo on must mass-approve pending intentions")
	}

	c.HandleCommand(ctx, "/yolo off")
	if c.YoloEnabled() {
		t.Fatal("YOLO should be off")
	}
}

func TestHandleCommand_AutoSolveAndStop(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	ctx := context.Background()

	out, _ := c.HandleCommand(ctx, "/auto solve refactor the parser")
	if !strings.Contains(out, "Proposed goal intention") {
		t.Fatalf("expected goal proposal, got %q", out)
	}

	pending := c.Governance().Pending()
	if len(pending) != 1 || pending[0].Category != governance.CategoryGoalPursuit {
		t.Fatalf("expected one pending goal intention, got %v", pending)
	}
	if pending[0].Description != "refactor the parser" {
		t.Fatalf("goal text lost: %q", pending[0].Description)
	}

	out, _ = c.HandleCommand(ctx, "/auto stop")
	if !strings.Contains(out, "Cancelled 1") {
		t.Fatalf("expected 1 cancellation, got %q", out)
	}
	if len(c.Governance().Pending()) != 0 {
		t.Fatal("goal intention should be cancelled")
	}
}

func TestHandleCommand_Training(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	ctx := context.Background()
	topo := c.Bus().Topology()
	topo.SetConnection("a", "b", 0.5, 0.1)

	c.HandleCommand(ctx, "/training freeze")
	if w, _ := topo.HebbianUpdate("a", "b", true, true); w != 0.5 {
		t.Fatal("/training freeze should stop learning")
	}

	c.HandleCommand(ctx, "/training unfreeze")
	if w, _ := topo.HebbianUpdate("a", "b", true, true); w == 0.5 {
		t.Fatal("/training unfreeze should resume learning")
	}

	out, _ := c.HandleCommand(ctx, "/training rate 1.5")
	if !strings.Contains(out, "[0,1]") {
		t.Fatalf("out-of-range plasticity must be rejected, got %q", out)
	}
	out, _ = c.HandleCommand(ctx, "/training rate 0.25")
	if !strings.Contains(out, "0.25") {
		t.Fatalf("expected plasticity confirmation, got %q", out)
	}
}

func TestHandleCommand_Tools(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{
		AvailableTools: func() []string { return []string{"grep", "build"} },
	})
	out, _ := c.HandleCommand(context.Background(), "/tools")
	if !strings.Contains(out, "build") || !strings.Contains(out, "grep") {
		t.Fatalf("expected tool listing, got %q", out)
	}

	empty := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	out, _ = empty.HandleCommand(context.Background(), "/tools")
	if !strings.Contains(out, "No tools") {
		t.Fatalf("expected empty-tools message, got %q", out)
	}
}

func TestHandleCommand_OperatorActionsNotify(t *testing.T) {
	c := newTestCoordinator(t, testCoordinatorConfig(), Hooks{})
	ctx := context.Background()

	i := c.Governance().Propose(proposal("tracked", true))
	before := c.Notifications().Len()
	c.HandleCommand(ctx, "/approve "+i.ID[:8])

	if c.Notifications().Len() <= before {
		t.Fatal("operator approval should produce a notification")
	}
}

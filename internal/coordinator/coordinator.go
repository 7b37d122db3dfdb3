// Package coordinator owns one bus, one governance layer, and a fixed set
// of long-lived neurons, and drives them with two control loops: a
// coordination loop that ticks the approval policy, and an execution loop
// that polls for approved intentions and runs them. Both loops share one
// cancellation signal; a fault in one iteration never terminates a loop.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"neurond/internal/bus"
	"neurond/internal/config"
	"neurond/internal/governance"
	"neurond/internal/logging"
	"neurond/internal/types"
)

// coordinatorID is the Source stamped on messages the coordinator emits.
const coordinatorID = "coordinator"

// Coordinator wires the runtime together and runs the control loops.
type Coordinator struct {
	mu    sync.Mutex
	cfg   config.CoordinatorConfig
	bus   *bus.Bus
	gov   *governance.Governance
	hooks Hooks

	notifications *NotificationLog

	running       bool
	cancel        context.CancelFunc
	group         *errgroup.Group
	lastDiscovery time.Time
}

// New constructs a coordinator over an explicitly built bus and governance
// layer; there are no process-wide singletons. The governance layer is
// attached to the bus lifecycle and the persistence hooks are wired here.
func New(cfg config.CoordinatorConfig, b *bus.Bus, g *governance.Governance, hooks Hooks) *Coordinator {
	c := &Coordinator{
		cfg:           cfg,
		bus:           b,
		gov:           g,
		hooks:         hooks.normalized(),
		notifications: NewNotificationLog(),
	}

	b.AttachGovernance(g)
	if c.hooks.PersistMessage != nil {
		b.SetPersistenceHook(c.hooks.PersistMessage)
	}

	g.OnAttention(func(i governance.Intention) {
		// Persistence errors never propagate out of the attention path.
		if err := c.hooks.PersistIntention(context.Background(), i); err != nil {
			logging.Get(logging.CategoryCoordinator).Warn("intention persistence failed for %s: %v", i.ID, err)
		}
		if i.Status == governance.StatusPending && i.RequiresApproval {
			c.Notify(fmt.Sprintf("Intention requires attention: [%s] %s", i.ID[:8], i.Title),
				types.PriorityHigh, coordinatorID)
		}
	})

	return c
}

// Notifications exposes the bounded proactive-message log.
func (c *Coordinator) Notifications() *NotificationLog {
	return c.notifications
}

// Notify appends to the notification history and fires the proactive stream.
// Critical notifications are also voiced.
func (c *Coordinator) Notify(message string, priority types.Priority, source string) {
	c.notifications.Append(message, priority, source)
	c.hooks.Display(message)
	if priority >= types.PriorityCritical {
		c.hooks.Speak(message)
	}
}

// Bus returns the owned bus.
func (c *Coordinator) Bus() *bus.Bus { return c.bus }

// Governance returns the owned governance layer.
func (c *Coordinator) Governance() *governance.Governance { return c.gov }

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start starts the bus (which starts governance and all registered neurons)
// and spawns the coordination and execution loops. Idempotent.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.bus.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start bus: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		c.coordinationLoop(gctx)
		return nil
	})
	group.Go(func() error {
		c.executionLoop(gctx)
		return nil
	})

	c.running = true
	c.cancel = cancel
	c.group = group

	logging.Coordinator("coordinator started (tick=%v, poll=%v)", c.cfg.TickInterval, c.cfg.PollInterval)
	return nil
}

// StopAsync cancels the shared signal, awaits both loops, then stops the
// bus and governance. No loop body executes after StopAsync returns.
// Idempotent.
func (c *Coordinator) StopAsync(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	group := c.group
	c.mu.Unlock()

	cancel()
	if err := group.Wait(); err != nil {
		logging.Get(logging.CategoryCoordinator).Warn("loop exit: %v", err)
	}

	if err := c.bus.StopAsync(ctx); err != nil {
		return fmt.Errorf("stop bus: %w", err)
	}

	logging.Coordinator("coordinator stopped")
	return nil
}

// IsRunning reports whether the loops are live.
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ApplyConfig re-applies the auto-approval policy at runtime. Used by the
// config hot-reload watcher; the YOLO flag goes through SetYolo so its
// governance side effect fires.
func (c *Coordinator) ApplyConfig(cfg config.CoordinatorConfig) {
	c.mu.Lock()
	yoloChanged := cfg.YoloMode != c.cfg.YoloMode
	yolo := cfg.YoloMode
	c.cfg.AutoApproveLowRisk = cfg.AutoApproveLowRisk
	c.cfg.AutoApproveSelfReflection = cfg.AutoApproveSelfReflection
	c.cfg.AutoApproveMemory = cfg.AutoApproveMemory
	c.cfg.AlwaysRequireApproval = cfg.AlwaysRequireApproval
	c.cfg.PendingCeiling = cfg.PendingCeiling
	c.mu.Unlock()

	if yoloChanged {
		c.SetYolo(yolo)
	}
}

// =============================================================================
// YOLO OVERRIDE
// =============================================================================

// SetYolo toggles the global approval override. Enabling it immediately
// mass-approves every currently pending intention with an audit comment
// identifying the automatic source; this is a governance side effect, not
// merely a flag flip.
func (c *Coordinator) SetYolo(on bool) {
	c.mu.Lock()
	c.cfg.YoloMode = on
	c.mu.Unlock()

	if on {
		n := c.gov.ApproveAll("auto: YOLO mode enabled", "yolo")
		logging.Audit().PolicyEvent(logging.AuditYoloEnable, "operator", fmt.Sprintf("approved %d pending", n))
		c.Notify(fmt.Sprintf("YOLO mode ON: auto-approved %d pending intention(s)", n),
			types.PriorityHigh, coordinatorID)
		return
	}

	logging.Audit().PolicyEvent(logging.AuditYoloDisable, "operator", "")
	c.Notify("YOLO mode OFF: intentions require approval again", types.PriorityNormal, coordinatorID)
}

// YoloEnabled reports the current override state.
func (c *Coordinator) YoloEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.YoloMode
}

// =============================================================================
// COORDINATION LOOP
// =============================================================================

func (c *Coordinator) coordinationLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Coordinator("coordination loop stopped")
			return
		case <-ticker.C:
			c.safeTick(ctx)
		}
	}
}

// safeTick isolates one iteration: a fault is logged and swallowed, never
// terminating the loop.
func (c *Coordinator) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryCoordinator).Error("coordination tick panicked: %v", r)
		}
	}()
	c.tick(ctx)
}

func (c *Coordinator) tick(ctx context.Context) {
	c.autoApprovalPass()
	c.discoveryPass(ctx)

	pending := c.gov.Pending()
	c.mu.Lock()
	ceiling := c.cfg.PendingCeiling
	c.mu.Unlock()
	if len(pending) > ceiling {
		c.Notify(fmt.Sprintf("Advisory: %d intentions pending approval (ceiling %d)", len(pending), ceiling),
			types.PriorityNormal, coordinatorID)
	}

	c.bus.Broadcast("system.tick", map[string]interface{}{
		"time":    time.Now(),
		"pending": len(pending),
	}, coordinatorID)
}

// autoApprovalPass applies the approval policy to every pending intention.
func (c *Coordinator) autoApprovalPass() {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if cfg.YoloMode {
		if n := c.gov.ApproveAll("auto: YOLO mode", "yolo"); n > 0 {
			logging.Coordinator("YOLO pass approved %d intention(s)", n)
		}
		return
	}

	alwaysRequire := make(map[governance.Category]struct{}, len(cfg.AlwaysRequireApproval))
	for _, cat := range cfg.AlwaysRequireApproval {
		alwaysRequire[governance.Category(cat)] = struct{}{}
	}

	for _, i := range c.gov.Pending() {
		if _, held := alwaysRequire[i.Category]; held {
			continue
		}

		var comment string
		switch {
		case cfg.AutoApproveLowRisk && i.Priority <= types.PriorityLow:
			comment = "auto: low risk"
		case cfg.AutoApproveSelfReflection && i.Category == governance.CategorySelfReflection:
			comment = "auto: self-reflection"
		case cfg.AutoApproveMemory && i.Category == governance.CategoryMemoryManagement:
			comment = "auto: memory management"
		default:
			continue
		}

		if err := c.gov.Approve(i.ID, comment); err == nil {
			logging.Audit().PolicyEvent(logging.AuditAutoApprove, "auto-approval", i.ID)
		}
	}
}

// discoveryPass invokes the topic-discovery collaborator on its own longer
// interval to synthesize a proposal from recent bus traffic.
func (c *Coordinator) discoveryPass(ctx context.Context) {
	if c.hooks.DiscoverTopic == nil {
		return
	}

	c.mu.Lock()
	due := time.Since(c.lastDiscovery) >= c.cfg.DiscoveryInterval
	if due {
		c.lastDiscovery = time.Now()
	}
	c.mu.Unlock()
	if !due {
		return
	}

	recent := c.bus.History().Recent(20)
	proposal, err := c.hooks.DiscoverTopic(ctx, recent)
	if err != nil {
		logging.Get(logging.CategoryCoordinator).Warn("topic discovery failed: %v", err)
		return
	}
	if proposal == nil {
		return
	}
	if proposal.Source == "" {
		proposal.Source = coordinatorID
	}

	i := c.gov.Propose(*proposal)
	logging.Coordinator("discovery proposed intention %s (%s)", i.ID[:8], i.Title)
}

// =============================================================================
// EXECUTION LOOP
// =============================================================================

func (c *Coordinator) executionLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Coordinator("execution loop stopped")
			return
		case <-ticker.C:
			for {
				intent, ok := c.gov.NextApproved()
				if !ok {
					break
				}
				c.safeExecute(ctx, intent)

				select {
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}
}

func (c *Coordinator) safeExecute(ctx context.Context, i governance.Intention) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryCoordinator).Error("execution of %s panicked: %v", i.ID, r)
			_ = c.gov.MarkFailed(i.ID, fmt.Sprintf("panic: %v", r))
		}
	}()
	c.execute(ctx, i)
}

// execute runs one approved intention to completion. Failures stay local to
// the intention record; the loop continues unaffected.
func (c *Coordinator) execute(ctx context.Context, i governance.Intention) {
	if err := c.gov.MarkExecuting(i.ID); err != nil {
		logging.Get(logging.CategoryCoordinator).Warn("cannot execute %s: %v", i.ID, err)
		return
	}

	if ok, reason := c.hooks.ValidateIntention(ctx, i); !ok {
		logging.Audit().SafetyCheck(i.ID, false, reason)
		_ = c.gov.MarkFailed(i.ID, fmt.Sprintf("blocked by safety validation: %s", reason))
		c.Notify(fmt.Sprintf("Intention [%s] %s blocked: %s", i.ID[:8], i.Title, reason),
			types.PriorityHigh, coordinatorID)
		return
	}

	start := time.Now()
	result, err := c.dispatch(ctx, i)
	elapsed := time.Since(start)

	if err != nil {
		_ = c.gov.MarkFailed(i.ID, err.Error())
		c.Notify(fmt.Sprintf("Intention [%s] %s failed: %v", i.ID[:8], i.Title, err),
			types.PriorityHigh, coordinatorID)
	} else {
		_ = c.gov.MarkCompleted(i.ID, result)
		c.Notify(fmt.Sprintf("Intention [%s] %s completed: %s", i.ID[:8], i.Title, result),
			types.PriorityNormal, coordinatorID)
	}

	// Audit fact recording through the symbolic collaborator.
	fact := types.Fact{
		Predicate: "intention_executed",
		Args:      []interface{}{i.ID, string(i.Category), err == nil, elapsed},
	}
	if ferr := c.hooks.AssertFact(ctx, fact); ferr != nil {
		logging.Get(logging.CategoryCoordinator).Warn("audit fact recording failed for %s: %v", i.ID, ferr)
	}

	c.bus.Broadcast("intention.completed", map[string]interface{}{
		"id":      i.ID,
		"title":   i.Title,
		"success": err == nil,
	}, coordinatorID)
}

package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"neurond/internal/config"
	"neurond/internal/types"
)

// stubNeuron records everything it receives.
type stubNeuron struct {
	id     string
	topics []string

	mu       sync.Mutex
	received []*types.Message
	active   bool
}

func newStub(id string, topics ...string) *stubNeuron {
	return &stubNeuron{id: id, topics: topics}
}

func (s *stubNeuron) ID() string                 { return s.id }
func (s *stubNeuron) Name() string               { return s.id }
func (s *stubNeuron) Type() string               { return "stub" }
func (s *stubNeuron) SubscribedTopics() []string { return s.topics }

func (s *stubNeuron) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *stubNeuron) ReceiveMessage(msg *types.Message) {
	s.mu.Lock()
	s.received = append(s.received, msg)
	s.mu.Unlock()
}

func (s *stubNeuron) Start(ctx context.Context) error {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	return nil
}

func (s *stubNeuron) Stop() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	return nil
}

func (s *stubNeuron) messages() []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Message, len(s.received))
	copy(out, s.received)
	return out
}

func testBusConfig() config.BusConfig {
	return config.BusConfig{
		HistorySize:         50,
		ObserveBufferSize:   8,
		PersistQueueSize:    8,
		PersistDrainTimeout: time.Second,
		HebbianOnDelivery:   false,
		DefaultPlasticity:   0.1,
	}
}

func startedBus(t *testing.T, cfg config.BusConfig, neurons ...*stubNeuron) *Bus {
	t.Helper()
	b := New(cfg)
	b.AttachTopology(NewTopology())
	for _, n := range neurons {
		if err := b.RegisterNeuron(n); err != nil {
			t.Fatalf("register %s: %v", n.id, err)
		}
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.StopAsync(ctx)
	})
	return b
}

func TestBus_RegisterDuplicate(t *testing.T) {
	b := New(testBusConfig())
	if err := b.RegisterNeuron(newStub("a", "x")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := b.RegisterNeuron(newStub("a", "y"))
	if !errors.Is(err, ErrDuplicateNeuron) {
		t.Fatalf("expected ErrDuplicateNeuron, got %v", err)
	}
}

func TestBus_SeedingSharedTopics(t *testing.T) {
	b := New(testBusConfig())
	b.AttachTopology(NewTopology())

	if err := b.RegisterNeuron(newStub("a", "task.created")); err != nil {
		t.Fatal(err)
	}
	if err := b.RegisterNeuron(newStub("b", "task.created", "other")); err != nil {
		t.Fatal(err)
	}

	// One shared topic: 0.5 + 0.1 = 0.6 in both directions.
	if w := b.Topology().GetWeight("a", "b"); w != 0.6 {
		t.Fatalf("expected seed weight 0.6 a->b, got %v", w)
	}
	if w := b.Topology().GetWeight("b", "a"); w != 0.6 {
		t.Fatalf("expected seed weight 0.6 b->a, got %v", w)
	}
}

func TestBus_SeedingCapsAndPreservesExisting(t *testing.T) {
	b := New(testBusConfig())
	topo := NewTopology()
	b.AttachTopology(topo)

	topics := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
	if err := b.RegisterNeuron(newStub("a", topics...)); err != nil {
		t.Fatal(err)
	}

	// Pre-existing edge must survive registration seeding.
	topo.SetConnection("b", "a", -0.5, 0.1)

	if err := b.RegisterNeuron(newStub("b", topics...)); err != nil {
		t.Fatal(err)
	}

	// Six shared topics would be 1.1, capped at 0.9.
	if w := topo.GetWeight("a", "b"); w != 0.9 {
		t.Fatalf("expected capped seed weight 0.9, got %v", w)
	}
	if w := topo.GetWeight("b", "a"); w != -0.5 {
		t.Fatalf("existing edge must not be overwritten by seeding, got %v", w)
	}
}

func TestBus_RouteRequiresStart(t *testing.T) {
	b := New(testBusConfig())
	msg := types.NewMessage("a", "topic", nil, types.PriorityNormal)
	if err := b.RouteMessage(msg); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before Start, got %v", err)
	}
}

func TestBus_RouteRejectsInvalid(t *testing.T) {
	b := startedBus(t, testBusConfig())
	if err := b.RouteMessage(&types.Message{ID: "x", Topic: "t"}); err == nil {
		t.Fatal("expected validation error for message without source")
	}
}

func TestBus_Unicast(t *testing.T) {
	a := newStub("a", "x")
	c := newStub("c", "x")
	b := startedBus(t, testBusConfig(), a, c)

	msg := types.NewMessage("a", "anything", "hi", types.PriorityNormal)
	msg.Target = "c"
	if err := b.RouteMessage(msg); err != nil {
		t.Fatalf("unicast: %v", err)
	}

	if got := c.messages(); len(got) != 1 || got[0].Payload != "hi" {
		t.Fatalf("expected 1 message at target, got %v", got)
	}
	if got := a.messages(); len(got) != 0 {
		t.Fatalf("non-target received unicast: %v", got)
	}
}

func TestBus_UnicastUnknownTarget(t *testing.T) {
	b := startedBus(t, testBusConfig(), newStub("a", "x"))

	msg := types.NewMessage("a", "topic", nil, types.PriorityNormal)
	msg.Target = "nobody"
	if err := b.RouteMessage(msg); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
	if m := b.GetMetrics(); m.Dropped != 1 {
		t.Fatalf("expected dropped=1, got %d", m.Dropped)
	}
}

func TestBus_UnicastToSelfNotDelivered(t *testing.T) {
	a := newStub("a", "x")
	b := startedBus(t, testBusConfig(), a)

	msg := types.NewMessage("a", "topic", nil, types.PriorityNormal)
	msg.Target = "a"
	if err := b.RouteMessage(msg); err != nil {
		t.Fatalf("self-unicast should not error: %v", err)
	}
	if got := a.messages(); len(got) != 0 {
		t.Fatal("a neuron must never receive its own message")
	}
}

func TestBus_UnicastBypassesWeights(t *testing.T) {
	a := newStub("a", "x")
	c := newStub("c", "x")
	b := startedBus(t, testBusConfig(), a, c)

	// A fully inhibitory edge would suppress multicast, but unicast ignores it.
	b.Topology().SetConnection("a", "c", -1.0, 0.1)

	msg := types.NewMessage("a", "x", nil, types.PriorityNormal)
	msg.Target = "c"
	if err := b.RouteMessage(msg); err != nil {
		t.Fatal(err)
	}
	if got := c.messages(); len(got) != 1 {
		t.Fatalf("unicast must bypass weight suppression, got %d messages", len(got))
	}
}

func TestBus_MulticastSenderExcluded(t *testing.T) {
	a := newStub("a", "task.created")
	c := newStub("c", "task.created")
	b := startedBus(t, testBusConfig(), a, c)

	if err := b.RouteMessage(types.NewMessage("a", "task.created", nil, types.PriorityNormal)); err != nil {
		t.Fatal(err)
	}

	if got := a.messages(); len(got) != 0 {
		t.Fatal("sender must not receive its own multicast")
	}
	if got := c.messages(); len(got) != 1 {
		t.Fatalf("subscriber should receive multicast, got %d", len(got))
	}
}

func TestBus_WeightModulation(t *testing.T) {
	cases := []struct {
		name     string
		weight   float64
		deliver  bool
		priority types.Priority
	}{
		{"suppressed at threshold", -0.8, false, 0},
		{"suppressed below threshold", -0.9, false, 0},
		{"downgraded when negative", -0.3, true, types.PriorityLow},
		{"unchanged in neutral band", 0.2, true, types.PriorityNormal},
		{"unchanged at upgrade threshold", 0.8, true, types.PriorityNormal},
		{"upgraded above threshold", 0.95, true, types.PriorityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newStub("src", "work.item")
			dst := newStub("dst", "work.item")
			b := startedBus(t, testBusConfig(), src, dst)
			b.Topology().SetConnection("src", "dst", tc.weight, 0.1)

			if err := b.RouteMessage(types.NewMessage("src", "work.item", nil, types.PriorityNormal)); err != nil {
				t.Fatal(err)
			}

			got := dst.messages()
			if !tc.deliver {
				if len(got) != 0 {
					t.Fatalf("expected suppression at weight %v, got %d messages", tc.weight, len(got))
				}
				if m := b.GetMetrics(); m.Suppressed != 1 {
					t.Fatalf("expected suppressed=1, got %d", m.Suppressed)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected delivery at weight %v, got %d messages", tc.weight, len(got))
			}
			if got[0].Priority != tc.priority {
				t.Fatalf("expected priority %v at weight %v, got %v", tc.priority, tc.weight, got[0].Priority)
			}
		})
	}
}

func TestBus_ModulationDeliversCopy(t *testing.T) {
	src := newStub("src", "work.item")
	dst := newStub("dst", "work.item")
	b := startedBus(t, testBusConfig(), src, dst)
	b.Topology().SetConnection("src", "dst", -0.3, 0.1)

	msg := types.NewMessage("src", "work.item", nil, types.PriorityNormal)
	if err := b.RouteMessage(msg); err != nil {
		t.Fatal(err)
	}

	if msg.Priority != types.PriorityNormal {
		t.Fatal("modulation must not mutate the original message")
	}
	if got := dst.messages(); got[0].Priority != types.PriorityLow {
		t.Fatalf("delivered copy should carry the downgraded priority, got %v", got[0].Priority)
	}
}

func TestBus_HebbianOnDelivery(t *testing.T) {
	cfg := testBusConfig()
	cfg.HebbianOnDelivery = true

	src := newStub("src", "work.item")
	dst := newStub("dst", "work.item")
	b := startedBus(t, cfg, src, dst)
	b.Topology().SetConnection("src", "dst", 0.5, 0.1)

	if err := b.RouteMessage(types.NewMessage("src", "work.item", nil, types.PriorityNormal)); err != nil {
		t.Fatal(err)
	}

	w := b.Topology().GetWeight("src", "dst")
	if w <= 0.5 {
		t.Fatalf("delivery should strengthen the edge, got %v", w)
	}
	ci, _ := b.Topology().GetConnection("src", "dst")
	if ci.ActivationCount != 1 {
		t.Fatalf("expected 1 recorded activation, got %d", ci.ActivationCount)
	}
}

func TestBus_WildcardSubscriptions(t *testing.T) {
	exact := newStub("exact", "task.created")
	prefix := newStub("prefix", "task.*")
	global := newStub("global", "*")
	other := newStub("other", "memory.*")
	b := startedBus(t, testBusConfig(), exact, prefix, global, other)

	if err := b.RouteMessage(types.NewMessage("src", "task.created", nil, types.PriorityNormal)); err != nil {
		t.Fatal(err)
	}

	if len(exact.messages()) != 1 {
		t.Fatal("exact subscriber should receive")
	}
	if len(prefix.messages()) != 1 {
		t.Fatal("prefix wildcard subscriber should receive")
	}
	if len(global.messages()) != 1 {
		t.Fatal("global wildcard subscriber should receive")
	}
	if len(other.messages()) != 0 {
		t.Fatal("unrelated wildcard subscriber must not receive")
	}
}

func TestBus_WildcardDedup(t *testing.T) {
	// Subscribed to both the exact topic and a matching wildcard: one copy.
	both := newStub("both", "task.created", "task.*", "*")
	b := startedBus(t, testBusConfig(), both)

	if err := b.RouteMessage(types.NewMessage("src", "task.created", nil, types.PriorityNormal)); err != nil {
		t.Fatal(err)
	}
	if got := both.messages(); len(got) != 1 {
		t.Fatalf("overlapping subscriptions must deliver one copy, got %d", len(got))
	}
}

func TestBus_Broadcast(t *testing.T) {
	a := newStub("a", "x")
	c := newStub("c", "y")
	d := newStub("d") // No subscriptions at all.
	b := startedBus(t, testBusConfig(), a, c, d)

	b.Broadcast("system.tick", 42, "a")

	if len(a.messages()) != 0 {
		t.Fatal("broadcast source must be excluded")
	}
	if len(c.messages()) != 1 || len(d.messages()) != 1 {
		t.Fatal("broadcast must reach every other neuron regardless of subscriptions")
	}
	if m := b.GetMetrics(); m.Broadcasts != 1 {
		t.Fatalf("expected broadcasts=1, got %d", m.Broadcasts)
	}
}

func TestBus_FilterRejects(t *testing.T) {
	dst := newStub("dst", "x")
	b := startedBus(t, testBusConfig(), dst)

	b.RegisterFilter(FilterFunc{
		FilterName: "block-x",
		Fn: func(_ context.Context, msg *types.Message) (bool, error) {
			return msg.Topic != "x", nil
		},
	})

	if err := b.RouteMessage(types.NewMessage("src", "x", nil, types.PriorityNormal)); err != nil {
		t.Fatal(err)
	}
	if len(dst.messages()) != 0 {
		t.Fatal("filtered message must not be delivered")
	}
	if m := b.GetMetrics(); m.Filtered != 1 {
		t.Fatalf("expected filtered=1, got %d", m.Filtered)
	}

	// History still records filtered messages.
	if b.History().Len() != 1 {
		t.Fatal("filtered message should still appear in history")
	}
}

func TestBus_TTLFilterDropsExpired(t *testing.T) {
	dst := newStub("dst", "x")
	b := startedBus(t, testBusConfig(), dst)
	b.RegisterFilter(TTLFilter{})

	msg := types.NewMessage("src", "x", nil, types.PriorityNormal)
	msg.CreatedAt = time.Now().Add(-time.Minute)
	msg.TTL = time.Second

	if err := b.RouteMessage(msg); err != nil {
		t.Fatal(err)
	}
	if len(dst.messages()) != 0 {
		t.Fatal("expired message must be dropped")
	}

	fresh := types.NewMessage("src", "x", nil, types.PriorityNormal)
	fresh.TTL = time.Minute
	if err := b.RouteMessage(fresh); err != nil {
		t.Fatal(err)
	}
	if len(dst.messages()) != 1 {
		t.Fatal("unexpired message must pass the TTL filter")
	}
}

func TestBus_ObserveStream(t *testing.T) {
	dst := newStub("dst", "x")
	b := startedBus(t, testBusConfig(), dst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, cleanup := b.Observe(ctx, 4)
	defer cleanup()

	if err := b.RouteMessage(types.NewMessage("src", "x", "payload", types.PriorityNormal)); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-ch:
		if got.Topic != "x" {
			t.Fatalf("observed wrong topic %q", got.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("observation stream delivered nothing")
	}
}

func TestBus_StartStopIdempotent(t *testing.T) {
	b := New(testBusConfig())
	ctx := context.Background()

	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("second Start must be a no-op: %v", err)
	}
	if !b.IsRunning() {
		t.Fatal("bus should be running")
	}

	if err := b.StopAsync(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.StopAsync(ctx); err != nil {
		t.Fatalf("second StopAsync must be a no-op: %v", err)
	}
	if b.IsRunning() {
		t.Fatal("bus should be stopped")
	}
}

func TestBus_StopStartsAndStopsNeurons(t *testing.T) {
	a := newStub("a", "x")
	b := New(testBusConfig())
	if err := b.RegisterNeuron(a); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !a.IsActive() {
		t.Fatal("Start must start registered neurons")
	}
	if err := b.StopAsync(ctx); err != nil {
		t.Fatal(err)
	}
	if a.IsActive() {
		t.Fatal("StopAsync must stop registered neurons")
	}
}

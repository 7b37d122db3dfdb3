// Package bus implements the weighted message router at the heart of
// neurond: neuron registration with a learned connection topology, topic and
// wildcard fan-out, per-edge weight modulation, pluggable delivery filters,
// a bounded message history, and an observation stream for telemetry.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"neurond/internal/config"
	"neurond/internal/logging"
	"neurond/internal/types"
)

// Weight-modulation thresholds. Evaluated per (sender, subscriber) edge:
// at or below suppressWeight the delivery is suppressed entirely; negative
// weights above it downgrade priority to Low; weights above upgradeWeight
// upgrade priority to High.
const (
	suppressWeight = -0.8
	upgradeWeight  = 0.8
)

// Default-seeded connections between neurons sharing topics start at
// 0.5 + 0.1 per shared topic, capped at 0.9.
const (
	seedBase     = 0.5
	seedPerTopic = 0.1
	seedCap      = 0.9
)

var (
	// ErrDuplicateNeuron is returned when a neuron id is already registered.
	ErrDuplicateNeuron = errors.New("neuron id already registered")

	// ErrUnknownTarget is returned when a unicast names no registered neuron.
	ErrUnknownTarget = errors.New("unknown target neuron")

	// ErrNotRunning is returned when routing before Start or after StopAsync.
	ErrNotRunning = errors.New("bus is not running")
)

// Metrics is a point-in-time snapshot of bus counters.
type Metrics struct {
	Routed     int64 // Messages accepted by RouteMessage
	Delivered  int64 // Individual deliveries to neurons
	Suppressed int64 // Deliveries suppressed by edge weight
	Filtered   int64 // Messages rejected by the filter chain
	Dropped    int64 // Messages with no recipient or unknown target
	Broadcasts int64 // Broadcast calls
	Neurons    int   // Registered neurons
	Edges      int   // Explicit topology edges
	HistoryLen int   // Messages currently retained
	Observers  int   // Active observation subscribers
}

// Bus registers neurons, routes and broadcasts messages, and applies weight
// modulation and filters. All methods are safe for concurrent use.
type Bus struct {
	mu         sync.RWMutex
	cfg        config.BusConfig
	neurons    map[string]types.Neuron
	topicIndex map[string]map[string]struct{} // topic -> neuron id set
	topology   *Topology                      // nil = unweighted routing
	governance types.Lifecycle                // optional, started/stopped with the bus
	filters    *FilterChain
	history    *History
	observers  *ObserverSet
	persist    *persistWorker
	running    bool
	runCtx     context.Context

	routed     int64
	delivered  int64
	suppressed int64
	filtered   int64
	dropped    int64
	broadcasts int64
}

// New creates a bus with the given configuration.
func New(cfg config.BusConfig) *Bus {
	return &Bus{
		cfg:        cfg,
		neurons:    make(map[string]types.Neuron),
		topicIndex: make(map[string]map[string]struct{}),
		filters:    NewFilterChain(),
		history:    NewHistory(cfg.HistorySize),
		observers:  NewObserverSet(cfg.ObserveBufferSize),
		persist:    newPersistWorker(cfg.PersistQueueSize, cfg.PersistDrainTimeout, nil),
	}
}

// AttachTopology enables weighted routing and default connection seeding.
func (b *Bus) AttachTopology(t *Topology) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topology = t
}

// Topology returns the attached topology, or nil.
func (b *Bus) Topology() *Topology {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.topology
}

// AttachGovernance wires the governance layer into the bus lifecycle, so
// Start and StopAsync manage it alongside the neurons.
func (b *Bus) AttachGovernance(g types.Lifecycle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.governance = g
}

// SetPersistenceHook installs the optional message-persistence hook.
// Must be called before Start.
func (b *Bus) SetPersistenceHook(fn PersistFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persist = newPersistWorker(b.cfg.PersistQueueSize, b.cfg.PersistDrainTimeout, fn)
}

// RegisterFilter adds a delivery filter.
func (b *Bus) RegisterFilter(f Filter) {
	b.filters.Register(f)
}

// History returns the bounded message history.
func (b *Bus) History() *History {
	return b.history
}

// Observe subscribes to the bus-wide observation stream.
func (b *Bus) Observe(ctx context.Context, bufferSize int) (<-chan *types.Message, func()) {
	return b.observers.Subscribe(ctx, bufferSize)
}

// =============================================================================
// REGISTRATION
// =============================================================================

// RegisterNeuron indexes the neuron by id and by each subscribed topic.
// With a topology attached it also seeds a default bidirectional connection
// toward every other neuron sharing at least one topic, only where no
// connection already exists in that direction.
func (b *Bus) RegisterNeuron(n types.Neuron) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := n.ID()
	if id == "" {
		return fmt.Errorf("neuron has no id")
	}
	if _, exists := b.neurons[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNeuron, id)
	}

	b.neurons[id] = n
	for _, topic := range n.SubscribedTopics() {
		set, ok := b.topicIndex[topic]
		if !ok {
			set = make(map[string]struct{})
			b.topicIndex[topic] = set
		}
		set[id] = struct{}{}
	}

	if b.topology != nil {
		b.seedConnections(n)
	}

	logging.Bus("registered neuron %s (%s) on topics %v", id, n.Name(), n.SubscribedTopics())
	return nil
}

// seedConnections is called with b.mu held.
func (b *Bus) seedConnections(n types.Neuron) {
	topics := make(map[string]struct{}, len(n.SubscribedTopics()))
	for _, t := range n.SubscribedTopics() {
		topics[t] = struct{}{}
	}

	for otherID, other := range b.neurons {
		if otherID == n.ID() {
			continue
		}
		shared := 0
		for _, t := range other.SubscribedTopics() {
			if _, ok := topics[t]; ok {
				shared++
			}
		}
		if shared == 0 {
			continue
		}

		weight := seedBase + seedPerTopic*float64(shared)
		if weight > seedCap {
			weight = seedCap
		}

		if !b.topology.HasConnection(n.ID(), otherID) {
			b.topology.SetConnection(n.ID(), otherID, weight, b.cfg.DefaultPlasticity)
		}
		if !b.topology.HasConnection(otherID, n.ID()) {
			b.topology.SetConnection(otherID, n.ID(), weight, b.cfg.DefaultPlasticity)
		}
	}
}

// GetNeuron returns a registered neuron by id.
func (b *Bus) GetNeuron(id string) (types.Neuron, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.neurons[id]
	return n, ok
}

// Neurons returns a snapshot of all registered neurons.
func (b *Bus) Neurons() []types.Neuron {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Neuron, 0, len(b.neurons))
	for _, n := range b.neurons {
		out = append(out, n)
	}
	return out
}

// =============================================================================
// ROUTING
// =============================================================================

// RouteMessage routes one message: history and observation first, then the
// persistence hook (fire-and-forget through the bounded work queue), then
// the filter chain, then unicast or weighted topic fan-out. When any filter
// is deferred, filtering and delivery run off the routing goroutine and the
// returned error covers validation only.
func (b *Bus) RouteMessage(msg *types.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	running := b.running
	ctx := b.runCtx
	b.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	atomic.AddInt64(&b.routed, 1)
	b.history.Append(msg)
	b.observers.Publish(msg)
	b.persist.enqueue(msg)

	if b.filters.Len() > 0 && b.filters.HasDeferred() {
		go func() {
			if !b.filters.Allow(ctx, msg) {
				atomic.AddInt64(&b.filtered, 1)
				logging.Audit().BusEvent(logging.AuditMessageFiltered, msg.ID, msg.Topic)
				return
			}
			if err := b.deliver(msg); err != nil {
				logging.Get(logging.CategoryBus).Warn("deferred delivery failed for %s: %v", msg.ID, err)
			}
		}()
		return nil
	}

	if b.filters.Len() > 0 && !b.filters.Allow(ctx, msg) {
		atomic.AddInt64(&b.filtered, 1)
		logging.Audit().BusEvent(logging.AuditMessageFiltered, msg.ID, msg.Topic)
		return nil
	}

	return b.deliver(msg)
}

func (b *Bus) deliver(msg *types.Message) error {
	if msg.Target != "" {
		return b.unicast(msg)
	}
	b.multicast(msg)
	return nil
}

// unicast bypasses topic subscription and weight modulation entirely.
func (b *Bus) unicast(msg *types.Message) error {
	b.mu.RLock()
	n, ok := b.neurons[msg.Target]
	b.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&b.dropped, 1)
		return fmt.Errorf("%w: %s", ErrUnknownTarget, msg.Target)
	}
	if msg.Target == msg.Source {
		// A neuron never receives its own message.
		return nil
	}

	n.ReceiveMessage(msg)
	atomic.AddInt64(&b.delivered, 1)
	logging.BusDebug("unicast %s -> %s (topic=%s)", msg.Source, msg.Target, msg.Topic)
	return nil
}

// multicast fans out to exact-topic and wildcard subscribers, applying
// weight modulation per (sender, subscriber) edge when a topology is
// attached.
func (b *Bus) multicast(msg *types.Message) {
	recipients := b.subscribersFor(msg.Topic)

	for id, n := range recipients {
		if id == msg.Source {
			continue // The sender never receives its own message.
		}

		out := msg
		if b.topology != nil {
			weight := b.topology.GetWeight(msg.Source, id)
			switch {
			case weight <= suppressWeight:
				atomic.AddInt64(&b.suppressed, 1)
				logging.Audit().BusEvent(logging.AuditMessageSuppressed, msg.ID,
					fmt.Sprintf("%s -> %s weight=%.2f", msg.Source, id, weight))
				continue
			case weight < 0:
				out = msg.WithPriority(types.PriorityLow)
			case weight > upgradeWeight:
				out = msg.WithPriority(types.PriorityHigh)
			}

			b.topology.RecordActivation(msg.Source, id)
			if b.cfg.HebbianOnDelivery {
				b.topology.HebbianUpdate(msg.Source, id, true, true)
			}
		}

		n.ReceiveMessage(out)
		atomic.AddInt64(&b.delivered, 1)
	}

	logging.BusDebug("multicast %s on %s to %d subscriber(s)", msg.Source, msg.Topic, len(recipients))
}

// subscribersFor resolves exact-topic subscribers plus wildcard subscribers:
// the topic truncated at its last '.' with ".*" appended, and the global "*".
func (b *Bus) subscribersFor(topic string) map[string]types.Neuron {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]types.Neuron)
	add := func(key string) {
		for id := range b.topicIndex[key] {
			if n, ok := b.neurons[id]; ok {
				out[id] = n
			}
		}
	}

	add(topic)
	if i := strings.LastIndex(topic, "."); i > 0 {
		add(topic[:i] + ".*")
	}
	add("*")
	return out
}

// Broadcast delivers unconditionally to every other neuron, bypassing
// filters, weights, and fan-out rules. Reserved for system control signals
// such as heartbeats and shutdown notices.
func (b *Bus) Broadcast(topic string, payload interface{}, source string) {
	msg := types.NewMessage(source, topic, payload, types.PriorityNormal)
	if source == "" {
		msg.Source = "bus"
	}

	atomic.AddInt64(&b.broadcasts, 1)
	b.history.Append(msg)
	b.observers.Publish(msg)

	b.mu.RLock()
	targets := make([]types.Neuron, 0, len(b.neurons))
	for id, n := range b.neurons {
		if id == msg.Source {
			continue
		}
		targets = append(targets, n)
	}
	b.mu.RUnlock()

	for _, n := range targets {
		n.ReceiveMessage(msg)
		atomic.AddInt64(&b.delivered, 1)
	}

	logging.BusDebug("broadcast %s on %s to %d neuron(s)", msg.Source, topic, len(targets))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start starts the governance layer, the persistence worker, and every
// registered neuron. Idempotent.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.runCtx = ctx
	governance := b.governance
	neurons := make([]types.Neuron, 0, len(b.neurons))
	for _, n := range b.neurons {
		neurons = append(neurons, n)
	}
	b.mu.Unlock()

	b.persist.start(ctx)

	if governance != nil {
		if err := governance.Start(ctx); err != nil {
			return fmt.Errorf("start governance: %w", err)
		}
	}

	for _, n := range neurons {
		if err := n.Start(ctx); err != nil {
			logging.Get(logging.CategoryBus).Error("failed to start neuron %s: %v", n.ID(), err)
		}
	}

	logging.Bus("bus started with %d neuron(s)", len(neurons))
	return nil
}

// StopAsync stops the governance layer and every registered neuron, awaiting
// all neuron shutdowns before returning. Idempotent.
func (b *Bus) StopAsync(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	governance := b.governance
	neurons := make([]types.Neuron, 0, len(b.neurons))
	for _, n := range b.neurons {
		neurons = append(neurons, n)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, n := range neurons {
		wg.Add(1)
		go func(n types.Neuron) {
			defer wg.Done()
			if err := n.Stop(); err != nil {
				logging.Get(logging.CategoryBus).Warn("neuron %s stop: %v", n.ID(), err)
			}
		}(n)
	}
	wg.Wait()

	if governance != nil {
		if err := governance.Stop(); err != nil {
			logging.Get(logging.CategoryBus).Warn("governance stop: %v", err)
		}
	}

	b.persist.stop()
	b.observers.Close()

	logging.Bus("bus stopped")
	return nil
}

// IsRunning reports whether the bus is started.
func (b *Bus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// GetMetrics returns a snapshot of bus counters.
func (b *Bus) GetMetrics() Metrics {
	b.mu.RLock()
	neuronCount := len(b.neurons)
	topo := b.topology
	b.mu.RUnlock()

	edges := 0
	if topo != nil {
		edges = topo.EdgeCount()
	}

	return Metrics{
		Routed:     atomic.LoadInt64(&b.routed),
		Delivered:  atomic.LoadInt64(&b.delivered),
		Suppressed: atomic.LoadInt64(&b.suppressed),
		Filtered:   atomic.LoadInt64(&b.filtered),
		Dropped:    atomic.LoadInt64(&b.dropped),
		Broadcasts: atomic.LoadInt64(&b.broadcasts),
		Neurons:    neuronCount,
		Edges:      edges,
		HistoryLen: b.history.Len(),
		Observers:  b.observers.SubscriberCount(),
	}
}

package bus

import (
	"sync"
	"time"

	"neurond/internal/logging"
)

// =============================================================================
// CONNECTION TOPOLOGY - Hebbian-learned weighted graph
// =============================================================================
//
// The topology is written concurrently (learning) and read on every routed
// message (weight lookup). Mutation is serialized per edge, not behind one
// global graph lock, so unrelated traffic is never blocked by a Hebbian
// update elsewhere. The outer map lock only guards edge lookup and insert.

// Connection is a weighted directed edge between two neuron identities.
type Connection struct {
	mu sync.Mutex

	Source string
	Target string

	weight          float64 // Always clamped to [-1,1]
	plasticity      float64
	frozen          bool
	activationCount int64
	lastActivation  time.Time
}

// snapshot is taken under the edge lock.
func (c *Connection) snapshot() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionInfo{
		Source:          c.Source,
		Target:          c.Target,
		Weight:          c.weight,
		Plasticity:      c.plasticity,
		Frozen:          c.frozen,
		ActivationCount: c.activationCount,
		LastActivation:  c.lastActivation,
	}
}

// ConnectionInfo is an immutable view of an edge for inspection and rendering.
type ConnectionInfo struct {
	Source          string
	Target          string
	Weight          float64
	Plasticity      float64
	Frozen          bool
	ActivationCount int64
	LastActivation  time.Time
}

type edgeKey struct {
	src, dst string
}

// Topology holds the weighted directed graph between neuron identities.
type Topology struct {
	mu    sync.RWMutex
	edges map[edgeKey]*Connection
}

// NewTopology creates an empty topology.
func NewTopology() *Topology {
	return &Topology{edges: make(map[edgeKey]*Connection)}
}

func clampWeight(w float64) float64 {
	if w > 1 {
		return 1
	}
	if w < -1 {
		return -1
	}
	return w
}

// SetConnection replaces any existing edge with a fresh one. Activation
// history resets; this is an explicit reconfiguration operation, not a
// soft update.
func (t *Topology) SetConnection(src, dst string, weight, plasticity float64) {
	conn := &Connection{
		Source:     src,
		Target:     dst,
		weight:     clampWeight(weight),
		plasticity: plasticity,
	}

	t.mu.Lock()
	t.edges[edgeKey{src, dst}] = conn
	t.mu.Unlock()

	logging.TopologyDebug("set connection %s -> %s weight=%.3f plasticity=%.3f", src, dst, weight, plasticity)
}

// HasConnection reports whether an explicit edge exists in that direction.
func (t *Topology) HasConnection(src, dst string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.edges[edgeKey{src, dst}]
	return ok
}

func (t *Topology) edge(src, dst string) *Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.edges[edgeKey{src, dst}]
}

// GetWeight returns the edge weight, defaulting to 1.0 (fully excitatory)
// when no explicit edge exists. Absence of configuration must never
// silently suppress traffic.
func (t *Topology) GetWeight(src, dst string) float64 {
	conn := t.edge(src, dst)
	if conn == nil {
		return 1.0
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.weight
}

// GetConnection returns an immutable view of the edge, if present.
func (t *Topology) GetConnection(src, dst string) (ConnectionInfo, bool) {
	conn := t.edge(src, dst)
	if conn == nil {
		return ConnectionInfo{}, false
	}
	return conn.snapshot(), true
}

// HebbianUpdate applies the online learning rule to the edge:
//   - frozen edge: no change
//   - both active: weight += plasticity * (1 - |weight|), saturating toward +/-1
//   - source active, target not: weight -= plasticity * |weight| * 0.5, decaying toward zero
//   - source inactive: no change regardless of target
//
// The result is always clamped to [-1,1]. Returns the post-update weight and
// false if no explicit edge exists (implicit edges never learn).
func (t *Topology) HebbianUpdate(src, dst string, srcActive, dstActive bool) (float64, bool) {
	conn := t.edge(src, dst)
	if conn == nil {
		return 0, false
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.frozen || !srcActive {
		return conn.weight, true
	}

	if dstActive {
		conn.weight += conn.plasticity * (1 - abs(conn.weight))
	} else {
		conn.weight -= conn.plasticity * abs(conn.weight) * 0.5
	}
	conn.weight = clampWeight(conn.weight)

	return conn.weight, true
}

// RecordActivation bumps the activation stats on the edge. Every
// non-suppressed weighted delivery records one activation; the counters feed
// learning and the /network inspection surface.
func (t *Topology) RecordActivation(src, dst string) {
	conn := t.edge(src, dst)
	if conn == nil {
		return
	}
	conn.mu.Lock()
	conn.activationCount++
	conn.lastActivation = time.Now()
	conn.mu.Unlock()
}

// ComputeNetInput sums weight * activationFn(source) over all edges
// incoming to target.
func (t *Topology) ComputeNetInput(target string, activationFn func(source string) float64) float64 {
	t.mu.RLock()
	incoming := make([]*Connection, 0, 8)
	for k, conn := range t.edges {
		if k.dst == target {
			incoming = append(incoming, conn)
		}
	}
	t.mu.RUnlock()

	var sum float64
	for _, conn := range incoming {
		conn.mu.Lock()
		w := conn.weight
		conn.mu.Unlock()
		sum += w * activationFn(conn.Source)
	}
	return sum
}

// SetFrozenAll freezes or unfreezes every edge. Frozen edges ignore
// Hebbian updates; used by the /training command.
func (t *Topology) SetFrozenAll(frozen bool) int {
	t.mu.RLock()
	conns := make([]*Connection, 0, len(t.edges))
	for _, c := range t.edges {
		conns = append(conns, c)
	}
	t.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		c.frozen = frozen
		c.mu.Unlock()
	}
	logging.Topology("set frozen=%v on %d edges", frozen, len(conns))
	return len(conns)
}

// SetPlasticityAll adjusts the learning rate on every edge.
func (t *Topology) SetPlasticityAll(plasticity float64) int {
	t.mu.RLock()
	conns := make([]*Connection, 0, len(t.edges))
	for _, c := range t.edges {
		conns = append(conns, c)
	}
	t.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		c.plasticity = plasticity
		c.mu.Unlock()
	}
	logging.Topology("set plasticity=%.3f on %d edges", plasticity, len(conns))
	return len(conns)
}

// EdgeCount returns the number of explicit edges.
func (t *Topology) EdgeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.edges)
}

// Connections returns an immutable snapshot of every edge.
func (t *Topology) Connections() []ConnectionInfo {
	t.mu.RLock()
	conns := make([]*Connection, 0, len(t.edges))
	for _, c := range t.edges {
		conns = append(conns, c)
	}
	t.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.snapshot())
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

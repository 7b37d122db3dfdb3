package bus

import (
	"context"
	"sync"
	"time"

	"neurond/internal/logging"
	"neurond/internal/types"
)

// =============================================================================
// MESSAGE FILTERS
// =============================================================================
//
// Filters gate delivery: all registered filters must approve (logical AND)
// before a routed message reaches any subscriber. A rejected message is
// dropped silently (logged only). When any filter is deferred, the whole
// chain plus delivery runs off the routing goroutine, so callers must not
// assume delivery completed when RouteMessage returns.

// Filter decides whether a routed message may be delivered.
type Filter interface {
	// Name returns a human-readable name for logging.
	Name() string

	// Allow returns false to drop the message. An error also drops it.
	Allow(ctx context.Context, msg *types.Message) (bool, error)

	// Deferred reports whether this filter may block and must therefore be
	// evaluated off the routing goroutine.
	Deferred() bool

	// Priority orders filter evaluation (lower runs first). Cheap checks
	// should run before expensive ones.
	Priority() int
}

// FilterChain holds registered filters in priority order.
type FilterChain struct {
	mu      sync.RWMutex
	filters []Filter
}

// NewFilterChain creates an empty filter chain.
func NewFilterChain() *FilterChain {
	return &FilterChain{}
}

// Register adds a filter, keeping the chain sorted by priority.
func (fc *FilterChain) Register(f Filter) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.filters = append(fc.filters, f)
	for i := len(fc.filters) - 1; i > 0; i-- {
		if fc.filters[i].Priority() < fc.filters[i-1].Priority() {
			fc.filters[i], fc.filters[i-1] = fc.filters[i-1], fc.filters[i]
		}
	}
}

// Len returns the number of registered filters.
func (fc *FilterChain) Len() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.filters)
}

// HasDeferred reports whether any filter must run off the routing goroutine.
func (fc *FilterChain) HasDeferred() bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	for _, f := range fc.filters {
		if f.Deferred() {
			return true
		}
	}
	return false
}

// Allow evaluates the chain in priority order. The first rejection wins.
func (fc *FilterChain) Allow(ctx context.Context, msg *types.Message) bool {
	fc.mu.RLock()
	filters := make([]Filter, len(fc.filters))
	copy(filters, fc.filters)
	fc.mu.RUnlock()

	for _, f := range filters {
		ok, err := f.Allow(ctx, msg)
		if err != nil {
			logging.Get(logging.CategoryBus).Warn("filter %s errored on message %s, dropping: %v", f.Name(), msg.ID, err)
			return false
		}
		if !ok {
			logging.BusDebug("filter %s rejected message %s (topic=%s)", f.Name(), msg.ID, msg.Topic)
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Built-in filters
// -----------------------------------------------------------------------------

// TTLFilter drops messages whose TTL elapsed before delivery.
type TTLFilter struct{}

func (TTLFilter) Name() string   { return "ttl" }
func (TTLFilter) Deferred() bool { return false }
func (TTLFilter) Priority() int  { return 0 }

func (TTLFilter) Allow(_ context.Context, msg *types.Message) (bool, error) {
	return !msg.Expired(time.Now()), nil
}

// RateFilter caps how many messages a single source may route per window.
// Counters reset when the window rolls over; this is a coarse brake on a
// runaway neuron, not precise rate shaping.
type RateFilter struct {
	mu          sync.Mutex
	maxPerWindow int
	window       time.Duration
	windowStart  time.Time
	counts       map[string]int
}

// NewRateFilter creates a rate filter allowing maxPerWindow messages per
// source per window.
func NewRateFilter(maxPerWindow int, window time.Duration) *RateFilter {
	return &RateFilter{
		maxPerWindow: maxPerWindow,
		window:       window,
		windowStart:  time.Now(),
		counts:       make(map[string]int),
	}
}

func (r *RateFilter) Name() string   { return "rate" }
func (r *RateFilter) Deferred() bool { return false }
func (r *RateFilter) Priority() int  { return 10 }

func (r *RateFilter) Allow(_ context.Context, msg *types.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.windowStart) > r.window {
		r.windowStart = now
		r.counts = make(map[string]int)
	}

	r.counts[msg.Source]++
	return r.counts[msg.Source] <= r.maxPerWindow, nil
}

// FilterFunc adapts a plain function into a synchronous Filter.
type FilterFunc struct {
	FilterName     string
	FilterPriority int
	Fn             func(ctx context.Context, msg *types.Message) (bool, error)
}

func (f FilterFunc) Name() string   { return f.FilterName }
func (f FilterFunc) Deferred() bool { return false }
func (f FilterFunc) Priority() int  { return f.FilterPriority }

func (f FilterFunc) Allow(ctx context.Context, msg *types.Message) (bool, error) {
	return f.Fn(ctx, msg)
}

package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"neurond/internal/logging"
	"neurond/internal/types"
)

// =============================================================================
// OBSERVATION STREAM
// =============================================================================
//
// Every message the bus touches (routed or broadcast, before filtering) is
// published to the observation stream for telemetry. Subscribers receive
// through buffered channels; if a subscriber's buffer is full the message is
// dropped for that subscriber so a slow consumer never affects routing or
// other subscribers.

// ObserverSet manages observation-stream subscriptions.
type ObserverSet struct {
	mu            sync.RWMutex
	subscribers   map[string]*observerSub
	defaultBuffer int
	closed        bool
}

type observerSub struct {
	id       string
	ch       chan *types.Message
	ctx      context.Context
	cancel   context.CancelFunc
	created  time.Time
	received atomic.Int64
	dropped  atomic.Int64
}

var observerCounter atomic.Uint64

// NewObserverSet creates an observer set with the given default buffer size.
func NewObserverSet(defaultBuffer int) *ObserverSet {
	if defaultBuffer <= 0 {
		defaultBuffer = 100
	}
	return &ObserverSet{
		subscribers:   make(map[string]*observerSub),
		defaultBuffer: defaultBuffer,
	}
}

// Subscribe creates a subscription. The cleanup function must be called to
// prevent resource leaks. bufferSize 0 uses the default.
func (o *ObserverSet) Subscribe(ctx context.Context, bufferSize int) (<-chan *types.Message, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if bufferSize <= 0 {
		bufferSize = o.defaultBuffer
	}

	id := fmt.Sprintf("obs-%d-%d", time.Now().UnixNano(), observerCounter.Add(1))
	subCtx, cancel := context.WithCancel(ctx)

	sub := &observerSub{
		id:      id,
		ch:      make(chan *types.Message, bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		created: time.Now(),
	}
	o.subscribers[id] = sub

	cleanup := func() { o.unsubscribe(id) }
	return sub.ch, cleanup
}

func (o *ObserverSet) unsubscribe(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sub, ok := o.subscribers[id]
	if !ok {
		return
	}
	sub.cancel()
	close(sub.ch)
	delete(o.subscribers, id)
}

// Publish fans the message out to every live subscriber without blocking.
func (o *ObserverSet) Publish(msg *types.Message) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return
	}

	for _, sub := range o.subscribers {
		select {
		case <-sub.ctx.Done():
			// Subscriber disconnected; cleaned up by its cleanup func.
			continue
		default:
		}

		select {
		case sub.ch <- msg:
			sub.received.Add(1)
		default:
			sub.dropped.Add(1)
			logging.BusDebug("observation stream: dropped message %s for slow subscriber %s", msg.ID, sub.id)
		}
	}
}

// SubscriberCount returns the current number of active subscribers.
func (o *ObserverSet) SubscriberCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subscribers)
}

// Close shuts down every subscription. Idempotent.
func (o *ObserverSet) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true

	for id, sub := range o.subscribers {
		sub.cancel()
		close(sub.ch)
		delete(o.subscribers, id)
	}
}

package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"neurond/internal/logging"
	"neurond/internal/types"
)

// =============================================================================
// PERSISTENCE WORK QUEUE
// =============================================================================
//
// Message persistence is delegated to an injected hook and must never gate
// delivery. Instead of raw fire-and-forget goroutines, enqueues go to a
// bounded queue drained by one supervised worker, so shutdown draining is
// deterministic and hook failures are observable. A full queue drops the
// message for persistence only; routing is unaffected.

// PersistFunc is the injected message-persistence hook.
type PersistFunc func(ctx context.Context, msg *types.Message) error

type persistWorker struct {
	mu      sync.Mutex
	queue   chan *types.Message
	fn      PersistFunc
	timeout time.Duration
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	enqueued int64
	dropped  int64
	failed   int64
}

func newPersistWorker(size int, drainTimeout time.Duration, fn PersistFunc) *persistWorker {
	if size <= 0 {
		size = 256
	}
	return &persistWorker{
		queue:   make(chan *types.Message, size),
		fn:      fn,
		timeout: drainTimeout,
	}
}

func (p *persistWorker) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.fn == nil {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run(ctx)
}

func (p *persistWorker) run(ctx context.Context) {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			// Drain what is already queued, then exit.
			for {
				select {
				case msg := <-p.queue:
					p.persist(ctx, msg)
				default:
					return
				}
			}
		case msg := <-p.queue:
			p.persist(ctx, msg)
		}
	}
}

func (p *persistWorker) persist(ctx context.Context, msg *types.Message) {
	// Hook errors are swallowed; persistence never propagates failure.
	if err := p.fn(ctx, msg); err != nil {
		atomic.AddInt64(&p.failed, 1)
		logging.Get(logging.CategoryBus).Warn("message persistence failed for %s: %v", msg.ID, err)
	}
}

// enqueue never blocks; a full queue drops the message for persistence.
func (p *persistWorker) enqueue(msg *types.Message) {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}

	select {
	case p.queue <- msg:
		atomic.AddInt64(&p.enqueued, 1)
	default:
		atomic.AddInt64(&p.dropped, 1)
		logging.Get(logging.CategoryBus).Warn("persistence queue full, dropping message %s", msg.ID)
	}
}

func (p *persistWorker) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
	case <-time.After(p.timeout):
		logging.Get(logging.CategoryBus).Warn("persistence worker drain timeout exceeded, %d messages may be lost", len(p.queue))
	}
}

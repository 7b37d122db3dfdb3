// Package neuron provides the base unit abstraction: an addressable,
// topic-subscribed processor with an asynchronous mailbox loop. Concrete
// behaviors (memory, communication, safety) are injected as handler
// functions; the package owns only the lifecycle and delivery mechanics.
package neuron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neurond/internal/logging"
	"neurond/internal/types"
)

// Handler processes one delivered message. Returning an error marks the
// message as failed in the logs; it never kills the mailbox loop.
type Handler func(ctx context.Context, msg *types.Message) error

// PeriodicFunc is invoked once per loop iteration after the mailbox drains.
type PeriodicFunc func(ctx context.Context) error

// Config describes a neuron at construction time.
type Config struct {
	ID       string
	Name     string
	Type     string
	Topics   []string
	Handler  Handler
	Periodic PeriodicFunc

	// IdleInterval bounds idle CPU between mailbox drains. Zero uses the
	// 50ms default.
	IdleInterval time.Duration
}

// BaseNeuron implements types.Neuron with an unbounded inbound mailbox and
// a single goroutine run loop: drain the mailbox through the handler, invoke
// the periodic hook, idle briefly, repeat until stopped.
type BaseNeuron struct {
	id     string
	name   string
	ntype  string
	topics []string

	mu       sync.Mutex
	mailbox  []*types.Message
	handler  Handler
	periodic PeriodicFunc
	router   types.Router
	idle     time.Duration

	active bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a neuron from the given config.
func New(cfg Config) *BaseNeuron {
	idle := cfg.IdleInterval
	if idle <= 0 {
		idle = 50 * time.Millisecond
	}
	return &BaseNeuron{
		id:       cfg.ID,
		name:     cfg.Name,
		ntype:    cfg.Type,
		topics:   cfg.Topics,
		handler:  cfg.Handler,
		periodic: cfg.Periodic,
		idle:     idle,
	}
}

func (n *BaseNeuron) ID() string   { return n.id }
func (n *BaseNeuron) Name() string { return n.name }
func (n *BaseNeuron) Type() string { return n.ntype }

func (n *BaseNeuron) SubscribedTopics() []string { return n.topics }

// IsActive reports whether the mailbox loop is running.
func (n *BaseNeuron) IsActive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// SetRouter wires the bus; required before SendMessage/SendResponse.
func (n *BaseNeuron) SetRouter(r types.Router) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.router = r
}

// ReceiveMessage enqueues without blocking the caller. The mailbox is
// unbounded; backpressure is applied upstream by bus filters.
func (n *BaseNeuron) ReceiveMessage(msg *types.Message) {
	n.mu.Lock()
	n.mailbox = append(n.mailbox, msg)
	n.mu.Unlock()
}

// MailboxLen returns the number of queued messages.
func (n *BaseNeuron) MailboxLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.mailbox)
}

// Start launches the mailbox loop. Idempotent.
func (n *BaseNeuron) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active {
		return nil
	}
	n.active = true
	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})

	go n.run(ctx, n.stopCh, n.doneCh)
	logging.Neuron("neuron %s (%s) started", n.id, n.name)
	return nil
}

// Stop terminates the mailbox loop and waits for it to exit. Idempotent.
func (n *BaseNeuron) Stop() error {
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return nil
	}
	n.active = false
	close(n.stopCh)
	done := n.doneCh
	n.mu.Unlock()

	<-done
	logging.Neuron("neuron %s stopped", n.id)
	return nil
}

func (n *BaseNeuron) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		n.drainMailbox(ctx)

		if n.periodic != nil {
			if err := n.periodic(ctx); err != nil {
				logging.Get(logging.CategoryNeuron).Warn("neuron %s periodic hook: %v", n.id, err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-time.After(n.idle):
		}
	}
}

// drainMailbox processes everything queued at entry. One bad message never
// kills the loop: handler errors are logged and handler panics recovered.
func (n *BaseNeuron) drainMailbox(ctx context.Context) {
	n.mu.Lock()
	batch := n.mailbox
	n.mailbox = nil
	n.mu.Unlock()

	for _, msg := range batch {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n.handleOne(ctx, msg)
	}
}

func (n *BaseNeuron) handleOne(ctx context.Context, msg *types.Message) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryNeuron).Error("neuron %s panicked on message %s: %v", n.id, msg.ID, r)
		}
	}()

	if n.handler == nil {
		return
	}
	if err := n.handler(ctx, msg); err != nil {
		logging.Get(logging.CategoryNeuron).Warn("neuron %s handler failed on message %s (topic=%s): %v",
			n.id, msg.ID, msg.Topic, err)
	}
}

// SendMessage builds a message stamped with this neuron's id as Source and
// routes it through the bus.
func (n *BaseNeuron) SendMessage(topic string, payload interface{}, priority types.Priority) error {
	n.mu.Lock()
	router := n.router
	n.mu.Unlock()
	if router == nil {
		return fmt.Errorf("neuron %s has no router", n.id)
	}

	msg := types.NewMessage(n.id, topic, payload, priority)
	return router.RouteMessage(msg)
}

// SendResponse replies to an originating message: the response carries the
// original id as CorrelationId, targets the original sender, and appends
// ".response" to the topic.
func (n *BaseNeuron) SendResponse(orig *types.Message, payload interface{}) error {
	n.mu.Lock()
	router := n.router
	n.mu.Unlock()
	if router == nil {
		return fmt.Errorf("neuron %s has no router", n.id)
	}

	msg := types.NewMessage(n.id, orig.Topic+".response", payload, orig.Priority)
	msg.Target = orig.Source
	msg.CorrelationID = orig.ID
	return router.RouteMessage(msg)
}

var _ types.Neuron = (*BaseNeuron)(nil)

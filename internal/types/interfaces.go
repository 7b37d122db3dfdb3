package types

import "context"

// Neuron is the interface every addressable unit on the bus implements.
// Identity is stable for the process lifetime; Start/Stop toggle activity.
type Neuron interface {
	// ID returns the unique, stable identity of the neuron.
	ID() string
	// Name returns the human-readable name.
	Name() string
	// Type returns the behavioral type tag (e.g. "memory", "safety").
	Type() string
	// SubscribedTopics returns the topics this neuron listens on.
	// Entries may use a trailing wildcard segment ("code.*") or "*".
	SubscribedTopics() []string
	// IsActive reports whether the mailbox loop is running.
	IsActive() bool
	// ReceiveMessage enqueues a message without blocking the caller.
	ReceiveMessage(msg *Message)
	// Start launches the mailbox loop. Idempotent.
	Start(ctx context.Context) error
	// Stop terminates the mailbox loop and waits for it to exit. Idempotent.
	Stop() error
}

// Router is the bus surface neurons use to emit messages.
type Router interface {
	// RouteMessage routes one message through filters, topology weights,
	// and topic fan-out.
	RouteMessage(msg *Message) error
	// Broadcast delivers unconditionally to every other neuron, bypassing
	// filters and weights. Reserved for system control signals.
	Broadcast(topic string, payload interface{}, source string)
}

// Lifecycle is implemented by subsystems the bus starts and stops alongside
// itself (the governance layer in practice).
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

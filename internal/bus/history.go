package bus

import (
	"sync"

	"neurond/internal/types"
)

// History is a size-bounded rolling record of routed messages.
// Arrival order is preserved; the oldest entry drops on overflow.
type History struct {
	mu       sync.Mutex
	messages []*types.Message
	capacity int
}

// NewHistory creates a history bounded to capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		messages: make([]*types.Message, 0, capacity),
		capacity: capacity,
	}
}

// Append records a message, dropping the oldest when full.
func (h *History) Append(msg *types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) >= h.capacity {
		// Shift rather than re-slice so the backing array never grows.
		copy(h.messages, h.messages[1:])
		h.messages[len(h.messages)-1] = msg
		return
	}
	h.messages = append(h.messages, msg)
}

// Recent returns up to n most recent messages, oldest first.
func (h *History) Recent(n int) []*types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]*types.Message, n)
	copy(out, h.messages[len(h.messages)-n:])
	return out
}

// Len returns the current number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Capacity returns the configured bound.
func (h *History) Capacity() int {
	return h.capacity
}

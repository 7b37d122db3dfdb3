package coordinator

import (
	"sync"
	"time"

	"neurond/internal/types"
)

// notificationLimit bounds the rolling notification history.
const notificationLimit = 100

// Notification is one entry on the proactive-message stream consumed by any
// presentation layer.
type Notification struct {
	Message   string
	Priority  types.Priority
	Source    string
	Timestamp time.Time
}

// ProactiveFunc receives each notification as it is appended.
type ProactiveFunc func(n Notification)

// NotificationLog is a bounded (last-100) rolling notification history.
// Ordering is preserved and the bound enforced on every append.
type NotificationLog struct {
	mu        sync.Mutex
	entries   []Notification
	listeners []ProactiveFunc
}

// NewNotificationLog creates an empty log.
func NewNotificationLog() *NotificationLog {
	return &NotificationLog{}
}

// OnProactive registers a listener for the proactive-message stream.
// Listeners are invoked synchronously on the appending goroutine and must
// not block.
func (l *NotificationLog) OnProactive(fn ProactiveFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Append records a notification and fires the proactive stream.
func (l *NotificationLog) Append(message string, priority types.Priority, source string) {
	n := Notification{
		Message:   message,
		Priority:  priority,
		Source:    source,
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, n)
	if len(l.entries) > notificationLimit {
		l.entries = l.entries[len(l.entries)-notificationLimit:]
	}
	listeners := make([]ProactiveFunc, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
}

// History returns the retained notifications, oldest first.
func (l *NotificationLog) History() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notification, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current history length.
func (l *NotificationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Package types provides shared type definitions used across neurond packages.
// This package exists to break import cycles between bus, neuron, governance,
// and coordinator. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PRIORITY
// =============================================================================

// Priority defines the scheduling priority for messages and intentions.
type Priority int

const (
	// PriorityLow is for background traffic, speculation, and learning.
	PriorityLow Priority = 0

	// PriorityNormal is for regular inter-neuron traffic.
	PriorityNormal Priority = 1

	// PriorityHigh is for operator-initiated work and urgent signals.
	PriorityHigh Priority = 2

	// PriorityCritical is for safety-critical system signals.
	PriorityCritical Priority = 3
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is the immutable unit of communication on the bus.
// Messages are created by a neuron or the coordinator, routed once,
// then discarded (retained only in the bus's bounded history).
type Message struct {
	ID              string        `json:"id"`
	Source          string        `json:"source"`
	Target          string        `json:"target,omitempty"` // Empty = topic multicast
	Topic           string        `json:"topic"`
	Payload         interface{}   `json:"payload"`
	Priority        Priority      `json:"priority"`
	CreatedAt       time.Time     `json:"created_at"`
	TTL             time.Duration `json:"ttl,omitempty"` // Zero = never expires
	ExpectsResponse bool          `json:"expects_response,omitempty"`
	CorrelationID   string        `json:"correlation_id,omitempty"`
}

// NewMessage builds a message with a fresh unique ID and CreatedAt=now.
func NewMessage(source, topic string, payload interface{}, priority Priority) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Source:    source,
		Topic:     topic,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// Expired reports whether the message's TTL has elapsed.
// Messages without a TTL never expire.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.After(m.CreatedAt.Add(m.TTL))
}

// WithPriority returns a shallow copy with the priority replaced.
// The original message is never mutated after creation; weight modulation
// on the bus delivers adjusted copies instead.
func (m *Message) WithPriority(p Priority) *Message {
	clone := *m
	clone.Priority = p
	return &clone
}

// Validate checks the invariants every routed message must satisfy.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message has no id")
	}
	if m.Source == "" {
		return fmt.Errorf("message %s has no source", m.ID)
	}
	if m.Topic == "" {
		return fmt.Errorf("message %s has no topic", m.ID)
	}
	return nil
}

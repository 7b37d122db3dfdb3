// Package governance implements the intention lifecycle: the single choke
// point through which every state-changing proposal must pass. Intentions
// move along a fixed state machine; invalid transitions fail
// deterministically and nothing is ever physically deleted, only
// status-terminated.
package governance

import (
	"time"

	"neurond/internal/types"
)

// Status is the lifecycle state of an intention.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusCancelled, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// canTransition encodes the state machine:
// Pending -> {Approved, Rejected, Expired, Cancelled}
// Approved -> {Executing, Expired, Cancelled}
// Executing -> {Completed, Failed}
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected || to == StatusExpired || to == StatusCancelled
	case StatusApproved:
		return to == StatusExecuting || to == StatusExpired || to == StatusCancelled
	case StatusExecuting:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Category classifies what kind of work an intention proposes.
type Category string

const (
	CategorySelfReflection      Category = "self_reflection"
	CategoryCodeModification    Category = "code_modification"
	CategoryGoalPursuit         Category = "goal_pursuit"
	CategoryCommunication       Category = "communication"
	CategoryExploration         Category = "exploration"
	CategoryMemoryManagement    Category = "memory_management"
	CategoryLearning            Category = "learning"
	CategorySafetyCheck         Category = "safety_check"
	CategoryNeuronCommunication Category = "neuron_communication"
)

// Intention is a proposed, possibly approval-gated unit of work.
// Mutated only through governance operations.
type Intention struct {
	ID               string
	Title            string
	Description      string
	Rationale        string
	Category         Category
	Priority         types.Priority
	CreatedAt        time.Time
	ExpiresAt        time.Time // Zero = never expires
	Source           string
	Target           string
	Action           types.Action // nil = dispatch by category
	RequiresApproval bool
	Status           Status
	UserComment      string
	ActedAt          time.Time // When approval/rejection happened
	ExecutionResult  string
}

// expired reports whether the intention's expiry has passed and it has not
// yet been acted to a transient or terminal state.
func (i *Intention) expired(now time.Time) bool {
	if i.ExpiresAt.IsZero() {
		return false
	}
	if i.Status != StatusPending && i.Status != StatusApproved {
		return false
	}
	return now.After(i.ExpiresAt)
}

// Proposal carries the arguments of ProposeIntention.
type Proposal struct {
	Title            string
	Description      string
	Rationale        string
	Category         Category
	Priority         types.Priority
	Source           string
	Target           string
	Action           types.Action
	RequiresApproval bool
	ExpiresAt        time.Time
}

package types

import "fmt"

// =============================================================================
// STRUCTURED ACTION - Tagged union attached to intentions
// =============================================================================
//
// An Action describes the concrete work an approved intention performs.
// Dispatch happens via a type switch in the coordinator; the sealed marker
// method keeps the union closed so the switch stays exhaustive.

// Action is the sealed interface implemented by all action variants.
type Action interface {
	// Kind returns the stable wire name of the action variant.
	Kind() string
	isAction()
}

// ToolAction invokes a registered external tool by name.
type ToolAction struct {
	Tool string
	Args map[string]interface{}
}

// MessageAction routes a message onto the bus.
type MessageAction struct {
	Target   string // Empty = topic multicast
	Topic    string
	Payload  interface{}
	Priority Priority
}

// CodeChangeAction requests a code modification through the reflection hook.
type CodeChangeAction struct {
	Path        string
	Description string
}

// GoalAction adopts or advances a long-horizon goal.
type GoalAction struct {
	Goal string
}

// TaskAction executes a free-form task through the think hook.
type TaskAction struct {
	Task string
}

// GenericAction is the fallback for actions with no structured variant.
type GenericAction struct {
	Description string
}

func (ToolAction) Kind() string       { return "tool" }
func (MessageAction) Kind() string    { return "message" }
func (CodeChangeAction) Kind() string { return "code_change" }
func (GoalAction) Kind() string       { return "goal" }
func (TaskAction) Kind() string       { return "task_execution" }
func (GenericAction) Kind() string    { return "generic" }

func (ToolAction) isAction()       {}
func (MessageAction) isAction()    {}
func (CodeChangeAction) isAction() {}
func (GoalAction) isAction()       {}
func (TaskAction) isAction()       {}
func (GenericAction) isAction()    {}

// DescribeAction returns a short human-readable summary for audit trails.
func DescribeAction(a Action) string {
	switch v := a.(type) {
	case ToolAction:
		return fmt.Sprintf("tool:%s", v.Tool)
	case MessageAction:
		if v.Target != "" {
			return fmt.Sprintf("message to %s on %s", v.Target, v.Topic)
		}
		return fmt.Sprintf("message on %s", v.Topic)
	case CodeChangeAction:
		return fmt.Sprintf("code_change:%s", v.Path)
	case GoalAction:
		return fmt.Sprintf("goal:%s", v.Goal)
	case TaskAction:
		return fmt.Sprintf("task:%s", v.Task)
	case GenericAction:
		return v.Description
	case nil:
		return "none"
	default:
		return fmt.Sprintf("unknown(%T)", a)
	}
}

package coordinator

import (
	"context"
	"fmt"
	"strings"

	"neurond/internal/governance"
	"neurond/internal/logging"
	"neurond/internal/types"
)

// =============================================================================
// INTENTION DISPATCH
// =============================================================================

// dispatch routes an executing intention to the collaborator that can carry
// it out. A structured action wins over the category; the category fallback
// covers intentions proposed as plain text.
func (c *Coordinator) dispatch(ctx context.Context, i governance.Intention) (string, error) {
	if i.Action != nil {
		return c.dispatchAction(ctx, i)
	}
	return c.dispatchCategory(ctx, i)
}

// dispatchAction handles intentions carrying a structured action. The switch
// is exhaustive over the action variants; an unknown kind is a hard error so
// a new variant cannot silently fall through.
func (c *Coordinator) dispatchAction(ctx context.Context, i governance.Intention) (string, error) {
	switch a := i.Action.(type) {
	case types.ToolAction:
		out, err := c.hooks.ExecuteTool(ctx, a.Tool, a.Args)
		if err != nil {
			return "", fmt.Errorf("tool %s: %w", a.Tool, err)
		}
		return fmt.Sprintf("tool %s: %s", a.Tool, truncate(out, 200)), nil

	case types.MessageAction:
		msg := types.NewMessage(coordinatorID, a.Topic, a.Payload, a.Priority)
		msg.Target = a.Target
		if err := c.bus.RouteMessage(msg); err != nil {
			return "", fmt.Errorf("route message to %q: %w", a.Target, err)
		}
		if a.Target != "" {
			return fmt.Sprintf("message sent to %s on %s", a.Target, a.Topic), nil
		}
		return fmt.Sprintf("message published on %s", a.Topic), nil

	case types.CodeChangeAction:
		// Code changes execute through the tool surface so the same audit
		// trail covers them.
		out, err := c.hooks.ExecuteTool(ctx, "code_change", map[string]interface{}{
			"path":        a.Path,
			"description": a.Description,
		})
		if err != nil {
			return "", fmt.Errorf("code change %s: %w", a.Path, err)
		}
		return fmt.Sprintf("code change applied to %s: %s", a.Path, truncate(out, 200)), nil

	case types.GoalAction:
		out, err := c.hooks.Think(ctx, fmt.Sprintf("Pursue goal: %s", a.Goal))
		if err != nil {
			return "", fmt.Errorf("goal pursuit: %w", err)
		}
		return truncate(out, 200), nil

	case types.TaskAction:
		out, err := c.hooks.Think(ctx, fmt.Sprintf("Perform task: %s", a.Task))
		if err != nil {
			return "", fmt.Errorf("task execution: %w", err)
		}
		return truncate(out, 200), nil

	case types.GenericAction:
		out, err := c.hooks.Think(ctx, a.Description)
		if err != nil {
			return "", fmt.Errorf("generic action: %w", err)
		}
		return truncate(out, 200), nil

	default:
		return "", fmt.Errorf("unhandled action kind %q", i.Action.Kind())
	}
}

// dispatchCategory executes a text-only intention by its category.
func (c *Coordinator) dispatchCategory(ctx context.Context, i governance.Intention) (string, error) {
	switch i.Category {
	case governance.CategorySelfReflection:
		prompt := fmt.Sprintf("Reflect: %s", i.Description)
		if facts, err := c.hooks.SymbolicQuery(ctx, "intention_executed"); err == nil && len(facts) > 0 {
			var lines []string
			for _, f := range facts {
				lines = append(lines, f.String())
			}
			prompt = prompt + "\nExecution record:\n" + strings.Join(lines, "\n")
		}
		out, err := c.hooks.Think(ctx, prompt)
		if err != nil {
			return "", err
		}
		return truncate(out, 200), nil

	case governance.CategoryCommunication:
		out, err := c.hooks.ProcessChat(ctx, i.Description)
		if err != nil {
			return "", err
		}
		c.hooks.Display(out)
		return "communicated to user", nil

	case governance.CategoryMemoryManagement:
		vec, err := c.hooks.Embed(ctx, i.Description)
		if err != nil {
			return "", fmt.Errorf("embed: %w", err)
		}
		if err := c.hooks.VectorUpsert(ctx, i.ID, vec, map[string]string{"text": i.Description}); err != nil {
			return "", fmt.Errorf("vector upsert: %w", err)
		}
		return "memory stored", nil

	case governance.CategoryExploration:
		vec, err := c.hooks.Embed(ctx, i.Description)
		if err != nil {
			return "", fmt.Errorf("embed: %w", err)
		}
		hits, err := c.hooks.VectorSearch(ctx, vec, 5)
		if err != nil {
			return "", fmt.Errorf("vector search: %w", err)
		}
		return fmt.Sprintf("exploration found %d related item(s)", len(hits)), nil

	case governance.CategorySafetyCheck:
		ok, err := c.hooks.Verify(ctx, i.Description)
		if err != nil {
			return "", fmt.Errorf("verify: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("verification rejected the claim")
		}
		return "verification passed", nil

	case governance.CategoryNeuronCommunication:
		c.bus.Broadcast("coordinator.directive", i.Description, coordinatorID)
		return "directive broadcast to network", nil

	case governance.CategoryCodeModification, governance.CategoryGoalPursuit, governance.CategoryLearning:
		out, err := c.hooks.Think(ctx, i.Description)
		if err != nil {
			return "", err
		}
		return truncate(out, 200), nil

	default:
		logging.Get(logging.CategoryCoordinator).Warn("intention %s has unknown category %q, broadcasting", i.ID, i.Category)
		c.bus.Broadcast("coordinator.directive", i.Description, coordinatorID)
		return "directive broadcast to network", nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

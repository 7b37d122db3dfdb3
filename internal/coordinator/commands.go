package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"neurond/internal/governance"
	"neurond/internal/logging"
	"neurond/internal/types"
)

// =============================================================================
// OPERATOR COMMANDS
// =============================================================================

// HandleCommand interprets one operator slash command. The second return
// value reports whether the input was a command at all; non-command input
// is returned untouched for the conversational path.
func (c *Coordinator) HandleCommand(ctx context.Context, input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}

	fields := strings.Fields(trimmed)
	cmd := fields[0]
	args := fields[1:]

	logging.Commands("operator command: %s", trimmed)

	switch cmd {
	case "/approve":
		return c.cmdApprove(args), true
	case "/reject":
		return c.cmdReject(args), true
	case "/approve-all-safe":
		return c.cmdApproveAllSafe(), true
	case "/intentions":
		return c.cmdIntentions(), true
	case "/network":
		return c.cmdNetwork(), true
	case "/bus":
		return c.cmdBus(), true
	case "/yolo":
		return c.cmdYolo(args), true
	case "/auto":
		return c.cmdAuto(args), true
	case "/training":
		return c.cmdTraining(args), true
	case "/tools":
		return c.cmdTools(), true
	case "/help":
		return commandHelp, true
	default:
		return fmt.Sprintf("Unknown command %s. Try /help.", cmd), true
	}
}

const commandHelp = `Commands:
  /approve <id-prefix> [comment]   approve a pending intention
  /reject <id-prefix> [reason]     reject a pending intention
  /approve-all-safe                approve all low-risk pending intentions
  /intentions                      list pending intentions
  /network                         show connection topology
  /bus                             show bus metrics
  /yolo [on|off]                   toggle the global approval override
  /auto [stop|solve <goal>]        control autonomous goal pursuit
  /training [freeze|unfreeze|rate <p>]   control topology learning
  /tools                           list available tools`

func (c *Coordinator) cmdApprove(args []string) string {
	if len(args) == 0 {
		return "Usage: /approve <id-prefix> [comment]"
	}
	comment := "approved by operator"
	if len(args) > 1 {
		comment = strings.Join(args[1:], " ")
	}
	id, err := c.gov.ApproveByPartialID(args[0], comment)
	if err != nil {
		return fmt.Sprintf("Approve failed: %v", err)
	}
	c.Notify(fmt.Sprintf("Intention [%s] approved by operator", id[:8]), types.PriorityNormal, "operator")
	return fmt.Sprintf("Approved %s", id[:8])
}

func (c *Coordinator) cmdReject(args []string) string {
	if len(args) == 0 {
		return "Usage: /reject <id-prefix> [reason]"
	}
	reason := "rejected by operator"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	id, err := c.gov.RejectByPartialID(args[0], reason)
	if err != nil {
		return fmt.Sprintf("Reject failed: %v", err)
	}
	c.Notify(fmt.Sprintf("Intention [%s] rejected: %s", id[:8], reason), types.PriorityNormal, "operator")
	return fmt.Sprintf("Rejected %s", id[:8])
}

func (c *Coordinator) cmdApproveAllSafe() string {
	n := c.gov.ApproveAllLowRisk()
	logging.Audit().PolicyEvent(logging.AuditBulkApprove, "operator", fmt.Sprintf("low-risk: %d", n))
	c.Notify(fmt.Sprintf("Bulk-approved %d low-risk intention(s)", n), types.PriorityNormal, "operator")
	return fmt.Sprintf("Approved %d low-risk intention(s)", n)
}

func (c *Coordinator) cmdIntentions() string {
	pending := c.gov.Pending()
	if len(pending) == 0 {
		return "No pending intentions."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending intention(s):\n", len(pending))
	for _, i := range pending {
		age := "never expires"
		if !i.ExpiresAt.IsZero() {
			age = fmt.Sprintf("expires %s", i.ExpiresAt.Format("15:04:05"))
		}
		fmt.Fprintf(&b, "  [%s] %-20s %-18s %s (%s)\n",
			i.ID[:8], truncate(i.Title, 20), i.Category, i.Priority, age)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Coordinator) cmdNetwork() string {
	topo := c.bus.Topology()
	if topo == nil {
		return "No topology attached; routing is unweighted."
	}
	conns := topo.Connections()
	if len(conns) == 0 {
		return "No explicit connections; all routing at default weight 1.0."
	}

	sort.Slice(conns, func(a, b int) bool {
		if conns[a].Source != conns[b].Source {
			return conns[a].Source < conns[b].Source
		}
		return conns[a].Target < conns[b].Target
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d connection(s):\n", len(conns))
	for _, ci := range conns {
		state := ""
		if ci.Frozen {
			state = " [frozen]"
		}
		fmt.Fprintf(&b, "  %s -> %s  w=%+.3f p=%.2f act=%d%s\n",
			ci.Source, ci.Target, ci.Weight, ci.Plasticity, ci.ActivationCount, state)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Coordinator) cmdBus() string {
	m := c.bus.GetMetrics()
	return fmt.Sprintf(
		"Bus: %d neurons, %d edges\n"+
			"  routed=%d delivered=%d suppressed=%d filtered=%d dropped=%d broadcasts=%d\n"+
			"  history=%d observers=%d",
		m.Neurons, m.Edges,
		m.Routed, m.Delivered, m.Suppressed, m.Filtered, m.Dropped, m.Broadcasts,
		m.HistoryLen, m.Observers)
}

func (c *Coordinator) cmdYolo(args []string) string {
	if len(args) == 0 {
		if c.YoloEnabled() {
			return "YOLO mode is ON."
		}
		return "YOLO mode is OFF."
	}
	switch args[0] {
	case "on":
		c.SetYolo(true)
		return "YOLO mode enabled. All intentions auto-approve."
	case "off":
		c.SetYolo(false)
		return "YOLO mode disabled."
	default:
		return "Usage: /yolo [on|off]"
	}
}

func (c *Coordinator) cmdAuto(args []string) string {
	if len(args) == 0 {
		return "Usage: /auto stop | /auto solve <goal>"
	}
	switch args[0] {
	case "stop":
		n := 0
		for _, i := range c.gov.Pending() {
			if i.Category == governance.CategoryGoalPursuit {
				if err := c.gov.Cancel(i.ID, "autonomous pursuit stopped by operator"); err == nil {
					n++
				}
			}
		}
		c.Notify(fmt.Sprintf("Autonomous pursuit stopped; cancelled %d goal intention(s)", n),
			types.PriorityNormal, "operator")
		return fmt.Sprintf("Stopped. Cancelled %d goal intention(s).", n)
	case "solve":
		if len(args) < 2 {
			return "Usage: /auto solve <goal>"
		}
		goal := strings.Join(args[1:], " ")
		i := c.gov.Propose(governance.Proposal{
			Title:            truncate(goal, 40),
			Description:      goal,
			Rationale:        "operator-initiated autonomous goal",
			Category:         governance.CategoryGoalPursuit,
			Priority:         types.PriorityHigh,
			Source:           "operator",
			Action:           types.GoalAction{Goal: goal},
			RequiresApproval: true,
		})
		c.Notify(fmt.Sprintf("Goal proposed: [%s] %s", i.ID[:8], i.Title), types.PriorityNormal, "operator")
		return fmt.Sprintf("Proposed goal intention %s. Approve it with /approve %s.", i.ID[:8], i.ID[:8])
	default:
		return "Usage: /auto stop | /auto solve <goal>"
	}
}

func (c *Coordinator) cmdTraining(args []string) string {
	topo := c.bus.Topology()
	if topo == nil {
		return "No topology attached; there is nothing to train."
	}
	if len(args) == 0 {
		return fmt.Sprintf("Topology has %d edge(s). Subcommands: freeze, unfreeze, rate <plasticity>.", topo.EdgeCount())
	}
	switch args[0] {
	case "freeze":
		n := topo.SetFrozenAll(true)
		c.Notify(fmt.Sprintf("Topology learning frozen (%d edges)", n), types.PriorityNormal, "operator")
		return fmt.Sprintf("Froze %d edge(s). Weights no longer adapt.", n)
	case "unfreeze":
		n := topo.SetFrozenAll(false)
		c.Notify(fmt.Sprintf("Topology learning resumed (%d edges)", n), types.PriorityNormal, "operator")
		return fmt.Sprintf("Unfroze %d edge(s).", n)
	case "rate":
		if len(args) < 2 {
			return "Usage: /training rate <plasticity>"
		}
		p, err := strconv.ParseFloat(args[1], 64)
		if err != nil || p < 0 || p > 1 {
			return "Plasticity must be a number in [0,1]."
		}
		n := topo.SetPlasticityAll(p)
		c.Notify(fmt.Sprintf("Topology plasticity set to %.2f (%d edges)", p, n), types.PriorityNormal, "operator")
		return fmt.Sprintf("Set plasticity %.2f on %d edge(s).", p, n)
	default:
		return "Usage: /training [freeze|unfreeze|rate <plasticity>]"
	}
}

func (c *Coordinator) cmdTools() string {
	tools := c.hooks.AvailableTools()
	if len(tools) == 0 {
		return "No tools available."
	}
	sort.Strings(tools)
	return "Available tools:\n  " + strings.Join(tools, "\n  ")
}

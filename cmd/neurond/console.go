package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"neurond/internal/coordinator"
	"neurond/internal/types"
)

// Console styling for the operator terminal.
var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BC34A")).
			Bold(true)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BC34A")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)

	notifyNormalStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#2196F3"))

	notifyHighStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC107")).
			Bold(true)

	notifyCriticalStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#e53935")).
				Bold(true)

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f2f2f2"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e53935"))
)

func banner(name, version string) string {
	return bannerStyle.Render(fmt.Sprintf("%s %s — neural message bus runtime", name, version))
}

// renderNotification styles a proactive message by its priority.
func renderNotification(n coordinator.Notification) string {
	line := fmt.Sprintf("[%s] %s: %s", n.Timestamp.Format("15:04:05"), n.Source, n.Message)
	switch {
	case n.Priority >= types.PriorityCritical:
		return notifyCriticalStyle.Render(line)
	case n.Priority >= types.PriorityHigh:
		return notifyHighStyle.Render(line)
	default:
		return notifyNormalStyle.Render(line)
	}
}

func printOutput(s string) {
	if strings.TrimSpace(s) == "" {
		return
	}
	fmt.Println(outputStyle.Render(s))
}

func printError(err error) {
	fmt.Println(errStyle.Render("error: " + err.Error()))
}

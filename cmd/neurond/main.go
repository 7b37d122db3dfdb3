package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"neurond/internal/bus"
	"neurond/internal/config"
	"neurond/internal/coordinator"
	"neurond/internal/governance"
	"neurond/internal/logging"
	"neurond/internal/neuron"
	"neurond/internal/types"
)

const version = "0.3.0"

var (
	// Global flags
	verbose   bool
	workspace string
	yoloFlag  bool
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd launches the interactive operator console.
var rootCmd = &cobra.Command{
	Use:   "neurond",
	Short: "neurond - autonomous neural message bus runtime",
	Long: `neurond runs a network of long-lived neurons exchanging messages over a
weighted bus whose topology adapts through Hebbian learning.

The runtime proposes intentions before acting; a governance layer holds them
for approval unless policy (or YOLO mode) approves them automatically.

Run without arguments to start the interactive operator console.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole()
	},
}

// runCmd executes a single goal to completion and exits.
var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Execute a single goal through the intention pipeline",
	Long: `Proposes the goal as an intention, approves it, and waits for the
execution loop to complete it. Equivalent to "/auto solve" followed by
"/approve" in the console.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

// statusCmd prints the workspace configuration.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace configuration",
	RunE:  showStatus,
}

// versionCmd prints the runtime version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the neurond version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("neurond %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&yoloFlag, "yolo", false, "Enable YOLO mode (auto-approve everything)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the configured workspace or the current directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// buildRuntime loads config and assembles bus, governance, and coordinator.
func buildRuntime(ws string) (*coordinator.Coordinator, *config.Config, error) {
	cfg, err := config.Load(ws)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if yoloFlag {
		cfg.Coordinator.YoloMode = true
	}

	if err := logging.Initialize(ws); err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	if err := logging.InitAudit(); err != nil {
		return nil, nil, fmt.Errorf("initialize audit log: %w", err)
	}

	b := bus.New(cfg.Bus)
	b.AttachTopology(bus.NewTopology())
	b.RegisterFilter(bus.TTLFilter{})

	g := governance.New(cfg.Governance)

	coord := coordinator.New(cfg.Coordinator, b, g, coordinator.Hooks{
		Display: printOutput,
	})

	if err := registerBuiltinNeurons(b); err != nil {
		return nil, nil, fmt.Errorf("register neurons: %w", err)
	}

	return coord, cfg, nil
}

// registerBuiltinNeurons installs the baseline neuron set every workspace
// gets: an observer that tracks traffic, and an echo responder used to
// verify routing end to end.
func registerBuiltinNeurons(b *bus.Bus) error {
	observer := neuron.New(neuron.Config{
		ID:     "observer",
		Name:   "Traffic Observer",
		Type:   "observer",
		Topics: []string{"system.tick", "intention.completed"},
		Handler: func(ctx context.Context, msg *types.Message) error {
			logging.Neuron("observer saw %s from %s", msg.Topic, msg.Source)
			return nil
		},
	})
	observer.SetRouter(b)
	if err := b.RegisterNeuron(observer); err != nil {
		return err
	}

	var echo *neuron.BaseNeuron
	echo = neuron.New(neuron.Config{
		ID:     "echo",
		Name:   "Echo Responder",
		Type:   "utility",
		Topics: []string{"echo.request"},
		Handler: func(ctx context.Context, msg *types.Message) error {
			if !msg.ExpectsResponse {
				return nil
			}
			return echo.SendResponse(msg, msg.Payload)
		},
	})
	echo.SetRouter(b)
	return b.RegisterNeuron(echo)
}

// =============================================================================
// INTERACTIVE CONSOLE
// =============================================================================

func runConsole() error {
	ws := resolveWorkspace()
	coord, cfg, err := buildRuntime(ws)
	if err != nil {
		return err
	}
	defer logging.CloseAll()
	defer logging.CloseAudit()

	fmt.Println(banner(cfg.Name, cfg.Version))

	// Proactive notifications stream to the console as they happen.
	coord.Notifications().OnProactive(func(n coordinator.Notification) {
		fmt.Println(renderNotification(n))
	})

	if err := coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	// Config hot-reload keeps the approval policy live while the console
	// is up.
	watcher, err := config.NewWatcher(ws, func(next *config.Config) {
		coord.ApplyConfig(next.Coordinator)
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lineCh := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
		close(lineCh)
	}()

	fmt.Println("Type /help for commands, Ctrl-C to exit.")
	fmt.Print(promptStyle.Render("> "))

	ctx := context.Background()
	for {
		select {
		case <-sigCh:
			fmt.Println()
			return consoleShutdown(coord)
		case line, ok := <-lineCh:
			if !ok {
				return consoleShutdown(coord)
			}
			if out, handled := coord.HandleCommand(ctx, line); handled {
				printOutput(out)
			} else if line != "" {
				// Non-command input becomes a communication intention.
				i := coord.Governance().Propose(governance.Proposal{
					Title:            "operator message",
					Description:      line,
					Category:         governance.CategoryCommunication,
					Priority:         types.PriorityNormal,
					Source:           "operator",
					RequiresApproval: false,
				})
				printOutput(fmt.Sprintf("Queued as intention %s.", i.ID[:8]))
			}
			fmt.Print(promptStyle.Render("> "))
		}
	}
}

func shutdown(coord *coordinator.Coordinator) error {
	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return coord.StopAsync(ctx)
}

// consoleShutdown reports shutdown failures in the console style; the
// session itself ended normally.
func consoleShutdown(coord *coordinator.Coordinator) error {
	if err := shutdown(coord); err != nil {
		printError(fmt.Errorf("shutdown: %w", err))
	}
	return nil
}

// =============================================================================
// ONE-SHOT GOAL EXECUTION
// =============================================================================

func runGoal(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()
	coord, _, err := buildRuntime(ws)
	if err != nil {
		return err
	}
	defer logging.CloseAll()
	defer logging.CloseAudit()

	goal := ""
	for i, a := range args {
		if i > 0 {
			goal += " "
		}
		goal += a
	}
	logger.Info("Executing goal", zap.String("goal", goal))

	if err := coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	intent := coord.Governance().Propose(governance.Proposal{
		Title:            "one-shot goal",
		Description:      goal,
		Category:         governance.CategoryGoalPursuit,
		Priority:         types.PriorityHigh,
		Source:           "operator",
		Action:           types.GoalAction{Goal: goal},
		RequiresApproval: true,
	})
	if err := coord.Governance().Approve(intent.ID, "approved by run command"); err != nil {
		return fmt.Errorf("approve goal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = shutdown(coord)
			return fmt.Errorf("goal did not complete within %v", timeout)
		case <-ticker.C:
			final, ok := coord.Governance().Get(intent.ID)
			if !ok || !final.Status.Terminal() {
				continue
			}
			printOutput(fmt.Sprintf("%s: %s", final.Status, final.ExecutionResult))
			if err := shutdown(coord); err != nil {
				return err
			}
			if final.Status == governance.StatusFailed {
				return fmt.Errorf("goal failed: %s", final.ExecutionResult)
			}
			return nil
		}
	}
}

func showStatus(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()
	cfg, err := config.Load(ws)
	if err != nil {
		return err
	}
	fmt.Printf("Workspace:       %s\n", ws)
	fmt.Printf("Config:          %s\n", config.Path(ws))
	fmt.Printf("Name:            %s %s\n", cfg.Name, cfg.Version)
	fmt.Printf("Tick interval:   %v\n", cfg.Coordinator.TickInterval)
	fmt.Printf("Poll interval:   %v\n", cfg.Coordinator.PollInterval)
	fmt.Printf("History size:    %d\n", cfg.Bus.HistorySize)
	fmt.Printf("YOLO mode:       %v\n", cfg.Coordinator.YoloMode)
	return nil
}

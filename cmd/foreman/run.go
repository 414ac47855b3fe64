package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mkarras/foreman/internal/config"
	"github.com/mkarras/foreman/internal/orchestrator"
	"github.com/mkarras/foreman/internal/state"
	"github.com/mkarras/foreman/internal/transport"
	"github.com/mkarras/foreman/internal/tui"
	"github.com/mkarras/foreman/internal/worker"
	"github.com/mkarras/foreman/pkg/models"
)

var (
	runHeadless bool
	runNoSave   bool
	runModel    string
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan a goal and execute its task graph",
	Long: `Decompose a goal into a dependency-ordered set of subtasks, execute
independent subtasks concurrently through role-specialized worker agents,
and synthesize the results into a single summary.

By default progress is shown in an interactive TUI. Use --headless to
stream plain-text progress lines instead (useful in scripts and CI).

Completed runs are recorded in the local run history; see 'foreman status'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Stream plain-text progress instead of the TUI")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Skip recording the run in the local history")
	runCmd.Flags().StringVar(&runModel, "model", "", "Override the configured model for this run")
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runModel != "" {
		cfg.Anthropic.Model = runModel
	}

	client, router, err := newClient(cfg)
	if err != nil {
		return err
	}

	catalog := worker.NewCatalog(cfg.Workers)
	runner := orchestrator.NewRunner(client, router,
		orchestrator.WithLogger(newDebugLogger()),
		orchestrator.WithTimeouts(cfg.Timeouts.Agent, cfg.Timeouts.Chat),
		orchestrator.WithLeadModel(cfg.Lead.Model),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result orchestrator.RunResult
	var runErr error
	if runHeadless {
		printerDone := make(chan struct{})
		go func() {
			defer close(printerDone)
			printEvents(runner.Events())
		}()
		result, runErr = runner.Run(ctx, goal, catalog)
		runner.CloseEvents()
		<-printerDone
	} else {
		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			result, runErr = runner.Run(ctx, goal, catalog)
			runner.CloseEvents()
		}()
		p := tea.NewProgram(tui.New(goal, runner.Events()))
		if _, err := p.Run(); err != nil {
			stop()
			<-runDone
			return fmt.Errorf("run TUI: %w", err)
		}
		<-runDone
	}

	if !runNoSave && result.RunID != "" {
		if err := saveRun(cfg, result, runErr); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save run history: %v\n", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	if runHeadless {
		fmt.Printf("\n%s %s\n\n%s\n", color.GreenString("✓"), "Run complete", result.Summary)
	}
	return nil
}

// printEvents renders the event stream as plain progress lines until the
// stream is closed.
func printEvents(events <-chan orchestrator.Event) {
	role := color.New(color.FgCyan)
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventPlanStarted:
			fmt.Println("Planning:", ev.Message)
		case orchestrator.EventWorkersGenerated:
			fmt.Println("Workers:", ev.Message)
		case orchestrator.EventPlanCompleted:
			fmt.Println("Plan:", ev.Message)
		case orchestrator.EventTaskAssigned:
			fmt.Printf("[%d] %s %s\n", ev.TaskIndex, role.Sprint(ev.Role), ev.Message)
		case orchestrator.EventTaskTool:
			fmt.Printf("[%d] %s tool: %s\n", ev.TaskIndex, role.Sprint(ev.Role), ev.ToolName)
		case orchestrator.EventTaskCompleted:
			mark := color.GreenString("✓")
			if ev.Status != string(models.TaskStatusSuccess) {
				mark = color.RedString("✗")
			}
			fmt.Printf("[%d] %s %s (%s)\n", ev.TaskIndex, role.Sprint(ev.Role), mark, ev.Status)
		case orchestrator.EventSummarizeStarted:
			fmt.Println("Summarizing results...")
		case orchestrator.EventError:
			fmt.Printf("%s %v\n", color.RedString("Error:"), ev.Error)
		}
	}
}

// saveRun records the run outcome in the local history database.
func saveRun(cfg *config.Config, result orchestrator.RunResult, runErr error) error {
	db, err := state.Open(cfg.StatePath())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	status := "success"
	if runErr != nil {
		status = "error"
	}
	return db.SaveRun(&state.Run{
		ID:         result.RunID,
		Goal:       result.Goal,
		Summary:    result.Summary,
		Status:     status,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Results:    result.Results,
	})
}

// newClient builds the Anthropic transport from configuration.
func newClient(cfg *config.Config) (transport.Client, *transport.Router, error) {
	tc := transport.AnthropicConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseAWSBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, nil, err
		}
		tc.APIKey = key
	}

	router := transport.NewRouter()
	client, err := transport.NewAnthropicClient(tc, router)
	if err != nil {
		return nil, nil, fmt.Errorf("create client: %w", err)
	}
	return client, router, nil
}

// newDebugLogger enables file debug logging when FOREMAN_DEBUG is set.
func newDebugLogger() *orchestrator.DebugLogger {
	if os.Getenv("FOREMAN_DEBUG") == "" {
		return orchestrator.NopLogger()
	}
	cwd, err := os.Getwd()
	if err != nil {
		return orchestrator.NopLogger()
	}
	return orchestrator.NewDebugLoggerForDir(cwd)
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mkarras/foreman/internal/state"
	"github.com/mkarras/foreman/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show recent runs from the local history",
	Long: `Display recent orchestration runs recorded in the local history.

Without arguments, lists the most recent runs. With a run id, shows the
run's full task breakdown and summary.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum number of runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := cfg.StatePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No run history. Run 'foreman run <goal>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return showRun(db, args[0])
	}
	return listRuns(db)
}

func listRuns(db *state.DB) error {
	runs, err := db.ListRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No run history. Run 'foreman run <goal>' to start.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %s  %s\n",
			run.StartedAt.Format("2006-01-02 15:04"),
			statusMark(run.Status),
			run.ID[:8],
			truncate(run.Goal, 60))
	}
	return nil
}

func showRun(db *state.DB, id string) error {
	run, err := db.GetRun(id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}

	fmt.Printf("Run %s %s\n", run.ID, statusMark(run.Status))
	fmt.Printf("Goal: %s\n", run.Goal)
	fmt.Printf("Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if !run.FinishedAt.IsZero() {
		fmt.Printf("Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}

	if len(run.Results) > 0 {
		fmt.Println("\nTasks:")
		role := color.New(color.FgCyan)
		for _, r := range run.Results {
			fmt.Printf("  [%d] %s %s  %s\n", r.Index, taskMark(r.Status), role.Sprint(r.WorkerRole), truncate(r.Description, 70))
		}
	}

	if run.Summary != "" {
		fmt.Printf("\nSummary:\n%s\n", run.Summary)
	}
	return nil
}

func statusMark(status string) string {
	if status == "success" {
		return color.GreenString("✓")
	}
	return color.RedString("✗")
}

func taskMark(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusSuccess:
		return color.GreenString("✓")
	case models.TaskStatusSkipped:
		return color.YellowString("-")
	default:
		return color.RedString("✗")
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

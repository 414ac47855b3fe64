package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkarras/foreman/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Multi-agent task orchestrator",
	Long: `Foreman decomposes a goal into a dependency-ordered set of subtasks,
assigns each to a role-specialized worker agent, executes independent
subtasks concurrently, and synthesizes the results into a single answer.

Two modes are available:
- run:  plan the goal up front and execute the task DAG
- chat: interactive mode where the lead model delegates as it goes`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the merged configuration, failing the command on a
// malformed config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

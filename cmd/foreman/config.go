package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mkarras/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View or create Foreman configuration.

User configuration lives at ~/.config/foreman/config.yaml.
Project-specific overrides can be placed in .foreman.yaml in the project
root (or any parent directory).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config template",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if err := config.WriteTemplate(path); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", color.GreenString("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the merged configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig()
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func showConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("timeouts.agent: %s\n", cfg.Timeouts.Agent)
	fmt.Printf("timeouts.chat: %s\n", cfg.Timeouts.Chat)
	fmt.Printf("lead.model: %s\n", leadModelDisplay(cfg))
	fmt.Printf("lead.poll_interval: %s\n", cfg.Lead.PollInterval)
	fmt.Printf("state.path: %s\n", cfg.StatePath())

	if len(cfg.Workers) > 0 {
		fmt.Println("workers:")
		for _, w := range cfg.Workers {
			fmt.Printf("  - %s: %s\n", w.Role, w.Description)
		}
	}

	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("\nProject overrides: %s\n", project)
	}
	return nil
}

func leadModelDisplay(cfg *config.Config) string {
	if cfg.Lead.Model != "" {
		return cfg.Lead.Model
	}
	return cfg.Anthropic.Model + " (default)"
}

// Package config handles configuration loading and management for Foreman.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mkarras/foreman/pkg/models"
)

// Config holds all configuration for Foreman.
type Config struct {
	Anthropic AnthropicConfig           `mapstructure:"anthropic"`
	Timeouts  TimeoutsConfig            `mapstructure:"timeouts"`
	Lead      LeadConfig                `mapstructure:"lead"`
	Workers   []models.WorkerDefinition `mapstructure:"workers"`
	State     StateConfig               `mapstructure:"state"`
}

// AnthropicConfig holds model provider settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the default model for all sessions.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// Anthropic API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// TimeoutsConfig holds the per-call session ceilings.
type TimeoutsConfig struct {
	// Agent is the ceiling for tool/agent-enabled sessions.
	Agent time.Duration `mapstructure:"agent"`
	// Chat is the ceiling for plain chat sessions.
	Chat time.Duration `mapstructure:"chat"`
}

// LeadConfig holds interactive-mode settings.
type LeadConfig struct {
	// Model overrides the default model for the lead conversation.
	Model string `mapstructure:"model"`
	// PollInterval is the subagent-settlement polling interval.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// StateConfig holds run-history persistence settings.
type StateConfig struct {
	// Path is the sqlite database file. Empty uses the default under the
	// user config directory.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Timeouts: TimeoutsConfig{
			Agent: 5 * time.Minute,
			Chat:  1 * time.Minute,
		},
		Lead: LeadConfig{
			PollInterval: 250 * time.Millisecond,
		},
	}
}

// StatePath returns the configured sqlite path, defaulting to the user
// config directory.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(getUserConfigDir(), "runs.db")
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("timeouts.agent", "5m")
	v.SetDefault("timeouts.chat", "1m")

	v.SetDefault("lead.poll_interval", "250ms")
}

// getUserConfigDir returns the XDG config directory for Foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

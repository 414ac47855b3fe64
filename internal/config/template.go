package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mkarras/foreman/pkg/models"
)

const templateHeader = `# Foreman configuration.
# Workers listed here override the built-in presets with the same role.
`

// templateFile mirrors Config with yaml tags for the init template.
type templateFile struct {
	Anthropic struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"anthropic"`
	Timeouts struct {
		Agent string `yaml:"agent"`
		Chat  string `yaml:"chat"`
	} `yaml:"timeouts"`
	Workers []models.WorkerDefinition `yaml:"workers"`
}

// WriteTemplate writes a starter config file at path. Refuses to
// overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tpl := templateFile{}
	tpl.Anthropic.APIKey = "${ANTHROPIC_API_KEY}"
	tpl.Anthropic.Model = Default().Anthropic.Model
	tpl.Timeouts.Agent = "5m"
	tpl.Timeouts.Chat = "1m"
	tpl.Workers = []models.WorkerDefinition{
		{
			Role:             "coder",
			Description:      "implements code changes",
			SystemPrompt:     "You are a focused software engineer. Make the requested change and report what you did.",
			AgentModeEnabled: true,
		},
	}

	body, err := yaml.Marshal(&tpl)
	if err != nil {
		return fmt.Errorf("marshaling template: %w", err)
	}

	return os.WriteFile(path, append([]byte(templateHeader), body...), 0600)
}

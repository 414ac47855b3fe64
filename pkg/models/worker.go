package models

// WorkerDefinition describes a role-specialized worker agent: its system
// prompt, tool restrictions, and model. Definitions are sourced from three
// layers in precedence order: user configuration > built-in presets >
// synthesized generic fallback. Immutable after plan materialization.
type WorkerDefinition struct {
	// Role is the unique role name (e.g. "coder", "explorer").
	Role string `json:"role" mapstructure:"role" yaml:"role"`
	// Description is a one-line summary shown to the planner.
	Description string `json:"description" mapstructure:"description" yaml:"description"`
	// SystemPrompt is the system-instruction block for the worker's
	// first conversation turn.
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt" yaml:"system_prompt"`
	// AgentModeEnabled allows the worker to invoke tools.
	AgentModeEnabled bool `json:"agent_mode_enabled" mapstructure:"agent_mode_enabled" yaml:"agent_mode_enabled"`
	// AllowedTools restricts the worker to the named tools.
	// A nil slice means unrestricted.
	AllowedTools []string `json:"allowed_tools,omitempty" mapstructure:"allowed_tools" yaml:"allowed_tools,omitempty"`
	// DisallowedTools are always denied, even if also allowed.
	DisallowedTools []string `json:"disallowed_tools,omitempty" mapstructure:"disallowed_tools" yaml:"disallowed_tools,omitempty"`
	// Model is the model identifier for this worker's conversations.
	Model string `json:"model,omitempty" mapstructure:"model" yaml:"model,omitempty"`
}

// ReadOnly reports whether the worker is restricted to a non-empty
// allow-list (tagged "read-only" in the planner's catalog listing).
func (w WorkerDefinition) ReadOnly() bool {
	return w.AllowedTools != nil
}

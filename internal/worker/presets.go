// Package worker provides role-specialized worker agents: the built-in
// preset catalog, catalog materialization, and the conversational session
// that turns task descriptions into model replies.
package worker

import "github.com/mkarras/foreman/pkg/models"

// metaTools are orchestration tools subagents may never use. Denying them
// prevents runaway recursive delegation.
var metaTools = []string{"delegate_task", "create_team", "send_message", "delete_team"}

// MetaTools returns the fixed deny-list applied to every subagent.
func MetaTools() []string {
	out := make([]string, len(metaTools))
	copy(out, metaTools)
	return out
}

// readOnlyTools is the allow-list for exploration-style workers.
var readOnlyTools = []string{"read_file", "list_dir", "grep_search", "file_search", "semantic_search"}

// builtinPresets are the worker definitions shipped with foreman.
// User-configured workers with the same role name override these.
var builtinPresets = []models.WorkerDefinition{
	{
		Role:             "coder",
		Description:      "Implements features and fixes bugs by editing files",
		SystemPrompt:     "You are a focused software engineer. Implement exactly what the task asks. Prefer small, verifiable changes and report what you changed.",
		AgentModeEnabled: true,
		DisallowedTools:  MetaTools(),
	},
	{
		Role:             "explorer",
		Description:      "Investigates the codebase and reports findings without modifying anything",
		SystemPrompt:     "You are a codebase explorer. Locate relevant files, summarize structure and behavior, and report concise findings. Never modify files.",
		AgentModeEnabled: true,
		AllowedTools:     append([]string(nil), readOnlyTools...),
		DisallowedTools:  MetaTools(),
	},
	{
		Role:             "reviewer",
		Description:      "Reviews code changes and flags defects, style issues, and risks",
		SystemPrompt:     "You are a code reviewer. Examine the referenced code and report defects, risky patterns, and concrete improvement suggestions. Never modify files.",
		AgentModeEnabled: true,
		AllowedTools:     append([]string(nil), readOnlyTools...),
		DisallowedTools:  MetaTools(),
	},
	{
		Role:             "tester",
		Description:      "Writes and runs tests to verify behavior",
		SystemPrompt:     "You are a test engineer. Write focused tests for the behavior described in the task and report results.",
		AgentModeEnabled: true,
		DisallowedTools:  MetaTools(),
	},
	{
		Role:             "docs",
		Description:      "Writes and updates documentation",
		SystemPrompt:     "You are a technical writer. Produce clear, accurate documentation for the task at hand.",
		AgentModeEnabled: true,
		DisallowedTools:  MetaTools(),
	},
}

// Presets returns a copy of the built-in worker presets.
func Presets() []models.WorkerDefinition {
	out := make([]models.WorkerDefinition, len(builtinPresets))
	copy(out, builtinPresets)
	return out
}

// PresetByRole returns the built-in preset for a role, if one exists.
func PresetByRole(role string) (models.WorkerDefinition, bool) {
	for _, p := range builtinPresets {
		if p.Role == role {
			return p, true
		}
	}
	return models.WorkerDefinition{}, false
}

// GenericWorker synthesizes a full-tools worker definition for a role with
// no user entry and no preset.
func GenericWorker(role string) models.WorkerDefinition {
	return models.WorkerDefinition{
		Role:             role,
		Description:      "General-purpose worker",
		SystemPrompt:     "You are a capable software agent. Complete the task you are given and report the outcome.",
		AgentModeEnabled: true,
		DisallowedTools:  MetaTools(),
	}
}

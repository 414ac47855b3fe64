package orchestrator

import (
	"context"

	"github.com/mkarras/foreman/internal/transport"
)

// ToolRouter executes concrete tools on behalf of a conversation. The
// orchestrator never implements tools itself; it only gates calls
// through the filter registry and relays the router's result back to
// the transport.
type ToolRouter interface {
	// Definitions lists the tools the router can execute, in the shape
	// the transport declares to the model.
	Definitions() []transport.ToolDefinition
	// Execute runs the named tool with its raw JSON input and returns
	// the content to relay, flagged as an error result when the tool
	// failed.
	Execute(ctx context.Context, name, input string) (content string, isError bool)
}

// delegateToolName is the dedicated delegation surface the lead model
// calls to spawn a subagent.
const delegateToolName = "delegate_task"

// terminalToolName is the legacy delegation surface: a terminal command
// whose text begins with the delegation marker.
const terminalToolName = "run_in_terminal"

// delegationMarker prefixes a terminal command that is really a
// delegation request: "#delegate <agent_type> <prompt>".
const delegationMarker = "#delegate "

func delegateToolDefinition() transport.ToolDefinition {
	return transport.ToolDefinition{
		Name:        delegateToolName,
		Description: "Delegate a task to a specialized subagent. The subagent runs in the background; its result is provided to you once it completes.",
		InputSchema: map[string]any{
			"agent_type": map[string]any{
				"type":        "string",
				"description": "The role of the subagent to spawn (e.g. coder, explorer, reviewer).",
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "The full task description for the subagent.",
			},
		},
		Required: []string{"agent_type", "prompt"},
	}
}

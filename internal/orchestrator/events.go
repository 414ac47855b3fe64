// Package orchestrator coordinates planning, scheduling, and worker
// sessions for a single orchestration run. It owns the lead conversation
// in interactive mode and emits a unified event stream for observers.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPlanStarted indicates goal decomposition has started.
	EventPlanStarted EventType = "plan_started"
	// EventWorkersGenerated indicates the worker set has been materialized.
	EventWorkersGenerated EventType = "workers_generated"
	// EventPlanCompleted indicates the task plan is ready.
	EventPlanCompleted EventType = "plan_completed"
	// EventTaskAssigned indicates a task has been handed to a worker session.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskProgress carries incremental reply text from a running task.
	EventTaskProgress EventType = "task_progress"
	// EventTaskTool indicates a worker invoked a tool during an agent round.
	EventTaskTool EventType = "task_tool"
	// EventTaskCompleted indicates a task finished (success, error, or skipped).
	EventTaskCompleted EventType = "task_completed"
	// EventSummarizeStarted indicates result synthesis has started.
	EventSummarizeStarted EventType = "summarize_started"
	// EventSummarizeCompleted carries the synthesized summary.
	EventSummarizeCompleted EventType = "summarize_completed"
	// EventFinished indicates the run reached its terminal success state.
	EventFinished EventType = "finished"
	// EventError indicates the run terminated with an unrecoverable error.
	EventError EventType = "error"

	// EventLeadStarted indicates a lead conversation turn has begun.
	EventLeadStarted EventType = "lead_started"
	// EventLeadDelta carries incremental lead reply text.
	EventLeadDelta EventType = "lead_delta"
	// EventLeadToolCall indicates the lead issued a tool call.
	EventLeadToolCall EventType = "lead_tool_call"
	// EventLeadToolResult indicates a tool result was relayed to the lead.
	EventLeadToolResult EventType = "lead_tool_result"
	// EventLeadDone indicates the lead produced its final answer for a message.
	EventLeadDone EventType = "lead_done"
	// EventLeadError indicates the lead turn failed.
	EventLeadError EventType = "lead_error"
	// EventSubagentSpawned indicates a delegated subagent session was created.
	EventSubagentSpawned EventType = "subagent_spawned"
	// EventSubagentDelta carries incremental subagent reply text.
	EventSubagentDelta EventType = "subagent_delta"
	// EventSubagentCompleted indicates a subagent settled (success or error).
	EventSubagentCompleted EventType = "subagent_completed"
	// EventSubagentRetrying indicates a failed subagent is being retried.
	EventSubagentRetrying EventType = "subagent_retrying"
	// EventConversationID reports a newly known conversation id.
	EventConversationID EventType = "conversation_id"
	// EventConversationDone indicates the lead finished with zero pending subagents.
	EventConversationDone EventType = "conversation_done"
)

// Event represents an event emitted by the orchestrator.
// These events are used to update the TUI and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskIndex is the index of the related planned task, if applicable.
	TaskIndex int
	// Role is the worker role the event relates to, if applicable.
	Role string
	// SubagentID is the id of the related subagent, if applicable.
	SubagentID string
	// ConversationID is the related conversation id, if applicable.
	ConversationID string
	// ToolName is the tool involved in tool events.
	ToolName string
	// Delta is incremental reply text for progress events.
	Delta string
	// Message provides additional context about the event.
	Message string
	// Status is the task status for completion events.
	Status string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

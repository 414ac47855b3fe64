// Package transport defines the conversation transport boundary: creating
// and continuing model conversations, and the streaming progress side
// channel keyed by work-done token. The orchestration core treats "ask a
// model to do X and stream back text/tool-calls" as a black box behind the
// Client interface.
package transport

import "context"

// ProgressKind discriminates streaming progress payloads.
// Loosely-typed upstream payloads are resolved into this tagged union once,
// at the transport boundary, rather than re-inspected throughout the core.
type ProgressKind string

const (
	// KindConversationID reports the conversation id assigned to a new
	// conversation. Emitted before any content for the first turn.
	KindConversationID ProgressKind = "conversation_id"
	// KindDelta carries an incremental chunk of reply text.
	KindDelta ProgressKind = "delta"
	// KindReply carries the cumulative reply text so far for the turn.
	KindReply ProgressKind = "reply"
	// KindMessage carries a complete message body.
	KindMessage ProgressKind = "message"
	// KindToolCall reports that the model requested a tool invocation.
	KindToolCall ProgressKind = "tool_call"
	// KindRound carries the cumulative reply for one round of an agentic
	// multi-round trace. Round indices start at zero.
	KindRound ProgressKind = "round"
	// KindEnd signals that the turn has completed.
	KindEnd ProgressKind = "end"
	// KindError signals that the turn failed.
	KindError ProgressKind = "error"
)

// ProgressEvent is one streaming payload delivered on the progress side
// channel. Only the fields relevant to Kind are populated.
type ProgressEvent struct {
	Kind ProgressKind

	// ConversationID is set for KindConversationID.
	ConversationID string
	// Delta is set for KindDelta.
	Delta string
	// Reply is the cumulative turn text, set for KindReply.
	Reply string
	// Message is set for KindMessage.
	Message string
	// Round is the agent round index, set for KindRound and KindToolCall.
	Round int
	// RoundReply is the cumulative reply for the round, set for KindRound.
	RoundReply string
	// ToolCallID, ToolName and ToolInput are set for KindToolCall.
	ToolCallID string
	ToolName   string
	ToolInput  string
	// Err is set for KindError.
	Err error
}

// ToolDefinition describes a tool the model may call during an agent turn.
// The core never implements tools; definitions are relayed to the model and
// invocations are routed back through the tool router.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchema is the JSON schema for the tool's input object.
	InputSchema map[string]any
	// Required lists required input property names.
	Required []string
}

// Options configures a conversation turn. System instructions are not an
// option: callers compose them into the first-turn prompt.
type Options struct {
	// Model overrides the transport's default model when non-empty.
	Model string
	// AgentMode enables tool calling for the conversation.
	AgentMode bool
	// ConfirmToolCalls requires each tool call to pass the confirmation
	// gate before execution.
	ConfirmToolCalls bool
	// Tools lists the tool definitions available in agent mode.
	Tools []ToolDefinition
}

// Client is the conversation transport consumed by the orchestration core.
type Client interface {
	// CreateConversation starts a new conversation with the given prompt.
	// Progress for the turn is delivered to the listener registered under
	// workDoneToken. Returns the new conversation id.
	CreateConversation(ctx context.Context, prompt, workDoneToken string, opts Options) (string, error)

	// ContinueConversation sends a follow-up message on an existing
	// conversation. Progress is delivered under workDoneToken.
	ContinueConversation(ctx context.Context, conversationID, message, workDoneToken string, opts Options) error

	// RespondToToolCall feeds a tool result back into an in-flight agent
	// turn so the model can continue.
	RespondToToolCall(conversationID, toolCallID, content string, isError bool) error
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkarras/foreman/internal/toolfilter"
	"github.com/mkarras/foreman/internal/transport"
	"github.com/mkarras/foreman/internal/worker"
	"github.com/mkarras/foreman/pkg/models"
)

// State represents the interactive coordinator's lifecycle phase.
type State string

const (
	// StateIdle means no lead turn is in flight.
	StateIdle State = "idle"
	// StatePlanningOrCreating means the lead conversation is being set up.
	StatePlanningOrCreating State = "planning_or_creating"
	// StateStreaming means a lead turn is streaming.
	StateStreaming State = "streaming"
	// StateAwaitingSubagents means the lead turn ended with pending
	// subagents still running.
	StateAwaitingSubagents State = "awaiting_subagents"
	// StateDone means the last message reached a final answer.
	StateDone State = "done"
	// StateError means the last message terminated with an error.
	StateError State = "error"
)

// ErrBusy is returned by SendMessage when a lead turn is already in
// flight; at most one message is processed at a time per run.
var ErrBusy = errors.New("orchestrator busy: a lead turn is already in flight")

const leadSystemPrompt = `You are a lead coordinator. You break user requests into tasks and delegate them to specialized subagents using the delegate_task tool. Delegate independent tasks in the same turn so they run concurrently. When subagent results come back, either delegate follow-up tasks or synthesize a final answer for the user.`

// defaultSubagentPrompt is used when a delegation request carries no
// prompt text.
const defaultSubagentPrompt = "Complete the delegated task and report what you did."

// subagent tracks one delegated background execution.
type subagent struct {
	id      string
	role    string
	prompt  string
	retried bool
	done    bool
	output  string
	err     error
}

// Orchestrator is the interactive lead coordinator: it owns the lead
// conversation, intercepts delegation tool calls, runs delegated
// subagents in the background, and feeds their results back to the lead
// until a turn ends with nothing pending.
type Orchestrator struct {
	client  transport.Client
	router  *transport.Router
	filters *toolfilter.Registry
	confirm *toolfilter.ConfirmationCache
	tools   ToolRouter
	catalog *worker.Catalog
	opts    *options

	mu         sync.Mutex
	state      State
	lead       *worker.Session
	generation int
	turnCtx    context.Context
	pending    map[string]*subagent
	order      []string
	subConvs   map[string]bool
}

// New creates an interactive Orchestrator. The tool router may be nil,
// in which case every concrete tool call is answered with an error.
func New(client transport.Client, router *transport.Router, catalog *worker.Catalog, tools ToolRouter, opts ...Option) *Orchestrator {
	o := defaultOptions().apply(opts)
	setPackageLogger(o.logger)
	return &Orchestrator{
		client:   client,
		router:   router,
		filters:  toolfilter.NewRegistry(),
		confirm:  toolfilter.NewConfirmationCache(),
		tools:    tools,
		catalog:  catalog,
		opts:     o,
		state:    StateIdle,
		pending:  make(map[string]*subagent),
		subConvs: make(map[string]bool),
	}
}

// Events returns the orchestrator's event stream for observers.
func (o *Orchestrator) Events() <-chan Event {
	return o.opts.emitter.Events()
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Filters exposes the per-conversation tool filter registry.
func (o *Orchestrator) Filters() *toolfilter.Registry {
	return o.filters
}

// SendMessage processes one user message through the lead conversation,
// driving delegation rounds until a lead turn ends with zero pending
// subagents, and returns the lead's final reply. Returns ErrBusy if a
// message is already being processed.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) (string, error) {
	o.mu.Lock()
	switch o.state {
	case StatePlanningOrCreating, StateStreaming, StateAwaitingSubagents:
		o.mu.Unlock()
		return "", ErrBusy
	}
	o.state = StatePlanningOrCreating
	o.turnCtx = ctx
	gen := o.generation
	if o.lead == nil {
		o.lead = o.newLeadSession()
	}
	lead := o.lead
	o.mu.Unlock()

	o.emit(Event{Type: EventLeadStarted, Message: text})

	message := text
	for {
		o.setState(gen, StateStreaming)
		reply, err := lead.ExecuteTask(ctx, message, nil)
		if err != nil {
			o.setState(gen, StateError)
			o.emit(Event{Type: EventLeadError, Error: err})
			return "", fmt.Errorf("lead turn: %w", err)
		}

		pendingSubs, anyPending := o.snapshotPending(gen)
		if !anyPending {
			o.setState(gen, StateDone)
			o.emit(Event{Type: EventLeadDone, Message: reply})
			o.emit(Event{Type: EventConversationDone, ConversationID: lead.ConversationID()})
			return reply, nil
		}

		o.setState(gen, StateAwaitingSubagents)
		debugLog("lead turn ended with %d pending subagents", len(pendingSubs))
		if err := o.awaitSubagents(ctx, gen); err != nil {
			o.setState(gen, StateError)
			o.emit(Event{Type: EventLeadError, Error: err})
			return "", err
		}

		message = o.collectResults(gen)
		if message == "" {
			// Cancelled mid-wait: the pending registry was cleared.
			err := context.Canceled
			o.setState(gen, StateError)
			o.emit(Event{Type: EventLeadError, Error: err})
			return "", err
		}
	}
}

// Cancel drops all pending subagent state, clears tool filters and the
// confirmation cache, and marks the run as no longer streaming.
// In-flight transport calls are not aborted; their late results are
// discarded against the bumped generation.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	o.pending = make(map[string]*subagent)
	o.order = nil
	// Only the filters this run registered are removed; the registry may
	// also hold entries installed by the embedding application.
	for conversationID := range o.subConvs {
		o.filters.Remove(conversationID)
	}
	o.subConvs = make(map[string]bool)
	o.state = StateIdle
	o.confirm.Reset()
	debugLog("run cancelled, generation now %d", o.generation)
}

// Reset starts a new conversation: Cancel plus discarding the lead
// session so the next message creates a fresh conversation.
func (o *Orchestrator) Reset() {
	o.Cancel()
	o.mu.Lock()
	o.lead = nil
	o.mu.Unlock()
}

func (o *Orchestrator) newLeadSession() *worker.Session {
	def := models.WorkerDefinition{
		Role:             "lead",
		Description:      "lead coordinator",
		SystemPrompt:     leadSystemPrompt + "\n\nAvailable subagent roles:\n" + o.catalog.Describe(),
		AgentModeEnabled: true,
		Model:            o.opts.leadModel,
	}
	session := worker.NewSession(def, o.client, o.router, worker.SessionHooks{
		OnDelta: func(role, delta string) {
			o.emit(Event{Type: EventLeadDelta, Role: role, Delta: delta})
		},
		OnToolRequest: o.handleLeadToolCall,
		OnConversationID: func(conversationID string) {
			o.emit(Event{Type: EventConversationID, Role: "lead", ConversationID: conversationID})
		},
	})
	session.SetTimeouts(o.opts.agentTimeout, o.opts.chatTimeout)
	session.SetConfirmToolCalls(true)

	tools := []transport.ToolDefinition{delegateToolDefinition()}
	if o.tools != nil {
		tools = append(tools, o.tools.Definitions()...)
	}
	session.SetTools(tools)
	return session
}

// handleLeadToolCall intercepts the two delegation surfaces; everything
// else goes through the gated tool execution path.
func (o *Orchestrator) handleLeadToolCall(conversationID, callID, toolName, input string) {
	o.emit(Event{Type: EventLeadToolCall, ToolName: toolName})

	switch {
	case toolName == delegateToolName:
		o.handleDelegation(conversationID, callID, parseDelegateInput(input))
		return
	case toolName == terminalToolName:
		if role, prompt, ok := parseTerminalDelegation(input); ok {
			o.handleDelegation(conversationID, callID, delegation{role: role, prompt: prompt})
			return
		}
	}

	o.executeGatedTool(conversationID, callID, toolName, input)
	o.emit(Event{Type: EventLeadToolResult, ToolName: toolName})
}

// handleDelegation spawns a background subagent and answers the tool
// call immediately so the lead's turn is not blocked.
func (o *Orchestrator) handleDelegation(conversationID, callID string, d delegation) {
	sub := o.spawn(d.role, d.prompt)
	ack := fmt.Sprintf("Delegated to %s subagent (id %s). Its result will be provided when it completes.", sub.role, sub.id)
	if err := o.client.RespondToToolCall(conversationID, callID, ack, false); err != nil {
		debugLog("respond to delegation call %s: %v", callID, err)
	}
}

// spawn resolves the requested role, creates a fresh session with a
// restricted tool filter, and starts the subagent in the background.
func (o *Orchestrator) spawn(role, prompt string) *subagent {
	def, recognized := o.catalog.Resolve(role)
	if !recognized {
		debugLog("unknown subagent role %q, using general-purpose fallback", role)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultSubagentPrompt
	}

	sub := &subagent{
		id:     uuid.New().String(),
		role:   def.Role,
		prompt: prompt,
	}

	o.mu.Lock()
	gen := o.generation
	ctx := o.turnCtx
	o.pending[sub.id] = sub
	o.order = append(o.order, sub.id)
	o.mu.Unlock()

	o.emit(Event{Type: EventSubagentSpawned, SubagentID: sub.id, Role: sub.role, Message: prompt})
	debugLog("spawned subagent %s (%s)", sub.id, sub.role)

	session := o.newSubagentSession(sub, def)
	go o.runSubagent(ctx, gen, sub, session, def)
	return sub
}

func (o *Orchestrator) newSubagentSession(sub *subagent, def models.WorkerDefinition) *worker.Session {
	session := worker.NewSession(def, o.client, o.router, worker.SessionHooks{
		OnDelta: func(role, delta string) {
			o.emit(Event{Type: EventSubagentDelta, SubagentID: sub.id, Role: role, Delta: delta})
		},
		OnToolRequest: o.executeGatedTool,
		OnConversationID: func(conversationID string) {
			o.registerSubagentFilter(conversationID, def)
			o.emit(Event{Type: EventConversationID, SubagentID: sub.id, Role: def.Role, ConversationID: conversationID})
		},
	})
	session.SetTimeouts(o.opts.agentTimeout, o.opts.chatTimeout)
	if o.tools != nil {
		session.SetTools(o.tools.Definitions())
	}
	return session
}

// registerSubagentFilter installs the subagent's tool filter once its
// conversation id is known: allow-list from the worker definition (nil
// means unrestricted), deny-list extended with the fixed meta-tools so
// subagents can never delegate recursively.
func (o *Orchestrator) registerSubagentFilter(conversationID string, def models.WorkerDefinition) {
	o.mu.Lock()
	if o.subConvs[conversationID] {
		o.mu.Unlock()
		return
	}
	o.subConvs[conversationID] = true
	o.mu.Unlock()

	deny := append([]string{}, def.DisallowedTools...)
	deny = append(deny, worker.MetaTools()...)
	o.filters.Register(conversationID, toolfilter.Filter{
		Allowed:    def.AllowedTools,
		Disallowed: deny,
	})
}

// runSubagent executes the delegated prompt, retrying exactly once with
// a fresh session on failure and issuing one extra follow-up turn when
// the output is only whitespace.
func (o *Orchestrator) runSubagent(ctx context.Context, gen int, sub *subagent, session *worker.Session, def models.WorkerDefinition) {
	output, err := o.executeSubagentTurn(ctx, session, sub.prompt)

	if err != nil && !isCancellation(err) {
		o.emit(Event{Type: EventSubagentRetrying, SubagentID: sub.id, Role: sub.role, Error: err})
		debugLog("subagent %s failed, retrying with fresh session: %v", sub.id, err)
		sub.retried = true
		fresh := o.newSubagentSession(sub, def)
		output, err = o.executeSubagentTurn(ctx, fresh, sub.prompt)
	}

	o.settle(gen, sub, output, err)
}

// executeSubagentTurn runs one delegated prompt, applying the
// empty-output policy on the same session.
func (o *Orchestrator) executeSubagentTurn(ctx context.Context, session *worker.Session, prompt string) (string, error) {
	output, err := session.ExecuteTask(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(output) == "" {
		output, err = session.ExecuteTask(ctx, "Please reply with a brief text summary of what you did and found.", nil)
		if err != nil {
			return "", err
		}
	}
	return output, nil
}

// settle records a subagent's terminal outcome. Results arriving after
// a cancellation (stale generation) are discarded.
func (o *Orchestrator) settle(gen int, sub *subagent, output string, err error) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		debugLog("discarding late result from subagent %s (cancelled run)", sub.id)
		return
	}
	sub.done = true
	sub.output = output
	sub.err = err
	o.mu.Unlock()

	status := string(models.TaskStatusSuccess)
	if err != nil {
		status = string(models.TaskStatusError)
	}
	o.emit(Event{Type: EventSubagentCompleted, SubagentID: sub.id, Role: sub.role, Status: status, Message: output, Error: err})
}

// snapshotPending reports whether any subagents are pending for the
// given generation.
func (o *Orchestrator) snapshotPending(gen int) ([]*subagent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return nil, false
	}
	subs := make([]*subagent, 0, len(o.order))
	for _, id := range o.order {
		subs = append(subs, o.pending[id])
	}
	return subs, len(subs) > 0
}

// awaitSubagents polls until every pending subagent has settled, the
// context is cancelled, or the run is cancelled out from under it.
func (o *Orchestrator) awaitSubagents(ctx context.Context, gen int) error {
	ticker := time.NewTicker(o.opts.pollInterval)
	defer ticker.Stop()

	for {
		o.mu.Lock()
		if gen != o.generation {
			o.mu.Unlock()
			return context.Canceled
		}
		allDone := true
		for _, sub := range o.pending {
			if !sub.done {
				allDone = false
				break
			}
		}
		o.mu.Unlock()

		if allDone {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// collectResults drains the settled subagents in spawn order into a
// tagged context block for the lead's follow-up turn, then clears the
// pending registry for the next delegation round.
func (o *Orchestrator) collectResults(gen int) string {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return ""
	}
	subs := make([]*subagent, 0, len(o.order))
	for _, id := range o.order {
		subs = append(subs, o.pending[id])
	}
	o.pending = make(map[string]*subagent)
	o.order = nil
	o.mu.Unlock()

	var b strings.Builder
	for _, sub := range subs {
		fmt.Fprintf(&b, "<subagent_result agent=%q>\n", sub.role)
		if sub.err != nil {
			fmt.Fprintf(&b, "Error: %v\n", sub.err)
		} else {
			b.WriteString(strings.TrimSpace(sub.output))
			b.WriteString("\n")
		}
		b.WriteString("</subagent_result>\n\n")
	}
	b.WriteString("Review the subagent results above. Either delegate further tasks or provide your final answer.")
	return b.String()
}

// executeGatedTool answers one concrete tool call: filter check first,
// then session-scoped confirmation, then the tool router.
func (o *Orchestrator) executeGatedTool(conversationID, callID, toolName, input string) {
	respond := func(content string, isError bool) {
		if err := o.client.RespondToToolCall(conversationID, callID, content, isError); err != nil {
			debugLog("respond to tool call %s: %v", callID, err)
		}
	}

	if !o.filters.IsAllowed(conversationID, toolName) {
		respond(fmt.Sprintf("Tool %q is not permitted for this agent.", toolName), true)
		return
	}

	if o.opts.confirmFunc != nil && !o.confirm.Confirmed(toolName) {
		if !o.opts.confirmFunc(toolName) {
			respond(fmt.Sprintf("Tool %q was declined by the user.", toolName), true)
			return
		}
		o.confirm.Confirm(toolName)
	}

	if o.tools == nil {
		respond(fmt.Sprintf("No tool router is configured; cannot execute %q.", toolName), true)
		return
	}

	o.mu.Lock()
	ctx := o.turnCtx
	o.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	content, isError := o.tools.Execute(ctx, toolName, input)
	respond(content, isError)
}

// setState transitions the state machine, unless the run was cancelled
// since the caller observed gen (Cancel already reset the state).
func (o *Orchestrator) setState(gen int, s State) {
	o.mu.Lock()
	if gen == o.generation {
		o.state = s
	}
	o.mu.Unlock()
}

func (o *Orchestrator) emit(event Event) {
	event.Timestamp = time.Now()
	o.opts.emitter.Emit(event)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// delegation is a parsed delegation request from either surface.
type delegation struct {
	role   string
	prompt string
}

// parseDelegateInput decodes the delegate_task tool input. Malformed
// input falls back to the general-purpose role with a default prompt.
func parseDelegateInput(input string) delegation {
	var payload struct {
		AgentType string `json:"agent_type"`
		Role      string `json:"role"`
		Prompt    string `json:"prompt"`
		Task      string `json:"task"`
	}
	if err := json.Unmarshal([]byte(input), &payload); err != nil {
		debugLog("malformed delegate_task input: %v", err)
	}
	d := delegation{role: payload.AgentType, prompt: payload.Prompt}
	if d.role == "" {
		d.role = payload.Role
	}
	if d.prompt == "" {
		d.prompt = payload.Task
	}
	return d
}

// parseTerminalDelegation recognizes the legacy delegation surface: a
// run_in_terminal call whose command is "#delegate <agent_type> <prompt>".
func parseTerminalDelegation(input string) (role, prompt string, ok bool) {
	var payload struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(input), &payload); err != nil {
		return "", "", false
	}
	if !strings.HasPrefix(payload.Command, delegationMarker) {
		return "", "", false
	}
	rest := strings.TrimPrefix(payload.Command, delegationMarker)
	parts := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	role = parts[0]
	if len(parts) == 2 {
		prompt = parts[1]
	}
	return role, prompt, role != ""
}

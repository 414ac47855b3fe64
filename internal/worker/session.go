package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkarras/foreman/internal/transport"
	"github.com/mkarras/foreman/pkg/models"
)

const (
	// defaultAgentTimeout is the per-call ceiling for tool-enabled sessions.
	defaultAgentTimeout = 5 * time.Minute
	// defaultChatTimeout is the per-call ceiling for plain chat sessions.
	defaultChatTimeout = 1 * time.Minute
)

// SessionHooks are optional observer callbacks for streaming progress.
// All hooks are invoked from the progress-dispatch path.
type SessionHooks struct {
	// OnDelta receives each genuinely new text increment.
	OnDelta func(role, delta string)
	// OnToolCall receives each tool-call sighting within agent rounds.
	OnToolCall func(role, toolName string)
	// OnToolRequest receives tool calls that are awaiting a response. The
	// handler must answer via the transport's RespondToToolCall or the
	// turn will stall until its timeout. When nil, tool calls are
	// surfaced through OnToolCall only.
	OnToolRequest func(conversationID, callID, toolName, input string)
	// OnConversationID fires once, when the session's conversation id
	// becomes known.
	OnConversationID func(conversationID string)
}

// Session is a conversational handle bound to one worker role. The first
// ExecuteTask call creates the underlying conversation; later calls
// continue it, so subsequent tasks see prior conversation history for the
// role. A session serializes its turns: concurrent ExecuteTask calls on
// the same session queue on its lock.
type Session struct {
	id     string
	def    models.WorkerDefinition
	client transport.Client
	router *transport.Router
	hooks  SessionHooks

	agentTimeout time.Duration
	chatTimeout  time.Duration

	tools            []transport.ToolDefinition
	confirmToolCalls bool

	// mu serializes turns on this session.
	mu        sync.Mutex
	firstTurn bool

	// convMu guards conversationID, which is written from the
	// progress-dispatch goroutine.
	convMu         sync.Mutex
	conversationID string
}

// NewSession creates a session for the given worker definition.
func NewSession(def models.WorkerDefinition, client transport.Client, router *transport.Router, hooks SessionHooks) *Session {
	return &Session{
		id:           uuid.New().String(),
		def:          def,
		client:       client,
		router:       router,
		hooks:        hooks,
		agentTimeout: defaultAgentTimeout,
		chatTimeout:  defaultChatTimeout,
		firstTurn:    true,
	}
}

// SetTimeouts overrides the per-call ceilings. Zero values keep defaults.
func (s *Session) SetTimeouts(agent, chat time.Duration) {
	if agent > 0 {
		s.agentTimeout = agent
	}
	if chat > 0 {
		s.chatTimeout = chat
	}
}

// SetTools declares the tools offered to the model on this session's
// turns. The tool router that answers them is wired through the
// OnToolRequest hook.
func (s *Session) SetTools(tools []transport.ToolDefinition) {
	s.tools = tools
}

// SetConfirmToolCalls enables tool-call confirmation for this session.
func (s *Session) SetConfirmToolCalls(confirm bool) {
	s.confirmToolCalls = confirm
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Role returns the worker role this session is bound to.
func (s *Session) Role() string { return s.def.Role }

// ConversationID returns the underlying conversation id, or empty before
// the first turn completes.
func (s *Session) ConversationID() string {
	s.convMu.Lock()
	defer s.convMu.Unlock()
	return s.conversationID
}

func (s *Session) setConversationID(id string) {
	s.convMu.Lock()
	defer s.convMu.Unlock()
	if s.conversationID == "" {
		s.conversationID = id
	}
}

// ExecuteTask sends a task description (plus optional dependency context)
// to the worker and returns the accumulated reply text. The call suspends
// until the conversation round completes, errors, or exceeds the session's
// timeout ceiling.
func (s *Session) ExecuteTask(ctx context.Context, description string, depContext map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompt := s.buildPrompt(description, depContext)

	token := uuid.New().String()
	acc := newReplyAccumulator()
	done := make(chan struct{})
	var turnErr error
	var closeOnce sync.Once
	finish := func(err error) {
		closeOnce.Do(func() {
			turnErr = err
			close(done)
		})
	}

	s.router.Register(token, func(ev transport.ProgressEvent) {
		switch ev.Kind {
		case transport.KindConversationID:
			s.setConversationID(ev.ConversationID)
			if s.hooks.OnConversationID != nil {
				s.hooks.OnConversationID(ev.ConversationID)
			}
		case transport.KindDelta:
			s.emitDelta(acc.observeDelta(ev.Round, ev.Delta))
		case transport.KindRound:
			s.emitDelta(acc.observeRound(ev.Round, ev.RoundReply))
		case transport.KindReply:
			s.emitDelta(acc.observeReply(ev.Reply))
		case transport.KindMessage:
			s.emitDelta(acc.observeMessage(ev.Message))
		case transport.KindToolCall:
			if s.hooks.OnToolCall != nil {
				s.hooks.OnToolCall(s.def.Role, ev.ToolName)
			}
			if s.hooks.OnToolRequest != nil {
				// The transport blocks its turn until the call is
				// answered, so the handler runs off the dispatch path.
				go s.hooks.OnToolRequest(s.ConversationID(), ev.ToolCallID, ev.ToolName, ev.ToolInput)
			}
		case transport.KindEnd:
			finish(nil)
		case transport.KindError:
			finish(fmt.Errorf("conversation failed: %w", ev.Err))
		}
	})
	// The listener must be deregistered on every exit path, including
	// timeout: a late end event must not reach a dead call.
	defer s.router.Deregister(token)

	opts := transport.Options{
		AgentMode:        s.def.AgentModeEnabled,
		Model:            s.def.Model,
		ConfirmToolCalls: s.confirmToolCalls,
		Tools:            s.tools,
	}

	if s.firstTurn {
		conversationID, err := s.client.CreateConversation(ctx, prompt, token, opts)
		if err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
		s.setConversationID(conversationID)
	} else {
		if err := s.client.ContinueConversation(ctx, s.ConversationID(), prompt, token, opts); err != nil {
			return "", fmt.Errorf("continue conversation: %w", err)
		}
	}

	select {
	case <-done:
		if turnErr != nil {
			return "", turnErr
		}
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.timeout()):
		return "", fmt.Errorf("worker %s timed out after %s", s.def.Role, s.timeout())
	}

	s.firstTurn = false
	return acc.text(), nil
}

// buildPrompt assembles the composite prompt: system block (first turn
// only), tool-restriction block, shared dependency context, then the raw
// task description.
func (s *Session) buildPrompt(description string, depContext map[string]string) string {
	var b strings.Builder

	if s.firstTurn && s.def.SystemPrompt != "" {
		b.WriteString(s.def.SystemPrompt)
		b.WriteString("\n\n")
	}

	if s.def.AllowedTools != nil {
		b.WriteString("You may only use the following tools: ")
		b.WriteString(strings.Join(s.def.AllowedTools, ", "))
		b.WriteString("\n\n")
	}

	if len(depContext) > 0 {
		b.WriteString("Context from completed dependency tasks:\n")
		keys := make([]string, 0, len(depContext))
		for k := range depContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "### %s\n%s\n\n", k, depContext[k])
		}
	}

	b.WriteString(description)
	return b.String()
}

func (s *Session) timeout() time.Duration {
	if s.def.AgentModeEnabled {
		return s.agentTimeout
	}
	return s.chatTimeout
}

func (s *Session) emitDelta(delta string) {
	if delta != "" && s.hooks.OnDelta != nil {
		s.hooks.OnDelta(s.def.Role, delta)
	}
}

// Manager lazily creates and caches one session per worker role for an
// orchestration run. Get-or-create is atomic: two ready tasks of the same
// role in one batch share a single session and serialize on its lock.
type Manager struct {
	client transport.Client
	router *transport.Router
	hooks  SessionHooks

	agentTimeout time.Duration
	chatTimeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(client transport.Client, router *transport.Router, hooks SessionHooks) *Manager {
	return &Manager{
		client:   client,
		router:   router,
		hooks:    hooks,
		sessions: make(map[string]*Session),
	}
}

// SetTimeouts overrides the per-call ceilings applied to new sessions.
func (m *Manager) SetTimeouts(agent, chat time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentTimeout = agent
	m.chatTimeout = chat
}

// GetOrCreate returns the session for a role, creating it on first use.
func (m *Manager) GetOrCreate(def models.WorkerDefinition) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[def.Role]; ok {
		return s
	}
	s := NewSession(def, m.client, m.router, m.hooks)
	s.SetTimeouts(m.agentTimeout, m.chatTimeout)
	m.sessions[def.Role] = s
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reset discards all sessions. Called at the end of a run or on
// cancellation; sessions are dropped, not torn down.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
}

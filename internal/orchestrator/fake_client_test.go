package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mkarras/foreman/internal/transport"
)

// fakeTurn scripts one conversation turn of the fake transport.
type fakeTurn struct {
	delay     time.Duration
	toolCalls []fakeToolCall
	reply     string
	fail      error
}

type fakeToolCall struct {
	id    string
	name  string
	input string
}

// fakeRule binds scripted turns to any conversation whose creating
// prompt contains the match substring. Turns are consumed in order
// across all conversations claimed by the rule, so a retry with a
// fresh session picks up where the failed attempt left off.
type fakeRule struct {
	match string
	turns []fakeTurn
	next  int
}

func rule(match string, turns ...fakeTurn) *fakeRule {
	return &fakeRule{match: match, turns: turns}
}

type toolResp struct {
	content string
	isError bool
}

// fakeClient is a scripted conversation transport. Rules are matched in
// order against the prompt that creates each conversation.
type fakeClient struct {
	router *transport.Router

	mu        sync.Mutex
	rules     []*fakeRule
	convs     map[string]*fakeRule
	prompts   map[string][]string
	pending   map[string]chan toolResp
	responses map[string]toolResp
	seq       int
}

func newFakeClient(router *transport.Router, rules ...*fakeRule) *fakeClient {
	return &fakeClient{
		router:    router,
		rules:     rules,
		convs:     make(map[string]*fakeRule),
		prompts:   make(map[string][]string),
		pending:   make(map[string]chan toolResp),
		responses: make(map[string]toolResp),
	}
}

var _ transport.Client = (*fakeClient)(nil)

func (f *fakeClient) CreateConversation(ctx context.Context, prompt, workDoneToken string, opts transport.Options) (string, error) {
	f.mu.Lock()
	var matched *fakeRule
	for _, r := range f.rules {
		if strings.Contains(prompt, r.match) {
			matched = r
			break
		}
	}
	if matched == nil {
		f.mu.Unlock()
		return "", fmt.Errorf("no scripted rule matches prompt %q", prompt)
	}
	f.seq++
	conversationID := fmt.Sprintf("conv-%d", f.seq)
	f.convs[conversationID] = matched
	f.prompts[conversationID] = append(f.prompts[conversationID], prompt)
	turn := matched.turns[matched.next]
	matched.next++
	f.mu.Unlock()

	f.router.Dispatch(workDoneToken, transport.ProgressEvent{Kind: transport.KindConversationID, ConversationID: conversationID})
	go f.play(workDoneToken, turn)
	return conversationID, nil
}

func (f *fakeClient) ContinueConversation(ctx context.Context, conversationID, message, workDoneToken string, opts transport.Options) error {
	f.mu.Lock()
	matched := f.convs[conversationID]
	if matched == nil {
		f.mu.Unlock()
		return fmt.Errorf("unknown conversation %s", conversationID)
	}
	if matched.next >= len(matched.turns) {
		f.mu.Unlock()
		return fmt.Errorf("rule %q is out of scripted turns", matched.match)
	}
	f.prompts[conversationID] = append(f.prompts[conversationID], message)
	turn := matched.turns[matched.next]
	matched.next++
	f.mu.Unlock()

	go f.play(workDoneToken, turn)
	return nil
}

func (f *fakeClient) RespondToToolCall(conversationID, toolCallID, content string, isError bool) error {
	f.mu.Lock()
	ch := f.pending[toolCallID]
	delete(f.pending, toolCallID)
	f.responses[toolCallID] = toolResp{content: content, isError: isError}
	f.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("no pending tool call %s", toolCallID)
	}
	ch <- toolResp{content: content, isError: isError}
	return nil
}

func (f *fakeClient) play(token string, turn fakeTurn) {
	if turn.delay > 0 {
		time.Sleep(turn.delay)
	}
	if turn.fail != nil {
		f.router.Dispatch(token, transport.ProgressEvent{Kind: transport.KindError, Err: turn.fail})
		return
	}
	for _, tc := range turn.toolCalls {
		ch := make(chan toolResp, 1)
		f.mu.Lock()
		f.pending[tc.id] = ch
		f.mu.Unlock()

		f.router.Dispatch(token, transport.ProgressEvent{
			Kind:       transport.KindToolCall,
			ToolCallID: tc.id,
			ToolName:   tc.name,
			ToolInput:  tc.input,
		})
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
		}
	}
	if turn.reply != "" {
		f.router.Dispatch(token, transport.ProgressEvent{Kind: transport.KindReply, Reply: turn.reply})
	}
	f.router.Dispatch(token, transport.ProgressEvent{Kind: transport.KindEnd})
}

// conversationPrompts returns the prompts sent on the conversation whose
// creating prompt contained match, in send order.
func (f *fakeClient) conversationPrompts(match string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conversationID, r := range f.convs {
		if r.match == match {
			return f.prompts[conversationID]
		}
	}
	return nil
}

// conversationID returns the id of the conversation claimed by the rule
// with the given match substring, or empty if none was created.
func (f *fakeClient) conversationID(match string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conversationID, r := range f.convs {
		if r.match == match {
			return conversationID
		}
	}
	return ""
}

// toolResponse returns the recorded answer to a tool call.
func (f *fakeClient) toolResponse(toolCallID string) (toolResp, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.responses[toolCallID]
	return resp, ok
}

// drainEvents collects every event currently buffered on the channel.
func drainEvents(events <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents(events []Event, t EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

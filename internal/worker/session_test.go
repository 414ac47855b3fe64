package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mkarras/foreman/internal/transport"
	"github.com/mkarras/foreman/pkg/models"
)

// fakeClient is a scripted transport for tests. Each turn replays the next
// scripted event sequence on the progress router.
type fakeClient struct {
	router *transport.Router

	mu       sync.Mutex
	turns    [][]transport.ProgressEvent
	prompts  []string
	turnID   string
	createErr error
	delay    time.Duration
}

func newFakeClient(router *transport.Router) *fakeClient {
	return &fakeClient{router: router, turnID: "conv-fake"}
}

func (f *fakeClient) script(events ...transport.ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, events)
}

func (f *fakeClient) CreateConversation(ctx context.Context, prompt, token string, opts transport.Options) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	f.router.Dispatch(token, transport.ProgressEvent{Kind: transport.KindConversationID, ConversationID: f.turnID})
	go f.play(token)
	return f.turnID, nil
}

func (f *fakeClient) ContinueConversation(ctx context.Context, conversationID, message, token string, opts transport.Options) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, message)
	f.mu.Unlock()
	go f.play(token)
	return nil
}

func (f *fakeClient) RespondToToolCall(conversationID, toolCallID, content string, isError bool) error {
	return nil
}

func (f *fakeClient) play(token string) {
	f.mu.Lock()
	var events []transport.ProgressEvent
	if len(f.turns) > 0 {
		events = f.turns[0]
		f.turns = f.turns[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	for _, ev := range events {
		f.router.Dispatch(token, ev)
	}
}

func (f *fakeClient) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func testWorker() models.WorkerDefinition {
	return models.WorkerDefinition{
		Role:             "coder",
		SystemPrompt:     "You are a coder.",
		AgentModeEnabled: true,
	}
}

func TestExecuteTaskAccumulatesReply(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	client.script(
		transport.ProgressEvent{Kind: transport.KindDelta, Round: 0, Delta: "working... "},
		transport.ProgressEvent{Kind: transport.KindRound, Round: 0, RoundReply: "working... done"},
		transport.ProgressEvent{Kind: transport.KindEnd},
	)

	session := NewSession(testWorker(), client, router, SessionHooks{})

	output, err := session.ExecuteTask(context.Background(), "do the thing", nil)
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	if output != "working... done" {
		t.Errorf("expected deduplicated reply, got %q", output)
	}
	if router.Len() != 0 {
		t.Errorf("expected listener deregistered after call, got %d", router.Len())
	}
}

func TestExecuteTaskFirstTurnIncludesSystemPrompt(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	client.script(transport.ProgressEvent{Kind: transport.KindEnd})
	client.script(transport.ProgressEvent{Kind: transport.KindEnd})

	session := NewSession(testWorker(), client, router, SessionHooks{})

	if _, err := session.ExecuteTask(context.Background(), "task one", nil); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if !strings.Contains(client.lastPrompt(), "You are a coder.") {
		t.Error("first-turn prompt should include the system block")
	}

	if _, err := session.ExecuteTask(context.Background(), "task two", nil); err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if strings.Contains(client.lastPrompt(), "You are a coder.") {
		t.Error("later turns must not repeat the system block")
	}
	if session.ConversationID() != "conv-fake" {
		t.Errorf("expected conversation id recorded, got %q", session.ConversationID())
	}
}

func TestExecuteTaskDependencyContextBlock(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	client.script(transport.ProgressEvent{Kind: transport.KindEnd})

	session := NewSession(testWorker(), client, router, SessionHooks{})

	depCtx := map[string]string{
		"result_from_explorer_task_0": "auth lives in internal/auth",
	}
	if _, err := session.ExecuteTask(context.Background(), "add JWT", depCtx); err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}

	prompt := client.lastPrompt()
	if !strings.Contains(prompt, "result_from_explorer_task_0") {
		t.Error("prompt should contain the dependency context key")
	}
	if !strings.Contains(prompt, "auth lives in internal/auth") {
		t.Error("prompt should contain the dependency output")
	}
	if !strings.HasSuffix(prompt, "add JWT") {
		t.Error("raw task description should come last")
	}
}

func TestExecuteTaskToolRestrictionBlock(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	client.script(transport.ProgressEvent{Kind: transport.KindEnd})

	def := testWorker()
	def.AllowedTools = []string{"read_file", "grep_search"}
	session := NewSession(def, client, router, SessionHooks{})

	if _, err := session.ExecuteTask(context.Background(), "explore", nil); err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	if !strings.Contains(client.lastPrompt(), "read_file, grep_search") {
		t.Error("prompt should list the allowed tools for a restricted worker")
	}
}

func TestExecuteTaskErrorEvent(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	client.script(transport.ProgressEvent{Kind: transport.KindError, Err: errors.New("upstream broke")})

	session := NewSession(testWorker(), client, router, SessionHooks{})

	_, err := session.ExecuteTask(context.Background(), "task", nil)
	if err == nil {
		t.Fatal("expected error from error event")
	}
	if !strings.Contains(err.Error(), "upstream broke") {
		t.Errorf("expected wrapped upstream error, got %v", err)
	}
	if router.Len() != 0 {
		t.Error("listener must be deregistered on the error path")
	}
}

func TestExecuteTaskTimeout(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	// No scripted end event: the turn never completes.

	session := NewSession(testWorker(), client, router, SessionHooks{})
	session.SetTimeouts(20*time.Millisecond, 20*time.Millisecond)

	_, err := session.ExecuteTask(context.Background(), "task", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if router.Len() != 0 {
		t.Error("listener must be deregistered on the timeout path")
	}
}

func TestExecuteTaskToolCallHook(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	client.script(
		transport.ProgressEvent{Kind: transport.KindToolCall, ToolName: "read_file"},
		transport.ProgressEvent{Kind: transport.KindEnd},
	)

	var mu sync.Mutex
	var sightings []string
	session := NewSession(testWorker(), client, router, SessionHooks{
		OnToolCall: func(role, tool string) {
			mu.Lock()
			sightings = append(sightings, role+"/"+tool)
			mu.Unlock()
		},
	})

	if _, err := session.ExecuteTask(context.Background(), "task", nil); err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sightings) != 1 || sightings[0] != "coder/read_file" {
		t.Errorf("expected one tool sighting coder/read_file, got %v", sightings)
	}
}

func TestManagerGetOrCreateSessionAffinity(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	manager := NewManager(client, router, SessionHooks{})

	coder := models.WorkerDefinition{Role: "coder"}
	first := manager.GetOrCreate(coder)
	second := manager.GetOrCreate(coder)

	if first != second {
		t.Error("expected one session per role across calls")
	}
	if manager.Len() != 1 {
		t.Errorf("expected 1 session, got %d", manager.Len())
	}

	manager.GetOrCreate(models.WorkerDefinition{Role: "explorer"})
	if manager.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", manager.Len())
	}

	manager.Reset()
	if manager.Len() != 0 {
		t.Errorf("expected 0 sessions after reset, got %d", manager.Len())
	}
}

func TestManagerGetOrCreateConcurrent(t *testing.T) {
	router := transport.NewRouter()
	client := newFakeClient(router)
	manager := NewManager(client, router, SessionHooks{})

	def := models.WorkerDefinition{Role: "coder"}
	sessions := make([]*Session, 8)
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = manager.GetOrCreate(def)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(sessions); i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent GetOrCreate must return a single session per role")
		}
	}
}

package transport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
)

// AnthropicConfig configures the SDK-backed transport.
type AnthropicConfig struct {
	// Model is the default model for conversations without an override.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string
	// MaxRounds caps agent-mode tool rounds per turn.
	MaxRounds int
}

// AnthropicClient implements Client on top of the Anthropic Messages API.
// Conversation history is held in memory per conversation id; each turn
// runs as an agent loop that relays tool calls through the progress side
// channel and blocks until the caller responds via RespondToToolCall.
type AnthropicClient struct {
	inner     anthropic.Client
	model     anthropic.Model
	router    *Router
	maxRounds int
	bedrock   bool

	mu    sync.Mutex
	convs map[string]*conversation
}

// conversation tracks one in-memory conversation.
type conversation struct {
	id       string
	opts     Options
	messages []anthropic.MessageParam

	mu      sync.Mutex
	pending map[string]chan toolOutcome
}

type toolOutcome struct {
	content string
	isError bool
}

// NewAnthropicClient creates a transport backed by the Anthropic SDK,
// dispatching progress to the given router.
func NewAnthropicClient(cfg AnthropicConfig, router *Router) (*AnthropicClient, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxRounds := cfg.MaxRounds
	if maxRounds == 0 {
		maxRounds = 50
	}

	return &AnthropicClient{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		router:    router,
		maxRounds: maxRounds,
		bedrock:   cfg.UseAWSBedrock,
		convs:     make(map[string]*conversation),
	}, nil
}

// translateModelForBedrock converts standard model names to Bedrock
// cross-region inference profile format: us.anthropic.{model}-v1:0.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic") {
		return model
	}
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// CreateConversation starts a new conversation and runs its first turn in
// the background. The conversation id is reported both as the return value
// and as a conversation_id progress event so listeners see it before any
// content.
func (c *AnthropicClient) CreateConversation(ctx context.Context, prompt, workDoneToken string, opts Options) (string, error) {
	conv := &conversation{
		id:      uuid.New().String(),
		opts:    opts,
		pending: make(map[string]chan toolOutcome),
	}

	c.mu.Lock()
	c.convs[conv.id] = conv
	c.mu.Unlock()

	c.router.Dispatch(workDoneToken, ProgressEvent{Kind: KindConversationID, ConversationID: conv.id})

	go c.runTurn(ctx, conv, prompt, workDoneToken)
	return conv.id, nil
}

// ContinueConversation sends a follow-up message on an existing
// conversation and runs the turn in the background.
func (c *AnthropicClient) ContinueConversation(ctx context.Context, conversationID, message, workDoneToken string, opts Options) error {
	c.mu.Lock()
	conv, ok := c.convs[conversationID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown conversation %s", conversationID)
	}

	go c.runTurn(ctx, conv, message, workDoneToken)
	return nil
}

// RespondToToolCall resolves a pending tool call so the agent loop can
// continue the turn.
func (c *AnthropicClient) RespondToToolCall(conversationID, toolCallID, content string, isError bool) error {
	c.mu.Lock()
	conv, ok := c.convs[conversationID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown conversation %s", conversationID)
	}

	conv.mu.Lock()
	ch, ok := conv.pending[toolCallID]
	if ok {
		delete(conv.pending, toolCallID)
	}
	conv.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending tool call %s on conversation %s", toolCallID, conversationID)
	}

	ch <- toolOutcome{content: content, isError: isError}
	return nil
}

// runTurn executes one conversation turn as an agent loop. Each model round
// appends to the conversation history; tool_use responses surface as
// tool_call progress events and block until answered.
func (c *AnthropicClient) runTurn(ctx context.Context, conv *conversation, message, token string) {
	conv.messages = append(conv.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	var cumulative strings.Builder

	for round := 0; round < c.maxRounds; round++ {
		params := anthropic.MessageNewParams{
			Model:     c.turnModel(conv.opts),
			MaxTokens: 8192,
			Messages:  conv.messages,
		}
		if conv.opts.AgentMode {
			params.Tools = toolParams(conv.opts.Tools)
		}

		resp, err := c.inner.Messages.New(ctx, params)
		if err != nil {
			c.router.Dispatch(token, ProgressEvent{Kind: KindError, Err: fmt.Errorf("messages API: %w", err)})
			return
		}

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolCalls []anthropic.ToolUseBlock
		var roundText strings.Builder
		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				roundText.WriteString(variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))
			case anthropic.ToolUseBlock:
				toolCalls = append(toolCalls, variant)
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))
			}
		}

		if roundText.Len() > 0 {
			c.router.Dispatch(token, ProgressEvent{Kind: KindDelta, Delta: roundText.String(), Round: round})
			cumulative.WriteString(roundText.String())
			c.router.Dispatch(token, ProgressEvent{
				Kind:       KindRound,
				Round:      round,
				RoundReply: roundText.String(),
			})
		}

		conv.messages = append(conv.messages, anthropic.NewAssistantMessage(assistantBlocks...))

		if resp.StopReason == anthropic.StopReasonEndTurn || len(toolCalls) == 0 {
			c.router.Dispatch(token, ProgressEvent{Kind: KindReply, Reply: cumulative.String()})
			c.router.Dispatch(token, ProgressEvent{Kind: KindEnd})
			return
		}

		// Surface each tool call and block for its result before the
		// next round.
		var results []anthropic.ContentBlockParamUnion
		for _, call := range toolCalls {
			outcome, err := c.awaitToolResult(ctx, conv, call, round, token)
			if err != nil {
				c.router.Dispatch(token, ProgressEvent{Kind: KindError, Err: err})
				return
			}
			results = append(results, anthropic.NewToolResultBlock(call.ID, outcome.content, outcome.isError))
		}
		conv.messages = append(conv.messages, anthropic.NewUserMessage(results...))
	}

	c.router.Dispatch(token, ProgressEvent{Kind: KindError, Err: fmt.Errorf("turn exceeded %d agent rounds", c.maxRounds)})
}

// awaitToolResult publishes a tool_call event and waits for the caller to
// respond or the context to be cancelled.
func (c *AnthropicClient) awaitToolResult(ctx context.Context, conv *conversation, call anthropic.ToolUseBlock, round int, token string) (toolOutcome, error) {
	ch := make(chan toolOutcome, 1)
	conv.mu.Lock()
	conv.pending[call.ID] = ch
	conv.mu.Unlock()

	c.router.Dispatch(token, ProgressEvent{
		Kind:       KindToolCall,
		Round:      round,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		ToolInput:  string(call.Input),
	})

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		conv.mu.Lock()
		delete(conv.pending, call.ID)
		conv.mu.Unlock()
		return toolOutcome{}, ctx.Err()
	}
}

// turnModel resolves the model for one turn. Per-turn overrides are
// translated to the Bedrock inference-profile form only when the client
// actually talks to Bedrock; the direct API rejects translated ids.
func (c *AnthropicClient) turnModel(opts Options) anthropic.Model {
	if opts.Model == "" {
		return c.model
	}
	model := anthropic.Model(opts.Model)
	if c.bedrock {
		return translateModelForBedrock(model)
	}
	return model
}

// toolParams converts transport tool definitions to SDK params.
func toolParams(tools []ToolDefinition) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.InputSchema,
					Required:   t.Required,
				},
			},
		})
	}
	return params
}

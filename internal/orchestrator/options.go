package orchestrator

import (
	"time"
)

// Option configures a Runner or an Orchestrator. Use With* functions to
// create Options.
type Option func(*options)

// options holds all optional configuration shared by the planned-mode
// Runner and the interactive Orchestrator.
type options struct {
	logger       *DebugLogger
	emitter      *EventEmitter
	bufferSize   int
	agentTimeout time.Duration
	chatTimeout  time.Duration
	pollInterval time.Duration
	leadModel    string
	confirmFunc  func(toolName string) bool
}

func defaultOptions() *options {
	return &options{
		bufferSize:   256,
		pollInterval: 250 * time.Millisecond,
	}
}

func (o *options) apply(opts []Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}
	if o.emitter == nil {
		o.emitter = NewEventEmitter(o.bufferSize)
	}
	return o
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithEmitter sets a shared event emitter. When unset, a new emitter is
// created with the configured buffer size.
func WithEmitter(e *EventEmitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithEventBuffer sets the buffer size of the internally created emitter.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithTimeouts overrides the per-call session ceilings. Zero values keep
// the session defaults.
func WithTimeouts(agent, chat time.Duration) Option {
	return func(o *options) {
		o.agentTimeout = agent
		o.chatTimeout = chat
	}
}

// WithPollInterval sets the interval at which the interactive coordinator
// polls for pending subagents to settle.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLeadModel sets the model used for the lead conversation.
func WithLeadModel(model string) Option {
	return func(o *options) { o.leadModel = model }
}

// WithConfirmFunc sets the user prompt invoked before a tool's first
// execution in a session. Approval is remembered for the rest of the
// session. When unset, tools run without confirmation.
func WithConfirmFunc(fn func(toolName string) bool) Option {
	return func(o *options) { o.confirmFunc = fn }
}

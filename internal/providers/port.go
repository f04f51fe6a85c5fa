// Package providers implements the Provider Port: the abstract LLM transport
// the Agent Loop submits requests through, plus concrete Anthropic and OpenAI
// implementations.
package providers

import (
	"context"

	"github.com/opencrabs/opencrabs/pkg/models"
)

// StopReason is why a provider stopped generating.
type StopReason string

const (
	StopEndOfTurn    StopReason = "end_of_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopToolUse      StopReason = "tool_use"
	StopStopSequence StopReason = "stop_sequence"
	StopRefusal      StopReason = "refusal"
)

// Usage reports token accounting for one provider call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CacheTokens  int
}

// Message is one role-tagged entry of a Request's conversation.
type Message struct {
	Role   models.Role
	Blocks models.Blocks
}

// ToolDescriptor is the provider-facing shape of a registered tool: name,
// description, and JSON schema. Re-declared here (rather than imported from
// internal/agent) so this package never depends on the agent package.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema []byte
}

// Request is one submission to a provider, either one-shot (Complete) or
// streamed (Stream).
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Tools       []ToolDescriptor
	MaxTokens   int
	Temperature float64
}

// Response is the result of a one-shot Complete call.
type Response struct {
	Blocks     models.Blocks
	StopReason StopReason
	Usage      Usage
	Model      string
}

// StreamEventType discriminates StreamEvent payloads.
type StreamEventType string

const (
	StreamTextDelta         StreamEventType = "text_delta"
	StreamToolUseBlockStart StreamEventType = "tool_use_block_start"
	StreamToolUseInputDelta StreamEventType = "tool_use_input_delta"
	StreamBlockComplete     StreamEventType = "block_complete"
	StreamMessageStop       StreamEventType = "message_stop"
)

// StreamEvent is one element of the finite, lazy sequence Stream produces.
// Exactly one terminal event (MessageStop, or the channel closing on error)
// occurs per call.
type StreamEvent struct {
	Type StreamEventType

	Text string // StreamTextDelta

	ToolUseID    string // StreamToolUseBlockStart, StreamToolUseInputDelta
	ToolUseName  string // StreamToolUseBlockStart
	JSONFragment string // StreamToolUseInputDelta

	BlockIndex int // StreamBlockComplete

	StopReason StopReason // StreamMessageStop
	Usage      Usage      // StreamMessageStop

	Err error
}

// Provider is the abstract LLM transport. Implementations must honor the
// failure taxonomy in errors.go: Network and RateLimited are the caller's
// cue to retry; ContextLengthExceeded is the caller's cue to compact.
type Provider interface {
	Name() string
	DefaultModel() string
	SupportedModels() []string

	// Complete performs one non-streamed request/response round trip.
	Complete(ctx context.Context, req Request) (Response, error)

	// Stream performs the same request but returns incremental events as
	// they arrive. The returned channel is closed when the stream ends,
	// whether by MessageStop or by error (the final event, if an error
	// occurred, carries Err).
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/opencrabs/opencrabs/pkg/models"
)

// AnthropicProvider implements Provider against Anthropic's Messages API,
// streaming Server-Sent Events through the anthropic-sdk-go client.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider validates config and returns a ready client.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(options...),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) SupportedModels() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

func (p *AnthropicProvider) model(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) maxTokens(req Request) int64 {
	if req.MaxTokens > 0 {
		return int64(req.MaxTokens)
	}
	return 4096
}

func (p *AnthropicProvider) params(req Request) (anthropic.MessageNewParams, error) {
	messages, err := convertMessagesAnthropic(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: p.maxTokens(req),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsAnthropic(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

// Complete performs one retried, non-streamed round trip by draining Stream.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	events, err := p.Stream(ctx, req)
	if err != nil {
		return Response{}, err
	}

	var blocks models.Blocks
	var textBuf strings.Builder
	var toolID, toolName string
	var toolInput strings.Builder
	resp := Response{Model: p.model(req)}

	flushText := func() {
		if textBuf.Len() > 0 {
			blocks = append(blocks, models.TextBlock{Text: textBuf.String()})
			textBuf.Reset()
		}
	}

	for ev := range events {
		switch ev.Type {
		case StreamTextDelta:
			textBuf.WriteString(ev.Text)
		case StreamToolUseBlockStart:
			flushText()
			toolID, toolName = ev.ToolUseID, ev.ToolUseName
			toolInput.Reset()
		case StreamToolUseInputDelta:
			toolInput.WriteString(ev.JSONFragment)
		case StreamBlockComplete:
			if toolID != "" {
				blocks = append(blocks, models.ToolUseBlock{ID: toolID, Name: toolName, Input: json.RawMessage(toolInput.String())})
				toolID, toolName = "", ""
			}
		case StreamMessageStop:
			flushText()
			resp.StopReason = ev.StopReason
			resp.Usage = ev.Usage
			if ev.Err != nil {
				return Response{}, ev.Err
			}
		}
	}
	flushText()
	resp.Blocks = blocks
	return resp, nil
}

// Stream issues the retried streaming request and converts Anthropic SSE
// events into the port's StreamEvent algebra.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var streamErr error
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream = p.client.Messages.NewStreaming(ctx, params)
			streamErr = stream.Err()
			if streamErr == nil {
				break
			}
			wrapped := p.wrapError(streamErr, string(params.Model))
			if !IsRetryable(wrapped) {
				out <- StreamEvent{Type: StreamMessageStop, Err: wrapped}
				return
			}
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				out <- StreamEvent{Type: StreamMessageStop, Err: ctx.Err()}
				return
			case <-time.After(backoff):
			}
		}
		if streamErr != nil {
			out <- StreamEvent{Type: StreamMessageStop, Err: p.wrapError(streamErr, string(params.Model))}
			return
		}

		processAnthropicStream(stream, out)
	}()
	return out, nil
}

func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- StreamEvent) {
	var blockIndex int
	var toolID, toolName string
	var usage Usage

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			usage.InputTokens = int(ms.Message.Usage.InputTokens)
		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			if cb.Type == "tool_use" {
				tu := cb.AsToolUse()
				toolID, toolName = tu.ID, tu.Name
				out <- StreamEvent{Type: StreamToolUseBlockStart, ToolUseID: toolID, ToolUseName: toolName}
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- StreamEvent{Type: StreamTextDelta, Text: delta.Text}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					out <- StreamEvent{Type: StreamToolUseInputDelta, ToolUseID: toolID, JSONFragment: delta.PartialJSON}
				}
			}
		case "content_block_stop":
			out <- StreamEvent{Type: StreamBlockComplete, BlockIndex: blockIndex}
			blockIndex++
			toolID, toolName = "", ""
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(md.Usage.OutputTokens)
			}
			out <- StreamEvent{Type: StreamMessageStop, StopReason: mapAnthropicStopReason(string(md.Delta.StopReason)), Usage: usage}
		}
	}
	if err := stream.Err(); err != nil {
		out <- StreamEvent{Type: StreamMessageStop, Err: err}
	}
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopEndOfTurn
	case "max_tokens":
		return StopMaxTokens
	case "tool_use":
		return StopToolUse
	case "stop_sequence":
		return StopStopSequence
	case "refusal":
		return StopRefusal
	default:
		return StopEndOfTurn
	}
}

func convertMessagesAnthropic(messages []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range m.Blocks {
			switch block := b.(type) {
			case models.TextBlock:
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			case models.ToolUseBlock:
				var input any
				if len(block.Input) > 0 {
					if err := json.Unmarshal(block.Input, &input); err != nil {
						return nil, fmt.Errorf("tool use input: %w", err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, input, block.Name))
			case models.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolUseID, block.Content, block.IsError))
			case models.ImageBlock:
				// The non-beta Messages API image param requires a decoded
				// media type and base64 payload that ContentBlock.Source
				// (an opaque URL or handle) does not carry; fall back to a
				// text marker the model can still reason about, matching
				// how the Channel Router's own <<IMG:uri>> convention works.
				blocks = append(blocks, anthropic.NewTextBlock(fmt.Sprintf("[image: %s]", block.Source)))
			}
		}
		switch m.Role {
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func convertToolsAnthropic(tools []ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
			}
		}
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.ValueOf[constant.Object](),
		}
		if props, ok := schema["properties"]; ok {
			inputSchema.Properties = props
		}
		if req, ok := schema["required"].([]any); ok {
			for _, item := range req {
				if s, ok := item.(string); ok {
					inputSchema.Required = append(inputSchema.Required, s)
				}
			}
		}

		param := anthropic.ToolParam{Name: t.Name, InputSchema: inputSchema}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out, nil
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	return NewProviderError("anthropic", model, err)
}

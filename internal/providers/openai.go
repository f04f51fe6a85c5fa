package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/opencrabs/opencrabs/pkg/models"
)

// OpenAIProvider implements Provider against OpenAI's chat completions API.
type OpenAIProvider struct {
	BaseProvider
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates a provider bound to apiKey. An empty key
// produces a provider whose calls fail fast with a clear message, rather
// than panicking deeper in the SDK.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	p := &OpenAIProvider{BaseProvider: NewBaseProvider("openai", 3, time.Second), defaultModel: "gpt-4o"}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) SupportedModels() []string {
	return []string{"gpt-4o", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"}
}

func (p *OpenAIProvider) model(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

// Complete drains Stream into a single Response.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	events, err := p.Stream(ctx, req)
	if err != nil {
		return Response{}, err
	}

	var blocks models.Blocks
	var textBuf []byte
	type pendingTool struct {
		name  string
		input []byte
	}
	pending := map[string]*pendingTool{}
	order := []string{}
	resp := Response{Model: p.model(req)}

	for ev := range events {
		switch ev.Type {
		case StreamTextDelta:
			textBuf = append(textBuf, ev.Text...)
		case StreamToolUseBlockStart:
			if _, ok := pending[ev.ToolUseID]; !ok {
				pending[ev.ToolUseID] = &pendingTool{name: ev.ToolUseName}
				order = append(order, ev.ToolUseID)
			}
		case StreamToolUseInputDelta:
			if t, ok := pending[ev.ToolUseID]; ok {
				t.input = append(t.input, ev.JSONFragment...)
			}
		case StreamMessageStop:
			resp.StopReason = ev.StopReason
			resp.Usage = ev.Usage
			if ev.Err != nil {
				return Response{}, ev.Err
			}
		}
	}
	if len(textBuf) > 0 {
		blocks = append(blocks, models.TextBlock{Text: string(textBuf)})
	}
	for _, id := range order {
		t := pending[id]
		blocks = append(blocks, models.ToolUseBlock{ID: id, Name: t.name, Input: json.RawMessage(t.input)})
	}
	resp.Blocks = blocks
	return resp, nil
}

// Stream issues a retried streaming chat completion and converts OpenAI's
// delta events into the port's StreamEvent algebra.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	messages, err := convertMessagesOpenAI(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req),
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsOpenAI(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		wrapped := p.wrapError(lastErr, chatReq.Model)
		if !IsRetryable(wrapped) {
			return nil, wrapped
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", p.wrapError(lastErr, chatReq.Model))
	}

	out := make(chan StreamEvent)
	go processOpenAIStream(ctx, stream, out)
	return out, nil
}

func processOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- StreamEvent) {
	defer close(out)
	defer stream.Close()

	seen := map[int]string{}
	blockIndex := 0

	for {
		select {
		case <-ctx.Done():
			out <- StreamEvent{Type: StreamMessageStop, Err: ctx.Err()}
			return
		default:
		}

		chunk, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				out <- StreamEvent{Type: StreamMessageStop, StopReason: StopEndOfTurn}
				return
			}
			out <- StreamEvent{Type: StreamMessageStop, Err: err}
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			out <- StreamEvent{Type: StreamTextDelta, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			id, known := seen[index]
			if !known {
				id = tc.ID
				seen[index] = id
				out <- StreamEvent{Type: StreamToolUseBlockStart, ToolUseID: id, ToolUseName: tc.Function.Name}
			}
			if tc.Function.Arguments != "" {
				out <- StreamEvent{Type: StreamToolUseInputDelta, ToolUseID: id, JSONFragment: tc.Function.Arguments}
			}
		}

		if choice.FinishReason == "tool_calls" {
			for range seen {
				out <- StreamEvent{Type: StreamBlockComplete, BlockIndex: blockIndex}
				blockIndex++
			}
			seen = map[int]string{}
		}
		if choice.FinishReason != "" {
			out <- StreamEvent{Type: StreamMessageStop, StopReason: mapOpenAIFinishReason(string(choice.FinishReason))}
			return
		}
	}
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopEndOfTurn
	case "length":
		return StopMaxTokens
	case "tool_calls":
		return StopToolUse
	case "content_filter":
		return StopRefusal
	default:
		return StopEndOfTurn
	}
}

func convertMessagesOpenAI(messages []Message, system string) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range messages {
		var text []byte
		var toolCalls []openai.ToolCall
		var toolResults []models.ToolResultBlock
		var images []string

		for _, b := range m.Blocks {
			switch block := b.(type) {
			case models.TextBlock:
				text = append(text, block.Text...)
			case models.ToolUseBlock:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:       block.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: block.Name, Arguments: string(block.Input)},
				})
			case models.ToolResultBlock:
				toolResults = append(toolResults, block)
			case models.ImageBlock:
				images = append(images, block.Source)
			}
		}

		for _, tr := range toolResults {
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    tr.Content,
				ToolCallID: tr.ToolUseID,
			})
		}
		if len(toolResults) > 0 && len(text) == 0 && len(toolCalls) == 0 {
			continue
		}

		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		msg := openai.ChatCompletionMessage{Role: role, Content: string(text), ToolCalls: toolCalls}
		if len(images) > 0 {
			parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: string(text)}}
			for _, src := range images {
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: src, Detail: openai.ImageURLDetailAuto},
				})
			}
			msg.Content = ""
			msg.MultiContent = parts
		}
		out = append(out, msg)
	}
	return out, nil
}

func convertToolsOpenAI(tools []ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	return NewProviderError("openai", model, err)
}

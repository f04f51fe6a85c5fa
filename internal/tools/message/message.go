package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencrabs/opencrabs/internal/agent"
	"github.com/opencrabs/opencrabs/internal/channels"
	sessionstore "github.com/opencrabs/opencrabs/internal/sessions"
	"github.com/opencrabs/opencrabs/pkg/models"
)

// Tool sends outbound messages through configured channel adapters.
type Tool struct {
	name     string
	channels *channels.Registry
	sessions sessionstore.Store
}

// NewTool creates a message tool with a custom name ("message" or "send_message").
func NewTool(name string, registry *channels.Registry, store sessionstore.Store) *Tool {
	if strings.TrimSpace(name) == "" {
		name = "message"
	}
	return &Tool{
		name:     name,
		channels: registry,
		sessions: store,
	}
}

func (t *Tool) Name() string { return t.name }

func (t *Tool) Description() string {
	return "Send a message to a channel/peer using configured adapters."
}

// Capabilities reports that sending to an external channel is a network
// operation.
func (t *Tool) Capabilities() agent.CapabilitySet {
	return agent.NewCapabilitySet(agent.CapNetwork)
}

// RequiresApproval is true: replies on a channel are visible to other
// people, so this is never auto-approved.
func (t *Tool) RequiresApproval() bool {
	return true
}

// Validate checks the input shape.
func (t *Tool) Validate(input json.RawMessage) error {
	var params struct {
		Channel string `json:"channel"`
		To      string `json:"to"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(params.Channel) == "" {
		return fmt.Errorf("channel is required")
	}
	if strings.TrimSpace(params.To) == "" {
		return fmt.Errorf("to is required")
	}
	if strings.TrimSpace(params.Content) == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

func (t *Tool) InputSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Channel/provider name (telegram, slack, etc).",
			},
			"to": map[string]interface{}{
				"type":        "string",
				"description": "Recipient peer/channel id.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Message text to send.",
			},
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session id this reply belongs to, for history.",
			},
		},
		"required": []string{"channel", "to", "content"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage, exec agent.ExecContext) (*agent.ToolResult, error) {
	if t.channels == nil {
		return toolError("channel registry unavailable"), nil
	}
	var input struct {
		Channel   string `json:"channel"`
		To        string `json:"to"`
		Content   string `json:"content"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	channelName := strings.ToLower(strings.TrimSpace(input.Channel))
	if channelName == "" {
		return toolError("channel is required"), nil
	}
	to := strings.TrimSpace(input.To)
	if to == "" {
		return toolError("to is required"), nil
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return toolError("content is required"), nil
	}

	channelType := models.ChannelType(channelName)
	adapter, ok := t.channels.GetOutbound(channelType)
	if !ok {
		return toolError(fmt.Sprintf("channel %s not available", channelName)), nil
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		Channel:   channelType,
		ChannelID: to,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if err := adapter.Send(ctx, msg); err != nil {
		return toolError(fmt.Sprintf("send message: %v", err)), nil
	}

	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		sessionID = exec.SessionID
	}
	if sessionID != "" && t.sessions != nil {
		blocks := models.Blocks{models.TextBlock{Text: content}}
		if _, err := t.sessions.AppendMessage(ctx, sessionID, models.RoleAssistant, blocks, 0, 0); err != nil {
			return toolError(fmt.Sprintf("store message: %v", err)), nil
		}
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"status":     "sent",
		"message_id": msg.ID,
		"session_id": sessionID,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Success: true, Output: string(payload)}, nil
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Success: false, Error: message}
}

package message

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/opencrabs/opencrabs/internal/agent"
	"github.com/opencrabs/opencrabs/internal/channels"
	sessionstore "github.com/opencrabs/opencrabs/internal/sessions"
	"github.com/opencrabs/opencrabs/pkg/models"
)

type stubAdapter struct {
	sent []*models.Message
}

func (a *stubAdapter) Type() models.ChannelType { return models.ChannelTelegram }

func (a *stubAdapter) Send(ctx context.Context, msg *models.Message) error {
	a.sent = append(a.sent, msg)
	return nil
}

func TestMessageToolSend(t *testing.T) {
	registry := channels.NewRegistry()
	adapter := &stubAdapter{}
	registry.Register(adapter)
	store := sessionstore.NewMemoryStore()

	tool := NewTool("message", registry, store)
	params, _ := json.Marshal(map[string]interface{}{
		"channel": "telegram",
		"to":      "123",
		"content": "hello",
	})
	result, err := tool.Execute(context.Background(), params, agent.ExecContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success: %s", result.Error)
	}
	if len(adapter.sent) != 1 {
		t.Fatalf("expected send, got %d", len(adapter.sent))
	}
	if !strings.Contains(result.Output, "sent") {
		t.Fatalf("expected result status: %s", result.Output)
	}
}

func TestMessageToolPersistsWithSessionID(t *testing.T) {
	registry := channels.NewRegistry()
	adapter := &stubAdapter{}
	registry.Register(adapter)
	store := sessionstore.NewMemoryStore()
	session, err := store.CreateSession(context.Background(), "test")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	tool := NewTool("message", registry, store)
	params, _ := json.Marshal(map[string]interface{}{
		"channel":    "telegram",
		"to":         "123",
		"content":    "hello",
		"session_id": session.ID,
	})
	if _, err := tool.Execute(context.Background(), params, agent.ExecContext{}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	msgs, err := store.ListMessages(context.Background(), session.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(msgs))
	}
	if msgs[0].Text() != "hello" {
		t.Fatalf("unexpected message text: %s", msgs[0].Text())
	}
}

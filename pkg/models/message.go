// Package models defines the core data types shared across the agent loop,
// session persistence, and channel adapters: sessions, messages, the
// ContentBlock tagged union, tracked files, and plans.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role indicates the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole coerces an arbitrary role string to a known Role, defaulting to
// RoleUser for anything unrecognized (the coercion from_history requires).
func ParseRole(value string) Role {
	switch Role(value) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(value)
	default:
		return RoleUser
	}
}

// BlockType discriminates ContentBlock variants on the wire.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// ContentBlock is a tagged union. Messages carry an ordered sequence of
// these; there is no base class, only a discriminator and four concrete
// implementations (TextBlock, ToolUseBlock, ToolResultBlock, ImageBlock).
type ContentBlock interface {
	Type() BlockType
}

// TextBlock is plain UTF-8 text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) Type() BlockType { return BlockText }

// ToolUseBlock is the model's request to invoke a tool.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) Type() BlockType { return BlockToolUse }

// ToolResultBlock answers a ToolUseBlock with the same ID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (ToolResultBlock) Type() BlockType { return BlockToolResult }

// ImageBlock references an image payload by URL or opaque handle.
type ImageBlock struct {
	Source string `json:"source"`
}

func (ImageBlock) Type() BlockType { return BlockImage }

// Blocks is an ordered sequence of ContentBlock values with custom JSON
// marshaling: each block is written as {"type": "...", ...fields} and read
// back via the type discriminator, never guessed from shape.
type Blocks []ContentBlock

func (b Blocks) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(b))
	for _, block := range b {
		body, err := json.Marshal(block)
		if err != nil {
			return nil, err
		}
		tagged := map[string]json.RawMessage{}
		if err := json.Unmarshal(body, &tagged); err != nil {
			return nil, err
		}
		tagged["type"] = json.RawMessage(`"` + string(block.Type()) + `"`)
		merged, err := json.Marshal(tagged)
		if err != nil {
			return nil, err
		}
		raw = append(raw, merged)
	}
	return json.Marshal(raw)
}

func (b *Blocks) UnmarshalJSON(data []byte) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	out := make(Blocks, 0, len(entries))
	for _, entry := range entries {
		var head struct {
			Type BlockType `json:"type"`
		}
		if err := json.Unmarshal(entry, &head); err != nil {
			return fmt.Errorf("content block: %w", err)
		}
		var block ContentBlock
		switch head.Type {
		case BlockText:
			var tb TextBlock
			if err := json.Unmarshal(entry, &tb); err != nil {
				return err
			}
			block = tb
		case BlockToolUse:
			var tu ToolUseBlock
			if err := json.Unmarshal(entry, &tu); err != nil {
				return err
			}
			block = tu
		case BlockToolResult:
			var tr ToolResultBlock
			if err := json.Unmarshal(entry, &tr); err != nil {
				return err
			}
			block = tr
		case BlockImage:
			var im ImageBlock
			if err := json.Unmarshal(entry, &im); err != nil {
				return err
			}
			block = im
		default:
			return fmt.Errorf("content block: unknown type %q", head.Type)
		}
		out = append(out, block)
	}
	*b = out
	return nil
}

// Message is one turn's worth of content, owned by exactly one Session.
// Sequence is assigned by the Session Service and is never rewritten.
//
// The Channel/ChannelID/Direction/Content/Attachments fields are populated
// only on messages moving through a Channel Router adapter: inbound
// payloads arrive with them set and get normalized to text (and Blocks)
// before reaching the Agent Loop; outbound replies set them so an adapter
// knows where to deliver. A message that never leaves the Session Service
// (built straight from agent Blocks) leaves them zero-valued.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Sequence   int       `json:"sequence"`
	Role       Role      `json:"role"`
	Blocks     Blocks    `json:"blocks"`
	TokenCount int       `json:"token_count,omitempty"`
	Cost       float64   `json:"cost,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// Metadata carries out-of-band markers (e.g. compaction-summary tagging)
	// that never affect provider submission shape.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Channel transport fields; see the type doc above.
	Channel     ChannelType  `json:"channel,omitempty"`
	ChannelID   string       `json:"channel_id,omitempty"`
	Direction   Direction    `json:"direction,omitempty"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Text concatenates the text of every TextBlock in the message, in order.
// Tool-use/tool-result/image blocks contribute nothing.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var out string
	for _, b := range m.Blocks {
		if tb, ok := b.(TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// ToolUses returns every ToolUseBlock in the message, in arrival order.
func (m *Message) ToolUses() []ToolUseBlock {
	if m == nil {
		return nil
	}
	var out []ToolUseBlock
	for _, b := range m.Blocks {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ToolResults returns every ToolResultBlock in the message, in arrival order.
func (m *Message) ToolResults() []ToolResultBlock {
	if m == nil {
		return nil
	}
	var out []ToolResultBlock
	for _, b := range m.Blocks {
		if tr, ok := b.(ToolResultBlock); ok {
			out = append(out, tr)
		}
	}
	return out
}

// Session is one persisted conversational thread.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Model       string    `json:"model,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Archived    bool      `json:"archived,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
}

// TrackedFile is a file opened for persistent inclusion in a session's
// context, contributing to the session's token budget until the session
// ends. Never auto-removed.
type TrackedFile struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	Content    string `json:"content,omitempty"`
	TokenCount int    `json:"token_count"`
}

// PlanStatus is the lifecycle state of a Plan.
type PlanStatus string

const (
	PlanDraft           PlanStatus = "draft"
	PlanPendingApproval PlanStatus = "pending_approval"
	PlanApproved        PlanStatus = "approved"
	PlanRejected        PlanStatus = "rejected"
	PlanExecuting       PlanStatus = "executing"
	PlanCompleted       PlanStatus = "completed"
	PlanFailed          PlanStatus = "failed"
)

// TaskStatus is the lifecycle state of a single Task within a Plan.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// Task is one step of a Plan.
type Task struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Status     TaskStatus `json:"status"`
	Complexity string     `json:"complexity,omitempty"`
	DependsOn  []string   `json:"depends_on,omitempty"`
}

// Plan is a lightweight task-planning object owned by a Session.
type Plan struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tasks       []Task     `json:"tasks"`
	Status      PlanStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

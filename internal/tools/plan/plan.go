// Package plan implements the plan-tool protocol the Prompt Builder's
// preamble refers to (internal/prompt/builder.go): a single tool the
// model uses to draft, revise, and advance a Plan (internal/plans)
// through its status machine.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencrabs/opencrabs/internal/agent"
	"github.com/opencrabs/opencrabs/internal/plans"
	"github.com/opencrabs/opencrabs/pkg/models"
)

// Tool exposes plan create/update/transition/list/get as one tool
// dispatched on an "action" field, mirroring how websearch.Tool
// dispatches on "type".
type Tool struct {
	store plans.Store
}

// NewTool creates a plan tool backed by the given Plan Service.
func NewTool(store plans.Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string { return "plan" }

func (t *Tool) Description() string {
	return "Draft, update, and advance a task plan for the current session."
}

// Capabilities: plan bookkeeping touches no files, shell, or network.
func (t *Tool) Capabilities() agent.CapabilitySet {
	return agent.NewCapabilitySet()
}

// RequiresApproval is false: the plan itself still needs a human to move
// it from PendingApproval to Approved (that's the status machine's job,
// not an approval-gate concern), so gating the tool call a second time
// would be redundant.
func (t *Tool) RequiresApproval() bool {
	return false
}

type taskInput struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status,omitempty"`
	Complexity string   `json:"complexity,omitempty"`
	DependsOn  []string `json:"depends_on,omitempty"`
}

type params struct {
	Action      string      `json:"action"`
	SessionID   string      `json:"session_id"`
	PlanID      string      `json:"plan_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Tasks       []taskInput `json:"tasks"`
	Status      string      `json:"status"`
}

func (t *Tool) Validate(input json.RawMessage) error {
	var p params
	if err := json.Unmarshal(input, &p); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	action := strings.ToLower(strings.TrimSpace(p.Action))
	switch action {
	case "create":
		if strings.TrimSpace(p.SessionID) == "" {
			return fmt.Errorf("session_id is required for create")
		}
		if strings.TrimSpace(p.Title) == "" {
			return fmt.Errorf("title is required for create")
		}
	case "update_tasks", "transition", "get":
		if strings.TrimSpace(p.PlanID) == "" {
			return fmt.Errorf("plan_id is required for %s", action)
		}
	case "list":
		if strings.TrimSpace(p.SessionID) == "" {
			return fmt.Errorf("session_id is required for list")
		}
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action: %s", p.Action)
	}
	return nil
}

func (t *Tool) InputSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"create", "update_tasks", "transition", "get", "list"},
				"description": "Operation to perform on the plan.",
			},
			"session_id": map[string]interface{}{"type": "string", "description": "Session the plan belongs to."},
			"plan_id":    map[string]interface{}{"type": "string", "description": "Plan id (required for update_tasks, transition, get)."},
			"title":      map[string]interface{}{"type": "string", "description": "Plan title (create)."},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "Plan description (create).",
			},
			"tasks": map[string]interface{}{
				"type":        "array",
				"description": "Ordered task list (create, update_tasks).",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":          map[string]interface{}{"type": "string"},
						"title":       map[string]interface{}{"type": "string"},
						"status":      map[string]interface{}{"type": "string", "enum": []string{"pending", "in_progress", "completed", "failed", "skipped"}},
						"complexity":  map[string]interface{}{"type": "string"},
						"depends_on":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					},
					"required": []string{"title"},
				},
			},
			"status": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"pending_approval", "approved", "rejected", "executing", "completed", "failed"},
				"description": "Target status (transition).",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage, exec agent.ExecContext) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("plan store unavailable"), nil
	}
	var p params
	if err := json.Unmarshal(input, &p); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	switch strings.ToLower(strings.TrimSpace(p.Action)) {
	case "create":
		sessionID := strings.TrimSpace(p.SessionID)
		if sessionID == "" {
			sessionID = exec.SessionID
		}
		plan, err := t.store.CreatePlan(ctx, sessionID, p.Title, p.Description, toModelTasks(p.Tasks))
		if err != nil {
			return toolError(fmt.Sprintf("create plan: %v", err)), nil
		}
		return toolSuccess(plan)
	case "update_tasks":
		plan, err := t.store.UpdateTasks(ctx, p.PlanID, toModelTasks(p.Tasks))
		if err != nil {
			return toolError(fmt.Sprintf("update tasks: %v", err)), nil
		}
		return toolSuccess(plan)
	case "transition":
		target := models.PlanStatus(strings.ToLower(strings.TrimSpace(p.Status)))
		if target == "" {
			return toolError("status is required for transition"), nil
		}
		plan, err := t.store.Transition(ctx, p.PlanID, target)
		if err != nil {
			return toolError(fmt.Sprintf("transition plan: %v", err)), nil
		}
		return toolSuccess(plan)
	case "get":
		plan, err := t.store.GetPlan(ctx, p.PlanID)
		if err != nil {
			return toolError(fmt.Sprintf("get plan: %v", err)), nil
		}
		return toolSuccess(plan)
	case "list":
		list, err := t.store.ListPlans(ctx, p.SessionID)
		if err != nil {
			return toolError(fmt.Sprintf("list plans: %v", err)), nil
		}
		return toolSuccess(list)
	default:
		return toolError(fmt.Sprintf("unknown action: %s", p.Action)), nil
	}
}

func toModelTasks(tasks []taskInput) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, tk := range tasks {
		status := models.TaskStatus(strings.ToLower(strings.TrimSpace(tk.Status)))
		if status == "" {
			status = models.TaskPending
		}
		out = append(out, models.Task{
			ID:         tk.ID,
			Title:      tk.Title,
			Status:     status,
			Complexity: tk.Complexity,
			DependsOn:  tk.DependsOn,
		})
	}
	return out
}

func toolSuccess(v interface{}) (*agent.ToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Success: true, Output: string(payload)}, nil
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Success: false, Error: message}
}

package plan

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/opencrabs/opencrabs/internal/agent"
	"github.com/opencrabs/opencrabs/internal/plans"
)

func TestPlanToolCreateThenGet(t *testing.T) {
	store := plans.NewMemoryStore()
	tool := NewTool(store)

	createParams, _ := json.Marshal(map[string]interface{}{
		"action":     "create",
		"session_id": "sess-1",
		"title":      "Ship the feature",
		"tasks": []map[string]interface{}{
			{"title": "write code"},
			{"title": "write tests"},
		},
	})
	result, err := tool.Execute(context.Background(), createParams, agent.ExecContext{})
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success: %s", result.Error)
	}

	var created struct {
		ID    string `json:"id"`
		Tasks []struct {
			Status string `json:"status"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(result.Output), &created); err != nil {
		t.Fatalf("decode created plan: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a plan id")
	}
	if len(created.Tasks) != 2 || created.Tasks[0].Status != "pending" {
		t.Fatalf("expected 2 pending tasks, got %+v", created.Tasks)
	}

	getParams, _ := json.Marshal(map[string]interface{}{
		"action":  "get",
		"plan_id": created.ID,
	})
	getResult, err := tool.Execute(context.Background(), getParams, agent.ExecContext{})
	if err != nil {
		t.Fatalf("execute get: %v", err)
	}
	if !getResult.Success {
		t.Fatalf("expected success: %s", getResult.Error)
	}
	if !strings.Contains(getResult.Output, "Ship the feature") {
		t.Fatalf("expected title in output, got: %s", getResult.Output)
	}
}

func TestPlanToolTransitionRejectsIllegalEdge(t *testing.T) {
	store := plans.NewMemoryStore()
	tool := NewTool(store)

	plan, err := store.CreatePlan(context.Background(), "sess-1", "Plan", "", nil)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	params, _ := json.Marshal(map[string]interface{}{
		"action":  "transition",
		"plan_id": plan.ID,
		"status":  "completed",
	})
	result, err := tool.Execute(context.Background(), params, agent.ExecContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success {
		t.Fatalf("expected illegal transition to fail, got success: %s", result.Output)
	}
	if !strings.Contains(result.Error, "invalid status transition") {
		t.Fatalf("expected invalid status transition error, got: %s", result.Error)
	}
}

func TestPlanToolUpdateTasksAndList(t *testing.T) {
	store := plans.NewMemoryStore()
	tool := NewTool(store)

	plan, err := store.CreatePlan(context.Background(), "sess-2", "Plan", "", nil)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	updateParams, _ := json.Marshal(map[string]interface{}{
		"action":  "update_tasks",
		"plan_id": plan.ID,
		"tasks": []map[string]interface{}{
			{"title": "step one", "status": "in_progress"},
		},
	})
	if _, err := tool.Execute(context.Background(), updateParams, agent.ExecContext{}); err != nil {
		t.Fatalf("execute update_tasks: %v", err)
	}

	listParams, _ := json.Marshal(map[string]interface{}{
		"action":     "list",
		"session_id": "sess-2",
	})
	result, err := tool.Execute(context.Background(), listParams, agent.ExecContext{})
	if err != nil {
		t.Fatalf("execute list: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success: %s", result.Error)
	}
	if !strings.Contains(result.Output, "in_progress") {
		t.Fatalf("expected updated task status in list output, got: %s", result.Output)
	}
}

func TestPlanToolValidate(t *testing.T) {
	tool := NewTool(plans.NewMemoryStore())

	if err := tool.Validate(json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing action")
	}
	if err := tool.Validate(json.RawMessage(`{"action":"create"}`)); err == nil {
		t.Fatal("expected error for create without session_id/title")
	}
	if err := tool.Validate(json.RawMessage(`{"action":"create","session_id":"s","title":"t"}`)); err != nil {
		t.Fatalf("expected valid create params, got: %v", err)
	}
	if err := tool.Validate(json.RawMessage(`{"action":"bogus"}`)); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

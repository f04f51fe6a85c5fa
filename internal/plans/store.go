// Package plans implements the Plan module named in the data model (§3)
// but left without an operation list in spec.md §4: a lightweight
// task-planning object owned by a Session, moving through
// Draft -> PendingApproval -> Approved/Rejected -> Executing ->
// Completed/Failed.
package plans

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencrabs/opencrabs/pkg/models"
)

var (
	ErrNotFound      = errors.New("plans: not found")
	ErrInvalidStatus = errors.New("plans: invalid status transition")
)

// validTransitions enumerates the Plan status machine. A transition not
// listed here is rejected by Store.Transition.
var validTransitions = map[models.PlanStatus][]models.PlanStatus{
	models.PlanDraft:           {models.PlanPendingApproval, models.PlanRejected},
	models.PlanPendingApproval: {models.PlanApproved, models.PlanRejected},
	models.PlanApproved:        {models.PlanExecuting},
	models.PlanExecuting:       {models.PlanCompleted, models.PlanFailed},
	models.PlanRejected:        {},
	models.PlanCompleted:       {},
	models.PlanFailed:          {},
}

// CanTransition reports whether moving a plan from `from` to `to` is a
// legal status-machine edge.
func CanTransition(from, to models.PlanStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store is the Plan Service: create/load/list/update plans, mirroring the
// Session Service's shape (§4.J) for the sibling Plan module.
type Store interface {
	CreatePlan(ctx context.Context, sessionID, title, description string, tasks []models.Task) (*models.Plan, error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	ListPlans(ctx context.Context, sessionID string) ([]*models.Plan, error)
	Transition(ctx context.Context, id string, to models.PlanStatus) (*models.Plan, error)
	UpdateTasks(ctx context.Context, id string, tasks []models.Task) (*models.Plan, error)
	DeletePlan(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store, used the same way
// sessions.MemoryStore is: tests and single-shot runs.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*models.Plan
}

// NewMemoryStore creates an empty in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: map[string]*models.Plan{}}
}

func (m *MemoryStore) CreatePlan(ctx context.Context, sessionID, title, description string, tasks []models.Task) (*models.Plan, error) {
	now := time.Now().UTC()
	p := &models.Plan{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Title:       title,
		Description: description,
		Tasks:       cloneTasks(tasks),
		Status:      models.PlanDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.mu.Lock()
	m.plans[p.ID] = p
	m.mu.Unlock()
	return clonePlan(p), nil
}

func (m *MemoryStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePlan(p), nil
}

func (m *MemoryStore) ListPlans(ctx context.Context, sessionID string) ([]*models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Plan
	for _, p := range m.plans {
		if p.SessionID == sessionID {
			out = append(out, clonePlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Transition moves a plan to a new status, rejecting any edge not present
// in validTransitions (e.g. Draft -> Completed, or any move out of a
// terminal status).
func (m *MemoryStore) Transition(ctx context.Context, id string, to models.PlanStatus) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !CanTransition(p.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return clonePlan(p), nil
}

func (m *MemoryStore) UpdateTasks(ctx context.Context, id string, tasks []models.Task) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Tasks = cloneTasks(tasks)
	p.UpdatedAt = time.Now().UTC()
	return clonePlan(p), nil
}

func (m *MemoryStore) DeletePlan(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return ErrNotFound
	}
	delete(m.plans, id)
	return nil
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	copy(out, tasks)
	return out
}

func clonePlan(p *models.Plan) *models.Plan {
	cp := *p
	cp.Tasks = cloneTasks(p.Tasks)
	return &cp
}

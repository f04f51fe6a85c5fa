package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencrabs/opencrabs/pkg/models"
)

// MemoryStore is an in-process Store used for tests and single-shot runs.
// Each session has its own mutex so AppendMessage on one session never
// blocks concurrent work on another, while still serializing appends to
// the same session (I8).
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]*models.Message
	locks    map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		messages: map[string][]*models.Message{},
		locks:    map[string]*sync.Mutex{},
	}
}

func (m *MemoryStore) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *MemoryStore) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	now := time.Now().UTC()
	s := &models.Session{
		ID:         uuid.NewString(),
		Title:      title,
		CreatedAt:  now,
		LastActive: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return cloneSession(s), nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) GetMostRecent(ctx context.Context) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.Session
	for _, s := range m.sessions {
		if best == nil || s.LastActive.After(best.LastActive) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return cloneSession(best), nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	m.mu.RLock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Archived && !opts.IncludeArchived {
			continue
		}
		out = append(out, cloneSession(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })

	if opts.Offset > 0 && opts.Offset < len(out) {
		out = out[opts.Offset:]
	} else if opts.Offset >= len(out) {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	delete(m.locks, id)
	return nil
}

func (m *MemoryStore) UpdateTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Title = title
	return nil
}

func (m *MemoryStore) UpdateModel(ctx context.Context, id, provider, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Provider = provider
	s.Model = model
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, role models.Role, blocks models.Blocks, tokenCount int, cost float64) (*models.Message, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	session.LastActive = time.Now().UTC()
	nextSeq := len(m.messages[sessionID]) + 1
	m.mu.Unlock()

	msg := &models.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Sequence:   nextSeq,
		Role:       role,
		Blocks:     blocks,
		TokenCount: tokenCount,
		Cost:       cost,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	m.mu.Unlock()
	return msg, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[sessionID]
	if limit <= 0 || limit > HardHistoryCap {
		limit = HardHistoryCap
	}
	if len(all) <= limit {
		out := make([]*models.Message, len(all))
		copy(out, all)
		return out, nil
	}
	start := len(all) - limit
	out := make([]*models.Message, limit)
	copy(out, all[start:])
	return out, nil
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

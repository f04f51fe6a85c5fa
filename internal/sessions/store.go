// Package sessions is the Session Service: the persistence façade the
// Agent Loop uses to create/load/list sessions and append messages with a
// strictly contiguous per-session sequence number.
package sessions

import (
	"context"
	"errors"

	"github.com/opencrabs/opencrabs/pkg/models"
)

var (
	ErrNotFound       = errors.New("sessions: not found")
	ErrSessionMissing = errors.New("sessions: session is required")
)

// ListOptions filters Store.List.
type ListOptions struct {
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Store is the Session Service contract (§4.J). AppendMessage must be
// serialized per session so sequence assignment is atomic (I3, I8).
type Store interface {
	CreateSession(ctx context.Context, title string) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetMostRecent(ctx context.Context) (*models.Session, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string) error
	UpdateModel(ctx context.Context, id, provider, model string) error

	// AppendMessage assigns the next contiguous sequence number for
	// sessionID and persists msg under it, returning the stored copy.
	AppendMessage(ctx context.Context, sessionID string, role models.Role, blocks models.Blocks, tokenCount int, cost float64) (*models.Message, error)

	// ListMessages returns oldest-first messages, honouring a hard cap
	// even when limit is 0 or negative.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// HardHistoryCap is the persistence layer's absolute ceiling on how many
// messages a single ListMessages call returns, regardless of the
// requested limit (§4.G transition 1).
const HardHistoryCap = 200

package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/opencrabs/opencrabs/pkg/models"
)

// PostgresStore persists sessions and messages in Postgres (or a
// wire-compatible database such as CockroachDB) via lib/pq, generalized
// from the teacher's CockroachStore to the spec's exact Store interface
// (§4.J). Sequence assignment is serialized with a per-session in-process
// mutex, the same approach sessions/locker.go's LocalLocker takes for its
// in-memory case — a single opencrabs process is always the sole writer,
// so a DB-backed lease lock (the teacher's DBLocker) would only add
// latency without buying anything.
type PostgresStore struct {
	db *sql.DB

	mu       sync.Mutex
	seqLocks map[string]*sync.Mutex
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	sequence INTEGER NOT NULL,
	role TEXT NOT NULL,
	content_text TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(session_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, sequence);
`

// PostgresConfig configures the connection pool. Zero values fall back to
// DefaultPostgresConfig's settings.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig mirrors the teacher's DefaultCockroachConfig pool
// sizing, dropped here to connection-pool concerns only (host/user/db
// selection belongs in the DSN, which the operator supplies directly).
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// OpenPostgresStore opens a connection pool against dsn and ensures the
// schema exists.
func OpenPostgresStore(dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sessions: dsn is required")
	}
	defaults := DefaultPostgresConfig()
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaults.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessions: open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: migrate postgres: %w", err)
	}

	return &PostgresStore{db: db, seqLocks: make(map[string]*sync.Mutex)}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.seqLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.seqLocks[sessionID] = l
	}
	return l
}

func (s *PostgresStore) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	now := time.Now().UTC()
	sess := &models.Session{ID: uuid.NewString(), Title: title, CreatedAt: now, LastActive: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, model, provider, archived, created_at, updated_at) VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		sess.ID, sess.Title, sess.Model, sess.Provider, sess.CreatedAt, sess.LastActive)
	if err != nil {
		return nil, fmt.Errorf("sessions: create: %w", err)
	}
	return sess, nil
}

func scanPGSession(row interface {
	Scan(...any) error
}) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.ID, &s.Title, &s.Model, &s.Provider, &s.Archived, &s.CreatedAt, &s.LastActive); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, model, provider, archived, created_at, updated_at FROM sessions WHERE id = $1`, id)
	sess, err := scanPGSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetMostRecent(ctx context.Context) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, model, provider, archived, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT 1`)
	sess, err := scanPGSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get_most_recent: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := `SELECT id, title, model, provider, archived, created_at, updated_at FROM sessions`
	if !opts.IncludeArchived {
		query += ` WHERE archived = FALSE`
	}
	query += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanPGSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sessions: list scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.mu.Lock()
	delete(s.seqLocks, id)
	s.mu.Unlock()
	return nil
}

func (s *PostgresStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = $1, updated_at = $2 WHERE id = $3`, title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sessions: update_title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateModel(ctx context.Context, id, provider, model string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET provider = $1, model = $2, updated_at = $3 WHERE id = $4`,
		provider, model, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sessions: update_model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage takes the session's in-process sequence lock before
// reading MAX(sequence), guaranteeing strictly contiguous sequence
// assignment even though Postgres itself would happily let two
// concurrent transactions both compute the same next value (I3, I8).
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID string, role models.Role, blocks models.Blocks, tokenCount int, cost float64) (*models.Message, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sessions: append begin: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM messages WHERE session_id = $1`, sessionID).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("sessions: append max sequence: %w", err)
	}
	nextSeq := int(maxSeq.Int64) + 1

	content, err := json.Marshal(blocks)
	if err != nil {
		return nil, fmt.Errorf("sessions: append marshal blocks: %w", err)
	}

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

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, sequence, role, content_text, token_count, cost, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.SessionID, msg.Sequence, string(msg.Role), string(content), msg.TokenCount, msg.Cost, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("sessions: append insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, sessionID); err != nil {
		return nil, fmt.Errorf("sessions: append touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sessions: append commit: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > HardHistoryCap {
		limit = HardHistoryCap
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sequence, role, content_text, token_count, cost, created_at
		 FROM messages WHERE session_id = $1 ORDER BY sequence DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sessions: list_messages: %w", err)
	}
	defer rows.Close()

	var reversed []*models.Message
	for rows.Next() {
		var m models.Message
		var role, content string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sequence, &role, &content, &m.TokenCount, &m.Cost, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sessions: list_messages scan: %w", err)
		}
		m.Role = models.ParseRole(role)
		if err := json.Unmarshal([]byte(content), &m.Blocks); err != nil {
			m.Blocks = models.Blocks{models.TextBlock{Text: content}}
		}
		reversed = append(reversed, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}

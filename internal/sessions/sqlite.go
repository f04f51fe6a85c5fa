package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/opencrabs/opencrabs/pkg/models"
)

// SQLiteStore persists sessions and messages in a local SQLite file via
// the pure-Go modernc.org/sqlite driver — no cgo, matching the single-binary
// distribution story of a terminal agent.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT,
	model TEXT,
	provider TEXT,
	archived INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	sequence INTEGER NOT NULL,
	role TEXT NOT NULL,
	content_text TEXT NOT NULL,
	token_count INTEGER,
	cost REAL,
	created_at TEXT NOT NULL,
	UNIQUE(session_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, sequence);
`

// OpenSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sessions: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	now := time.Now().UTC()
	sess := &models.Session{ID: uuid.NewString(), Title: title, CreatedAt: now, LastActive: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, model, provider, archived, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		sess.ID, sess.Title, sess.Model, sess.Provider, sess.CreatedAt.Format(time.RFC3339Nano), sess.LastActive.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("sessions: create: %w", err)
	}
	return sess, nil
}

func scanSession(row interface {
	Scan(...any) error
}) (*models.Session, error) {
	var s models.Session
	var archived int
	var created, updated string
	if err := row.Scan(&s.ID, &s.Title, &s.Model, &s.Provider, &archived, &created, &updated); err != nil {
		return nil, err
	}
	s.Archived = archived != 0
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	s.LastActive, _ = time.Parse(time.RFC3339Nano, updated)
	return &s, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, model, provider, archived, created_at, updated_at FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetMostRecent(ctx context.Context) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, model, provider, archived, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get_most_recent: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := `SELECT id, title, model, provider, archived, created_at, updated_at FROM sessions`
	if !opts.IncludeArchived {
		query += ` WHERE archived = 0`
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
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sessions: list scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("sessions: update_title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateModel(ctx context.Context, id, provider, model string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET provider = ?, model = ?, updated_at = ? WHERE id = ?`,
		provider, model, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("sessions: update_model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage serializes sequence assignment inside a single transaction:
// SELECT MAX(sequence) FOR the session, then INSERT sequence+1. SQLite's
// single-writer-connection pool (SetMaxOpenConns(1)) makes this safe
// without an additional in-process mutex (I3, I8).
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, role models.Role, blocks models.Blocks, tokenCount int, cost float64) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sessions: append begin: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM messages WHERE session_id = ?`, sessionID).Scan(&maxSeq); err != nil {
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
		`INSERT INTO messages (id, session_id, sequence, role, content_text, token_count, cost, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Sequence, string(msg.Role), string(content), msg.TokenCount, msg.Cost, msg.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("sessions: append insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, msg.CreatedAt.Format(time.RFC3339Nano), sessionID); err != nil {
		return nil, fmt.Errorf("sessions: append touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sessions: append commit: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > HardHistoryCap {
		limit = HardHistoryCap
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sequence, role, content_text, token_count, cost, created_at
		 FROM messages WHERE session_id = ? ORDER BY sequence DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sessions: list_messages: %w", err)
	}
	defer rows.Close()

	var reversed []*models.Message
	for rows.Next() {
		var m models.Message
		var role, content, created string
		var tokenCount sql.NullInt64
		var cost sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sequence, &role, &content, &tokenCount, &cost, &created); err != nil {
			return nil, fmt.Errorf("sessions: list_messages scan: %w", err)
		}
		m.Role = models.ParseRole(role)
		m.TokenCount = int(tokenCount.Int64)
		m.Cost = cost.Float64
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
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

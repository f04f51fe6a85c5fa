package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/opencrabs/opencrabs/pkg/models"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db, seqLocks: make(map[string]*sync.Mutex)}, mock
}

func TestPostgresStoreCreateSession(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(sqlmock.AnyArg(), "standup notes", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := store.CreateSession(context.Background(), "standup notes")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Title != "standup notes" || sess.ID == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreGetSessionNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, title, model, provider, archived, created_at, updated_at FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "model", "provider", "archived", "created_at", "updated_at"}))

	_, err := store.GetSession(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreAppendMessageAssignsContiguousSequence(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT MAX\(sequence\) FROM messages WHERE session_id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), "sess-1", 3, "user", sqlmock.AnyArg(), 0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sessions SET updated_at`).
		WithArgs(sqlmock.AnyArg(), "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := store.AppendMessage(context.Background(), "sess-1", models.RoleUser, models.Blocks{models.TextBlock{Text: "hi"}}, 0, 0)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Sequence != 3 {
		t.Fatalf("expected sequence 3, got %d", msg.Sequence)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreDeleteSessionClearsSequenceLock(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	store.seqLocks["sess-1"] = &sync.Mutex{}

	mock.ExpectExec(`DELETE FROM sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.seqLocks["sess-1"]; ok {
		t.Fatal("expected sequence lock to be cleared after delete")
	}
}

func TestPostgresStoreDeleteSessionNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteSession(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreSessionLockIsPerSession(t *testing.T) {
	store, _ := newMockPostgresStore(t)

	a := store.sessionLock("sess-a")
	b := store.sessionLock("sess-b")
	if a == b {
		t.Fatal("expected distinct locks for distinct sessions")
	}
	again := store.sessionLock("sess-a")
	if a != again {
		t.Fatal("expected the same lock instance to be reused for the same session")
	}
}

func TestDefaultPostgresConfigFillsZeroFields(t *testing.T) {
	cfg := DefaultPostgresConfig()
	if cfg.MaxOpenConns == 0 || cfg.ConnectTimeout == 0 {
		t.Fatalf("expected non-zero defaults, got %+v", cfg)
	}
	if cfg.ConnMaxLifetime < time.Second {
		t.Fatalf("expected a sane lifetime default, got %v", cfg.ConnMaxLifetime)
	}
}

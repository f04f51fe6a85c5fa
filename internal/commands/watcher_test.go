package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.json")
	if err := os.WriteFile(path, []byte(`[{"name":"one","description":"first"}]`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if len(w.Commands()) != 1 {
		t.Fatalf("expected 1 command from initial load, got %d", len(w.Commands()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`[{"name":"one","description":"first"},{"name":"two","description":"second"}]`), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(w.Commands()) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected watcher to pick up the rewritten file, still have %d commands", len(w.Commands()))
}

func TestWatcherMissingFileIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.json")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("new watcher on missing file: %v", err)
	}
	if len(w.Commands()) != 0 {
		t.Fatalf("expected empty command set, got %d", len(w.Commands()))
	}
}

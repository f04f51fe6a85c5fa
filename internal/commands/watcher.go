package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultWatchDebounce coalesces the burst of Write/Create/Rename events a
// single save can produce into one reload.
const defaultWatchDebounce = 250 * time.Millisecond

// Watcher keeps an in-memory, fsnotify-refreshed cache of commands.json so
// the Prompt Builder never blocks a turn on disk I/O: Build() calls
// Commands() instead of LoadUserCommands() directly, and a background
// goroutine reloads the cache the moment the operator edits the file
// (§4.E/§6 — reload is event-driven, not polled).
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	cached   []UserCommand
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWatcher creates a Watcher over path (a workspace's commands.json). The
// initial cache is populated immediately via LoadUserCommands so Commands()
// is usable before Start is called.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, debounce: defaultWatchDebounce, logger: logger}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Commands returns the most recently loaded command set. Safe for
// concurrent use with Start's background reloads.
func (w *Watcher) Commands() []UserCommand {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cached
}

func (w *Watcher) reload() error {
	cmds, err := LoadUserCommands(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.cached = cmds
	w.mu.Unlock()
	return nil
}

// Start watches the directory containing path (fsnotify cannot watch a
// not-yet-existing file directly, so the directory is watched and events
// are filtered by basename — the same approach the teacher's skills
// manager uses for its eligible-skill directories). Start is a no-op if
// already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(watchCtx, fw)
	return nil
}

// Close stops the background watch goroutine, if running.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	var err error
	if fw != nil {
		err = fw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()

	target := filepath.Base(w.path)
	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if err := w.reload(); err != nil && !os.IsNotExist(err) {
				w.logger.Warn("commands.json reload failed", "path", w.path, "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				scheduleReload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("commands.json watch error", "error", err)
		}
	}
}

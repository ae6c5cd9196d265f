package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sameehj/scriptguard/pkg/report"
	"github.com/sameehj/scriptguard/pkg/scan"
)

const debounceDelay = 300 * time.Millisecond

// Handler receives the report for every re-validated script.
type Handler func(*report.Report)

// Watcher re-validates scripts under a directory tree as they change.
type Watcher struct {
	scanner *scan.Scanner
	path    string
	handler Handler
	delay   time.Duration
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]*time.Timer
	logger  *slog.Logger
}

func New(scanner *scan.Scanner, path string, handler Handler) *Watcher {
	return &Watcher{
		scanner: scanner,
		path:    path,
		handler: handler,
		delay:   debounceDelay,
		pending: make(map[string]*time.Timer),
	}
}

func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.logger = logger
}

// Start blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	defer w.stopPending()
	if err := w.addRecursive(w.path); err != nil {
		_ = watcher.Close()
		return err
	}
	w.logInfo("watch_started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
					continue
				}
			}
			if shouldRescan(event) {
				w.schedule(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logError("watcher_error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func shouldRescan(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.rescan(path)
	})
}

func (w *Watcher) rescan(path string) {
	r, err := w.scanner.ScanCandidate(path)
	if err != nil {
		if !errors.Is(err, scan.ErrNotScript) && !errors.Is(err, os.ErrNotExist) {
			w.logError("script_rescan_failed", "path", path, "error", err)
		}
		return
	}
	w.logInfo("script_rescanned", "path", path, "valid", r.Valid)
	if w.handler != nil {
		w.handler(r)
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) logInfo(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *Watcher) logError(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Error(msg, args...)
	}
}

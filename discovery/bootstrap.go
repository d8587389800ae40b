package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/arin-halvorsen/scoped/errs"
)

// Watcher live-reloads a registry's local scope catalog from a directory of
// *.scope files: an initial Scan followed by an fsnotify watch that
// re-registers a file on create/write and removes the scope on delete.
type Watcher struct {
	fsw *fsnotify.Watcher
	dir string
	reg Registrar
	log *slog.Logger
}

// Bootstrap performs the initial directory scan and returns a Watcher ready
// to be run in the background via Run. The caller owns the Watcher's
// lifetime and must call Close when done.
func Bootstrap(dir string, reg Registrar, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := Scan(dir, reg, log); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("discovery: bootstrap %s: %w: %v", dir, errs.ErrResourceError, err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("discovery: watch %s: %w: %v", dir, errs.ErrResourceError, err)
	}

	return &Watcher{fsw: fsw, dir: dir, reg: reg, log: log}, nil
}

// Run processes filesystem events until ctx is cancelled or Close is
// called. Intended to run on its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("discovery: watch error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".scope") {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if err := registerScopeFile(event.Name, w.reg); err != nil {
			w.log.Warn("discovery: reload failed", "path", event.Name, "error", err)
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		scopeID := strings.TrimSuffix(filepath.Base(event.Name), ".scope")
		w.reg.RemoveLocalScope(scopeID)
	}
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"finch/internal/observability"
)

// Watcher watches the YAML config file (and, optionally, the permission
// store file) for external edits and reloads the config on change,
// notifying subscribers with the freshly parsed Config. Grounded on
// SPEC_FULL.md §11's wiring of github.com/fsnotify/fsnotify for config
// hot-reload; the teacher does not hot-reload config, so the watch loop
// itself is modeled on the same select-on-channels shape used throughout
// this repo's cancellation-aware loops (internal/agentloop, internal/brain).
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *observability.Logger

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewWatcher opens an fsnotify watch on path's containing directory
// (watching the directory, not the file, survives editors that replace
// the file via rename-on-save rather than in-place write).
func NewWatcher(path string, logger *observability.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir, err := ConfigDir(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Watcher{path: path, watcher: fw, logger: logger}, nil
}

// OnReload registers fn to be called with the newly loaded Config each
// time the watched file changes and reparses successfully. A failed
// reparse is logged and the previous config remains in effect.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Run blocks, dispatching reload events until ctx is cancelled or the
// underlying watcher errors fatally.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "config: watch error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn(ctx, "config: reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.logger.Info(ctx, "config: reloaded", "path", w.path)

	w.mu.Lock()
	listeners := append([]func(*Config){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

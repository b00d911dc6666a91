package shape

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"noetic/internal/logging"
)

// Watcher reloads a Registry's catalog whenever its backing YAML file
// changes, debouncing rapid successive writes from an editor's save
// sequence. Adapted from codenerd's internal/core.MangleWatcher, which
// debounces .mg rule-file edits the same way; here it watches one
// shapes file instead of a directory of rule files.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	registry *Registry
	path     string
	debounce time.Duration
	lastLoad time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher constructs a Watcher for path, reloading into registry.
func NewWatcher(path string, registry *Registry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		registry: registry,
		path:     path,
		debounce: 300 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start loads path once, then watches its parent directory for further
// writes, non-blocking (runs its loop in a goroutine until ctx is done
// or Stop is called).
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.reload(); err != nil {
		logging.Get(logging.CategoryShape).Warnw("initial shape catalog load failed", "path", w.path, "error", err)
	}

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop terminates the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			if time.Since(w.lastLoad) < w.debounce {
				w.mu.Unlock()
				continue
			}
			w.lastLoad = time.Now()
			w.mu.Unlock()
			if err := w.reload(); err != nil {
				logging.Get(logging.CategoryShape).Warnw("shape catalog reload failed", "path", w.path, "error", err)
			} else {
				logging.Get(logging.CategoryShape).Infow("shape catalog reloaded", "path", w.path)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryShape).Warnw("shape watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	return w.registry.Load(data)
}

// Package watch re-runs a callback whenever a model file changes on disk.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher monitors a single model file. Editors typically replace files by
// rename or rewrite them in bursts, so it watches the containing directory
// and debounces events before invoking the callback.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	dir         string
	base        string
	debounceDur time.Duration
	pending     *time.Time
	onChange    func(ctx context.Context)
	logger      *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New creates a watcher for path. onChange runs after writes to the file
// settle; it is never invoked concurrently with itself.
func New(path string, logger *zap.Logger, onChange func(ctx context.Context)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		path:        abs,
		dir:         filepath.Dir(abs),
		base:        filepath.Base(abs),
		debounceDur: 500 * time.Millisecond,
		onChange:    onChange,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching model file", zap.String("path", w.path))

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.base {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.logger.Debug("model file event", zap.String("op", event.Op.String()))

	now := time.Now()
	w.mu.Lock()
	w.pending = &now
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if w.pending == nil || time.Since(*w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = nil
	w.mu.Unlock()

	w.onChange(ctx)
}

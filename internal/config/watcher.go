package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FlowEvent represents a flow file change event.
type FlowEvent struct {
	Path  string
	Flow  *Flow
	Error error
}

// Watcher monitors a single flow file for changes.
//
// It watches the parent directory rather than the file itself so that
// editors which replace the file on save are still picked up.
type Watcher struct {
	loader   *Loader
	path     string
	watcher  *fsnotify.Watcher
	events   chan FlowEvent
	debounce time.Duration
	mu       sync.RWMutex
	current  *Flow
	stopOnce sync.Once
}

// NewWatcher creates a new flow file watcher.
func NewWatcher(loader *Loader, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		loader:   loader,
		path:     abs,
		watcher:  fsWatcher,
		events:   make(chan FlowEvent, 10),
		debounce: 100 * time.Millisecond,
	}, nil
}

// SetDebounce changes how long the file must be quiet before it is reloaded.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Events returns the channel that receives flow change events.
func (w *Watcher) Events() <-chan FlowEvent {
	return w.events
}

// Start loads the flow once and begins watching for changes.
func (w *Watcher) Start(ctx context.Context) error {
	flow, err := w.loader.LoadAndValidate(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = flow
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	go w.run(ctx)
	return nil
}

// Stop closes the watcher and cleans up resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}

// Current returns the most recently loaded valid flow.
func (w *Watcher) Current() *Flow {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	var pending time.Time
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.Now()
			} else if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				pending = time.Time{}
				w.emit(ctx, FlowEvent{
					Path:  w.path,
					Error: fmt.Errorf("flow file removed: %s", w.path),
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.emit(ctx, FlowEvent{Path: w.path, Error: err})

		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) >= w.debounce {
				pending = time.Time{}
				w.handleUpdate(ctx)
			}
		}
	}
}

func (w *Watcher) handleUpdate(ctx context.Context) {
	flow, err := w.loader.LoadAndValidate(w.path)
	if err != nil {
		w.emit(ctx, FlowEvent{
			Path:  w.path,
			Error: fmt.Errorf("failed to reload flow %s: %w", w.path, err),
		})
		return
	}

	w.mu.Lock()
	w.current = flow
	w.mu.Unlock()

	w.emit(ctx, FlowEvent{Path: w.path, Flow: flow})
}

func (w *Watcher) emit(ctx context.Context, ev FlowEvent) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

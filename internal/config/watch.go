package config

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce mirrors watcher.DefaultDebounce: a config file
// save often fires several fsnotify events in quick succession (write,
// then a chmod from the editor), so events within this window collapse
// to one.
const DefaultWatchDebounce = 100 * time.Millisecond

// Watcher recursively watches a config directory and emits a debounced
// notification each time any file under it changes, for the CLI's `loom
// watch` convenience subcommand. It never reloads a live Registry itself
// — per spec.md §3 a Registry is immutable once loaded — the caller
// decides what "reload" means (typically: re-run Load, build a fresh
// Registry, and start a new workflow run).
//
// Grounded on core/search/watcher/fsnotify.go's FSWatcher, trimmed to a
// single directory tree with no glob-based exclusion (a config directory
// has no build artifacts or vendor trees to skip) and no FileOperation
// classification (a caller of `loom watch` only cares that something
// changed, not what kind of change).
type Watcher struct {
	watcher *fsnotify.Watcher
	eventCh chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	debounce time.Duration
}

// NewWatcher creates a Watcher rooted at dir, recursively adding every
// subdirectory (including dir/skills/<id>) to the underlying fsnotify
// watcher.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	w := &Watcher{watcher: fw, eventCh: make(chan struct{}, 1), debounce: debounce}
	if err := w.addRecursive(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Start runs the debounced event loop until ctx is cancelled or Close is
// called, and returns the channel notifications arrive on. The channel
// is closed when the loop stops.
func (w *Watcher) Start(ctx context.Context) <-chan struct{} {
	go func() {
		defer close(w.eventCh)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				_ = event
				w.scheduleNotify()
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w.eventCh
}

func (w *Watcher) scheduleNotify() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.eventCh <- struct{}{}:
		default:
		}
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// Package watch re-runs lessons when their files change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lessonrun/internal/lesson"
	"lessonrun/internal/logging"
)

// DefaultDebounce is how long a file must be quiet before a re-run.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc receives one settled batch of changed lesson files, sorted.
type ChangeFunc func(ctx context.Context, changed []string)

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// Tick is how often settled events are collected. Defaults to a
	// quarter of Debounce.
	Tick time.Duration
}

// Stats counts watcher activity.
type Stats struct {
	Created       int
	Modified      int
	Deleted       int
	Batches       int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches lesson inputs (files or directory trees) and reports
// debounced batches of changes.
type Watcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	roots    []string
	onChange ChangeFunc
	pending  map[string]time.Time
	debounce time.Duration
	tick     time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stats    Stats
}

// New creates a watcher for paths. Nothing is watched until Start.
func New(paths []string, opts Options, onChange ChangeFunc) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: nil change callback")
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Tick <= 0 {
		opts.Tick = opts.Debounce / 4
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		roots:    append([]string(nil), paths...),
		onChange: onChange,
		pending:  make(map[string]time.Time),
		debounce: opts.Debounce,
		tick:     opts.Tick,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start registers the inputs and begins the event loop in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addRoot(root); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			w.watcher.Close()
			return err
		}
	}
	go w.run(ctx)
	return nil
}

// addRoot watches a directory tree, or the directory holding a file.
func (w *Watcher) addRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		logging.WatchDebug("watching %s", path)
		return w.watcher.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// Stop ends the event loop and releases the underlying watcher.
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
		logging.WatchError("closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

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
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("%v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !skipDir(filepath.Base(ev.Name)) {
			if err := w.addRoot(ev.Name); err != nil {
				logging.WatchError("watch new dir %s: %v", ev.Name, err)
			}
			return
		}
	}
	if _, ok := lesson.LanguageForPath(ev.Name); !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case ev.Op&fsnotify.Create != 0:
		w.stats.Created++
	case ev.Op&fsnotify.Write != 0:
		w.stats.Modified++
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.stats.Deleted++
	default:
		return
	}
	logging.WatchDebug("%s %s", ev.Op, ev.Name)
	w.stats.LastEventPath = ev.Name
	w.stats.LastEventTime = time.Now()
	w.pending[ev.Name] = time.Now()
}

// flush hands every path quiet for the debounce window to onChange as
// one batch.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var batch []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			batch = append(batch, path)
			delete(w.pending, path)
		}
	}
	if len(batch) > 0 {
		w.stats.Batches++
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	sort.Strings(batch)
	logging.Watch("%d lesson file(s) changed", len(batch))
	w.onChange(ctx, batch)
}

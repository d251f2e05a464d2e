package watcher

import (
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

/*
The watcher turns raw filesystem notifications into the one event stream the
coordinator can trust: debounced (an editor autosave burst collapses into a
single event per settle window) and free of echoes (the coordinator stamps a
content hash before each of its own writes, and a change that still matches
an unexpired stamp is dropped instead of fed back into regeneration).
*/

// Event reports that an allow-listed file settled after an external change.
type Event struct {
	Path string
}

const stampTTL = 5 * time.Second

type stamp struct {
	hash    [32]byte
	expires time.Time
}

// Watcher observes the generated source files of all open documents.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	events   chan Event

	mu      sync.Mutex
	allowed map[string]bool      // absolute path -> watched
	dirs    map[string]bool      // directories added to fsnotify
	stamps  map[string]stamp     // absolute path -> self-write stamp
	pending map[string]time.Time // absolute path -> last raw event

	done     chan struct{}
	closeOne sync.Once
}

// New creates a watcher. debounce is the settle window; writes arriving
// within it coalesce into one event.
func New(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fs:       fsw,
		debounce: debounce,
		events:   make(chan Event, 64),
		allowed:  make(map[string]bool),
		dirs:     make(map[string]bool),
		stamps:   make(map[string]stamp),
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Allow adds paths to the allow-list and starts watching their directories.
// Paths outside the allow-list are never read and never produce events.
func (w *Watcher) Allow(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		w.allowed[abs] = true

		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create watched dir: %w", err)
		}
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	return nil
}

// Disallow removes paths from the allow-list (e.g. when a document's loop is
// torn down). Directory watches stay; events for disallowed paths are simply
// ignored.
func (w *Watcher) Disallow(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			delete(w.allowed, abs)
			delete(w.pending, abs)
		}
	}
}

// Stamp records the content the coordinator is about to write, so the
// resulting filesystem notification is recognized as self-inflicted.
func (w *Watcher) Stamp(path string, content []byte) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps[abs] = stamp{hash: sha256.Sum256(content), expires: time.Now().Add(stampTTL)}
}

// Events is the debounced change stream.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher and closes the event stream.
func (w *Watcher) Close() error {
	var err error
	w.closeOne.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.events)

	ticker := time.NewTicker(w.debounce / 3)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			if w.allowed[abs] {
				w.pending[abs] = time.Now()
			}
			w.mu.Unlock()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)

		case now := <-ticker.C:
			w.flushSettled(now)
		}
	}
}

// flushSettled emits an event for every pending path whose last raw
// notification is older than the settle window, unless the file content
// still matches a self-write stamp.
func (w *Watcher) flushSettled(now time.Time) {
	w.mu.Lock()
	var settled []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if w.selfInflicted(path) {
			continue
		}
		select {
		case w.events <- Event{Path: path}:
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) selfInflicted(path string) bool {
	w.mu.Lock()
	st, ok := w.stamps[path]
	if ok && time.Now().After(st.expires) {
		delete(w.stamps, path)
		ok = false
	}
	w.mu.Unlock()
	if !ok {
		return false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return sha256.Sum256(content) == st.hash
}

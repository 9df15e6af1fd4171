// Package watcher reports changes to template files and their includes
// with debouncing, for transform --watch.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/t4go/internal/logging"
)

// EventType is the kind of a file change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// ChangeEvent is a change to a watched file.
type ChangeEvent struct {
	Type EventType
	Path string
}

// ChangeHandler receives one debounced batch of changes, sorted by path.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Watcher watches individual files. It watches their directories so that
// editors that save by rename are still seen.
type Watcher struct {
	fs        *fsnotify.Watcher
	debouncer *debouncer
	logger    logging.Logger

	mutex    sync.RWMutex
	files    map[string]bool
	dirs     map[string]bool
	handlers []ChangeHandler
}

// New creates a watcher that groups changes arriving within delay.
func New(delay time.Duration, logger logging.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	return &Watcher{
		fs:        fs,
		debouncer: newDebouncer(delay),
		logger:    logging.OrNop(logger).WithComponent("watcher"),
		files:     make(map[string]bool),
		dirs:      make(map[string]bool),
	}, nil
}

// Watch adds files. Adding a file twice is a no-op.
func (w *Watcher) Watch(paths ...string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	return nil
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// OnChange registers a handler.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.handlers = append(w.handlers, h)
}

// Run delivers changes to the handlers until ctx is done, then closes the
// watcher. Handler errors are logged and do not stop watching.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, err, "file watcher error")
		case events := <-w.debouncer.output:
			w.dispatch(ctx, events)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.debouncer.stop()
	return w.fs.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	w.mutex.RLock()
	watched := w.files[path]
	w.mutex.RUnlock()
	if !watched {
		return
	}
	w.debouncer.add(ChangeEvent{Type: eventType(event.Op), Path: path})
}

func (w *Watcher) dispatch(ctx context.Context, events []ChangeEvent) {
	w.mutex.RLock()
	handlers := append([]ChangeHandler(nil), w.handlers...)
	w.mutex.RUnlock()

	w.logger.Debug(ctx, "files changed", "count", len(events))
	for _, h := range handlers {
		if err := h(ctx, events); err != nil {
			w.logger.Warn(ctx, err, "change handler failed")
		}
	}
}

func eventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

// debouncer groups rapid changes; the last event per path wins.
type debouncer struct {
	delay   time.Duration
	output  chan []ChangeEvent
	mutex   sync.Mutex
	timer   *time.Timer
	pending map[string]ChangeEvent
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		output:  make(chan []ChangeEvent, 10),
		pending: make(map[string]ChangeEvent),
	}
}

func (d *debouncer) add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.pending[event.Path] = event
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(d.pending) == 0 {
		return
	}
	events := make([]ChangeEvent, 0, len(d.pending))
	for _, e := range d.pending {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
		d.pending = make(map[string]ChangeEvent)
	default:
		// Consumer is behind; keep the events for the next flush.
		d.timer = time.AfterFunc(d.delay, d.flush)
	}
}

func (d *debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// TemplateFilter reports whether path looks like a template or include.
func TemplateFilter(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tt", ".t4", ".ttinclude":
		return true
	}
	return false
}

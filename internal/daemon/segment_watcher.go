package daemon

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SegmentWatcher reports segment files as the engine creates them.
// It only observes; recording never depends on it.
type SegmentWatcher struct {
	watcher *fsnotify.Watcher
	match   func(name string) bool
	dirs    map[string]bool
	logger  *zap.Logger
}

// NewSegmentWatcher creates a watcher for files whose base name satisfies match.
func NewSegmentWatcher(match func(name string) bool, logger *zap.Logger) (*SegmentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SegmentWatcher{
		watcher: w,
		match:   match,
		dirs:    make(map[string]bool),
		logger:  logger,
	}, nil
}

// Watch makes dirs the watched set, dropping directories no longer listed.
func (w *SegmentWatcher) Watch(dirs []string) {
	want := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		want[dir] = true
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Debug("cannot watch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.dirs[dir] = true
	}

	for dir := range w.dirs {
		if want[dir] {
			continue
		}
		_ = w.watcher.Remove(dir)
		delete(w.dirs, dir)
	}
}

// Drain discards events and errors already queued, so a new session does
// not inherit what happened before it.
func (w *SegmentWatcher) Drain() {
	for {
		select {
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Events exposes raw filesystem events.
func (w *SegmentWatcher) Events() <-chan fsnotify.Event {
	return w.watcher.Events
}

// Errors exposes watcher errors.
func (w *SegmentWatcher) Errors() <-chan error {
	return w.watcher.Errors
}

// SegmentCreated reports whether ev is the creation of a segment file.
func (w *SegmentWatcher) SegmentCreated(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) {
		return "", false
	}
	if !w.match(filepath.Base(ev.Name)) {
		return "", false
	}
	return ev.Name, true
}

// Close stops watching.
func (w *SegmentWatcher) Close() error {
	return w.watcher.Close()
}

package datasource

import (
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DBSuffixes are the SQLite sidecar files that change with the database.
var DBSuffixes = []string{"-wal", "-shm"}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithSuffixes also reacts to files named path+suffix.
func WithSuffixes(suffixes ...string) WatchOption {
	return func(w *Watcher) {
		for _, s := range suffixes {
			w.names = append(w.names, w.names[0]+s)
		}
	}
}

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger logs watch errors to log.
func WithLogger(log *zap.Logger) WatchOption {
	return func(w *Watcher) { w.log = log }
}

// Watcher monitors one file, and optionally its sidecars, for changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	names    []string
	debounce time.Duration
	log      *zap.Logger
	onChange chan struct{}
	done     chan struct{}
	closeOne sync.Once
	exited   chan struct{}
}

// NewWatcher creates a watcher for path. It watches the parent directory so
// atomic renames and SQLite checkpoint writes are seen.
func NewWatcher(path string, opts ...WatchOption) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	watcher := &Watcher{
		watcher:  w,
		names:    []string{filepath.Base(path)},
		debounce: 100 * time.Millisecond,
		log:      zap.NewNop(),
		onChange: make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(watcher)
	}

	go watcher.loop()
	return watcher, nil
}

// WatchDB watches a clockmail database and its WAL and SHM files.
func WatchDB(dbPath string, opts ...WatchOption) (*Watcher, error) {
	return NewWatcher(dbPath, append([]WatchOption{WithSuffixes(DBSuffixes...)}, opts...)...)
}

// Changes returns a channel that receives a signal when the file changes.
// Bursts of writes coalesce into one signal.
func (w *Watcher) Changes() <-chan struct{} {
	return w.onChange
}

// Close stops the watcher and waits for its goroutine. It is safe to call
// more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOne.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		<-w.exited
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.exited)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !slices.Contains(w.names, filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce: reset timer on each write.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case w.onChange <- struct{}{}:
				default: // already signaled, skip
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watch error", zap.Strings("files", w.names), zap.Error(err))
		}
	}
}

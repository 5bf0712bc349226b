package config

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/panpad/internal/logging"
)

// DefaultDebounce coalesces editor save bursts into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls a handler when the configuration file changes.
//
// The parent directory is watched rather than the file, so editors that
// save by writing a temporary file and renaming it are seen as one change.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	handler  func(path string)
	debounce time.Duration
	logger   *logging.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	closeCh  chan struct{}
	closedWg sync.WaitGroup

	events atomic.Int64
	fired  atomic.Int64
	errors atomic.Int64
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before the handler runs.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *logging.Logger) WatchOption {
	return func(w *Watcher) {
		w.logger = logging.OrNull(l)
	}
}

// NewWatcher starts watching path. The file itself need not exist yet.
func NewWatcher(path string, handler func(path string), opts ...WatchOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		path:     absPath,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   logging.NullLogger,
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watcher. Pending debounced reloads are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}

// WatchStats reports watcher counters.
type WatchStats struct {
	Events int64
	Fired  int64
	Errors int64
}

// Stats returns watcher counters.
func (w *Watcher) Stats() WatchStats {
	return WatchStats{
		Events: w.events.Load(),
		Fired:  w.fired.Load(),
		Errors: w.errors.Load(),
	}
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			w.events.Add(1)
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.errors.Add(1)
			w.logger.Warn("config watch: %v", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	w.fired.Add(1)
	w.logger.Debug("config file changed: %s", w.path)
	w.handler(w.path)
}

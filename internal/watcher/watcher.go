// Package watcher turns a hot folder into conversion jobs: image files that
// appear in the directory are handed to a Handler once writes settle.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// ErrNoHandler is returned when a watcher is created without a handler.
var ErrNoHandler = errors.New("watcher: handler is required")

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Watcher monitors a single directory.
type Watcher struct {
	dir      string
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger
	fs       *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a file is handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New starts watching dir. Call Run to process events.
func New(dir string, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		fs:       fsWatcher,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// IsImage reports whether name looks like a visible image file.
func IsImage(name string) bool {
	base := filepath.Base(name)
	if base == "" || strings.HasPrefix(base, ".") {
		return false
	}
	return imageExts[strings.ToLower(filepath.Ext(base))]
}

// Run processes events until ctx is cancelled, then waits for in-flight
// handlers and closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()

	logger := w.logger.With(slog.String("dir", w.dir))
	logger.Info("watching folder", slog.Duration("debounce", w.debounce))

	ready := make(chan settled)
	done := make(chan struct{})
	pending := newDebouncer(w.debounce, func(s settled) {
		select {
		case ready <- s:
		case <-done:
		}
	})
	var wg sync.WaitGroup

	defer func() {
		close(done)
		pending.stopAll()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("folder watcher stopped")
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsImage(event.Name) {
				continue
			}
			pending.touch(event.Name)

		case s := <-ready:
			if !pending.fire(s) {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := w.handler(ctx, s.name); err != nil {
					logger.Error("failed to handle file",
						slog.String("file", s.name),
						slog.String("error", err.Error()),
					)
				}
			}()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// settled is a quiet-period expiry for one generation of a path's timer.
type settled struct {
	name string
	gen  uint64
}

type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// debouncer tracks the latest timer per path. It is owned by the Run loop
// and must not be shared between goroutines.
type debouncer struct {
	delay   time.Duration
	notify  func(settled)
	gen     uint64
	pending map[string]pendingTimer
}

func newDebouncer(delay time.Duration, notify func(settled)) *debouncer {
	return &debouncer{delay: delay, notify: notify, pending: make(map[string]pendingTimer)}
}

// touch restarts the quiet period for name.
func (d *debouncer) touch(name string) {
	if p, ok := d.pending[name]; ok {
		p.timer.Stop()
	}
	d.gen++
	s := settled{name: name, gen: d.gen}
	d.pending[name] = pendingTimer{
		timer: time.AfterFunc(d.delay, func() { d.notify(s) }),
		gen:   s.gen,
	}
}

// fire reports whether s is the current timer for its path and clears it.
// Expiries from timers that were already replaced are ignored.
func (d *debouncer) fire(s settled) bool {
	p, ok := d.pending[s.name]
	if !ok || p.gen != s.gen {
		return false
	}
	delete(d.pending, s.name)
	return true
}

func (d *debouncer) stopAll() {
	for name, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, name)
	}
}

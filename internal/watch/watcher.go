// Package watch observes a single file for appended content and emits a
// coalesced, payload-less change signal. It does not read the file itself
// — that is internal/tailfile's job — it only tells callers "something
// changed, go look".
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned when a watcher cannot be acquired because the
// underlying notification mechanism is exhausted (e.g. too many open
// inotify watches).
var ErrUnavailable = errors.New("watch: unavailable")

// ErrNotFound is returned when the watched path does not exist at
// acquisition time.
var ErrNotFound = errors.New("watch: file not found")

// Watcher observes one path and signals Changes() when it may have grown.
// Spurious signals are permitted; callers must tolerate them. Release is
// idempotent.
type Watcher interface {
	Changes() <-chan struct{}
	Release()
}

// Mode selects the watcher implementation.
type Mode int

const (
	// ModeNative uses the OS change-notification API (fsnotify).
	ModeNative Mode = iota
	// ModePoll stats the file on a fixed interval. Used as a fallback when
	// native notification is unavailable, or when explicitly configured.
	ModePoll
)

// Options configures watcher acquisition.
type Options struct {
	Mode         Mode
	PollInterval time.Duration
	Logger       *zap.Logger
}

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 2 * time.Second

// Acquire opens a watcher for path. The caller owns the returned Watcher
// and must call Release when done.
func Acquire(path string, opts Options) (Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("watch: stat %s: %w", path, err)
	}

	switch opts.Mode {
	case ModePoll:
		return newPollWatcher(path, opts), nil
	default:
		w, err := newFsnotifyWatcher(path, opts)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// fsnotifyWatcher watches the parent directory of path (the idiom that
// survives file recreation by external tools) and filters events down to
// the watched name, coalescing bursts into single signals.
type fsnotifyWatcher struct {
	path     string
	name     string
	watcher  *fsnotify.Watcher
	signals  chan struct{}
	done     chan struct{}
	loopDone chan struct{}
	closeMu  sync.Mutex
	released bool
	logger   *zap.Logger
}

func newFsnotifyWatcher(path string, opts Options) (*fsnotifyWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	w := &fsnotifyWatcher{
		path:     path,
		name:     filepath.Base(path),
		watcher:  fw,
		signals:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		logger:   opts.Logger,
	}
	go w.loop()
	return w, nil
}

func (w *fsnotifyWatcher) loop() {
	defer close(w.loopDone)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			w.signal()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch: fsnotify error", zap.String("path", w.path), zap.Error(err))
		}
	}
}

func (w *fsnotifyWatcher) signal() {
	select {
	case w.signals <- struct{}{}:
	default:
		// already pending; coalesce
	}
}

func (w *fsnotifyWatcher) Changes() <-chan struct{} { return w.signals }

func (w *fsnotifyWatcher) Release() {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.released {
		return
	}
	w.released = true
	close(w.done)
	_ = w.watcher.Close()
	<-w.loopDone
	close(w.signals)
}

// pollWatcher stats the file on a ticker and signals when size or mtime
// changed since the last check. Used when native notification is
// unavailable or explicitly requested.
type pollWatcher struct {
	path     string
	signals  chan struct{}
	done     chan struct{}
	loopDone chan struct{}
	closeMu  sync.Mutex
	released bool
}

func newPollWatcher(path string, opts Options) *pollWatcher {
	w := &pollWatcher{
		path:     path,
		signals:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	// One stat per interval, paced by a token-bucket limiter rather than a
	// bare ticker so a future shared poller could fold many files onto one
	// limiter without a redesign.
	limiter := rate.NewLimiter(rate.Every(opts.PollInterval), 1)
	go w.loop(limiter)
	return w
}

func (w *pollWatcher) loop(limiter *rate.Limiter) {
	defer close(w.loopDone)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-w.done
		cancel()
	}()
	defer cancel()

	var lastSize int64 = -1
	var lastMod time.Time

	for {
		if err := limiter.Wait(ctx); err != nil {
			return // done was closed
		}

		fi, err := os.Stat(w.path)
		if err != nil {
			continue // transient; next tick retries
		}
		if fi.Size() != lastSize || !fi.ModTime().Equal(lastMod) {
			lastSize = fi.Size()
			lastMod = fi.ModTime()
			w.signal()
		}
	}
}

func (w *pollWatcher) signal() {
	select {
	case w.signals <- struct{}{}:
	default:
	}
}

func (w *pollWatcher) Changes() <-chan struct{} { return w.signals }

func (w *pollWatcher) Release() {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.released {
		return
	}
	w.released = true
	close(w.done)
	<-w.loopDone
	close(w.signals)
}

// Package stream implements the Per-File Stream: the object that owns one
// watched file's watcher and byte offset and fans out newly observed lines
// to every subscribed session.
package stream

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loglens/loglens/internal/metrics"
	"github.com/loglens/loglens/internal/tailfile"
	"github.com/loglens/loglens/internal/watch"
)

// Subscriber is anything a Stream can deliver lines and notices to. A
// ClientSession (internal/session) implements this.
type Subscriber interface {
	// ID uniquely identifies the subscriber within a Stream's subscriber
	// set.
	ID() string
	// DeliverLine is called with each line as it is observed. Delivery is
	// best-effort: if the subscriber can't accept it right now, the line is
	// dropped for that subscriber only.
	DeliverLine(path string, data []byte)
	// DeliverStatus is called once, synchronously with respect to the
	// backfill that precedes it, when the subscriber starts watching path.
	DeliverStatus(message string)
	// DeliverError reports an attach-time failure (NotFound,
	// WatchUnavailable) back to the subscriber that requested it. No
	// backfill or status notice precedes it for that path.
	DeliverError(message string)
}

// Config controls a Stream's behavior.
type Config struct {
	BackfillLines int
	WatchOptions  watch.Options
	Logger        *zap.Logger
}

// Stream owns one file: its watcher, its current read offset, and the set
// of sessions subscribed to it. Offset mutation and subscriber-set reads
// are serialized by mu; mu is never held across a subscriber delivery call.
type Stream struct {
	path   string
	config Config
	logger *zap.Logger

	mu          sync.Mutex
	offset      int64
	subscribers map[string]Subscriber
	watcher     watch.Watcher
	closed      bool

	loopDone chan struct{}
}

// New creates a Stream for path and starts its first subscriber's
// initialization protocol: backfill, status notice, offset install, and
// watcher acquisition. The watcher's change loop starts running
// immediately afterward.
func New(path string, first Subscriber, cfg Config) (*Stream, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lines, offset, err := tailfile.LastLines(path, cfg.BackfillLines)
	if err != nil {
		return nil, err
	}

	w, err := watch.Acquire(path, cfg.WatchOptions)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		path:        path,
		config:      cfg,
		logger:      logger,
		offset:      offset,
		subscribers: map[string]Subscriber{first.ID(): first},
		watcher:     w,
		loopDone:    make(chan struct{}),
	}

	deliverBackfill(first, path, lines)
	first.DeliverStatus("Now watching " + path)

	go s.changeLoop()
	return s, nil
}

// Path returns the file path this Stream owns.
func (s *Stream) Path() string { return s.path }

// AddSubscriber runs the additional-subscriber protocol (spec §4.C): a
// fresh backfill just for sub, independent of the stream's live offset,
// followed by the status notice. The stream's stored offset is untouched.
func (s *Stream) AddSubscriber(sub Subscriber) {
	s.mu.Lock()
	s.subscribers[sub.ID()] = sub
	s.mu.Unlock()

	lines, _, err := tailfile.LastLines(s.path, s.config.BackfillLines)
	if err != nil {
		s.logger.Warn("stream: backfill failed for additional subscriber",
			zap.String("path", s.path), zap.Error(err))
	} else {
		deliverBackfill(sub, s.path, lines)
	}
	sub.DeliverStatus("Now watching " + s.path)
}

// RemoveSubscriber removes sub from the subscriber set and reports whether
// the stream is now empty (and should be torn down by the registry).
func (s *Stream) RemoveSubscriber(id string) (empty bool) {
	s.mu.Lock()
	delete(s.subscribers, id)
	empty = len(s.subscribers) == 0
	s.mu.Unlock()
	return empty
}

// SubscriberCount reports the current number of subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close releases the watcher and stops the change loop. Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.watcher.Release()
	<-s.loopDone
}

// changeLoop serializes all offset advancement: exactly one goroutine ever
// calls tailfile.LinesSince for this stream, so offset only ever moves
// forward.
func (s *Stream) changeLoop() {
	defer close(s.loopDone)
	for range s.watcher.Changes() {
		s.handleChange()
	}
}

func (s *Stream) handleChange() {
	s.mu.Lock()
	offset := s.offset
	s.mu.Unlock()

	start := time.Now()
	lines, newOffset, err := tailfile.LinesSince(s.path, offset)
	metrics.ObserveReadLatency(time.Since(start))
	if err != nil {
		// IO/NotFound: log, skip this cycle, leave offset untouched so the
		// next signal retries from the same point (spec §4.C, §7).
		s.logger.Warn("stream: read failed, skipping cycle",
			zap.String("path", s.path), zap.Error(err))
		metrics.RecordReadError(readErrorKind(err))
		return
	}

	s.mu.Lock()
	if newOffset < offset {
		// The file shrank below the stored offset (truncation/rotation):
		// keep the offset, log, and let the next signal retry.
		s.mu.Unlock()
		s.logger.Warn("stream: file shrank below stored offset, skipping cycle",
			zap.String("path", s.path), zap.Int64("offset", offset), zap.Int64("size", newOffset))
		return
	}
	s.offset = newOffset
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, line := range lines {
		for _, sub := range subs {
			sub.DeliverLine(s.path, line.Data)
		}
	}
	metrics.RecordLinesDelivered(len(lines) * len(subs))
}

func readErrorKind(err error) string {
	if errors.Is(err, tailfile.ErrNotFound) {
		return "not_found"
	}
	return "io"
}

func deliverBackfill(sub Subscriber, path string, lines []tailfile.Line) {
	for _, l := range lines {
		sub.DeliverLine(path, l.Data)
	}
}

// Package registry implements the Subscription Registry: the single
// coordinator of the session-to-path graph and of Per-File Stream
// lifecycles. It creates a Stream on first attach to a path and tears it
// down when its last subscriber departs.
package registry

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/loglens/loglens/internal/metrics"
	"github.com/loglens/loglens/internal/stream"
	"github.com/loglens/loglens/internal/tailfile"
	"github.com/loglens/loglens/internal/watch"
)

// Subscriber is the session-side contract a registry user must satisfy.
// It is the same shape stream.Subscriber requires, re-exported here so
// callers of this package don't need to import internal/stream directly.
type Subscriber = stream.Subscriber

// Config controls streams created by this registry.
type Config struct {
	BackfillLines int
	WatchOptions  watch.Options
	Logger        *zap.Logger
}

// Registry holds the path->Stream map and the session->watched-paths map
// under one mutex, per spec §5's "single mutual-exclusion region" rule.
// Mutations never perform I/O while holding mu: stream creation/teardown
// does its file and watcher work, then the map update is a short critical
// section.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*stream.Stream
	watched map[string]map[string]bool // sessionID -> set of paths
	logger  *zap.Logger
	cfg     Config
	closed  bool
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		streams: make(map[string]*stream.Stream),
		watched: make(map[string]map[string]bool),
		logger:  logger,
		cfg:     cfg,
	}
}

// Attach subscribes session to path. On NotFound or WatchUnavailable it
// delivers an error notice to session and makes no state change, per
// spec §4.D and §7. All other failures are also reported as error
// notices rather than propagated, since attach has no other caller to
// propagate to.
func (r *Registry) Attach(session Subscriber, path string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		session.DeliverError("File not found: " + path)
		metrics.RecordAttachError("not_found")
		return
	}
	s, exists := r.streams[path]
	r.mu.Unlock()

	if exists {
		s.AddSubscriber(session)
		r.recordWatched(session.ID(), path)
		metrics.RecordAttach()
		return
	}

	newStream, err := stream.New(path, session, stream.Config{
		BackfillLines: r.cfg.BackfillLines,
		WatchOptions:  r.cfg.WatchOptions,
		Logger:        r.logger,
	})
	if err != nil {
		session.DeliverError(attachErrorMessage(path, err))
		metrics.RecordAttachError(attachErrorKind(err))
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		newStream.Close()
		return
	}
	// Re-check: another Attach for the same new path may have raced in
	// and already inserted its own stream while newStream was being
	// built unlocked above (spec §3's "exactly one Stream per path").
	// The loser's stream is torn down and session is folded into the
	// winner instead, mirroring the re-check Detach already does for
	// the symmetric teardown race.
	if existing, ok := r.streams[path]; ok {
		r.mu.Unlock()
		newStream.Close()
		existing.AddSubscriber(session)
		r.recordWatched(session.ID(), path)
		metrics.RecordAttach()
		return
	}
	r.streams[path] = newStream
	metrics.SetActiveStreams(len(r.streams))
	r.mu.Unlock()

	r.recordWatched(session.ID(), path)
	metrics.RecordAttach()
}

func attachErrorMessage(path string, err error) string {
	switch {
	case errors.Is(err, tailfile.ErrNotFound):
		return "File not found: " + path
	case errors.Is(err, watch.ErrNotFound):
		return "File not found: " + path
	case errors.Is(err, watch.ErrUnavailable):
		return "Watch unavailable: " + path
	default:
		return "Could not attach: " + path
	}
}

func attachErrorKind(err error) string {
	switch {
	case errors.Is(err, tailfile.ErrNotFound), errors.Is(err, watch.ErrNotFound):
		return "not_found"
	case errors.Is(err, watch.ErrUnavailable):
		return "watch_unavailable"
	default:
		return "io"
	}
}

func (r *Registry) recordWatched(sessionID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths, ok := r.watched[sessionID]
	if !ok {
		paths = make(map[string]bool)
		r.watched[sessionID] = paths
	}
	paths[path] = true
	metrics.SetActiveSessions(len(r.watched))
}

// Detach removes session from path's subscriber set and path from
// session's watched-paths. A no-op, returning no error, if session was
// not subscribed to path (spec §4.D idempotence / Testable Property 6).
// If the stream's subscriber set becomes empty, the stream is torn down.
func (r *Registry) Detach(sessionID, path string) {
	r.mu.Lock()
	s, ok := r.streams[path]
	if paths, ok := r.watched[sessionID]; ok {
		delete(paths, path)
		if len(paths) == 0 {
			delete(r.watched, sessionID)
		}
		metrics.SetActiveSessions(len(r.watched))
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	metrics.RecordDetach()
	empty := s.RemoveSubscriber(sessionID)
	if !empty {
		return
	}

	r.mu.Lock()
	// Re-check under lock: another attach may have raced in and replaced
	// the map entry, or the stream may have already gone empty-and-been-
	// removed by a concurrent Detach for a different session.
	if current, ok := r.streams[path]; ok && current == s {
		delete(r.streams, path)
	}
	metrics.SetActiveStreams(len(r.streams))
	r.mu.Unlock()

	s.Close()
}

// Disconnect detaches session from every path it watches, then removes
// it from the registry, per spec §4.D.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	paths := r.watched[sessionID]
	pathList := make([]string, 0, len(paths))
	for p := range paths {
		pathList = append(pathList, p)
	}
	r.mu.Unlock()

	for _, p := range pathList {
		r.Detach(sessionID, p)
	}

	r.mu.Lock()
	delete(r.watched, sessionID)
	metrics.SetActiveSessions(len(r.watched))
	r.mu.Unlock()
}

// StreamCount reports the number of currently live streams. Used by the
// ambient readiness check.
func (r *Registry) StreamCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Closed reports whether Shutdown has run. Used by the ambient readiness
// check.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Shutdown releases every live stream's watcher and marks the registry
// closed: subsequent Attach calls fail as if the path were not found,
// per spec §5's "idempotent, drops all sessions without sending further
// events" shutdown contract. Sessions themselves are the transport
// layer's responsibility to close; Shutdown only tears down streams.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	streams := make([]*stream.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.streams = make(map[string]*stream.Stream)
	r.watched = make(map[string]map[string]bool)
	r.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}

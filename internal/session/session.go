// Package session implements the Client Session: per-transport state that
// converts inbound control messages into registry calls and converts
// outbound delivery events into transport writes.
package session

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loglens/loglens/internal/ratelimit"
	"github.com/loglens/loglens/internal/stream"
)

// Transport is the boundary this package is decoupled from: whatever sits
// on the other side of a WebSocket, an SSE stream, or a test harness
// implements this to receive outbound events. WriteEvent does not need
// to be safe for concurrent calls with itself — Session serializes its
// own writes — but it must be safe to call from a different goroutine
// than the one that constructed the Session.
type Transport interface {
	// WriteEvent sends one outbound event. A non-nil error means the
	// transport could not accept it; the caller treats the write as a
	// per-message best-effort failure, never as fatal to the session.
	WriteEvent(event Event) error
}

// Registry is the subset of *registry.Registry a Session needs. Declared
// here (rather than imported) to avoid a session<->registry import
// cycle; its Attach signature uses stream.Subscriber directly (rather
// than a locally redeclared interface) so that *registry.Registry's
// method set actually satisfies it — Go interface satisfaction requires
// identical parameter types, and a structurally-identical-but-distinct
// interface type would not match.
type Registry interface {
	Attach(session stream.Subscriber, path string)
	Detach(sessionID, path string)
	Disconnect(sessionID string)
}

// Subscriber is stream.Subscriber, re-exported under this package's name
// for callers that only import internal/session.
type Subscriber = stream.Subscriber

// Event is one outbound message, per spec §6's three event shapes. Type
// selects which of Data/Message is populated; FilePath is set on line
// events only.
type Event struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	Message  string `json:"message,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// inboundMessage is the wire shape of both control message types; Type
// discriminates which field is meaningful.
type inboundMessage struct {
	Type     string `json:"type"`
	FilePath string `json:"filePath"`
}

// Session is one transport connection's core-facing state: its identity,
// its transport handle, and whether it has been closed. The set of paths
// it currently watches is kept by the registry, keyed by ID.
type Session struct {
	id        string
	transport Transport
	logger    *zap.Logger
	limiter   *ratelimit.SessionLimiter

	mu     sync.Mutex
	closed bool
}

// New creates a Session wrapping transport. limiter may be nil to disable
// inbound rate limiting (tests commonly do this).
func New(transport Transport, logger *zap.Logger, limiter *ratelimit.SessionLimiter) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:        uuid.New().String(),
		transport: transport,
		logger:    logger,
		limiter:   limiter,
	}
}

// ID returns the session's unique identity, used as the registry's
// subscriber-set key and as the rate limiter's key.
func (s *Session) ID() string { return s.id }

// DeliverLine implements stream.Subscriber / Subscriber.
func (s *Session) DeliverLine(path string, data []byte) {
	s.write(Event{Type: "line", Data: string(data), FilePath: path})
}

// DeliverStatus implements stream.Subscriber / Subscriber.
func (s *Session) DeliverStatus(message string) {
	s.write(Event{Type: "status", Message: message})
}

// DeliverError implements stream.Subscriber / Subscriber.
func (s *Session) DeliverError(message string) {
	s.write(Event{Type: "error", Message: message})
}

func (s *Session) write(event Event) {
	// mu is held across the transport write so writes never overlap.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// Delivery is best-effort per line (spec §4.E): a transport-write
	// failure drops this one event for this one session and nothing else.
	if err := s.transport.WriteEvent(event); err != nil {
		s.logger.Debug("session: transport write failed, dropping event",
			zap.String("session", s.id), zap.Error(err))
	}
}

// HandleInbound parses one raw control message and dispatches it against
// reg. Unparseable input produces no state change and does not panic; it
// is logged and dropped, per spec §7. Unknown message types are likewise
// logged and dropped.
func (s *Session) HandleInbound(reg Registry, raw []byte) {
	if s.limiter != nil && !s.limiter.Allow(s.id) {
		s.logger.Debug("session: inbound rate limit exceeded, dropping message",
			zap.String("session", s.id))
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Info("session: malformed control message dropped",
			zap.String("session", s.id), zap.Error(err))
		return
	}

	switch msg.Type {
	case "watch":
		reg.Attach(s, msg.FilePath)
	case "unwatch":
		reg.Detach(s.id, msg.FilePath)
	default:
		s.logger.Info("session: unknown control message type dropped",
			zap.String("session", s.id), zap.String("type", msg.Type))
	}
}

// Close runs the disconnect protocol: every watched path is detached via
// reg, the session is marked closed so in-flight deliveries stop writing
// to the transport, and its rate-limit state is released. Idempotent.
func (s *Session) Close(reg Registry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	reg.Disconnect(s.id)
	if s.limiter != nil {
		s.limiter.Forget(s.id)
	}
}

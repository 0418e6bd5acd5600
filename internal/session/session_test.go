package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (f *fakeTransport) WriteEvent(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("write failed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeTransport) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

type fakeRegistry struct {
	mu          sync.Mutex
	attached    []string
	detached    []string
	disconnects []string
}

func (r *fakeRegistry) Attach(sub Subscriber, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = append(r.attached, path)
	sub.DeliverStatus("Now watching " + path)
}

func (r *fakeRegistry) Detach(sessionID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = append(r.detached, path)
}

func (r *fakeRegistry) Disconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects = append(r.disconnects, sessionID)
}

func TestNew_AssignsUniqueID(t *testing.T) {
	s1 := New(&fakeTransport{}, nil, nil)
	s2 := New(&fakeTransport{}, nil, nil)
	assert.NotEmpty(t, s1.ID())
	assert.NotEqual(t, s1.ID(), s2.ID())
}

func TestDeliverLine_WritesLineEvent(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, nil)

	s.DeliverLine("/var/log/app.log", []byte("hello"))

	events := tr.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "line", events[0].Type)
	assert.Equal(t, "hello", events[0].Data)
	assert.Equal(t, "/var/log/app.log", events[0].FilePath)
}

func TestDeliverStatus_WritesStatusEvent(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, nil)

	s.DeliverStatus("Now watching /tmp/x")

	events := tr.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "status", events[0].Type)
	assert.Contains(t, events[0].Message, "Now watching")
}

func TestDeliverError_WritesErrorEvent(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, nil)

	s.DeliverError("File not found: /tmp/x")

	events := tr.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Type)
	assert.Contains(t, events[0].Message, "File not found")
}

func TestDeliverLine_TransportFailureIsDropped(t *testing.T) {
	tr := &fakeTransport{fail: true}
	s := New(tr, nil, nil)

	assert.NotPanics(t, func() { s.DeliverLine("/tmp/x", []byte("line")) })
	assert.Empty(t, tr.Events())
}

func TestHandleInbound_Watch(t *testing.T) {
	tr := &fakeTransport{}
	reg := &fakeRegistry{}
	s := New(tr, nil, nil)

	s.HandleInbound(reg, []byte(`{"type":"watch","filePath":"/var/log/app.log"}`))

	assert.Equal(t, []string{"/var/log/app.log"}, reg.attached)
	events := tr.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "status", events[0].Type)
}

func TestHandleInbound_Unwatch(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(&fakeTransport{}, nil, nil)

	s.HandleInbound(reg, []byte(`{"type":"unwatch","filePath":"/var/log/app.log"}`))

	assert.Equal(t, []string{"/var/log/app.log"}, reg.detached)
}

func TestHandleInbound_MalformedJSON_Dropped(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(&fakeTransport{}, nil, nil)

	assert.NotPanics(t, func() { s.HandleInbound(reg, []byte(`not json`)) })
	assert.Empty(t, reg.attached)
	assert.Empty(t, reg.detached)
}

func TestHandleInbound_UnknownType_Dropped(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(&fakeTransport{}, nil, nil)

	assert.NotPanics(t, func() {
		s.HandleInbound(reg, []byte(`{"type":"frobnicate","filePath":"/tmp/x"}`))
	})
	assert.Empty(t, reg.attached)
	assert.Empty(t, reg.detached)
}

func TestClose_DisconnectsFromRegistry(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(&fakeTransport{}, nil, nil)

	s.Close(reg)

	assert.Equal(t, []string{s.ID()}, reg.disconnects)
}

func TestClose_Idempotent(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(&fakeTransport{}, nil, nil)

	s.Close(reg)
	s.Close(reg)

	assert.Len(t, reg.disconnects, 1)
}

func TestDeliverLine_NoOpAfterClose(t *testing.T) {
	tr := &fakeTransport{}
	reg := &fakeRegistry{}
	s := New(tr, nil, nil)

	s.Close(reg)
	s.DeliverLine("/tmp/x", []byte("too late"))

	assert.Empty(t, tr.Events())
}

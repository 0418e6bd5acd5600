package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_NotFound(t *testing.T) {
	_, err := Acquire(filepath.Join(t.TempDir(), "missing"), Options{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAcquire_NativeSignalsOnAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	w, err := Acquire(path, Options{Mode: ModeNative})
	require.NoError(t, err)
	defer w.Release()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("more\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change signal after append")
	}
}

func TestAcquire_PollSignalsOnAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	w, err := Acquire(path, Options{Mode: ModePoll, PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Release()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("more\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a poll signal after append")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	w, err := Acquire(path, Options{Mode: ModePoll, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	w.Release()
	assert.NotPanics(t, func() { w.Release() })
}

func TestRelease_ClosesChangesChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	w, err := Acquire(path, Options{Mode: ModePoll, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for range w.Changes() {
		}
		close(done)
	}()

	w.Release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Changes() channel was never closed after Release")
	}
}

func TestRelease_ClosesChangesChannel_Native(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	w, err := Acquire(path, Options{Mode: ModeNative})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for range w.Changes() {
		}
		close(done)
	}()

	w.Release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Changes() channel was never closed after Release")
	}
}

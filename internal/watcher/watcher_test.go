package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func collect(t *testing.T, opts ...Option) (*Watcher, chan []protocol.FileEvent) {
	t.Helper()
	ch := make(chan []protocol.FileEvent, 8)
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithDelay(20 * time.Millisecond)}, opts...)
	w, err := New(func(events []protocol.FileEvent) { ch <- events }, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, ch
}

func next(t *testing.T, ch chan []protocol.FileEvent) []protocol.FileEvent {
	t.Helper()
	select {
	case events := <-ch:
		return events
	case <-time.After(3 * time.Second):
		t.Fatal("no file events")
		return nil
	}
}

func TestWatcher_ReportsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))

	w, ch := collect(t, WithGlobs("**/*.go"))
	require.NoError(t, w.WatchRecursive(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("package pkg\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	events := next(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.FileCreated, events[0].Type)
	assert.Equal(t, "a.go", filepath.Base(protocol.URIToFilePath(events[0].URI)))
}

func TestWatcher_CoalescesAndDeletes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	w, ch := collect(t)
	require.NoError(t, w.WatchRecursive(dir))

	require.NoError(t, os.WriteFile(path, []byte("package main\n\n"), 0o644))
	events := next(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.FileChanged, events[0].Type)

	require.NoError(t, os.Remove(path))
	events = next(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.FileDeleted, events[0].Type)
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	dir := t.TempDir()
	w, ch := collect(t, WithGlobs("**/*.go"))
	require.NoError(t, w.WatchRecursive(dir))

	sub := filepath.Join(dir, "internal")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to add the new directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "x.go"), []byte("package internal\n"), 0o644))

	events := next(t, ch)
	assert.Contains(t, Paths(events), filepath.Join(sub, "x.go"))
}

func TestWatcher_QueueRules(t *testing.T) {
	var got []protocol.FileEvent
	w, err := New(func(events []protocol.FileEvent) { got = events }, WithDelay(time.Hour))
	require.NoError(t, err)
	defer w.Close()

	w.queue("/w/a.go", protocol.FileCreated)
	w.queue("/w/a.go", protocol.FileChanged)
	w.queue("/w/b.go", protocol.FileCreated)
	w.queue("/w/b.go", protocol.FileDeleted)
	w.queue("/w/c.go", protocol.FileDeleted)
	w.queue("/w/c.go", protocol.FileCreated)
	w.Flush()

	require.Len(t, got, 2)
	assert.Equal(t, protocol.FileCreated, got[0].Type)
	assert.Equal(t, protocol.FileChanged, got[1].Type)
}

func TestWatcher_Errors(t *testing.T) {
	_, err := New(nil, WithGlobs("[bad"))
	require.Error(t, err)

	w, _ := collect(t)
	assert.ErrorIs(t, w.WatchRecursive(filepath.Join(t.TempDir(), "missing")), ErrPathNotExist)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WatchRecursive(t.TempDir()), ErrClosed)
}

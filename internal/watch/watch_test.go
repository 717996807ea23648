package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesRebuilds(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets"), 0o755))

	var builds atomic.Int32
	rebuilt := make(chan struct{}, 10)
	w := New(root, 50*time.Millisecond, func(ctx context.Context) error {
		builds.Add(1)
		rebuilt <- struct{}{}
		return nil
	}, nil)
	require.NoError(t, w.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "application.js"), []byte{byte(i)}, 0o644))
	}

	select {
	case <-rebuilt:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a rebuild after file changes")
	}
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), builds.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWatcherIgnoresPrefixes(t *testing.T) {
	root := t.TempDir()
	ignored := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(ignored, 0o755))

	w := New(root, 0, func(ctx context.Context) error { return nil }, nil, ignored)
	assert.False(t, w.relevant(event(filepath.Join(ignored, "index.html"))))
	assert.True(t, w.relevant(event(filepath.Join(root, "index.html"))))
	assert.True(t, w.relevant(event(filepath.Join(root, "dist2", "index.html"))))
}

func TestRunWithoutStart(t *testing.T) {
	w := New(t.TempDir(), 0, func(ctx context.Context) error { return nil }, nil)
	assert.Error(t, w.Run(context.Background()))
}

func event(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcherFiresAfterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worlds: {}\n"), 0o644))

	var calls atomic.Int32
	w, err := New(path, zap.NewNop(), func(context.Context) {
		calls.Add(1)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("worlds: {w: {}}\n"), 0o644))

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worlds: {}\n"), 0o644))

	var calls atomic.Int32
	w, err := New(path, zap.NewNop(), func(context.Context) {
		calls.Add(1)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	time.Sleep(time.Second)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worlds: {}\n"), 0o644))

	w, err := New(path, zap.NewNop(), func(context.Context) {})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

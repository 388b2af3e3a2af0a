package sink_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callrec/internal/infra/sink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalFileSink_AppendAndFinalize(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	s := sink.NewLocalFileSink(dir, discardLogger())

	w, err := s.Open(context.Background(), "call_recording_1.pcm")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "call_recording_1.pcm"), w.Location())

	require.NoError(t, w.Append([]byte{1, 2, 3, 4}))
	require.NoError(t, w.Append([]byte{5, 6}))
	assert.EqualValues(t, 6, w.Written())
	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(w.Location())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, data)

	info, err := os.Stat(w.Location())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Error(t, w.Append([]byte{7}), "append after finalize")
	assert.Error(t, w.Finalize(), "second finalize")
}

func TestLocalFileSink_EmptyFinalizeKeepsFile(t *testing.T) {
	s := sink.NewLocalFileSink(t.TempDir(), discardLogger())

	w, err := s.Open(context.Background(), "empty.pcm")
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	info, err := os.Stat(w.Location())
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestLocalFileSink_AbortKeepsCapturedFrames(t *testing.T) {
	s := sink.NewLocalFileSink(t.TempDir(), discardLogger())
	ctx := context.Background()

	w, err := s.Open(ctx, "partial.pcm")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte{9, 9}))
	require.NoError(t, w.Abort())

	data, err := os.ReadFile(w.Location())
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, data)

	empty, err := s.Open(ctx, "nothing.pcm")
	require.NoError(t, err)
	require.NoError(t, empty.Abort())
	_, err = os.Stat(empty.Location())
	assert.True(t, os.IsNotExist(err), "empty aborted file should be removed")
}

func TestLocalFileSink_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taken.pcm"), []byte("x"), 0600))

	_, err := sink.NewLocalFileSink(dir, discardLogger()).Open(context.Background(), "taken.pcm")
	assert.Error(t, err)
}

func TestSharedStorageSink_VisibleOnlyAfterFinalize(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewSharedStorageSink(dir, discardLogger())

	w, err := s.Open(context.Background(), "call_recording_2.pcm")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte{1, 2}))

	_, err = os.Stat(filepath.Join(dir, "call_recording_2.pcm"))
	assert.True(t, os.IsNotExist(err), "artifact must not be visible while pending")
	_, err = os.Stat(filepath.Join(dir, ".pending-call_recording_2.pcm"))
	assert.NoError(t, err, "pending entry should exist")

	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(filepath.Join(dir, "call_recording_2.pcm"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
	_, err = os.Stat(filepath.Join(dir, ".pending-call_recording_2.pcm"))
	assert.True(t, os.IsNotExist(err), "pending entry should be gone")
}

func TestSharedStorageSink_AbortLeavesNothingVisible(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewSharedStorageSink(dir, discardLogger())

	w, err := s.Open(context.Background(), "call_recording_3.pcm")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte{1, 2, 3, 4}))
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSharedStorageSink_DefaultsToDownloads(t *testing.T) {
	s := sink.NewSharedStorageSink("", discardLogger())
	assert.NotEmpty(t, s.Dir())
	assert.Equal(t, "shared", s.Name())
}

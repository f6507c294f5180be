package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const objectNamePattern = `^\d{8}_[0-9a-f-]{36}\.(wav|mp3|m4a|aac)$`

func newTestLocalStore(t *testing.T, maxSize int64) (*LocalStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "recordings")
	s, err := NewLocalStore(dir, maxSize)
	require.NoError(t, err)
	return s, dir
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestLocalStore_SaveAndOpen(t *testing.T) {
	s, dir := newTestLocalStore(t, 0)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	obj, err := s.Save(context.Background(), "sustained_a.WAV", strings.NewReader("RIFF-data"))
	require.NoError(t, err)
	assert.Regexp(t, objectNamePattern, obj.Name)
	assert.True(t, strings.HasPrefix(obj.Name, "20260301_"), "date prefix in %q", obj.Name)
	assert.Equal(t, "uploads/recordings/"+obj.Name, obj.RelPath)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte("RIFF-data"))), obj.Hash)
	assert.FileExists(t, filepath.Join(dir, obj.Name))

	rc, meta, err := s.Open(context.Background(), obj.RelPath)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-data", readAll(t, rc))
	assert.Equal(t, int64(len("RIFF-data")), meta.Size)
}

func TestLocalStore_RejectsUnsupportedExtension(t *testing.T) {
	s, _ := newTestLocalStore(t, 0)
	_, err := s.Save(context.Background(), "notes.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = s.Save(context.Background(), "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrMissingFileName)
}

func TestLocalStore_TooLargeLeavesNothingBehind(t *testing.T) {
	s, dir := newTestLocalStore(t, 16)
	_, err := s.Save(context.Background(), "big.mp3", bytes.NewReader(make([]byte, 64)))
	require.ErrorIs(t, err, ErrFileTooLarge)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected upload leaves no file")
}

func TestLocalStore_OpenMissingIsNotExist(t *testing.T) {
	s, _ := newTestLocalStore(t, 0)
	_, _, err := s.Open(context.Background(), "uploads/recordings/20260101_missing.wav")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalStore_LocalPathStaysInRoot(t *testing.T) {
	s, dir := newTestLocalStore(t, 0)
	for _, rel := range []string{
		"uploads/recordings/a.wav",
		"/var/data/uploads/recordings/a.wav",
		"../../etc/a.wav",
		`uploads\recordings\a.wav`,
	} {
		p, err := s.LocalPath(rel)
		require.NoError(t, err, rel)
		assert.Equal(t, filepath.Join(dir, "a.wav"), p, rel)
	}
	_, err := s.LocalPath("..")
	assert.ErrorIs(t, err, ErrInvalidBlobRefPath)
}

func TestLocalStore_DeleteIsIdempotent(t *testing.T) {
	s, _ := newTestLocalStore(t, 0)
	obj, err := s.Save(context.Background(), "a.m4a", strings.NewReader("abc"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), obj.RelPath))
	assert.NoError(t, s.Delete(context.Background(), obj.RelPath), "second delete")
}

func TestInMemoryBlobStore_RoundTrip(t *testing.T) {
	s := NewInMemoryBlobStore()
	obj, err := s.Save(context.Background(), "clip.aac", strings.NewReader("aac-bytes"))
	require.NoError(t, err)
	rc, _, err := s.Open(context.Background(), obj.RelPath)
	require.NoError(t, err)
	assert.Equal(t, "aac-bytes", readAll(t, rc))

	_, err = s.LocalPath(obj.RelPath)
	assert.ErrorIs(t, err, ErrNotLocal)

	require.NoError(t, s.Delete(context.Background(), obj.RelPath))
	_, _, err = s.Open(context.Background(), obj.RelPath)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	s := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Save(context.Background(), fmt.Sprintf("task_%d.wav", i), strings.NewReader("x"))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len())
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("x.MP3"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("x.ogg"))
}

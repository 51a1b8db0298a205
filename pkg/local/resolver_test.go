package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMapResolver(t *testing.T, files fstest.MapFS, maxBytes int64) *Resolver {
	t.Helper()
	r, err := New(Config{FS: files, MaxBytes: maxBytes})
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newMapResolver(t, fstest.MapFS{
		"logo.png":        {Data: []byte("\x89PNG\r\n\x1a\nlogo"), ModTime: modTime},
		"team/alice.webp": {Data: []byte("webp"), ModTime: modTime},
		"team":            {Mode: fs.ModeDir},
	}, 0)

	a, err := r.Resolve(context.Background(), "logo.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", a.ContentType)
	assert.Equal(t, int64(len("\x89PNG\r\n\x1a\nlogo")), a.Size)
	assert.True(t, a.LastModified.Equal(modTime))
	assert.NotEmpty(t, a.ETag)

	a, err = r.Resolve(context.Background(), "team/alice.webp")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", a.ContentType)
}

func TestResolve_NotFound(t *testing.T) {
	r := newMapResolver(t, fstest.MapFS{
		"logo.png":      {Data: []byte("x")},
		"dir.png/a.png": {Data: []byte("x")},
	}, 0)

	tests := []string{
		"missing.png",
		"dir.png",
		"../logo.png",
		"/logo.png",
		"",
	}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), key)
			assert.True(t, errors.Is(err, ErrLocalNotFound), "got %v", err)
		})
	}
}

func TestResolve_TooLarge(t *testing.T) {
	r := newMapResolver(t, fstest.MapFS{
		"big.jpg": {Data: make([]byte, 64)},
	}, 32)

	_, err := r.Resolve(context.Background(), "big.jpg")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocalNotFound))
}

func TestResolve_CanceledContext(t *testing.T) {
	r := newMapResolver(t, fstest.MapFS{"a.png": {Data: []byte("x")}}, 0)
	r.fsys = slowFS{FS: r.fsys, delay: 200 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "a.png")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_DirRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img", "hero.jpg"), []byte("jpeg"), 0o644))

	r, err := New(Config{Root: dir})
	require.NoError(t, err)

	a, err := r.Resolve(context.Background(), "img/hero.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", a.ContentType)
	assert.Equal(t, []byte("jpeg"), a.Data)
}

func TestNew_InvalidRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Config{Root: file})
	assert.Error(t, err)
}

type slowFS struct {
	fs.FS
	delay time.Duration
}

func (s slowFS) Open(name string) (fs.File, error) {
	time.Sleep(s.delay)
	return s.FS.Open(name)
}

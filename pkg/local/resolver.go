// Package local serves images bundled with the deployment as the last tier
// before a not-found answer.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// ErrLocalNotFound means no bundled copy exists for the key.
var ErrLocalNotFound = errors.New("local asset not found")

const (
	// DefaultTimeout bounds one Resolve call.
	DefaultTimeout = 500 * time.Millisecond

	// DefaultMaxBytes caps a single local file.
	DefaultMaxBytes = 20 * 1024 * 1024
)

// Config holds local resolver settings.
type Config struct {
	// Root directory of the bundled assets, used when FS is nil
	Root string

	// FS overrides Root, mainly for tests
	FS fs.FS

	Timeout  time.Duration
	MaxBytes int64
}

// Resolver reads assets from a read-only file tree.
type Resolver struct {
	fsys     fs.FS
	timeout  time.Duration
	maxBytes int64
	logger   zerolog.Logger
}

// New creates a resolver rooted at cfg.Root or cfg.FS.
func New(cfg Config) (*Resolver, error) {
	fsys := cfg.FS
	if fsys == nil {
		if cfg.Root == "" {
			return nil, fmt.Errorf("local root cannot be empty")
		}
		info, err := os.Stat(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("local root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("local root %s is not a directory", cfg.Root)
		}
		fsys = os.DirFS(cfg.Root)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	return &Resolver{
		fsys:     fsys,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
		logger:   log.With().Str("component", "local").Logger(),
	}, nil
}

type readResult struct {
	asset *asset.Asset
	err   error
}

// Resolve returns the bundled copy of key. key must already be a validated
// object key; fs.ValidPath rejects anything that escapes the root regardless.
func (r *Resolver) Resolve(ctx context.Context, key string) (*asset.Asset, error) {
	if !fs.ValidPath(key) {
		return nil, ErrLocalNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan readResult, 1)
	go func() {
		a, err := r.read(key)
		done <- readResult{asset: a, err: err}
	}()

	select {
	case res := <-done:
		return res.asset, res.err
	case <-ctx.Done():
		r.logger.Warn().Str("path", key).Dur("timeout", r.timeout).Msg("Local read exceeded deadline")
		return nil, fmt.Errorf("local read %s: %w", key, ctx.Err())
	}
}

func (r *Resolver) read(key string) (*asset.Asset, error) {
	f, err := r.fsys.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrLocalNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, ErrLocalNotFound
	}
	if info.Size() > r.maxBytes {
		return nil, fmt.Errorf("local file %s exceeds %d bytes", key, r.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("local file %s exceeds %d bytes", key, r.maxBytes)
	}

	r.logger.Debug().Str("path", key).Int("size", len(data)).Msg("Served local asset")
	return asset.New(data, asset.ContentTypeFor(key), info.ModTime()), nil
}

// Package origin fetches image objects from the remote object-storage origin.
//
// A Client performs exactly one attempt per Fetch call, bounded by its own
// timeout. Retrying and circuit breaking are layered on top by the caller.
//
// Three drivers are available:
//
//   - http: GET <base_url>/<key> against a public bucket or CDN origin
//   - s3: aws-sdk-go-v2 GetObject
//   - minio: minio-go GetObject for S3-compatible stores
//
// Failures are returned as *Error and match one of ErrTimeout, ErrConnection,
// ErrAuth or ErrNotFound with errors.Is.
package origin

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// Client fetches one object from the origin.
type Client interface {
	Fetch(ctx context.Context, key string) (*asset.Asset, error)
}

// Driver names accepted by Config.Driver.
const (
	DriverHTTP  = "http"
	DriverS3    = "s3"
	DriverMinIO = "minio"
)

// DefaultMaxObjectBytes caps the size of a single fetched object.
const DefaultMaxObjectBytes = 20 * 1024 * 1024

// Config holds origin settings for every driver.
type Config struct {
	Driver string

	// Timeout bounds one Fetch call
	Timeout time.Duration

	// MaxObjectBytes rejects larger objects as connection errors
	MaxObjectBytes int64

	// http driver
	BaseURL   string
	UserAgent string

	// s3 and minio drivers
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverHTTP,
		Timeout:        5 * time.Second,
		MaxObjectBytes: DefaultMaxObjectBytes,
		UserAgent:      "image-proxy/1.0",
		Region:         "us-east-1",
		UseSSL:         true,
	}
}

// New creates the client selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverHTTP, "":
		return NewHTTPClient(cfg)
	case DriverS3:
		return NewS3Client(ctx, cfg)
	case DriverMinIO:
		return NewMinIOClient(cfg)
	default:
		return nil, fmt.Errorf("unknown origin driver %q", cfg.Driver)
	}
}

func (c Config) objectKey(key string) string {
	prefix := strings.Trim(c.Prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxObjectBytes <= 0 {
		c.MaxObjectBytes = DefaultMaxObjectBytes
	}
	return c
}

// readBody reads at most limit bytes and fails if the object is larger.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("object exceeds %d bytes", limit)
	}
	return data, nil
}

// contentTypeOf prefers the origin's type unless it is generic.
func contentTypeOf(key, reported string) string {
	if reported != "" && !strings.HasPrefix(reported, "application/octet-stream") && !strings.HasPrefix(reported, "binary/") {
		return reported
	}
	return asset.ContentTypeFor(key)
}

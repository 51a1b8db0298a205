package origin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// HTTPClient fetches objects with a plain GET against a base URL.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// NewHTTPClient creates an HTTP origin client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("origin base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse origin base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("origin base url must be http or https (got %q)", base.Scheme)
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  log.With().Str("component", "origin-http").Logger(),
	}, nil
}

// Fetch performs a single GET for key.
func (c *HTTPClient) Fetch(ctx context.Context, key string) (*asset.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	target := c.baseURL.JoinPath(c.config.objectKey(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, newError(ErrorClassConnection, key, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*")

	c.logger.Debug().
		Str("key", key).
		Str("url", target.Redacted()).
		Msg("Fetching from origin")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(classifyTransportError(ctx, err), key, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		c.logger.Debug().
			Str("key", key).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Origin returned error status")
		return nil, newError(class, key, resp.StatusCode, fmt.Errorf("%s", resp.Status))
	}

	return c.responseToAsset(ctx, key, resp)
}

// responseToAsset converts an origin response into an asset, taking
// Content-Type and Last-Modified from the headers.
func (c *HTTPClient) responseToAsset(ctx context.Context, key string, resp *http.Response) (*asset.Asset, error) {
	data, err := readBody(resp.Body, c.config.MaxObjectBytes)
	if err != nil {
		return nil, newError(classifyTransportError(ctx, err), key, 0, fmt.Errorf("read response body: %w", err))
	}

	var lastModified time.Time
	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if parsed, err := http.ParseTime(lastModStr); err == nil {
			lastModified = parsed
		}
	}

	return asset.New(data, contentTypeOf(key, resp.Header.Get("Content-Type")), lastModified), nil
}

// Package proxy serves resolved images over HTTP.
package proxy

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/metrics"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/pathvalidate"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/resolver"
)

// Route prefixes served by the handler. Both map to the same resolver.
const (
	ImagePrefix    = "/images/proxy/"
	APIImagePrefix = "/api/images/proxy/"
	AdminPrefix    = "/admin/cache/"
)

const (
	cacheControl = "public, max-age=31536000, immutable"
	allowMethods = "GET, HEAD, OPTIONS"
)

// ImageResolver resolves a validated key. *resolver.Resolver implements it.
type ImageResolver interface {
	Resolve(ctx context.Context, path string) (resolver.Result, error)
}

// Purger removes a key from the cache. *cache.Layered implements it.
type Purger interface {
	Delete(ctx context.Context, path string) bool
}

// Config holds handler settings.
type Config struct {
	// AdminToken enables DELETE /admin/cache/{path} when non-empty
	AdminToken string
}

// Handler routes image requests itself, so request paths reach the validator
// unmodified; other paths go to routes registered with Handle.
type Handler struct {
	validator  *pathvalidate.Validator
	resolver   ImageResolver
	recorder   *metrics.Recorder
	purger     Purger
	adminToken string
	routes     *http.ServeMux
	chain      http.Handler
	logger     zerolog.Logger
}

// New creates a handler. purger may be nil when cache purging is not wanted.
func New(validator *pathvalidate.Validator, res ImageResolver, recorder *metrics.Recorder, purger Purger, cfg Config) *Handler {
	if validator == nil {
		validator = pathvalidate.New(pathvalidate.DefaultConfig())
	}
	if recorder == nil {
		recorder = metrics.NewRecorder(nil)
	}

	h := &Handler{
		validator:  validator,
		resolver:   res,
		recorder:   recorder,
		purger:     purger,
		adminToken: cfg.AdminToken,
		routes:     http.NewServeMux(),
		logger:     log.With().Str("component", "proxy").Logger(),
	}
	h.chain = h.withRequestID(h.withRecovery(http.HandlerFunc(h.route)))
	return h
}

// Handle registers a non-image route.
func (h *Handler) Handle(pattern string, handler http.Handler) {
	h.routes.Handle(pattern, handler)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	p := r.URL.EscapedPath()

	switch {
	case strings.HasPrefix(p, APIImagePrefix):
		h.serveImage(w, r, strings.TrimPrefix(p, APIImagePrefix))
	case strings.HasPrefix(p, ImagePrefix):
		h.serveImage(w, r, strings.TrimPrefix(p, ImagePrefix))
	case h.adminEnabled() && strings.HasPrefix(p, AdminPrefix):
		h.servePurge(w, r, strings.TrimPrefix(p, AdminPrefix))
	default:
		h.routes.ServeHTTP(w, r)
	}
}

func (h *Handler) serveImage(w http.ResponseWriter, r *http.Request, raw string) {
	start := time.Now()
	logger := zerolog.Ctx(r.Context())
	setCORS(w, r)

	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.Header().Set("Allow", allowMethods)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	key, err := h.validator.Validate(raw)
	if err != nil {
		var invalid *pathvalidate.InvalidPathError
		if errors.As(err, &invalid) {
			logger.Warn().Str("reason", string(invalid.Reason)).Str("raw_path", invalid.Path).Msg("Rejected image path")
		}
		h.finish(logger, string(resolver.TierNone), "", http.StatusBadRequest, start)
		writeError(w, http.StatusBadRequest, "invalid image path")
		return
	}

	res, err := h.resolver.Resolve(r.Context(), key)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		h.finish(logger, string(resolver.TierNone), key, http.StatusNotFound, start)
		writeError(w, http.StatusNotFound, "image not found")
		return
	case err != nil || res.Asset == nil:
		h.finish(logger, string(res.Tier), key, http.StatusInternalServerError, start)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	a := res.Asset
	header := w.Header()
	header.Set("ETag", a.ETag)
	header.Set("Cache-Control", cacheControl)
	header.Set("X-Image-Tier", string(res.Tier))
	if !a.LastModified.IsZero() {
		header.Set("Last-Modified", a.LastModified.UTC().Format(http.TimeFormat))
	}

	if etagMatches(r.Header.Get("If-None-Match"), a.ETag) {
		h.finish(logger, string(res.Tier), key, http.StatusNotModified, start)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header.Set("Content-Type", a.ContentType)
	header.Set("Content-Length", strconv.FormatInt(int64(len(a.Data)), 10))
	header.Set("X-Content-Type-Options", "nosniff")
	h.finish(logger, string(res.Tier), key, http.StatusOK, start)
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(a.Data); err != nil {
		logger.Debug().Err(err).Str("path", key).Msg("Failed to write response")
	}
}

// finish records and logs a request before its status is written.
func (h *Handler) finish(logger *zerolog.Logger, tier, key string, status int, start time.Time) {
	d := time.Since(start)
	h.recorder.RecordRequest(tier, status, d)

	event := logger.Info()
	if status >= 500 {
		event = logger.Error()
	}
	event.
		Str("path", key).
		Str("tier", tier).
		Int("status", status).
		Dur("duration", d).
		Msg("Image request")
}

func (h *Handler) adminEnabled() bool {
	return h.adminToken != "" && h.purger != nil
}

func (h *Handler) servePurge(w http.ResponseWriter, r *http.Request, raw string) {
	logger := zerolog.Ctx(r.Context())

	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key, err := h.validator.Validate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image path")
		return
	}

	if !h.purger.Delete(r.Context(), key) {
		logger.Info().Str("path", key).Msg("Purge requested for uncached image")
		writeError(w, http.StatusNotFound, "not cached")
		return
	}

	logger.Info().Str("path", key).Msg("Purged cached image")
	w.WriteHeader(http.StatusNoContent)
}

func setCORS(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	if origin := r.Header.Get("Origin"); origin != "" {
		header.Set("Access-Control-Allow-Origin", origin)
	} else {
		header.Set("Access-Control-Allow-Origin", "*")
	}
	header.Add("Vary", "Origin")
	header.Set("Access-Control-Allow-Methods", "GET")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	header.Set("Access-Control-Max-Age", "3600")
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}

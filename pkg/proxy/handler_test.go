package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamjxj/bestitconsultants-sub001/internal/testutil"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/cache"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/circuit"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/local"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/metrics"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/pathvalidate"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/resolver"
)

type testServer struct {
	origin   *testutil.FakeOrigin
	cache    *cache.Layered
	recorder *metrics.Recorder
	handler  *Handler
}

func newTestServer(t *testing.T, files fstest.MapFS, cfg Config) *testServer {
	t.Helper()

	s := &testServer{
		origin:   testutil.NewFakeOrigin(),
		cache:    cache.NewLayered(cache.NewStore(cache.Config{MaxBytes: 1 << 20, TTL: time.Hour}), nil, 0),
		recorder: metrics.NewRecorder(nil),
	}
	if files == nil {
		files = fstest.MapFS{}
	}
	l, err := local.New(local.Config{FS: files})
	require.NoError(t, err)

	breaker := circuit.New(s.origin, circuit.Config{FailureThreshold: 2, Cooldown: time.Minute})
	res := resolver.New(s.cache, breaker, l, s.recorder, resolver.Config{
		RemoteEnabled:   true,
		FallbackEnabled: true,
		RemoteTimeout:   time.Second,
		Retry:           resolver.RetryConfig{MaxRetries: 1, Base: time.Millisecond, MaxBackoff: time.Millisecond},
	})

	s.handler = New(pathvalidate.New(pathvalidate.DefaultConfig()), res, s.recorder, s.cache, cfg)
	return s
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func pngAsset(payload string) *asset.Asset {
	return asset.New([]byte("\x89PNG\r\n\x1a\n"+payload), "image/png",
		time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestServeImage_RemoteThenCache(t *testing.T) {
	s := newTestServer(t, nil, Config{})
	a := pngAsset("logo")
	s.origin.Put("logo.png", a)
	s.origin.SetDelay(20 * time.Millisecond)

	start := time.Now()
	first := s.do(httptest.NewRequest(http.MethodGet, "/images/proxy/logo.png", nil))
	firstDur := time.Since(start)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "remote", first.Header().Get("X-Image-Tier"))
	assert.Equal(t, a.ETag, first.Header().Get("ETag"))
	assert.Equal(t, "image/png", first.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", first.Header().Get("Cache-Control"))
	assert.Equal(t, "Thu, 02 Jan 2025 03:04:05 GMT", first.Header().Get("Last-Modified"))
	assert.Equal(t, a.Data, first.Body.Bytes())

	start = time.Now()
	second := s.do(httptest.NewRequest(http.MethodGet, "/images/proxy/logo.png", nil))
	secondDur := time.Since(start)

	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "cache", second.Header().Get("X-Image-Tier"))
	assert.Equal(t, first.Header().Get("ETag"), second.Header().Get("ETag"))
	assert.Less(t, secondDur, firstDur)
	assert.Less(t, secondDur, 50*time.Millisecond)
	assert.Equal(t, 1, s.origin.Calls())
}

func TestServeImage_APIPrefix(t *testing.T) {
	s := newTestServer(t, fstest.MapFS{"team/bob.webp": {Data: []byte("webp")}}, Config{})

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/images/proxy/team/bob.webp", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local", w.Header().Get("X-Image-Tier"))
	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
}

func TestServeImage_InvalidPathTouchesNoTier(t *testing.T) {
	tests := []string{
		"/images/proxy/../../etc/passwd",
		"/images/proxy/%2e%2e/%2e%2e/etc/passwd.png",
		"/images/proxy/%252e%252e/secret.png",
		"/images/proxy/a/..%5c..%5cwin.ini",
		"/images/proxy/logo.svg",
		"/images/proxy/javascript:alert(1).png",
		"/api/images/proxy/",
	}

	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			s := newTestServer(t, nil, Config{})

			w := s.do(httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid image path", decodeError(t, w))
			assert.NotContains(t, w.Body.String(), "passwd")

			assert.Equal(t, 0, s.origin.Calls())
			assert.Empty(t, s.recorder.Snapshot().Tiers, "no tier may be consulted")
		})
	}
}

func TestServeImage_NotFound(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	w := s.do(httptest.NewRequest(http.MethodGet, "/images/proxy/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "image not found", decodeError(t, w))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServeImage_BreakerOpenFallsBackToLocal(t *testing.T) {
	s := newTestServer(t, fstest.MapFS{"logo.png": {Data: []byte("local-logo")}}, Config{})
	s.origin.FailAll(testutil.OriginError("connection"))

	// Two attempts trip the breaker (threshold 2).
	w := s.do(httptest.NewRequest(http.MethodGet, "/images/proxy/logo.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local", w.Header().Get("X-Image-Tier"))
	calls := s.origin.Calls()

	for i := 0; i < 3; i++ {
		w = s.do(httptest.NewRequest(http.MethodGet, "/images/proxy/logo.png", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "local", w.Header().Get("X-Image-Tier"))
	}
	assert.Equal(t, calls, s.origin.Calls())
}

func TestServeImage_ConditionalGet(t *testing.T) {
	s := newTestServer(t, nil, Config{})
	a := pngAsset("cond")
	s.origin.Put("cond.png", a)

	tests := []struct {
		name        string
		ifNoneMatch string
		want        int
	}{
		{"exact", a.ETag, http.StatusNotModified},
		{"weak", "W/" + a.ETag, http.StatusNotModified},
		{"list", `"other", ` + a.ETag, http.StatusNotModified},
		{"star", "*", http.StatusNotModified},
		{"stale", `"stale"`, http.StatusOK},
		{"none", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/images/proxy/cond.png", nil)
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			w := s.do(req)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, a.ETag, w.Header().Get("ETag"))
			if tt.want == http.StatusNotModified {
				assert.Empty(t, w.Body.Bytes())
			}
		})
	}
}

func TestServeImage_Head(t *testing.T) {
	s := newTestServer(t, nil, Config{})
	s.origin.Put("a.png", pngAsset("head"))

	w := s.do(httptest.NewRequest(http.MethodHead, "/images/proxy/a.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Content-Length"))
	assert.Empty(t, w.Body.Bytes())
}

func TestServeImage_CORS(t *testing.T) {
	s := newTestServer(t, nil, Config{})
	s.origin.Put("a.png", pngAsset("cors"))

	req := httptest.NewRequest(http.MethodGet, "/images/proxy/a.png", nil)
	req.Header.Set("Origin", "https://www.example.com")
	w := s.do(req)

	assert.Equal(t, "https://www.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Equal(t, "GET", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))

	preflight := s.do(httptest.NewRequest(http.MethodOptions, "/images/proxy/a.png", nil))
	assert.Equal(t, http.StatusNoContent, preflight.Code)
	assert.Equal(t, "*", preflight.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeImage_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	w := s.do(httptest.NewRequest(http.MethodPost, "/images/proxy/a.png", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD, OPTIONS", w.Header().Get("Allow"))
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (resolver.Result, error) {
	return resolver.Result{Tier: resolver.TierNone}, resolver.ErrInternal
}

type panickingResolver struct{}

func (panickingResolver) Resolve(context.Context, string) (resolver.Result, error) {
	panic("/srv/secret/path exploded")
}

func TestServeImage_InternalErrors(t *testing.T) {
	tests := []struct {
		name string
		res  ImageResolver
	}{
		{"internal error", failingResolver{}},
		{"panic", panickingResolver{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(nil, tt.res, nil, nil, Config{})
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/proxy/a.png", nil))

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "internal server error", decodeError(t, w))
			assert.NotContains(t, w.Body.String(), "secret")
		})
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, "/images/proxy/missing.png", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := s.do(req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/images/proxy/missing.png", nil)
	req.Header.Set(RequestIDHeader, "bad id\n")
	w = s.do(req)
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.NotEqual(t, "bad id\n", generated)
}

func TestRequestID_InContext(t *testing.T) {
	var seen string
	h := New(nil, nil, nil, nil, Config{})
	h.Handle("/echo", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(RequestIDHeader, "trace-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "trace-1", seen)
}

func TestAdminPurge(t *testing.T) {
	s := newTestServer(t, nil, Config{AdminToken: "s3cret"})
	s.origin.Put("a.png", pngAsset("purge"))

	w := s.do(httptest.NewRequest(http.MethodGet, "/images/proxy/a.png", nil))
	require.Equal(t, "remote", w.Header().Get("X-Image-Tier"))

	unauthorized := httptest.NewRequest(http.MethodDelete, "/admin/cache/a.png", nil)
	assert.Equal(t, http.StatusUnauthorized, s.do(unauthorized).Code)

	purge := httptest.NewRequest(http.MethodDelete, "/admin/cache/a.png", nil)
	purge.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusNoContent, s.do(purge).Code)

	again := httptest.NewRequest(http.MethodDelete, "/admin/cache/a.png", nil)
	again.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusNotFound, s.do(again).Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/images/proxy/a.png", nil))
	assert.Equal(t, "remote", w.Header().Get("X-Image-Tier"))
	assert.Equal(t, 2, s.origin.Calls())
}

func TestAdminPurge_DisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, nil, Config{})

	w := s.do(httptest.NewRequest(http.MethodDelete, "/admin/cache/a.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header, etag string
		want         bool
	}{
		{`"abc"`, `"abc"`, true},
		{`W/"abc"`, `"abc"`, true},
		{`"x", "abc"`, `"abc"`, true},
		{`*`, `"abc"`, true},
		{`"abd"`, `"abc"`, false},
		{``, `"abc"`, false},
		{`"abc"`, ``, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, tt.etag); got != tt.want {
			t.Errorf("etagMatches(%q, %q) = %v, want %v", tt.header, tt.etag, got, tt.want)
		}
	}
}

func TestValidRequestID(t *testing.T) {
	assert.True(t, validRequestID("0b7c6a4e-1d2f-4c3b-9a8e-7f6d5c4b3a21"))
	assert.False(t, validRequestID(""))
	assert.False(t, validRequestID(strings.Repeat("a", 65)))
	assert.False(t, validRequestID("a b"))
}

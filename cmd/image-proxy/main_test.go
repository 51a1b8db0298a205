package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/williamjxj/bestitconsultants-sub001/internal/testutil"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/config"
)

func testConfig(t *testing.T, originURL string) config.Config {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "fallback.png"), testutil.PNG("fallback"), 0o644); err != nil {
		t.Fatalf("Failed to seed fallback asset: %v", err)
	}

	cfg.Fallback.Root = root
	cfg.Cache.CleanupInterval = 0
	cfg.Retry.Base = time.Millisecond
	cfg.Retry.MaxBackoff = 2 * time.Millisecond
	cfg.Breaker.FailureThreshold = 2
	if originURL != "" {
		cfg.Remote.Enabled = true
		cfg.Origin.BaseURL = originURL
		cfg.Remote.Timeout = time.Second
	}
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *app {
	t.Helper()

	reg := prometheus.NewRegistry()
	a, err := newApp(context.Background(), cfg, reg, reg)
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func get(a *app, target string) *http.Response {
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
	return w.Result()
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestImageRequest_EndToEnd(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.SetImage("logo.png", "image/png", testutil.PNG("logo"))

	a := newTestApp(t, testConfig(t, mock.URL()))

	first := get(a, "/images/proxy/logo.png")
	if first.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", first.StatusCode)
	}
	if tier := first.Header.Get("X-Image-Tier"); tier != "remote" {
		t.Errorf("Expected tier remote, got %s", tier)
	}
	etag := first.Header.Get("ETag")
	if etag == "" {
		t.Fatal("Expected ETag header")
	}

	second := get(a, "/api/images/proxy/logo.png")
	if tier := second.Header.Get("X-Image-Tier"); tier != "cache" {
		t.Errorf("Expected tier cache, got %s", tier)
	}
	if second.Header.Get("ETag") != etag {
		t.Errorf("ETag changed between requests: %s vs %s", etag, second.Header.Get("ETag"))
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Expected 1 origin request, got %d", mock.GetRequestCount())
	}
	if ua := mock.LastUserAgent; ua != "image-proxy/1.0" {
		t.Errorf("Expected User-Agent image-proxy/1.0, got %s", ua)
	}
}

func TestImageRequest_FallbackAndNotFound(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	a := newTestApp(t, testConfig(t, mock.URL()))

	resp := get(a, "/images/proxy/fallback.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if tier := resp.Header.Get("X-Image-Tier"); tier != "local" {
		t.Errorf("Expected tier local, got %s", tier)
	}

	resp = get(a, "/images/proxy/nowhere.png")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}

	resp = get(a, "/images/proxy/../../etc/passwd")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestReadyEndpoint(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.SetObject("down.png", testutil.MockObject{StatusCode: http.StatusBadGateway})

	cfg := testConfig(t, mock.URL())
	cfg.Fallback.Enabled = false
	cfg.Retry.MaxRetries = 0
	a := newTestApp(t, cfg)

	t.Run("ready", func(t *testing.T) {
		resp := get(a, "/ready")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}

		var body readyResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode readiness body: %v", err)
		}
		if body.Circuit != "closed" {
			t.Errorf("Expected circuit closed, got %s", body.Circuit)
		}
	})

	t.Run("not_ready_circuit_open", func(t *testing.T) {
		// Two failing requests trip the breaker (threshold 2).
		get(a, "/images/proxy/down.png")
		get(a, "/images/proxy/down.png")

		resp := get(a, "/ready")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})
}

func TestReadyEndpoint_RemoteDisabled(t *testing.T) {
	a := newTestApp(t, testConfig(t, ""))

	resp := get(a, "/ready")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var body readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode readiness body: %v", err)
	}
	if body.Circuit != "disabled" {
		t.Errorf("Expected circuit disabled, got %s", body.Circuit)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t, ""))

	// Serve one request so tier counters exist.
	get(a, "/images/proxy/fallback.png")

	resp := get(a, "/metrics")
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)

	// Just verify we get prometheus output format
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	for _, name := range []string{"imgproxy_tier_requests_total", `imgproxy_cache_misses_total{layer="memory"} 1`} {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestNewApp_InvalidRedisURL(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Cache.RedisURL = "not-a-url"

	reg := prometheus.NewRegistry()
	if _, err := newApp(context.Background(), cfg, reg, reg); err == nil {
		t.Error("Expected error for invalid redis url")
	}
}

func TestNewApp_MissingFallbackRoot(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Fallback.Root = filepath.Join(t.TempDir(), "missing")

	reg := prometheus.NewRegistry()
	if _, err := newApp(context.Background(), cfg, reg, reg); err == nil {
		t.Error("Expected error for missing fallback root")
	}
}

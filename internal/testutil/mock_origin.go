// Package testutil provides test doubles for the image proxy tiers.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockObject defines the response for one object key on the mock origin.
type MockObject struct {
	StatusCode   int
	Body         []byte
	ContentType  string
	LastModified time.Time
	Delay        time.Duration
}

// MockOrigin is a configurable object-storage origin served over HTTP.
type MockOrigin struct {
	server  *httptest.Server
	mu      sync.RWMutex
	objects map[string]MockObject

	// Tracking
	RequestCount  int
	LastUserAgent string
}

// NewMockOrigin creates a new mock origin server. Unknown keys answer 404.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		objects: make(map[string]MockObject),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastUserAgent = r.UserAgent()
		obj, exists := mock.objects[strings.TrimPrefix(r.URL.Path, "/")]
		mock.mu.Unlock()

		if !exists {
			http.NotFound(w, r)
			return
		}

		if obj.Delay > 0 {
			select {
			case <-time.After(obj.Delay):
			case <-r.Context().Done():
				return
			}
		}

		if obj.ContentType != "" {
			w.Header().Set("Content-Type", obj.ContentType)
		}
		if !obj.LastModified.IsZero() {
			w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
		}
		status := obj.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if len(obj.Body) > 0 {
			w.Write(obj.Body)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// SetObject configures the response for key (no leading slash).
func (m *MockOrigin) SetObject(key string, obj MockObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = obj
}

// SetImage configures a 200 response with the given body.
func (m *MockOrigin) SetImage(key string, contentType string, body []byte) {
	m.SetObject(key, MockObject{
		StatusCode:   http.StatusOK,
		Body:         body,
		ContentType:  contentType,
		LastModified: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOrigin) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// PNG returns a tiny body that content sniffing recognises as image/png.
func PNG(payload string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), payload...)
}

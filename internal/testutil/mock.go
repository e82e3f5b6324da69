package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockServer is an httptest server with handlers registered per method
// and path.
type MockServer struct {
	*httptest.Server
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockServer starts a mock server that is closed with the test.
func NewMockServer(t *testing.T) *MockServer {
	ms := &MockServer{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRequest)

	ms.Server = httptest.NewServer(mux)
	t.Cleanup(ms.Close)
	return ms
}

// On registers a handler for a specific method and path.
func (ms *MockServer) On(method, path string, handler http.HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[method+" "+path] = handler
}

// OnJSON registers a handler that returns JSON for a specific method and path.
func (ms *MockServer) OnJSON(method, path string, statusCode int, response any) {
	ms.On(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if response != nil {
			if err := json.NewEncoder(w).Encode(response); err != nil {
				ms.t.Errorf("failed to encode response: %v", err)
			}
		}
	})
}

// Hits returns how often method and path were requested.
func (ms *MockServer) Hits(method, path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.hits[method+" "+path]
}

func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	ms.mu.Lock()
	handler, ok := ms.handlers[key]
	ms.hits[key]++
	ms.mu.Unlock()

	if !ok {
		ms.t.Logf("no handler registered for %s", key)
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

// AssertHeader asserts that a request header has the expected value.
func AssertHeader(t *testing.T, r *http.Request, key, expected string) {
	t.Helper()
	if actual := r.Header.Get(key); actual != expected {
		t.Errorf("expected header %s=%q, got %q", key, expected, actual)
	}
}

// DecodeJSONBody decodes the request body into v.
func DecodeJSONBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Errorf("failed to decode request body: %v", err)
	}
}

// JSONResponse writes status and a JSON body.
func JSONResponse(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		t.Errorf("failed to encode JSON response: %v", err)
	}
}

package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/sparesparrow/mia-sub000/internal/config"
)

func testConfig(t *testing.T, services []config.ServiceConfig) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", HTTPPort: 0, MetricsPort: 0},
		Session: config.SessionConfig{
			ActiveWindow: 30 * time.Minute,
			MaxHistory:   50,
		},
		Workspace: config.WorkspaceConfig{DataDir: t.TempDir()},
		Maintenance: config.MaintenanceConfig{
			SessionCleanupInterval: time.Minute,
			HealthCheckInterval:    time.Minute,
			HealthCheckTimeout:     time.Second,
		},
		Registry: config.RegistryConfig{Services: services},
	}
}

func TestHandleCommandRoutesToHTTPService(t *testing.T) {
	var gotParams map[string]string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotParams)
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	port := backendPort(t, backend.URL)
	cfg := testConfig(t, []config.ServiceConfig{
		{Name: "audio", Host: "127.0.0.1", Port: port, Kind: "http", CallTimeout: time.Second},
	})

	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/command", bytes.NewBufferString(`{"text":"play jazz music by miles davis","user_id":"u1"}`))
	w := httptest.NewRecorder()
	srv.handleCommand(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp commandResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Dispatched {
		t.Fatalf("expected dispatch, response = %q", resp.Response)
	}
	if resp.ServiceUsed != "audio" {
		t.Errorf("service used = %q, want audio", resp.ServiceUsed)
	}
	if gotParams["genre"] != "jazz" {
		t.Errorf("genre = %q, want jazz", gotParams["genre"])
	}
	if gotParams["session_id"] == "" {
		t.Error("expected session_id to be injected")
	}
}

func TestHandleCommandLowConfidenceAsksForClarification(t *testing.T) {
	cfg := testConfig(t, nil)
	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/command", bytes.NewBufferString(`{"text":"banana helicopter parade","user_id":"u1"}`))
	w := httptest.NewRecorder()
	srv.handleCommand(w, req)

	var resp commandResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Dispatched {
		t.Fatal("expected no dispatch for unrecognized command")
	}
}

func TestHandleHealthAndServices(t *testing.T) {
	cfg := testConfig(t, []config.ServiceConfig{
		{Name: "hardware", Host: "127.0.0.1", Port: 9, Kind: "http", CallTimeout: time.Second},
	})
	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	w := httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var healthBody map[string]map[string]string
	if err := json.NewDecoder(w.Body).Decode(&healthBody); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if got, ok := healthBody["services"]["hardware"]; !ok || got == "" {
		t.Fatalf("expected hardware health entry, got %v", healthBody)
	}

	w = httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health?service=hardware", nil))
	var filtered serviceHealth
	if err := json.NewDecoder(w.Body).Decode(&filtered); err != nil {
		t.Fatalf("decode filtered health body: %v", err)
	}
	if filtered.Name != "hardware" {
		t.Errorf("filtered health name = %q, want hardware", filtered.Name)
	}

	w = httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health?service=nonexistent", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown service health status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	srv.handleServices(w, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	services, ok := body["services"].([]any)
	if !ok || len(services) != 1 {
		t.Fatalf("expected 1 service, got %v", body["services"])
	}
}

func TestJWTMiddlewareRejectsMissingToken(t *testing.T) {
	handler := jwtAuthMiddleware("a-very-long-test-secret-value-123456", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestJWTMiddlewareAllowsMetricsUnauthenticated(t *testing.T) {
	called := false
	handler := jwtAuthMiddleware("a-very-long-test-secret-value-123456", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("expected /metrics to bypass auth")
	}
}

func backendPort(t *testing.T, rawURL string) int {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url %q: %v", rawURL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port from %q: %v", rawURL, err)
	}
	return port
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Port = "0"
	cfg.LogLevel = "error"
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "ewers.db")
	cfg.AllowedOrigins = []string{"https://ops.example.org"}
	return cfg
}

func TestModuleGraph(t *testing.T) {
	if err := fx.ValidateApp(Module(testConfig(t)), fx.NopLogger); err != nil {
		t.Fatalf("invalid dependency graph: %v", err)
	}
}

func TestServerLifecycleAndRoutes(t *testing.T) {
	var handler http.Handler
	app := fxtest.New(t, Module(testConfig(t)), fx.NopLogger, fx.Populate(&handler))
	app.RequireStart()
	defer app.RequireStop()

	tests := []struct {
		name   string
		method string
		path   string
		header http.Header
		want   int
	}{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", nil, http.StatusOK},
		{"conversations need a session", http.MethodGet, "/api/v1/conversations", nil, http.StatusUnauthorized},
		{"presence needs a session", http.MethodGet, "/api/v1/presence", nil, http.StatusUnauthorized},
		{"call creation needs a session", http.MethodPost, "/api/v1/calls", nil, http.StatusUnauthorized},
		// public route: rejected for its empty body, not for missing auth
		{"guest access is public", http.MethodPost, "/api/v1/calls/42/guest-access", nil, http.StatusBadRequest},
		{"preflight", http.MethodOptions, "/api/v1/conversations", http.Header{"Origin": {"https://ops.example.org"}}, http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(""))
			for k, v := range tt.header {
				req.Header[k] = v
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestHealthReportsConnections(t *testing.T) {
	var handler http.Handler
	app := fxtest.New(t, Module(testConfig(t)), fx.NopLogger, fx.Populate(&handler))
	defer app.RequireStart().RequireStop()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Data.Status != "healthy" || resp.Data.Connections != 0 {
		t.Errorf("health = %+v", resp)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    string
	}{
		{[]string{"*"}, "https://anywhere.test", "*"},
		{[]string{"https://ops.example.org"}, "https://OPS.example.org", "https://OPS.example.org"},
		{[]string{"https://ops.example.org"}, "https://evil.test", ""},
		{[]string{"https://ops.example.org"}, "", ""},
	}
	for _, tt := range tests {
		if got := allowOrigin(tt.allowed, tt.origin); got != tt.want {
			t.Errorf("allowOrigin(%v, %q) = %q, want %q", tt.allowed, tt.origin, got, tt.want)
		}
	}
}

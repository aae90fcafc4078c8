package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

func testServer(t *testing.T, bearerToken string) *Server {
	t.Helper()
	cfg := &config.Config{API: &config.APIConfig{BearerToken: bearerToken, WSOriginPatterns: []string{"*"}}}
	return NewServer(cfg, nil)
}

func TestNewServer_RegistersRoutes(t *testing.T) {
	s := testServer(t, "")

	want := map[string]string{
		"/liveness":        "GET",
		"/readiness":       "GET",
		"/health":          "GET",
		"/metrics":         "GET",
		"/api/v1/execute":     "POST",
		"/api/v1/runs/:id":    "GET",
		"/api/v1/ws":          "GET",
		"/api/v1/diagnostics": "GET",
	}

	got := make(map[string]string)
	for _, r := range s.echo.Routes() {
		got[r.Path] = r.Method
	}

	for path, method := range want {
		require.Contains(t, got, path, "missing route %s", path)
		assert.Equal(t, method, got[path])
	}
}

func TestLivenessHandler_AlwaysHealthy(t *testing.T) {
	s := testServer(t, "")

	req := httptest.NewRequest("GET", "/liveness", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMetricsHandler_ServesWithNoOptionalDeps(t *testing.T) {
	s := testServer(t, "")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentcore_worker_pool_queue_depth")
}

func TestControlPlaneRoutes_RequireBearerToken(t *testing.T) {
	s := testServer(t, "secret-token")

	req := httptest.NewRequest("GET", "/api/v1/runs/abc", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
}

func TestHealthEndpoints_DoNotRequireBearerToken(t *testing.T) {
	s := testServer(t, "secret-token")

	// /readiness and /health are not checked here: with no Core they skip
	// their dependency probes altogether.
	for _, path := range []string{"/liveness", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		assert.NotEqual(t, 401, rec.Code, "path %s should not require auth", path)
	}
}

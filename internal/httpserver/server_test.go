package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/hamptokr/dragon-dmc/internal/config"
	"github.com/hamptokr/dragon-dmc/internal/health"
	appmetrics "github.com/hamptokr/dragon-dmc/internal/metrics"
	"github.com/hamptokr/dragon-dmc/internal/session"
)

var testCfg = cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	reg := appmetrics.NewRegistry()
	srv := New(testCfg, Routes{
		MetricsPath:    "/metrics",
		MetricsHandler: appmetrics.Handler(reg),
		Ready:          func() bool { return true },
	})

	tests := []struct {
		path string
		code int
	}{
		{path: "/healthz", code: http.StatusOK},
		{path: "/readyz", code: http.StatusOK},
		{path: "/metrics", code: http.StatusOK},
		{path: "/v1/session", code: http.StatusNotFound},
		{path: "/health", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, get(t, srv, tt.path).Code, tt.path)
	}
}

func TestReadyzNotReady(t *testing.T) {
	srv := New(testCfg, Routes{Ready: func() bool { return false }})
	rr := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not-ready", rr.Body.String())
}

func TestSessionStatus(t *testing.T) {
	s := session.New(session.WriterFunc(func([]byte) error { return nil }), session.WithSessionID("rig-1"))
	srv := New(testCfg, Routes{Status: func() any { return s.Stats() }})

	rr := get(t, srv, "/v1/session")
	require.Equal(t, http.StatusOK, rr.Code)
	var got session.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "rig-1", got.SessionID)
	assert.False(t, got.Closed)
}

func TestHealthReport(t *testing.T) {
	status := health.StatusHealthy
	agg := health.NewAggregator(health.CheckerFunc{CheckName: "link", Fn: func(context.Context) health.CheckResult {
		return health.CheckResult{Status: status}
	}})
	srv := New(testCfg, Routes{Health: agg})

	rr := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var rep health.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.Equal(t, health.StatusHealthy, rep.Status)
	assert.Contains(t, rep.Checks, "link")

	status = health.StatusUnhealthy
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/health").Code)
}

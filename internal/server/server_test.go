package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scriptcensus/internal/metrics"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", zap.NewNop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_MetricsExposesFetchCounters(t *testing.T) {
	t.Parallel()

	metrics.ObserveFetch("Success", 0, 10)
	s := New("127.0.0.1:0", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scriptcensus_fetch_attempts_total")
}

func TestServer_StartAndShutdown(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", zap.NewNop())
	addr, err := s.Start()
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "ok"))

	require.NoError(t, s.Shutdown(context.Background()))
	_, err = http.Get("http://" + addr + "/healthz")
	require.Error(t, err)
}

func TestServer_StartFailsOnBadAddr(t *testing.T) {
	t.Parallel()

	s := New("not-an-addr", zap.NewNop())
	_, err := s.Start()
	require.Error(t, err)
}

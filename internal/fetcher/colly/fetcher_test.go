package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

const threeScripts = `<!doctype html>
<html>
<head><script src="/app.js"></script><script>var a = 1;</script></head>
<body><div><p>text</p><script type="application/ld+json">{}</script></div></body>
</html>`

func newTestServer(t *testing.T) (*httptest.Server, *agentRecorder) {
	t.Helper()
	rec := &agentRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("/three", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, threeScripts)
	})
	mux.HandleFunc("/none", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>no scripts here</p></body></html>")
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "<script></script>")
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "<script></script>", http.StatusNotFound)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, "<script></script>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

type agentRecorder struct {
	mu     sync.Mutex
	agents []string
}

func (a *agentRecorder) record(ua string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agents = append(a.agents, ua)
}

func (a *agentRecorder) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.agents) == 0 {
		return ""
	}
	return a.agents[len(a.agents)-1]
}

func TestFetchClassifiesResponses(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	f := New(Config{Timeout: 200 * time.Millisecond}, zap.NewNop())

	tests := []struct {
		path string
		want crawler.ProcessedResult
	}{
		{path: "/three", want: crawler.Succeeded(srv.URL+"/three", 3)},
		{path: "/none", want: crawler.Succeeded(srv.URL+"/none", 0)},
		{path: "/plain", want: crawler.Succeeded(srv.URL+"/plain", 1)},
		{path: "/empty", want: crawler.Succeeded(srv.URL+"/empty", 0)},
		{path: "/missing", want: crawler.Failed(srv.URL + "/missing")},
		{path: "/broken", want: crawler.Failed(srv.URL + "/broken")},
		{path: "/loop", want: crawler.Failed(srv.URL + "/loop")},
		{path: "/slow", want: crawler.Failed(srv.URL + "/slow")},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, err := f.Fetch(context.Background(), srv.URL+tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, got.Validate())
		})
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	t.Parallel()

	srv, rec := newTestServer(t)

	_, err := New(Config{}, zap.NewNop()).Fetch(context.Background(), srv.URL+"/three")
	require.NoError(t, err)
	require.Equal(t, DefaultUserAgent, rec.last())

	_, err = New(Config{UserAgent: "URLChecker/1.0"}, zap.NewNop()).Fetch(context.Background(), srv.URL+"/three")
	require.NoError(t, err)
	require.Equal(t, "URLChecker/1.0", rec.last())
}

func TestFetchTransportFailures(t *testing.T) {
	t.Parallel()

	closed := httptest.NewServer(http.NotFoundHandler())
	refusedURL := closed.URL + "/gone"
	closed.Close()

	f := New(Config{Timeout: time.Second}, zap.NewNop())
	for _, raw := range []string{refusedURL, "not a url", "http://nonexistent.invalid/"} {
		got, err := f.Fetch(context.Background(), raw)
		require.NoError(t, err, raw)
		require.Equal(t, crawler.Failed(raw), got)
	}
}

func TestFetchReturnsErrorWhenCanceled(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	f := New(Config{Timeout: 5 * time.Second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, srv.URL+"/slow")
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestFetchSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	f := New(Config{Timeout: time.Second, PerHostRPS: 10, PerHostBurst: 1}, zap.NewNop())

	start := time.Now()
	for i := 0; i < 3; i++ {
		got, err := f.Fetch(context.Background(), srv.URL+"/none")
		require.NoError(t, err)
		require.Equal(t, crawler.StatusSuccess, got.Status)
	}
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var (
		captured page
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &captured, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusCreated, Body: []byte("<script></script>")})
	require.Equal(t, http.StatusCreated, captured.statusCode)
	require.Equal(t, "<script></script>", string(captured.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
	require.Equal(t, http.StatusBadGateway, captured.statusCode)

	hooks.onError(nil, errors.New("dial"))
	require.EqualError(t, fetchErr, "dial")
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, MaxBodyBytes: 1024}, zap.NewNop())
	ctx := context.Background()
	collector := f.buildCollector(ctx, &page{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.ParseHTTPErrorResponse)
	require.Equal(t, 1024, collector.MaxBodySize)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	n, err := classify(page{statusCode: http.StatusOK, body: []byte("<script></script><SCRIPT></SCRIPT>")})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = classify(page{statusCode: http.StatusMovedPermanently})
	require.Error(t, err)
	_, err = classify(page{})
	require.Error(t, err)
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/emby-exporter/internal/config"
)

const testToken = "token"

// fakeEmby answers just enough of the API for one full poll.
func fakeEmby(t *testing.T, fail *bool, delay time.Duration) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		failing := fail != nil && *fail
		mu.Unlock()
		time.Sleep(delay)
		if failing && r.URL.Path != "/System/Info/Public" {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.URL.Path != "/System/Info/Public" && r.Header.Get("X-Emby-Token") != testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body any
		switch r.URL.Path {
		case "/System/Info/Public":
			body = map[string]any{"ServerName": "media", "Version": "4.8.0.0"}
		case "/System/Info":
			body = map[string]any{"ServerName": "media", "Version": "4.8.0.0", "Id": "abc", "OperatingSystem": "Linux"}
		case "/Devices":
			body = map[string]any{"Items": []map[string]any{{"Name": "TV", "Id": "d1", "AppName": "Emby Theater"}}, "TotalRecordCount": 1}
		case "/Items":
			if r.URL.Query().Get("IncludeItemTypes") == "Movie" {
				body = map[string]any{"Items": []map[string]any{
					{"Id": "m1", "Type": "Movie", "Genres": []string{"Drama"}, "ProductionYear": 1985},
					{"Id": "m2", "Type": "Movie", "Genres": []string{"Crime", "Drama"}, "ProductionYear": 1995},
				}, "TotalRecordCount": 2}
			} else {
				body = map[string]any{"Items": []any{}, "TotalRecordCount": 0}
			}
		case "/Artists":
			body = map[string]any{"Items": []any{}, "TotalRecordCount": 0}
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(upstream string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.EmbyAddr = upstream
	cfg.APIKey = testToken
	cfg.Interface = "127.0.0.1"
	cfg.Port = 0
	cfg.Interval = 50 * time.Millisecond
	cfg.Timeout = 2 * time.Second
	cfg.PollTimeout = 2 * time.Second
	cfg.SkipPreflight = true
	return cfg
}

func TestNew_InvalidUpstream(t *testing.T) {
	cfg := testConfig("ftp://media")
	_, err := New(cfg, Options{Version: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emby address")
}

func TestRun_Once(t *testing.T) {
	srv := fakeEmby(t, nil, 0)
	cfg := testConfig(srv.URL)
	cfg.Once = true

	var out bytes.Buffer
	e, err := New(cfg, Options{Version: "test", Out: &out})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	text := out.String()
	for _, want := range []string{
		`emby_library_size{type="movies"} 2`,
		`emby_library_size{type="albums"} 0`,
		`emby_genres{genres="Drama",type="movies"} 2`,
		`emby_productionyear{productionyear="1995",type="movies"} 1`,
		`emby_exporter_up 1`,
		`emby_exporter_build_info`,
		`# HELP emby_info information about the emby server`,
		`# HELP emby_genres emby genres`,
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "Exit Summary")
}

func TestRun_OnceFetchFails(t *testing.T) {
	fail := true
	srv := fakeEmby(t, &fail, 0)
	cfg := testConfig(srv.URL)
	cfg.Once = true

	var out bytes.Buffer
	e, err := New(cfg, Options{Version: "test", Out: &out})
	require.NoError(t, err)

	err = e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll: fetch")
	assert.Empty(t, out.String())
}

func TestRun_OnceSlowerThanRequestTimeout(t *testing.T) {
	srv := fakeEmby(t, nil, 40*time.Millisecond)
	cfg := testConfig(srv.URL)
	cfg.Once = true
	cfg.Interval = 10 * time.Second
	cfg.PollTimeout = 0                  // follows the interval
	cfg.Timeout = 200 * time.Millisecond // each request fits
	cfg.FetchConcurrency = 1             // six sequential requests do not

	var out bytes.Buffer
	e, err := New(cfg, Options{Version: "test", Out: &out})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	assert.Contains(t, out.String(), `emby_library_size{type="movies"} 2`)
	assert.Contains(t, out.String(), `emby_exporter_up 1`)
}

func TestRun_PreflightFailsOnBusyPort(t *testing.T) {
	srv := fakeEmby(t, nil, 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(srv.URL)
	cfg.SkipPreflight = false
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	var out bytes.Buffer
	e, err := New(cfg, Options{Version: "test", Out: &out})
	require.NoError(t, err)

	err = e.Run(context.Background())
	require.ErrorIs(t, err, ErrPreflightFailed)
	assert.Contains(t, out.String(), "emby_reachable")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	srv := fakeEmby(t, nil, 0)
	cfg := testConfig(srv.URL)

	var out bytes.Buffer
	e, err := New(cfg, Options{Version: "test", Out: &out})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return e.Poller().Status().Polls >= 2
	}, 5*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	e.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `emby_library_size{type="movies"} 2`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Contains(t, out.String(), "emby-exporter Exit Summary")
	assert.Contains(t, out.String(), "emby_library_size")
}

func TestRun_NotReadyWhileUpstreamDown(t *testing.T) {
	fail := true
	srv := fakeEmby(t, &fail, 0)
	cfg := testConfig(srv.URL)

	var out bytes.Buffer
	e, err := New(cfg, Options{Version: "test", Out: &out})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return e.Poller().Status().Failures >= 2
	}, 5*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	e.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	cancel()
	require.NoError(t, <-done)

	summary := out.String()
	assert.Contains(t, summary, "Last Error:")
	assert.True(t, strings.Contains(summary, "poll_cycle_failed"), "warnings section should count failed cycles")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00", formatDuration(0))
	assert.Equal(t, "01:01:01", formatDuration(time.Hour+time.Minute+time.Second))
}

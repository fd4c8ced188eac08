package emby

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

// fakeEmby serves a tiny library from memory.
type fakeEmby struct {
	mu       sync.Mutex
	items    map[string][]Item // keyed by IncludeItemTypes
	artists  []Item
	devices  []Device
	requests []string
	failPath string
	noTotal  bool // omit TotalRecordCount from item pages
}

func newFakeEmby() *fakeEmby {
	return &fakeEmby{
		items: map[string][]Item{
			"Movie": {
				{ID: "m1", Name: "Alien", Type: "Movie", Genres: []string{"Horror", "Science Fiction"}, ProductionYear: 1979, UserData: UserData{Played: true}},
				{ID: "m2", Name: "Heat", Type: "Movie", Genres: []string{"Crime"}, ProductionYear: 1995, UserData: UserData{IsFavorite: true}},
				{ID: "m3", Name: "Ran", Type: "Movie", Genres: []string{"Drama"}, ProductionYear: 1985},
			},
			"Series": {
				{ID: "s1", Name: "The Wire", Type: "Series", Genres: []string{"Crime", "Drama"}, ProductionYear: 2002},
			},
			"MusicAlbum": nil,
			"Episode": {
				{ID: "e1", Type: "Episode"},
			},
			"Audio": nil,
		},
		artists: []Item{{ID: "a1", Name: "Nina Simone", Type: "MusicArtist"}},
		devices: []Device{
			{Name: "Living Room", ID: "d1", LastUserName: "alice", LastUserID: "u1", AppName: "Emby Theater", AppVersion: "3.0.20"},
		},
	}
}

func (f *fakeEmby) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Path)
	f.mu.Unlock()

	if r.URL.Path == f.failPath {
		http.Error(w, "nope", http.StatusInternalServerError)
		return
	}
	if r.URL.Path != "/System/Info/Public" && r.Header.Get("X-Emby-Token") != testToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/System/Info/Public":
		writeJSON(w, map[string]string{"ServerName": "media", "Version": "4.8.0.0"})
	case r.URL.Path == "/System/Info":
		writeJSON(w, SystemInfo{
			ServerName: "media", Version: "4.8.0.0", LocalAddress: "http://10.0.0.2:8096",
			WanAddress: "http://203.0.113.7:8096", ID: "abc123", OperatingSystem: "Linux",
		})
	case r.URL.Path == "/Devices":
		writeJSON(w, itemsResponse[Device]{Items: f.devices, TotalRecordCount: len(f.devices)})
	case r.URL.Path == "/Artists":
		f.page(w, r, f.artists)
	case r.URL.Path == "/Items" || strings.HasSuffix(r.URL.Path, "/Items"):
		f.page(w, r, f.items[r.URL.Query().Get("IncludeItemTypes")])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeEmby) page(w http.ResponseWriter, r *http.Request, all []Item) {
	start, _ := strconv.Atoi(r.URL.Query().Get("StartIndex"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("Limit"))
	end := min(start+limit, len(all))
	if start > end {
		start = end
	}
	if f.noTotal {
		writeJSON(w, map[string]any{"Items": all[start:end]})
		return
	}
	writeJSON(w, itemsResponse[Item]{Items: all[start:end], TotalRecordCount: len(all)})
}

func (f *fakeEmby) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.requests {
		if p == path {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:     srv.URL,
		APIKey:      testToken,
		Timeout:     2 * time.Second,
		PageSize:    2,
		Concurrency: 2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"localhost:8096", "http://localhost:8096", false},
		{"http://emby:8096/", "http://emby:8096", false},
		{"https://emby.example.com/emby", "https://emby.example.com/emby", false},
		{"  10.0.0.2:8096 ", "http://10.0.0.2:8096", false},
		{"", "", true},
		{"ftp://emby:21", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{BaseURL: "emby:8096"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://emby:8096", c.BaseURL())
	assert.Equal(t, 10*time.Second, c.cfg.Timeout)
	assert.Equal(t, 500, c.cfg.PageSize)
	assert.Equal(t, 4, c.cfg.Concurrency)

	_, err = New(Config{BaseURL: "gopher://x"}, nil)
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(newFakeEmby())
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.APIKey = "" })
	got, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "media 4.8.0.0", got)
}

func TestClient_SystemInfo(t *testing.T) {
	srv := httptest.NewServer(newFakeEmby())
	defer srv.Close()

	info, err := newTestClient(t, srv, nil).SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "media", info.ServerName)
	assert.Equal(t, "abc123", info.ID)
	assert.Equal(t, "Linux", info.OperatingSystem)
}

func TestClient_MissingToken(t *testing.T) {
	srv := httptest.NewServer(newFakeEmby())
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.APIKey = "wrong" })
	_, err := c.SystemInfo(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "401")
}

func TestClient_ItemsPaging(t *testing.T) {
	fake := newFakeEmby()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	items, err := newTestClient(t, srv, nil).Items(context.Background(), Category{Label: "movies", ItemType: "Movie"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Alien", items[0].Name)
	assert.Equal(t, "Ran", items[2].Name)
	assert.True(t, items[0].UserData.Played)

	// page size 2, three items
	assert.Equal(t, 2, fake.count("/Items"))
}

func TestClient_ItemsPagingWithoutTotal(t *testing.T) {
	testCases := []struct {
		name     string
		pageSize int
		want     int
		requests int
	}{
		{"short last page", 2, 3, 2},
		{"exact multiple", 3, 3, 2},
		{"single page", 10, 3, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeEmby()
			fake.noTotal = true
			srv := httptest.NewServer(fake)
			defer srv.Close()

			c := newTestClient(t, srv, func(cfg *Config) { cfg.PageSize = tc.pageSize })
			items, err := c.Items(context.Background(), Category{Label: "movies", ItemType: "Movie"})
			require.NoError(t, err)
			assert.Len(t, items, tc.want)
			assert.Equal(t, tc.requests, fake.count("/Items"))
		})
	}
}

func TestClient_ItemsUserEndpoint(t *testing.T) {
	fake := newFakeEmby()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.UserID = "u1" })
	items, err := c.Items(context.Background(), Category{Label: "series", ItemType: "Series"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, fake.count("/Users/u1/Items"))
	assert.Equal(t, 0, fake.count("/Items"))
}

func TestClient_ItemsEmpty(t *testing.T) {
	srv := httptest.NewServer(newFakeEmby())
	defer srv.Close()

	items, err := newTestClient(t, srv, nil).Items(context.Background(), Category{Label: "albums", ItemType: "MusicAlbum"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_Devices(t *testing.T) {
	srv := httptest.NewServer(newFakeEmby())
	defer srv.Close()

	devices, err := newTestClient(t, srv, nil).Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "alice", devices[0].LastUserName)
	assert.Equal(t, "3.0.20", devices[0].AppVersion)
}

func TestClient_Fetch(t *testing.T) {
	tests := []struct {
		name     string
		extended bool
		wantCats []string
	}{
		{"default", false, []string{"movies", "series", "albums", "artists"}},
		{"extended", true, []string{"movies", "series", "albums", "artists", "episodes", "songs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(newFakeEmby())
			defer srv.Close()

			c := newTestClient(t, srv, func(cfg *Config) { cfg.Extended = tt.extended })
			data, err := c.Fetch(context.Background())
			require.NoError(t, err)

			assert.Equal(t, "media", data.Info.ServerName)
			assert.Len(t, data.Devices, 1)
			assert.Len(t, data.Library, len(tt.wantCats))
			for _, cat := range tt.wantCats {
				assert.Contains(t, data.Library, cat)
			}
			assert.Len(t, data.Library["movies"], 3)
			assert.Len(t, data.Library["artists"], 1)
		})
	}
}

func TestClient_FetchFailure(t *testing.T) {
	fake := newFakeEmby()
	fake.failPath = "/Devices"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	data, err := newTestClient(t, srv, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Nil(t, data)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "devices")
}

func TestClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).SystemInfo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(newFakeEmby())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv, nil).Fetch(ctx)
	assert.Error(t, err)
}

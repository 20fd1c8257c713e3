package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"songgrab/internal/app"
	"songgrab/internal/assets"
	"songgrab/internal/core"
	"songgrab/internal/flood"
	"songgrab/internal/search"
	"songgrab/internal/store"
	"songgrab/pkg/musiclink"
)

type fileFetcher struct {
	fail error
}

func (f fileFetcher) FetchToFile(_ context.Context, sourceURL, destination string) (int64, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, err
	}
	return int64(len(sourceURL)), os.WriteFile(destination, []byte(sourceURL), 0o644)
}

type fakeBackend struct {
	root      string
	fetchErr  error
	parseErr  error
	searchErr error

	mu       sync.Mutex
	songs    map[string]core.Song
	parsed   []string
	searched []core.Platform
	cleared  bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	song := core.Song{
		ID:         "186016",
		Platform:   core.PlatformNetease,
		Info:       core.SongInfo{Name: "晴天", Artist: "周杰伦"},
		SourceURL:  "https://cdn.example/a.mp3",
		CoverURL:   "https://img.example/a.jpg",
		LyricsText: "[00:01.00]x",
		Success:    true,
	}
	return &fakeBackend{
		root:  t.TempDir(),
		songs: map[string]core.Song{song.Key(): song},
	}
}

func (f *fakeBackend) Parse(_ context.Context, text string, platform core.Platform, quality string) (*app.ParseResult, error) {
	f.mu.Lock()
	f.parsed = append(f.parsed, string(platform)+"|"+text+"|"+quality)
	f.mu.Unlock()
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return &app.ParseResult{Platform: platform, IDs: text, Quality: quality}, nil
}

func (f *fakeBackend) Search(_ context.Context, platform core.Platform, keyword string) (*search.Outcome, error) {
	f.mu.Lock()
	f.searched = append(f.searched, platform)
	searchErr := f.searchErr
	f.mu.Unlock()
	if searchErr != nil {
		return nil, searchErr
	}
	return &search.Outcome{
		Platform: platform,
		Keyword:  keyword,
		Items:    []core.SearchResultItem{{ID: "1", Name: keyword}},
	}, nil
}

func (f *fakeBackend) setSearchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchErr = err
}

func (f *fakeBackend) Assets(song core.Song) (*assets.Reconciler, error) {
	f.mu.Lock()
	fetchErr := f.fetchErr
	f.mu.Unlock()
	return assets.New(song, assets.Options{Root: f.root, Fetcher: fileFetcher{fail: fetchErr}})
}

func (f *fakeBackend) Song(key string) (core.Song, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[key]
	return s, ok
}

func (f *fakeBackend) History() []store.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Entry
	for _, s := range f.songs {
		out = append(out, store.NewEntry(s, time.Unix(0, 0)))
	}
	return out
}

func (f *fakeBackend) FindHistory(query string) []store.Entry {
	h := store.NewHistory(store.MaxHistory, store.DefaultFalsePositiveRate)
	h.Load(f.History())
	return h.Find(query, store.DefaultMinScore)
}

func (f *fakeBackend) ClearHistory(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.songs = map[string]core.Song{}
	f.cleared = true
	return nil
}

func (f *fakeBackend) Describe(err error) string {
	return "described: " + err.Error()
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(setupRoutes(deps.withDefaults(), zap.NewNop()))
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(data)
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	expectedAddr := "0.0.0.0:9090"
	if server.Addr != expectedAddr {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, expectedAddr)
	}
	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}
	if server.ReadTimeout != config.ReadTimeout {
		t.Errorf("createHTTPServer() ReadTimeout = %v, expected %v", server.ReadTimeout, config.ReadTimeout)
	}
	if server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() WriteTimeout = %v, expected %v", server.WriteTimeout, config.WriteTimeout)
	}
}

func TestNewServer_CreatesMetrics(t *testing.T) {
	server := NewServer(&core.ServerConfig{Host: "127.0.0.1", Port: 8787}, Deps{Backend: newFakeBackend(t)}, nil)
	if server.GetMetrics() == nil {
		t.Fatal("GetMetrics() = nil, want metrics created from a fresh registry")
	}

	metrics := NewMetrics(prometheus.NewRegistry())
	server = NewServer(&core.ServerConfig{}, Deps{Backend: newFakeBackend(t), Metrics: metrics}, zap.NewNop())
	if server.GetMetrics() != metrics {
		t.Error("GetMetrics() should return the injected metrics")
	}
}

func TestProbeEndpoints(t *testing.T) {
	server := newTestServer(t, Deps{Backend: newFakeBackend(t)})

	tests := []struct {
		path string
		want string
	}{
		{path: "/healthz", want: `{"status":"ok","service":"songgrab"}`},
		{path: "/readyz", want: `{"status":"ready","service":"songgrab"}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, server.URL+tt.path, "")
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if body != tt.want {
				t.Errorf("body = %q, want %q", body, tt.want)
			}
		})
	}
}

func TestReadyzWithoutBackend(t *testing.T) {
	server := newTestServer(t, Deps{})
	resp, _ := do(t, http.MethodGet, server.URL+"/readyz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHomeHandler(t *testing.T) {
	handler := homeHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "text/html" {
		t.Errorf("Expected Content-Type text/html, got %q", contentType)
	}

	body := rec.Body.String()
	for _, element := range []string{"<!DOCTYPE html>", "<title>songgrab</title>", "/api/parse", "/metrics", "/healthz"} {
		if !strings.Contains(body, element) {
			t.Errorf("Expected body to contain %q", element)
		}
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	server := newTestServer(t, Deps{Backend: newFakeBackend(t)})
	resp, _ := do(t, http.MethodGet, server.URL+"/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestParseHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		parseErr   error
		wantStatus int
		wantParsed string
	}{
		{
			name:       "ok",
			body:       `{"text":"186016","platform":"QQ","quality":"flac"}`,
			wantStatus: http.StatusOK,
			wantParsed: "qq|186016|flac",
		},
		{
			name:       "platform left to the service",
			body:       `{"text":"https://music.163.com/song?id=1"}`,
			wantStatus: http.StatusOK,
			wantParsed: "|https://music.163.com/song?id=1|",
		},
		{name: "bad platform", body: `{"text":"1","platform":"spotify"}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", body: `{"text":`, wantStatus: http.StatusBadRequest},
		{name: "empty input", body: `{"text":""}`, parseErr: musiclink.ErrEmptyInput, wantStatus: http.StatusBadRequest},
		{name: "missing key", body: `{"text":"1"}`, parseErr: core.ErrMissingAPIKey, wantStatus: http.StatusBadRequest},
		{
			name:       "upstream status",
			body:       `{"text":"1"}`,
			parseErr:   &core.HTTPStatusError{StatusCode: 500},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend(t)
			backend.parseErr = tt.parseErr
			server := newTestServer(t, Deps{Backend: backend})

			resp, body := do(t, http.MethodPost, server.URL+"/api/parse", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantParsed != "" {
				backend.mu.Lock()
				parsed := backend.parsed
				backend.mu.Unlock()
				if len(parsed) != 1 || parsed[0] != tt.wantParsed {
					t.Errorf("parsed = %v, want [%s]", parsed, tt.wantParsed)
				}
			}
			if tt.parseErr != nil && !strings.Contains(body, "described: ") {
				t.Errorf("body = %s, want a described error", body)
			}
		})
	}
}

func TestSearchHandler(t *testing.T) {
	backend := newFakeBackend(t)
	server := newTestServer(t, Deps{Backend: backend})

	resp, body := do(t, http.MethodGet, server.URL+"/api/search?q=%E6%99%B4%E5%A4%A9", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var out search.Outcome
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Platform != core.PlatformNetease || len(out.Items) != 1 || out.Items[0].Name != "晴天" {
		t.Errorf("outcome = %+v", out)
	}

	backend.setSearchErr(&core.ConfigurationMissingError{Platform: core.PlatformKuwo, Capability: "search"})
	resp, _ = do(t, http.MethodGet, server.URL+"/api/search?platform=kuwo&q=x", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	backend.setSearchErr(&core.TransformEvaluationError{Platform: core.PlatformKuwo, Err: errors.New("bad")})
	resp, _ = do(t, http.MethodGet, server.URL+"/api/search?platform=kuwo&q=x", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestAssetHandlers(t *testing.T) {
	backend := newFakeBackend(t)
	server := newTestServer(t, Deps{Backend: backend})

	decodeAsset := func(t *testing.T, body string) assetResponse {
		t.Helper()
		var out assetResponse
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		return out
	}

	resp, body := do(t, http.MethodGet, server.URL+"/api/assets?key=netease:186016", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	for kind, ok := range decodeAsset(t, body).Status {
		if ok {
			t.Errorf("%s present before ensure", kind)
		}
	}

	resp, body = do(t, http.MethodPost, server.URL+"/api/assets/ensure", `{"key":"netease:186016","kind":"all"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ensure status = %d, body %s", resp.StatusCode, body)
	}
	got := decodeAsset(t, body)
	if len(got.Kinds) != 3 || got.Message == "" {
		t.Errorf("ensure = %+v", got)
	}
	for kind, ok := range got.Status {
		if !ok {
			t.Errorf("%s missing after ensure", kind)
		}
	}

	resp, body = do(t, http.MethodPost, server.URL+"/api/assets/delete", `{"key":"netease:186016"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", resp.StatusCode, body)
	}
	if got := decodeAsset(t, body); len(got.Kinds) != 3 {
		t.Errorf("delete = %+v", got)
	}
}

func TestAssetHandlers_Errors(t *testing.T) {
	backend := newFakeBackend(t)
	server := newTestServer(t, Deps{Backend: backend})

	tests := []struct {
		name       string
		path       string
		body       string
		fetchErr   error
		wantStatus int
	}{
		{name: "unknown key", path: "/api/assets/ensure", body: `{"key":"qq:1"}`, wantStatus: http.StatusNotFound},
		{name: "unknown kind", path: "/api/assets/ensure", body: `{"key":"netease:186016","kind":"video"}`, wantStatus: http.StatusBadRequest},
		{
			name:       "inline song without cover",
			path:       "/api/assets/ensure",
			body:       `{"song":{"id":"9","platform":"kuwo","url":"https://cdn/x.mp3"},"kind":"cover"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "inline song without id",
			path:       "/api/assets/delete",
			body:       `{"song":{"platform":"kuwo"}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "download failure",
			path:       "/api/assets/ensure",
			body:       `{"key":"netease:186016","kind":"music"}`,
			fetchErr:   &core.HTTPStatusError{StatusCode: 404},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend.mu.Lock()
			backend.fetchErr = tt.fetchErr
			backend.mu.Unlock()
			resp, body := do(t, http.MethodPost, server.URL+tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
		})
	}
}

func TestHistoryHandlers(t *testing.T) {
	backend := newFakeBackend(t)
	server := newTestServer(t, Deps{Backend: backend})

	resp, body := do(t, http.MethodGet, server.URL+"/api/history", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entries []store.Entry
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "netease:186016" {
		t.Errorf("entries = %+v", entries)
	}

	for query, want := range map[string]int{"%E5%91%A8%E6%9D%B0%E4%BC%A6": 1, "unrelated": 0} {
		resp, body = do(t, http.MethodGet, server.URL+"/api/history?q="+query, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("filtered status = %d", resp.StatusCode)
		}
		entries = nil
		if err := json.Unmarshal([]byte(body), &entries); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(entries) != want {
			t.Errorf("q=%s returned %d entries, want %d", query, len(entries), want)
		}
	}

	resp, _ = do(t, http.MethodDelete, server.URL+"/api/history", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear status = %d, want 204", resp.StatusCode)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if !backend.cleared {
		t.Error("history was not cleared")
	}
}

func TestRateLimit(t *testing.T) {
	gate := flood.New(2)
	defer gate.Stop()
	server := newTestServer(t, Deps{Backend: newFakeBackend(t), Floodgate: gate})

	for i := 0; i < 2; i++ {
		resp, _ := do(t, http.MethodGet, server.URL+"/api/history", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}

	resp, _ := do(t, http.MethodGet, server.URL+"/api/history", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if ra := resp.Header.Get("Retry-After"); ra == "" || ra == "0" {
		t.Errorf("Retry-After = %q", ra)
	}

	// Probes are not limited.
	resp, _ = do(t, http.MethodGet, server.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	server := newTestServer(t, Deps{Backend: newFakeBackend(t), Registry: reg, Metrics: metrics})

	do(t, http.MethodGet, server.URL+"/api/history", "")
	metrics.ObserveAsset(core.AssetLyrics, "success")
	metrics.ObserveResolve(core.PlatformQQ, "success", 3)
	metrics.ObserveDownload("http_status", 0, time.Second)
	metrics.ObserveSearch(core.PlatformKuwo, "empty", time.Millisecond)

	resp, body := do(t, http.MethodGet, server.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		`songgrab_http_requests_total{code="200",route="history"} 1`,
		`songgrab_assets_total{kind="lyrics",outcome="success"} 1`,
		`songgrab_resolved_songs_total{platform="qq"} 3`,
		`songgrab_downloads_total{outcome="http_status"} 1`,
		`songgrab_searches_total{outcome="empty",platform="kuwo"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: search.ErrEmptyKeyword, want: http.StatusBadRequest},
		{err: fmt.Errorf("wrap: %w", app.ErrUnsupportedQuality), want: http.StatusBadRequest},
		{err: core.ErrNotApplicable, want: http.StatusUnprocessableEntity},
		{err: &core.ConfigurationMissingError{Platform: core.PlatformQQ}, want: http.StatusNotFound},
		{err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{err: &core.NetworkError{Err: errors.New("reset")}, want: http.StatusBadGateway},
		{err: errors.Join(&core.HTTPStatusError{StatusCode: 403}), want: http.StatusBadGateway},
		{err: &core.FileSystemError{Op: "write", Err: os.ErrPermission}, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.err), func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

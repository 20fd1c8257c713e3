package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"songgrab/internal/core"
)

type recordedDownload struct {
	outcome string
	bytes   int64
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedDownload
}

func (r *fakeRecorder) ObserveDownload(outcome string, bytes int64, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recordedDownload{outcome: outcome, bytes: bytes})
}

func newTestDownloader(opts ...Option) *Downloader {
	cfg := core.DownloadConfig{Timeout: 5 * time.Second, MaxRedirects: 3}
	return New(cfg, zap.NewNop(), opts...)
}

func assertNoFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("Expected empty dir, found %v", names)
	}
}

func TestFetchToFile_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Mozilla/5.0") {
			t.Errorf("Unexpected User-Agent %q", ua)
		}
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer server.Close()

	rec := &fakeRecorder{}
	d := newTestDownloader(WithRecorder(rec))
	dst := filepath.Join(t.TempDir(), "sub", "dir", "song.mp3")

	n, err := d.FetchToFile(context.Background(), server.URL, dst)
	if err != nil {
		t.Fatalf("FetchToFile failed: %v", err)
	}
	if n != int64(len("audio-bytes")) {
		t.Errorf("Bytes written = %d", n)
	}

	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "audio-bytes" {
		t.Fatalf("Destination content = %q, %v", b, err)
	}

	if len(rec.seen) != 1 || rec.seen[0].outcome != "success" {
		t.Errorf("Recorder saw %+v", rec.seen)
	}
}

func TestFetchToFile_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("content of A"))
	})
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/b")
		w.WriteHeader(http.StatusFound)
		_, _ = w.Write([]byte("content of A"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("content of B"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "song.flac")
	if _, err := newTestDownloader().FetchToFile(context.Background(), server.URL+"/start", dst); err != nil {
		t.Fatalf("FetchToFile failed: %v", err)
	}

	b, _ := os.ReadFile(dst)
	if string(b) != "content of B" {
		t.Errorf("Expected redirect target content, got %q", b)
	}
}

func TestFetchToFile_RedirectLoopIsBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := newTestDownloader().FetchToFile(context.Background(), server.URL+"/loop", filepath.Join(dir, "x.mp3"))
	if !errors.Is(err, core.ErrTooManyRedirects) {
		t.Fatalf("Expected ErrTooManyRedirects, got %v", err)
	}
	assertNoFiles(t, dir)
}

func TestFetchToFile_NotFoundLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	rec := &fakeRecorder{}
	dir := t.TempDir()
	_, err := newTestDownloader(WithRecorder(rec)).FetchToFile(context.Background(), server.URL, filepath.Join(dir, "x.mp3"))

	var statusErr *core.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected HTTP 404 error, got %v", err)
	}
	assertNoFiles(t, dir)

	if len(rec.seen) != 1 || rec.seen[0].outcome != "http_status" {
		t.Errorf("Recorder saw %+v", rec.seen)
	}
}

func TestFetchToFile_MidStreamErrorLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("Hijack failed: %v", err)
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := newTestDownloader().FetchToFile(context.Background(), server.URL, filepath.Join(dir, "x.mp3"))

	var netErr *core.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %v", err)
	}
	assertNoFiles(t, dir)
}

func TestFetchToFile_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	dir := t.TempDir()
	_, err := newTestDownloader().FetchToFile(context.Background(), url, filepath.Join(dir, "x.mp3"))

	var netErr *core.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %v", err)
	}
	assertNoFiles(t, dir)
}

func TestFetchToFile_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := newTestDownloader().FetchToFile(ctx, server.URL, filepath.Join(dir, "x.mp3"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	assertNoFiles(t, dir)
}

func TestFetchToFile_OverwritesExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "x.jpg")
	if err := os.WriteFile(dst, []byte("old-and-longer"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := newTestDownloader().FetchToFile(context.Background(), server.URL, dst); err != nil {
		t.Fatalf("FetchToFile failed: %v", err)
	}
	b, _ := os.ReadFile(dst)
	if string(b) != "new" {
		t.Errorf("Expected overwrite, got %q", b)
	}
}

func TestFetchToFile_EmptySource(t *testing.T) {
	_, err := newTestDownloader().FetchToFile(context.Background(), "", filepath.Join(t.TempDir(), "x.mp3"))
	if !errors.Is(err, core.ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
}

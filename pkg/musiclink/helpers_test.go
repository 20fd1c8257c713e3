package musiclink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFollowShortLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/abc", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/song?id=186016", http.StatusFound)
	})
	mux.HandleFunc("/song", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	got, err := followShortLink(context.Background(), newHTTPClient(), server.URL+"/abc")
	if err != nil {
		t.Fatalf("followShortLink() unexpected error: %v", err)
	}
	if want := server.URL + "/song?id=186016"; got != want {
		t.Errorf("followShortLink() = %q, want %q", got, want)
	}
}

func TestFollowShortLink_TooManyRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer server.Close()

	if _, err := followShortLink(context.Background(), newHTTPClient(), server.URL+"/loop"); err == nil {
		t.Error("followShortLink() expected error for redirect loop")
	}
}

func TestNeteaseResolver_ShortLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/x" {
			http.Redirect(w, r, "https://music.163.com/song?id=99", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewNeteaseResolver()
	// Send every request to the test server regardless of host.
	r.client.Transport = rewriteTransport{target: server.URL}

	link, err := r.Resolve(context.Background(), "分享单曲: http://163cn.tv/x")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if link.ID != "99" {
		t.Errorf("Resolve() id = %q, want 99", link.ID)
	}
}

type rewriteTransport struct {
	target string
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == "163cn.tv" {
		clone := req.Clone(req.Context())
		u := *clone.URL
		u.Scheme = "http"
		u.Host = rt.target[len("http://"):]
		clone.URL = &u
		clone.Host = ""
		return http.DefaultTransport.RoundTrip(clone)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       http.NoBody,
		Request:    req,
		Header:     make(http.Header),
	}, nil
}

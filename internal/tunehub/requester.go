package tunehub

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"songgrab/internal/core"
	"songgrab/internal/search"
)

// HTTPRequester is the plain request proxy searches are dispatched through.
// It reports every status to the caller and never interprets the body.
type HTTPRequester struct {
	client    *http.Client
	userAgent string
}

// NewHTTPRequester wraps client; nil means the default API client.
func NewHTTPRequester(client *http.Client) *HTTPRequester {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPRequester{
		client: client,
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
}

// Request sends one request and returns the status and the raw body.
func (r *HTTPRequester) Request(ctx context.Context, rawURL string, opts search.RequestOptions) (*search.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader = http.NoBody
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &core.NetworkError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &core.NetworkError{URL: rawURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &core.NetworkError{URL: rawURL, Err: err}
	}
	return &search.Response{StatusCode: resp.StatusCode, Data: data}, nil
}

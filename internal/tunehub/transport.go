package tunehub

import (
	"errors"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRetryMax    = 2
)

// retryTransport retries idempotent requests that failed before any response arrived.
type retryTransport struct {
	base     http.RoundTripper
	retryMax int
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	idempotent := req.Method == http.MethodGet || req.Method == http.MethodHead
	replayable := req.Body == nil || req.Body == http.NoBody
	attempts := 1
	if idempotent && replayable {
		attempts += t.retryMax
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// NewHTTPClient returns the client used for API calls and the search proxy.
func NewHTTPClient() *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSHandshakeTimeout = 10 * time.Second
	base.ResponseHeaderTimeout = 15 * time.Second

	return &http.Client{
		Transport: &retryTransport{base: base, retryMax: defaultRetryMax},
		Timeout:   defaultHTTPTimeout,
	}
}

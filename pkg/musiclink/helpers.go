package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

const (
	// commonUserAgent is the user agent string used for all HTTP requests.
	commonUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// defaultHTTPTimeout is the default timeout for HTTP requests.
	defaultHTTPTimeout = 10 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 5
	// minSubmatches is the number of regex groups expected for an id capture.
	minSubmatches = 2
)

var (
	// ErrTooManyRedirects is returned when too many redirects are encountered.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrNoResolver is returned when no resolver recognizes the text.
	ErrNoResolver = errors.New("no resolver found for link")
	// ErrEmptyInput is returned when the text carries neither a link nor ids.
	ErrEmptyInput = errors.New("input contains no link or ids")
)

// newHTTPClient creates a new HTTP client with standard settings and redirect validation.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// followShortLink returns the URL a short link finally lands on.
func followShortLink(ctx context.Context, client *http.Client, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", commonUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("short link returned status %d", resp.StatusCode)
	}
	return resp.Request.URL.String(), nil
}

// firstSubmatch returns the first capture group of re in text.
func firstSubmatch(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) < minSubmatches || m[1] == "" {
		return "", false
	}
	return m[1], true
}

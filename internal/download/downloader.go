// Package download fetches remote assets to local files.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"songgrab/internal/core"
	"songgrab/internal/fsx"
)

const (
	// defaultUserAgent matches what the catalog CDNs expect from a browser.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	// maxDrainBytes caps how much of a redirect body is read before closing it.
	maxDrainBytes = 64 << 10
)

// Recorder receives one observation per finished download.
type Recorder interface {
	ObserveDownload(outcome string, bytes int64, elapsed time.Duration)
}

// Downloader saves the body of a URL to a file, following redirects itself.
type Downloader struct {
	client       *http.Client
	timeout      time.Duration
	maxRedirects int
	userAgent    string
	logger       *zap.Logger
	recorder     Recorder
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the underlying client. Its redirect policy is overridden.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		if c != nil {
			d.client = c
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Downloader) { d.recorder = r }
}

// WithUserAgent overrides the default browser user agent.
func WithUserAgent(ua string) Option {
	return func(d *Downloader) {
		if strings.TrimSpace(ua) != "" {
			d.userAgent = ua
		}
	}
}

// New creates a downloader from the download configuration.
func New(cfg core.DownloadConfig, logger *zap.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{
		client:       &http.Client{},
		timeout:      cfg.Timeout,
		maxRedirects: cfg.MaxRedirects,
		userAgent:    defaultUserAgent,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	// Redirects are followed by FetchToFile so each hop is bounded and logged.
	c := *d.client
	c.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}
	d.client = &c
	return d
}

// FetchToFile downloads sourceURL into destination, replacing any existing file.
// On any failure the destination is left untouched and no partial file remains.
func (d *Downloader) FetchToFile(ctx context.Context, sourceURL, destination string) (int64, error) {
	started := time.Now()
	n, err := d.fetch(ctx, sourceURL, destination)

	outcome := "success"
	if err != nil {
		outcome = core.ErrorClass(err)
		d.logger.Warn("Download failed",
			zap.String("url", sourceURL),
			zap.String("destination", destination),
			zap.Error(err))
	} else {
		d.logger.Debug("Download finished",
			zap.String("destination", destination),
			zap.Int64("bytes", n),
			zap.Duration("elapsed", time.Since(started)))
	}
	if d.recorder != nil {
		d.recorder.ObserveDownload(outcome, n, time.Since(started))
	}
	return n, err
}

func (d *Downloader) fetch(ctx context.Context, sourceURL, destination string) (int64, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return 0, core.ErrNoSource
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, &core.FileSystemError{Op: "mkdir", Path: dir, Err: err}
	}

	current := sourceURL
	for hops := 0; ; hops++ {
		resp, err := d.get(ctx, current)
		if err != nil {
			return 0, &core.NetworkError{URL: current, Err: err}
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			drainAndClose(resp.Body)
			if location != "" {
				if hops >= d.maxRedirects {
					return 0, fmt.Errorf("%w: %d hops from %s", core.ErrTooManyRedirects, hops, sourceURL)
				}
				next, err := resolveLocation(current, location)
				if err != nil {
					return 0, &core.NetworkError{URL: current, Err: fmt.Errorf("bad redirect location %q: %w", location, err)}
				}
				d.logger.Debug("Following redirect",
					zap.String("from", current),
					zap.String("to", next),
					zap.Int("status", resp.StatusCode))
				current = next
				continue
			}
			return 0, &core.HTTPStatusError{URL: current, StatusCode: resp.StatusCode}
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			drainAndClose(resp.Body)
			return 0, &core.HTTPStatusError{URL: current, StatusCode: resp.StatusCode}
		}

		return d.save(ctx, current, resp.Body, destination)
	}
}

func (d *Downloader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	return d.client.Do(req)
}

func (d *Downloader) save(ctx context.Context, sourceURL string, body io.ReadCloser, destination string) (int64, error) {
	defer func() {
		_ = body.Close()
	}()

	af, err := fsx.CreateAtomic(destination)
	if err != nil {
		return 0, &core.FileSystemError{Op: "create", Path: destination, Err: err}
	}

	w := &trackingWriter{w: af}
	n, err := io.Copy(w, body)
	if err != nil {
		af.Abort()
		if w.err != nil {
			return 0, &core.FileSystemError{Op: "write", Path: destination, Err: w.err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return 0, &core.NetworkError{URL: sourceURL, Err: err}
	}

	if err := af.Commit(); err != nil {
		return 0, &core.FileSystemError{Op: "commit", Path: destination, Err: err}
	}
	return n, nil
}

// trackingWriter remembers write-side failures so they can be told apart from read-side ones.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

func isRedirect(status int) bool {
	return status >= http.StatusMultipleChoices && status < http.StatusBadRequest
}

func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", err
	}
	next := base.ResolveReference(ref)
	if next.Scheme != "http" && next.Scheme != "https" {
		return "", errors.New("unsupported scheme " + next.Scheme)
	}
	return next.String(), nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	_ = body.Close()
}

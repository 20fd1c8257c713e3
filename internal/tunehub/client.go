// Package tunehub talks to the TuneHub resolver: song parsing, per-platform
// method descriptors and the plain request proxy used by searches.
package tunehub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"songgrab/internal/core"
)

const (
	apiKeyHeader = "X-API-Key"
	// maxResponseBytes bounds what is read from an API response.
	maxResponseBytes = 16 << 20
	// methodCacheSize is the number of descriptors kept; three platforms times a few capabilities.
	methodCacheSize = 32
)

// ParseRequest asks the resolver for playable sources of one or more songs.
type ParseRequest struct {
	Platform core.Platform `json:"platform"`
	IDs      string        `json:"ids"`
	Quality  string        `json:"quality"`
}

// Client is a TuneHub API client.
type Client struct {
	baseURL        string
	apiKey         string
	quality        string
	resolveTimeout time.Duration
	http           *http.Client
	methods        *lru.Cache[string, *core.SearchMethodDescriptor]
	recorder       Recorder
	logger         *zap.Logger
}

// Recorder receives one observation per parse call.
type Recorder interface {
	ObserveResolve(platform core.Platform, outcome string, songs int)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default retrying client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(cl *Client) { cl.recorder = r }
}

// NewClient creates a client from the TuneHub configuration. A missing API key
// is only reported when a call needs it.
func NewClient(cfg core.TuneHubConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = core.DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	cache, err := lru.New[string, *core.SearchMethodDescriptor](methodCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create method cache: %w", err)
	}

	quality := cfg.Quality
	if quality == "" {
		quality = core.DefaultQuality
	}

	c := &Client{
		baseURL:        base,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		quality:        quality,
		resolveTimeout: cfg.ResolveTimeout,
		http:           NewHTTPClient(),
		methods:        cache,
		logger:         logger.Named("tunehub"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Parse resolves the songs of req. Songs the resolver could not handle come
// back with Success false; only transport and status problems are errors.
func (c *Client) Parse(ctx context.Context, req ParseRequest) ([]core.Song, error) {
	songs, err := c.parse(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = core.ErrorClass(err)
		if errors.Is(err, core.ErrMissingAPIKey) {
			outcome = "configuration"
		}
		c.logger.Warn("Parse failed",
			zap.String("platform", string(req.Platform)),
			zap.String("ids", req.IDs),
			zap.Error(err))
	} else {
		c.logger.Info("Parsed songs",
			zap.String("platform", string(req.Platform)),
			zap.Int("count", len(songs)))
	}
	if c.recorder != nil {
		c.recorder.ObserveResolve(req.Platform, outcome, len(songs))
	}
	return songs, err
}

func (c *Client) parse(ctx context.Context, req ParseRequest) ([]core.Song, error) {
	if c.apiKey == "" {
		return nil, core.ErrMissingAPIKey
	}
	if strings.TrimSpace(req.IDs) == "" {
		return nil, errors.New("no song ids given")
	}
	if req.Quality == "" {
		req.Quality = c.quality
	}
	if c.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.resolveTimeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parse request: %w", err)
	}

	endpoint := c.baseURL + "/parse"
	env, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if !env.hasData() {
		return []core.Song{}, nil
	}

	var data parseData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode parse response: %w", err)
	}
	songs := make([]core.Song, 0, len(data.Data))
	for i := range data.Data {
		songs = append(songs, data.Data[i].toSong(req.Platform))
	}
	return songs, nil
}

// Method returns the descriptor of a platform capability. Successful lookups are cached.
func (c *Client) Method(ctx context.Context, platform core.Platform, capability string) (*core.SearchMethodDescriptor, error) {
	key := string(platform) + "/" + capability
	if desc, ok := c.methods.Get(key); ok {
		return desc, nil
	}

	endpoint := c.baseURL + "/methods/" + url.PathEscape(string(platform)) + "/" + url.PathEscape(capability)
	env, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		var statusErr *core.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, &core.ConfigurationMissingError{Platform: platform, Capability: capability, Reason: statusErr.Message}
		}
		return nil, err
	}
	if env.Code != 0 || !env.hasData() {
		return nil, &core.ConfigurationMissingError{Platform: platform, Capability: capability, Reason: env.message()}
	}

	var desc core.SearchMethodDescriptor
	if err := json.Unmarshal(env.Data, &desc); err != nil {
		return nil, &core.ConfigurationMissingError{
			Platform:   platform,
			Capability: capability,
			Reason:     "malformed descriptor: " + err.Error(),
		}
	}
	if err := desc.Validate(); err != nil {
		return nil, &core.ConfigurationMissingError{Platform: platform, Capability: capability, Reason: err.Error()}
	}

	c.methods.Add(key, &desc)
	c.logger.Debug("Cached method descriptor", zap.String("key", key))
	return &desc, nil
}

// do sends one API call and decodes the envelope. Non-2xx answers become
// HTTPStatusError carrying the envelope message when there is one.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*envelope, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &core.NetworkError{URL: endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &core.NetworkError{URL: endpoint, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &core.HTTPStatusError{URL: endpoint, StatusCode: resp.StatusCode, Message: env.message()}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", endpoint, decodeErr)
	}
	return &env, nil
}

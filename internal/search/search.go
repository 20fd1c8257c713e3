// Package search turns per-platform search descriptors into requests and
// normalizes the heterogeneous provider responses into one result shape.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"songgrab/internal/core"
)

const (
	// Capability is the descriptor capability used for searches.
	Capability = "search"

	defaultPage     = 1
	defaultPageSize = 20
)

// ErrEmptyKeyword is returned before any I/O when the query is blank.
var ErrEmptyKeyword = errors.New("search keyword is empty")

// MethodRegistry supplies the descriptor of a platform capability.
type MethodRegistry interface {
	Method(ctx context.Context, platform core.Platform, capability string) (*core.SearchMethodDescriptor, error)
}

// RequestOptions is what the network primitive sends.
type RequestOptions struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

// Response is the raw answer of the network primitive.
type Response struct {
	StatusCode int
	Data       []byte
}

// Requester is the network primitive searches go through.
type Requester interface {
	Request(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error)
}

// Recorder receives one observation per search.
type Recorder interface {
	ObserveSearch(platform core.Platform, outcome string, elapsed time.Duration)
}

// Outcome is a successful search. Items is empty, never nil, when nothing matched.
type Outcome struct {
	Platform core.Platform           `json:"platform"`
	Keyword  string                  `json:"keyword"`
	Items    []core.SearchResultItem `json:"items"`
}

// NoResults reports the soft empty outcome.
func (o *Outcome) NoResults() bool {
	return o == nil || len(o.Items) == 0
}

// Resolver runs searches.
type Resolver struct {
	registry  MethodRegistry
	requester Requester
	timeout   time.Duration
	recorder  Recorder
	logger    *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// NewResolver creates a search resolver.
func NewResolver(registry MethodRegistry, requester Requester, cfg core.SearchConfig, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		registry:  registry,
		requester: requester,
		timeout:   cfg.Timeout,
		logger:    logger.Named("search"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search queries platform for text. A missing descriptor, a non-2xx status or
// a failing transform is an error; no matches is an Outcome with no items.
func (r *Resolver) Search(ctx context.Context, platform core.Platform, text string) (*Outcome, error) {
	started := time.Now()
	outcome, err := r.search(ctx, platform, text)

	label := "success"
	switch {
	case err != nil:
		label = core.ErrorClass(err)
		r.logger.Warn("Search failed",
			zap.String("platform", string(platform)),
			zap.String("keyword", text),
			zap.Error(err))
	case outcome.NoResults():
		label = "empty"
	}
	if r.recorder != nil {
		r.recorder.ObserveSearch(platform, label, time.Since(started))
	}
	return outcome, err
}

func (r *Resolver) search(ctx context.Context, platform core.Platform, text string) (*Outcome, error) {
	keyword := strings.TrimSpace(text)
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if _, err := core.ParsePlatform(string(platform)); err != nil {
		return nil, &core.ConfigurationMissingError{Platform: platform, Capability: Capability, Reason: err.Error()}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	desc, err := r.descriptor(ctx, platform)
	if err != nil {
		return nil, err
	}

	env := map[string]any{
		"keyword":  keyword,
		"page":     defaultPage,
		"limit":    defaultPageSize,
		"pageSize": defaultPageSize,
	}
	tpl := &templateResolver{env: env, logger: r.logger}

	target, opts, err := buildRequest(desc, tpl)
	if err != nil {
		return nil, &core.ConfigurationMissingError{Platform: platform, Capability: Capability, Reason: err.Error()}
	}

	r.logger.Debug("Dispatching search",
		zap.String("platform", string(platform)),
		zap.String("method", opts.Method),
		zap.String("url", target))

	resp, err := r.requester.Request(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &core.HTTPStatusError{URL: target, StatusCode: resp.StatusCode}
	}

	parsed := parseBody(resp.Data)

	var list []any
	if strings.TrimSpace(desc.Transform) != "" {
		transformed, err := evalExpression(desc.Transform, map[string]any{
			"response": parsed,
			"res":      parsed,
			"keyword":  keyword,
		})
		if err != nil {
			return nil, &core.TransformEvaluationError{Platform: platform, Expression: desc.Transform, Err: err}
		}
		list = toList(transformed)
	} else {
		list = toList(parsed)
	}

	items := toItems(list)
	if len(items) > 0 {
		extractCovers(platform, parsed).backfill(items)
	}

	return &Outcome{Platform: platform, Keyword: keyword, Items: items}, nil
}

func (r *Resolver) descriptor(ctx context.Context, platform core.Platform) (*core.SearchMethodDescriptor, error) {
	desc, err := r.registry.Method(ctx, platform, Capability)
	if err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, &core.ConfigurationMissingError{Platform: platform, Capability: Capability, Reason: err.Error()}
	}
	return desc, nil
}

// buildRequest resolves the descriptor templates into a target URL and request options.
func buildRequest(desc *core.SearchMethodDescriptor, tpl *templateResolver) (string, RequestOptions, error) {
	opts := RequestOptions{
		Method:  desc.Method(),
		Headers: make(map[string]string, len(desc.Headers)),
	}
	for k, v := range desc.Headers {
		opts.Headers[k] = v
	}

	target := strings.TrimSpace(desc.URL)
	if len(desc.Params) > 0 {
		params, _ := tpl.resolve(desc.Params).(map[string]any)
		if opts.Method == http.MethodGet && len(params) > 0 {
			target = appendQuery(target, params)
		}
	}

	if desc.Body != nil && opts.Method != http.MethodGet {
		body, contentType, err := encodeBody(tpl.resolve(desc.Body))
		if err != nil {
			return "", RequestOptions{}, err
		}
		opts.Body = body
		if contentType != "" && !hasHeader(opts.Headers, "Content-Type") {
			opts.Headers["Content-Type"] = contentType
		}
	}
	return target, opts, nil
}

func appendQuery(target string, params map[string]any) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, queryValue(v))
	}
	encoded := values.Encode()

	switch {
	case strings.HasSuffix(target, "?"), strings.HasSuffix(target, "&"):
		return target + encoded
	case strings.Contains(target, "?"):
		return target + "&" + encoded
	default:
		return target + "?" + encoded
	}
}

func queryValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = queryValue(p)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// encodeBody sends strings as-is and everything else as JSON.
func encodeBody(body any) ([]byte, string, error) {
	if s, ok := body.(string); ok {
		return []byte(s), "", nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	return b, "application/json", nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// parseBody decodes JSON; other payloads stay raw text. Integers that fit
// become int64 so long ids survive, other numbers float64.
func parseBody(data []byte) any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(data)
	}
	if dec.More() {
		return string(data)
	}
	return nativeNumbers(v)
}

// nativeNumbers replaces json.Number leaves in place so expressions can
// compare and compute with them.
func nativeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = nativeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = nativeNumbers(e)
		}
		return x
	default:
		return v
	}
}

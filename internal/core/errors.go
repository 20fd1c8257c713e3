package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds the configured limit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrMissingAPIKey is returned before any request is made without an API key.
	ErrMissingAPIKey = errors.New("api key is not configured")
	// ErrNotApplicable is returned for assets a song does not carry.
	ErrNotApplicable = errors.New("asset not applicable to song")
	// ErrNoSource is returned when a song has no playable url.
	ErrNoSource = errors.New("song has no source url")
)

// NetworkError wraps connection, DNS and timeout failures.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is a non-2xx terminal response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

// FileSystemError wraps permission, space and path failures.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// TemplateEvaluationError never leaves the search package; templates degrade to fallbacks.
type TemplateEvaluationError struct {
	Expression string
	Err        error
}

func (e *TemplateEvaluationError) Error() string {
	return fmt.Sprintf("template %q: %v", e.Expression, e.Err)
}

func (e *TemplateEvaluationError) Unwrap() error { return e.Err }

// TransformEvaluationError is a hard adapter failure, distinct from an empty result.
type TransformEvaluationError struct {
	Platform   Platform
	Expression string
	Err        error
}

func (e *TransformEvaluationError) Error() string {
	return fmt.Sprintf("transform for %s failed: %v", e.Platform, e.Err)
}

func (e *TransformEvaluationError) Unwrap() error { return e.Err }

// ConfigurationMissingError means the platform or capability is unsupported.
type ConfigurationMissingError struct {
	Platform   Platform
	Capability string
	Reason     string
}

func (e *ConfigurationMissingError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s does not support %s", e.Platform, e.Capability)
	}
	return fmt.Sprintf("%s does not support %s: %s", e.Platform, e.Capability, e.Reason)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var e *HTTPStatusError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// ErrorClass names the taxonomy bucket of err for metrics labels.
func ErrorClass(err error) string {
	var (
		netErr       *NetworkError
		statusErr    *HTTPStatusError
		fsErr        *FileSystemError
		transformErr *TransformEvaluationError
		configErr    *ConfigurationMissingError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &fsErr):
		return "filesystem"
	case errors.As(err, &transformErr):
		return "transform"
	case errors.As(err, &configErr):
		return "configuration"
	default:
		return "other"
	}
}

package musiclink

import (
	"context"
	"errors"
	"regexp"

	"songgrab/internal/core"
)

var kuwoSongRegex = regexp.MustCompile(`(?i)kuwo\.cn/play_detail/(\d+)`)

// KuwoResolver resolves Kuwo share links.
type KuwoResolver struct{}

// NewKuwoResolver creates a new Kuwo link resolver.
func NewKuwoResolver() *KuwoResolver {
	return &KuwoResolver{}
}

// CanResolve checks if text contains a Kuwo song link.
func (r *KuwoResolver) CanResolve(text string) bool {
	return kuwoSongRegex.MatchString(text)
}

// Resolve extracts the song rid.
func (r *KuwoResolver) Resolve(_ context.Context, text string) (*Link, error) {
	id, ok := firstSubmatch(kuwoSongRegex, text)
	if !ok {
		return nil, errors.New("not a Kuwo song link")
	}
	return &Link{Platform: core.PlatformKuwo, ID: id}, nil
}

package musiclink

import (
	"context"
	"errors"
	"regexp"

	"songgrab/internal/core"
)

var qqSongRegex = regexp.MustCompile(`(?i)y\.qq\.com/n/ryqq(?:_v2)?/songDetail/([^/?#\s]+)`)

// QQResolver resolves QQ Music share links.
type QQResolver struct{}

// NewQQResolver creates a new QQ Music link resolver.
func NewQQResolver() *QQResolver {
	return &QQResolver{}
}

// CanResolve checks if text contains a QQ Music song link.
func (r *QQResolver) CanResolve(text string) bool {
	return qqSongRegex.MatchString(text)
}

// Resolve extracts the song mid.
func (r *QQResolver) Resolve(_ context.Context, text string) (*Link, error) {
	id, ok := firstSubmatch(qqSongRegex, text)
	if !ok {
		return nil, errors.New("not a QQ Music song link")
	}
	return &Link{Platform: core.PlatformQQ, ID: id}, nil
}

package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"songgrab/internal/core"
)

var (
	// Matches music.163.com/song?id=1, music.163.com/#/song?id=1 and the m/ mobile variant.
	neteaseSongRegex = regexp.MustCompile(`(?i)music\.163\.com/(?:#/)?(?:m/)?song\?(?:[^\s#]*&)?id=(\d+)`)
	// Short links from the mobile app share sheet.
	neteaseShortRegex = regexp.MustCompile(`(?i)https?://163cn\.tv/[A-Za-z0-9]+`)
)

// NeteaseResolver resolves NetEase Cloud Music share links.
type NeteaseResolver struct {
	client *http.Client
}

// NewNeteaseResolver creates a new NetEase link resolver.
func NewNeteaseResolver() *NeteaseResolver {
	return &NeteaseResolver{
		client: newHTTPClient(),
	}
}

// CanResolve checks if text contains a NetEase song link.
func (r *NeteaseResolver) CanResolve(text string) bool {
	return neteaseSongRegex.MatchString(text) || neteaseShortRegex.MatchString(text)
}

// Resolve extracts the song id, following 163cn.tv short links when needed.
func (r *NeteaseResolver) Resolve(ctx context.Context, text string) (*Link, error) {
	if id, ok := firstSubmatch(neteaseSongRegex, text); ok {
		return &Link{Platform: core.PlatformNetease, ID: id}, nil
	}

	short := neteaseShortRegex.FindString(text)
	if short == "" {
		return nil, errors.New("not a NetEase song link")
	}

	target, err := followShortLink(ctx, r.client, short)
	if err != nil {
		return nil, fmt.Errorf("failed to expand short link: %w", err)
	}
	if id, ok := firstSubmatch(neteaseSongRegex, target); ok {
		return &Link{Platform: core.PlatformNetease, ID: id}, nil
	}
	return nil, fmt.Errorf("short link %s does not point to a song", short)
}

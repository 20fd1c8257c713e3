// Package musiclink detects which catalog a shared link or id list belongs to.
package musiclink

import (
	"context"

	"songgrab/internal/core"
)

// Link is a song reference extracted from pasted text.
type Link struct {
	Platform core.Platform
	ID       string
}

// Resolver defines the interface for extracting song references from one catalog's share links.
type Resolver interface {
	// Resolve extracts the song reference from text containing a share link.
	Resolve(ctx context.Context, text string) (*Link, error)

	// CanResolve checks if this resolver recognizes a link in text.
	CanResolve(text string) bool
}

package musiclink

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"songgrab/internal/core"
)

var idSeparatorRegex = regexp.MustCompile(`[\s,、､]+`)

// Request is what gets sent to the resolver for one parse call.
type Request struct {
	Platform     core.Platform
	IDs          string // comma joined
	AutoDetected bool   // platform came from a recognized link
}

// Manager coordinates the per-platform resolvers.
type Manager struct {
	resolvers []Resolver
}

// NewManager creates a new music link manager with all supported resolvers.
func NewManager() *Manager {
	return &Manager{
		resolvers: []Resolver{
			NewNeteaseResolver(),
			NewQQResolver(),
			NewKuwoResolver(),
		},
	}
}

// Resolve attempts to resolve a music link using the appropriate resolver.
func (m *Manager) Resolve(ctx context.Context, text string) (*Link, error) {
	for _, resolver := range m.resolvers {
		if resolver.CanResolve(text) {
			return resolver.Resolve(ctx, text)
		}
	}

	return nil, ErrNoResolver
}

// CanResolve checks if any resolver can handle the given text.
func (m *Manager) CanResolve(text string) bool {
	for _, resolver := range m.resolvers {
		if resolver.CanResolve(text) {
			return true
		}
	}
	return false
}

// BuildRequest turns pasted text into a parse request. A recognized link wins
// and overrides the selected platform; otherwise the text is read as an id list.
func (m *Manager) BuildRequest(ctx context.Context, text string, selected core.Platform) (*Request, error) {
	text = strings.TrimSpace(text)
	if m.CanResolve(text) {
		link, err := m.Resolve(ctx, text)
		if err != nil {
			return nil, err
		}
		return &Request{Platform: link.Platform, IDs: link.ID, AutoDetected: true}, nil
	}

	ids := ParseIDs(text)
	if len(ids) == 0 {
		return nil, ErrEmptyInput
	}
	return &Request{Platform: selected, IDs: strings.Join(ids, ",")}, nil
}

// ParseIDs splits an id list on whitespace and ASCII or full-width commas.
func ParseIDs(text string) []string {
	parts := idSeparatorRegex.Split(width.Narrow.String(text), -1)
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

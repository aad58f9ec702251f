// Package guard enforces namespace isolation. Every content-bearing read
// must obtain its namespace set from the Guard; no other component
// constructs scopes. A query scoped to one isolated namespace can never
// observe another isolated namespace's triplets.
package guard

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/dreamerd/internal/registry"
)

// Mode selects how a requested namespace expands into a query scope.
type Mode string

const (
	// ModeStrict scopes to the requested namespace only.
	ModeStrict Mode = "strict"
	// ModeIncludeShared adds all shared and global namespaces to the
	// requested one. Used for entity traversal.
	ModeIncludeShared Mode = "include-shared"
	// ModeCrossReference ignores the requested namespace and scopes to
	// all shared and global namespaces. Never combined with an isolated
	// namespace's private content.
	ModeCrossReference Mode = "cross-reference"
)

// ErrInvalidMode indicates an unrecognized scope mode.
var ErrInvalidMode = errors.New("invalid scope mode")

// Guard is the single chokepoint between the retrieval tools and the
// store. It resolves a caller-requested namespace into the concrete set
// of namespaces a query may touch, failing closed on anything unknown.
type Guard struct {
	registry *registry.Registry
}

// New creates a Guard over the given namespace registry.
func New(reg *registry.Registry) *Guard {
	return &Guard{registry: reg}
}

// ResolveScope returns the namespace set a content query may touch.
// Unknown namespaces return registry.ErrNamespaceNotFound rather than
// defaulting to an open query. In cross-reference mode the requested
// namespace is ignored and may be empty.
func (g *Guard) ResolveScope(namespace string, mode Mode) ([]string, error) {
	switch mode {
	case ModeCrossReference:
		return g.registry.SharedAndGlobal(), nil
	case ModeStrict:
		if _, err := g.registry.Lookup(namespace); err != nil {
			return nil, err
		}
		return []string{namespace}, nil
	case ModeIncludeShared:
		if _, err := g.registry.Lookup(namespace); err != nil {
			return nil, err
		}
		scope := []string{namespace}
		for _, name := range g.registry.SharedAndGlobal() {
			if name != namespace {
				scope = append(scope, name)
			}
		}
		return scope, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

// ProjectScope returns all isolated namespace names. The cross-reference
// tool uses it to count in how many distinct projects an entity appears;
// only namespace names cross this boundary, never triplet content.
func (g *Guard) ProjectScope() []string {
	return g.registry.Isolated()
}

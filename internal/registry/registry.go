// Package registry holds the static namespace registry. Namespaces are
// declared in configuration, never inferred from data, and the registry
// is immutable for the lifetime of the process; changing the declared
// set requires a restart.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
)

// ErrNamespaceNotFound indicates a reference to an undeclared namespace.
// Callers must fail closed on it, never widen the query.
var ErrNamespaceNotFound = errors.New("namespace not found")

// Registry resolves namespace names to their declared visibility class.
type Registry struct {
	byName  map[string]knowledge.Namespace
	ordered []knowledge.Namespace
}

// New builds a registry from declared namespaces. Duplicate names, empty
// names and unknown visibility classes are rejected.
func New(namespaces []knowledge.Namespace) (*Registry, error) {
	if len(namespaces) == 0 {
		return nil, fmt.Errorf("%w: at least one namespace must be declared", knowledge.ErrValidation)
	}

	r := &Registry{
		byName:  make(map[string]knowledge.Namespace, len(namespaces)),
		ordered: make([]knowledge.Namespace, 0, len(namespaces)),
	}
	for _, ns := range namespaces {
		if ns.Name == "" {
			return nil, fmt.Errorf("%w: namespace name is required", knowledge.ErrValidation)
		}
		if _, err := knowledge.ParseVisibility(string(ns.Visibility)); err != nil {
			return nil, fmt.Errorf("namespace %q: %w", ns.Name, err)
		}
		if _, exists := r.byName[ns.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate namespace %q", knowledge.ErrValidation, ns.Name)
		}
		r.byName[ns.Name] = ns
		r.ordered = append(r.ordered, ns)
	}
	return r, nil
}

// Lookup returns the declared namespace or ErrNamespaceNotFound.
func (r *Registry) Lookup(name string) (knowledge.Namespace, error) {
	ns, ok := r.byName[name]
	if !ok {
		return knowledge.Namespace{}, fmt.Errorf("%w: %q", ErrNamespaceNotFound, name)
	}
	return ns, nil
}

// All returns every declared namespace in declaration order.
func (r *Registry) All() []knowledge.Namespace {
	out := make([]knowledge.Namespace, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// SharedAndGlobal returns the names of all namespaces classified shared
// or global, sorted for deterministic scopes.
func (r *Registry) SharedAndGlobal() []string {
	return r.names(func(v knowledge.Visibility) bool {
		return v == knowledge.VisibilityShared || v == knowledge.VisibilityGlobal
	})
}

// Isolated returns the names of all project-scoped namespaces, sorted.
func (r *Registry) Isolated() []string {
	return r.names(func(v knowledge.Visibility) bool {
		return v == knowledge.VisibilityIsolated
	})
}

func (r *Registry) names(keep func(knowledge.Visibility) bool) []string {
	var out []string
	for _, ns := range r.ordered {
		if keep(ns.Visibility) {
			out = append(out, ns.Name)
		}
	}
	sort.Strings(out)
	return out
}

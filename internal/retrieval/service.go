// Package retrieval implements the fixed read operations exposed to the
// agent. Every content-bearing operation resolves its namespace scope
// through the guard; no operation builds a scope itself.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/embeddings"
	"github.com/fyrsmithlabs/dreamerd/internal/guard"
	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
	"github.com/fyrsmithlabs/dreamerd/internal/registry"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

const (
	// defaultLimit bounds text and entity queries.
	defaultLimit = 25
	// defaultSemanticK is the top-k for semantic search.
	defaultSemanticK = 5
	// crossReferenceLimit bounds the shared-triplet listing a
	// cross-reference pass walks.
	crossReferenceLimit = 500
)

// NamespaceInfo is one row of the namespace listing: declaration plus
// document count, never triplet content.
type NamespaceInfo struct {
	Name        string
	Visibility  knowledge.Visibility
	Description string
	DocCount    int
}

// Reference is one cross-referenced entity: a shared or global entity
// used by at least two distinct project namespaces.
type Reference struct {
	Entity     string
	Namespaces []string
	Triplets   []knowledge.Triplet
}

// Service wires the guard, store, registry and embedding provider into
// the five read operations.
type Service struct {
	guard    *guard.Guard
	store    *store.Store
	registry *registry.Registry
	provider embeddings.Provider
	logger   *zap.Logger
}

// New creates a retrieval Service.
func New(g *guard.Guard, st *store.Store, reg *registry.Registry, provider embeddings.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{guard: g, store: st, registry: reg, provider: provider, logger: logger}
}

// SearchByNamespace is a strict-scope full-text lookup: it never
// returns another namespace's content, shared or otherwise.
func (s *Service) SearchByNamespace(ctx context.Context, namespace, text string) ([]knowledge.Triplet, error) {
	scope, err := s.guard.ResolveScope(namespace, guard.ModeStrict)
	if err != nil {
		return nil, err
	}
	return s.store.QueryText(ctx, scope, text, defaultLimit)
}

// FindEntityRelations returns the triplets touching an entity in the
// project's own namespace plus all shared and global namespaces.
func (s *Service) FindEntityRelations(ctx context.Context, namespace, entity string) ([]knowledge.Triplet, error) {
	scope, err := s.guard.ResolveScope(namespace, guard.ModeIncludeShared)
	if err != nil {
		return nil, err
	}
	return s.store.QueryEntity(ctx, scope, entity, defaultLimit)
}

// ListNamespaces enumerates the declared namespaces with their triplet
// counts. Counts only, so it is safe to leave unscoped.
func (s *Service) ListNamespaces(ctx context.Context) ([]NamespaceInfo, error) {
	counts, err := s.store.CountByNamespace(ctx)
	if err != nil {
		return nil, err
	}

	namespaces := s.registry.All()
	out := make([]NamespaceInfo, len(namespaces))
	for i, ns := range namespaces {
		out[i] = NamespaceInfo{
			Name:        ns.Name,
			Visibility:  ns.Visibility,
			Description: ns.Description,
			DocCount:    counts[ns.Name],
		}
	}
	return out, nil
}

// CrossReference discovers shared and global entities used by at least
// two distinct project namespaces. An entity counts as used by a
// project when one of its shared triplets names that project as head
// or tail (Jenkins SERVES Project_Alpha) or when the entity appears in
// the project's own triplets. Only shared/global triplet content is
// returned; the project namespaces contribute nothing but their names.
func (s *Service) CrossReference(ctx context.Context) ([]Reference, error) {
	scope, err := s.guard.ResolveScope("", guard.ModeCrossReference)
	if err != nil {
		return nil, err
	}
	projects := s.guard.ProjectScope()
	if len(scope) == 0 || len(projects) < 2 {
		// Fewer than two projects cannot share anything.
		return nil, nil
	}
	projectSet := make(map[string]bool, len(projects))
	for _, p := range projects {
		projectSet[p] = true
	}

	shared, err := s.store.ListTriplets(ctx, scope, crossReferenceLimit)
	if err != nil {
		return nil, err
	}

	byEntity := make(map[string][]knowledge.Triplet)
	for _, t := range shared {
		byEntity[t.Head] = append(byEntity[t.Head], t)
		if t.Tail != t.Head {
			byEntity[t.Tail] = append(byEntity[t.Tail], t)
		}
	}

	var refs []Reference
	for entity, triplets := range byEntity {
		// Namespace names occur as graph entities too (SERVES and
		// DEPENDS_ON edges). They are contexts, not shared resources.
		if _, err := s.registry.Lookup(entity); err == nil {
			continue
		}

		connected := make(map[string]bool)
		for _, t := range triplets {
			if t.Head != entity && projectSet[t.Head] {
				connected[t.Head] = true
			}
			if t.Tail != entity && projectSet[t.Tail] {
				connected[t.Tail] = true
			}
		}
		stored, err := s.store.EntityNamespaces(ctx, projects, entity)
		if err != nil {
			return nil, err
		}
		for _, ns := range stored {
			connected[ns] = true
		}
		if len(connected) < 2 {
			continue
		}

		namespaces := make([]string, 0, len(connected))
		for ns := range connected {
			namespaces = append(namespaces, ns)
		}
		sort.Strings(namespaces)
		refs = append(refs, Reference{
			Entity:     entity,
			Namespaces: namespaces,
			Triplets:   triplets,
		})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Entity < refs[j].Entity })
	return refs, nil
}

// SearchSemantic embeds the query text and runs a strict-scope top-k
// similarity search. Embedding failures surface to the caller; retries
// belong to the consolidation worker, not the read path. Only dreamed
// triplets can appear in the results.
func (s *Service) SearchSemantic(ctx context.Context, namespace, queryText string, k int) ([]store.ScoredTriplet, error) {
	if k <= 0 {
		k = defaultSemanticK
	}

	scope, err := s.guard.ResolveScope(namespace, guard.ModeStrict)
	if err != nil {
		return nil, err
	}

	embedding, err := s.provider.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return s.store.QueryVector(ctx, scope, embedding, k)
}

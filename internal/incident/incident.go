// Package incident records operational incidents against a project
// namespace and enriches each record with the shared infrastructure
// the project depends on, so an operator can see the blast radius
// without querying other projects.
package incident

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
	"github.com/fyrsmithlabs/dreamerd/internal/registry"
	"github.com/fyrsmithlabs/dreamerd/internal/retrieval"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

const defaultListLimit = 50

// Service appends incidents to the journal. Records are never updated
// or deleted once written.
type Service struct {
	store     *store.Store
	registry  *registry.Registry
	retrieval *retrieval.Service
	logger    *zap.Logger
}

// New creates an incident Service.
func New(st *store.Store, reg *registry.Registry, ret *retrieval.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, registry: reg, retrieval: ret, logger: logger}
}

// LogIncident validates the namespace, resolves which shared entities
// the project shares with at least one other project, and appends the
// incident. A cross-reference failure degrades to an empty affected
// list rather than losing the record.
func (s *Service) LogIncident(ctx context.Context, namespace, severity, description string) (knowledge.Incident, error) {
	if _, err := s.registry.Lookup(namespace); err != nil {
		return knowledge.Incident{}, err
	}

	inc := knowledge.Incident{
		Namespace:   namespace,
		Severity:    severity,
		Description: description,
	}

	refs, err := s.retrieval.CrossReference(ctx)
	if err != nil {
		s.logger.Warn("cross-reference unavailable, recording incident without affected resources",
			zap.String("namespace", namespace),
			zap.Error(err))
	} else {
		inc.AffectedSharedResources = affectedResources(refs, namespace)
	}

	id, err := s.store.PutIncident(ctx, &inc)
	if err != nil {
		return knowledge.Incident{}, fmt.Errorf("recording incident: %w", err)
	}

	s.logger.Info("incident recorded",
		zap.String("incident_id", id),
		zap.String("namespace", namespace),
		zap.String("severity", severity),
		zap.Int("affected_shared_resources", len(inc.AffectedSharedResources)))
	return inc, nil
}

// ListIncidents returns the recorded incidents for a namespace, newest
// first.
func (s *Service) ListIncidents(ctx context.Context, namespace string) ([]knowledge.Incident, error) {
	if _, err := s.registry.Lookup(namespace); err != nil {
		return nil, err
	}
	return s.store.ListIncidents(ctx, namespace, defaultListLimit)
}

// affectedResources keeps the cross-referenced entities whose usage
// spans the incident's namespace.
func affectedResources(refs []retrieval.Reference, namespace string) []string {
	var out []string
	for _, ref := range refs {
		for _, ns := range ref.Namespaces {
			if ns == namespace {
				out = append(out, ref.Entity)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Package gateway is the synchronous write path. It validates a triplet,
// persists it as raw, wakes the consolidation workers, and returns. It
// never waits on embedding.
package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
	"github.com/fyrsmithlabs/dreamerd/internal/queue"
	"github.com/fyrsmithlabs/dreamerd/internal/registry"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

// IngestRequest carries one new triplet.
type IngestRequest struct {
	Head      string
	Relation  string
	Tail      string
	Namespace string
	Note      string
}

// Gateway accepts new triplets into the knowledge graph.
type Gateway struct {
	store    *store.Store
	registry *registry.Registry
	signaler queue.Signaler
	logger   *zap.Logger
}

// New creates a Gateway.
func New(st *store.Store, reg *registry.Registry, signaler queue.Signaler, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: st, registry: reg, signaler: signaler, logger: logger}
}

// Ingest validates and persists a raw triplet, returning its id. The
// namespace must be declared in the registry; unknown namespaces fail
// closed before anything is written. The wake signal is best-effort:
// the periodic due-scan guarantees consolidation even if it is lost.
func (g *Gateway) Ingest(ctx context.Context, req IngestRequest) (string, error) {
	t := knowledge.Triplet{
		Head:      req.Head,
		Relation:  req.Relation,
		Tail:      req.Tail,
		Namespace: req.Namespace,
		Note:      req.Note,
	}
	if err := t.Validate(); err != nil {
		return "", err
	}
	if _, err := g.registry.Lookup(req.Namespace); err != nil {
		return "", err
	}

	id, err := g.store.PutTriplet(ctx, &t)
	if err != nil {
		return "", err
	}

	if err := g.signaler.Signal(ctx); err != nil {
		g.logger.Warn("failed to signal consolidation workers",
			zap.String("triplet_id", id),
			zap.Error(err),
		)
	}

	g.logger.Debug("triplet ingested",
		zap.String("triplet_id", id),
		zap.String("namespace", req.Namespace),
		zap.String("head", req.Head),
		zap.String("relation", req.Relation),
		zap.String("tail", req.Tail),
	)
	return id, nil
}

// Package store is the knowledge store facade: a SQLite journal holding
// every triplet and incident, plus a chromem-go vector index holding the
// dreamed triplets. Content queries require an explicit, non-empty
// namespace set; there is no path that queries across all namespaces by
// default.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
)

var (
	// ErrStoreUnavailable indicates the underlying store failed.
	// Operations fail fast; there is no fallback to partial data,
	// because isolation correctness must never be approximated.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmptyScope indicates a content query with no namespace set.
	ErrEmptyScope = errors.New("empty namespace scope")

	// ErrTripletNotFound indicates an unknown triplet id.
	ErrTripletNotFound = errors.New("triplet not found")
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/dreamerd/internal/store")

// ScoredTriplet pairs a triplet with its similarity score.
type ScoredTriplet struct {
	Triplet knowledge.Triplet
	Score   float32
}

// Store combines the journal and the vector index behind the domain
// operations. All mutation is per-document; no cross-document
// transactions are needed or offered.
type Store struct {
	journal *Journal
	index   *Index
	logger  *zap.Logger
}

// New creates a Store over an opened journal and index.
func New(journal *Journal, index *Index, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{journal: journal, index: index, logger: logger}
}

// PutTriplet validates and inserts a new raw triplet, returning its id.
func (s *Store) PutTriplet(ctx context.Context, t *knowledge.Triplet) (string, error) {
	ctx, span := tracer.Start(ctx, "Store.PutTriplet")
	defer span.End()

	if err := t.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if t.ID == "" {
		t.ID = knowledge.NewTripletID()
	}
	t.Status = knowledge.StatusRaw
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if err := s.journal.InsertTriplet(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(
		attribute.String("triplet_id", t.ID),
		attribute.String("namespace", t.Namespace),
	)
	return t.ID, nil
}

// GetTriplet returns a triplet by id.
func (s *Store) GetTriplet(ctx context.Context, id string) (knowledge.Triplet, error) {
	return s.journal.GetTriplet(ctx, id)
}

// MarkDreamed transitions a triplet to dreamed and publishes it to the
// vector index. Idempotent: a triplet that is already dreamed is left
// untouched, including its index entry.
func (s *Store) MarkDreamed(ctx context.Context, id string, embedding []float32) error {
	ctx, span := tracer.Start(ctx, "Store.MarkDreamed")
	defer span.End()
	span.SetAttributes(attribute.String("triplet_id", id))

	changed, err := s.journal.MarkDreamed(ctx, id, embedding, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !changed {
		return nil
	}

	t, err := s.journal.GetTriplet(ctx, id)
	if err != nil {
		return err
	}
	if err := s.index.Add(ctx, t.ID, t.Content(), t.Namespace, embedding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// RehydrateIndex republishes every dreamed triplet to the vector
// index. Run at startup: the journal survives a restart but the index
// may not, and a crash between the journal update and the index
// publish in MarkDreamed leaves the same gap. Re-adding an indexed
// triplet overwrites it in place, so the rebuild is idempotent.
func (s *Store) RehydrateIndex(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.RehydrateIndex")
	defer span.End()

	dreamed, err := s.journal.DreamedTriplets(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	restored := 0
	for _, t := range dreamed {
		if err := s.index.Add(ctx, t.ID, t.Content(), t.Namespace, t.Embedding); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return restored, err
		}
		restored++
	}

	span.SetAttributes(attribute.Int("restored", restored))
	if restored > 0 {
		s.logger.Info("vector index rehydrated", zap.Int("triplets", restored))
	}
	return restored, nil
}

// MarkFailed records a transient consolidation failure.
func (s *Store) MarkFailed(ctx context.Context, id string, retryCount int, lastErr string, nextAttempt time.Time) error {
	return s.journal.MarkFailed(ctx, id, retryCount, lastErr, nextAttempt)
}

// MarkDreamFailed transitions a triplet to the terminal failed state.
func (s *Store) MarkDreamFailed(ctx context.Context, id string, lastErr string) error {
	return s.journal.MarkDreamFailed(ctx, id, lastErr)
}

// Requeue resets a dream_failed triplet to raw. Operator-triggered;
// nothing requeues automatically after retries are exhausted.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.journal.Requeue(ctx, id, time.Now().UTC())
}

// ClaimDue claims up to n due raw triplets for consolidation.
func (s *Store) ClaimDue(ctx context.Context, n int, ttl time.Duration) ([]knowledge.Triplet, error) {
	return s.journal.ClaimDue(ctx, n, ttl, time.Now().UTC())
}

// QueryText is a full-text match restricted to the namespace set.
func (s *Store) QueryText(ctx context.Context, namespaces []string, text string, limit int) ([]knowledge.Triplet, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	return s.journal.QueryText(ctx, namespaces, text, limit)
}

// QueryEntity returns triplets where entity appears as head or tail,
// restricted to the namespace set.
func (s *Store) QueryEntity(ctx context.Context, namespaces []string, entity string, limit int) ([]knowledge.Triplet, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	return s.journal.QueryEntity(ctx, namespaces, entity, limit)
}

// ListTriplets returns all triplets in the namespace set.
func (s *Store) ListTriplets(ctx context.Context, namespaces []string, limit int) ([]knowledge.Triplet, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	return s.journal.ListTriplets(ctx, namespaces, limit)
}

// EntityNamespaces reports in which of the given namespaces an entity
// appears.
func (s *Store) EntityNamespaces(ctx context.Context, namespaces []string, entity string) ([]string, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	return s.journal.EntityNamespaces(ctx, namespaces, entity)
}

// QueryVector is a top-k similarity search restricted to the namespace
// set. Only dreamed triplets are indexed, so raw and dream_failed
// triplets cannot appear in the results.
func (s *Store) QueryVector(ctx context.Context, namespaces []string, embedding []float32, k int) ([]ScoredTriplet, error) {
	ctx, span := tracer.Start(ctx, "Store.QueryVector")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k), attribute.Int("scope_size", len(namespaces)))

	if len(namespaces) == 0 {
		span.SetStatus(codes.Error, ErrEmptyScope.Error())
		return nil, ErrEmptyScope
	}

	hits, err := s.index.Query(ctx, namespaces, embedding, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]ScoredTriplet, 0, len(hits))
	for _, hit := range hits {
		t, err := s.journal.GetTriplet(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, ErrTripletNotFound) {
				// Index entry without a journal row; skip rather than fail
				// the whole query.
				s.logger.Warn("indexed triplet missing from journal", zap.String("triplet_id", hit.ID))
				continue
			}
			return nil, err
		}
		if t.Status != knowledge.StatusDreamed {
			continue
		}
		results = append(results, ScoredTriplet{Triplet: t, Score: hit.Score})
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

// CountByNamespace returns triplet counts per namespace. Counts only,
// never triplet content, so safe to leave unscoped.
func (s *Store) CountByNamespace(ctx context.Context) (map[string]int, error) {
	return s.journal.CountByNamespace(ctx)
}

// PutIncident validates and appends an incident record.
func (s *Store) PutIncident(ctx context.Context, inc *knowledge.Incident) (string, error) {
	if err := inc.Validate(); err != nil {
		return "", err
	}
	if inc.ID == "" {
		inc.ID = knowledge.NewIncidentID()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	if err := s.journal.InsertIncident(ctx, inc); err != nil {
		return "", err
	}
	return inc.ID, nil
}

// ListIncidents returns incidents for a namespace, newest first.
func (s *Store) ListIncidents(ctx context.Context, namespace string, limit int) ([]knowledge.Incident, error) {
	return s.journal.ListIncidents(ctx, namespace, limit)
}

// Close releases the journal.
func (s *Store) Close() error {
	if err := s.journal.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}

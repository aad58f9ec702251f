package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// IndexConfig configures the vector index.
type IndexConfig struct {
	// Path is the persistence directory. Empty means in-memory.
	Path string `koanf:"path"`
	// Compress enables gzip compression of persisted documents.
	Compress bool `koanf:"compress"`
	// Collection is the collection name holding dreamed triplets.
	Collection string `koanf:"collection"`
}

// ApplyDefaults fills in zero values.
func (c *IndexConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "triplets"
	}
}

// Index holds the dreamed triplets in a chromem-go collection. Only
// dreamed triplets enter it, so semantic search excludes raw and
// dream_failed triplets by construction. The namespace travels in the
// document metadata and every query filters on it.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// ScoredEntry is one vector search hit.
type ScoredEntry struct {
	ID    string
	Score float32
}

// NewIndex creates the vector index, persistent when cfg.Path is set.
func NewIndex(cfg IndexConfig, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("creating index directory %s: %w", cfg.Path, err)
		}
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: creating index: %v", ErrStoreUnavailable, err)
		}
	}

	// Embeddings are always supplied explicitly, so the collection's
	// embedding func must never run.
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("index received a document without an embedding")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating collection: %v", ErrStoreUnavailable, err)
	}

	logger.Info("vector index opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
	)
	return &Index{db: db, collection: collection, logger: logger}, nil
}

// Add inserts or overwrites a document with an explicit embedding.
func (i *Index) Add(ctx context.Context, id, content, namespace string, embedding []float32) error {
	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]string{"namespace": namespace},
	}
	if err := i.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("%w: adding document: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Query runs a kNN search per namespace and merges the hits by score.
// chromem filters support a single metadata value per query, so a
// multi-namespace scope fans out to one query per namespace.
func (i *Index) Query(ctx context.Context, namespaces []string, embedding []float32, k int) ([]ScoredEntry, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	var merged []ScoredEntry
	for _, ns := range namespaces {
		hits, err := i.queryNamespace(ctx, ns, embedding, k)
		if err != nil {
			return nil, err
		}
		merged = append(merged, hits...)
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Score > merged[b].Score
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (i *Index) queryNamespace(ctx context.Context, namespace string, embedding []float32, k int) ([]ScoredEntry, error) {
	n := k
	if count := i.collection.Count(); n > count {
		n = count
	}

	// chromem rejects nResults greater than the filtered document count,
	// which we cannot know up front. Back off until the query fits.
	for n > 0 {
		results, err := i.collection.QueryEmbedding(ctx, embedding, n, map[string]string{"namespace": namespace}, nil)
		if err != nil {
			if strings.Contains(err.Error(), "nResults") {
				n--
				continue
			}
			return nil, fmt.Errorf("%w: vector query: %v", ErrStoreUnavailable, err)
		}
		hits := make([]ScoredEntry, len(results))
		for j, r := range results {
			hits[j] = ScoredEntry{ID: r.ID, Score: r.Similarity}
		}
		return hits, nil
	}
	return nil, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() int {
	return i.collection.Count()
}

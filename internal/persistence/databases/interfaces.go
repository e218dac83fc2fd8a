// Package databases holds the pluggable VectorStore backends behind
// persistence.Store (memory, pgvector, Qdrant) plus MapStore and
// PostgresStore, the two concrete Store implementations.
package databases

import "context"

// VectorResult represents a single nearest-neighbor lookup result.
// Higher Score is closer. Under the cosine metric Score is cosine
// similarity in [-1, 1]; the pgvector l2 and inner-product metrics
// report the negated distance instead.
type VectorResult struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorStore is the minimum interface for a pluggable embedding index,
// keyed by the owning entity's id and tagged with string metadata for
// post-filtering (kind, field, organization_id).
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}

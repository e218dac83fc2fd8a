package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mirix/internal/config"
	"mirix/internal/persistence"
)

// NewStore resolves the configured persistence backend: the in-memory
// MapStore by default, or a pooled PostgresStore indexing embeddings
// into pgvector over the same pool.
func NewStore(ctx context.Context, cfg config.VectorConfig) (persistence.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMapStore(), nil
	case "postgres", "pgvector", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store backend %q requires a dsn", cfg.Backend)
		}
		pool, err := newPgPool(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres (store): %w", err)
		}
		vectors := NewPostgresVector(pool, cfg.Dimensions, cfg.Metric)
		return NewPostgresStore(ctx, pool, vectors)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (qdrant vector indexing requires a postgres entity DSN; run with backend=postgres and point cfg.Vector at qdrant separately)", cfg.Backend)
	}
}

// NewVectorStore resolves the configured vector backend: memory,
// pgvector, or qdrant.
func NewVectorStore(ctx context.Context, cfg config.VectorConfig) (VectorStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryVector(), nil
	case "postgres", "pgvector", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vector backend %q requires a dsn", cfg.Backend)
		}
		pool, err := newPgPool(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres (vector): %w", err)
		}
		return NewPostgresVector(pool, cfg.Dimensions, cfg.Metric), nil
	case "qdrant":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vector backend qdrant requires a dsn")
		}
		return NewQdrantVector(cfg.DSN, cfg.Collection, cfg.Dimensions, cfg.Metric)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Backend)
	}
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 8
	pcfg.MinConns = 0
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

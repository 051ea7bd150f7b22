package classification

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Repository persists the group-embedding cache in Postgres.
type Repository struct {
	db bun.IDB
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

// BatchGet returns the cached, still-live vectors for the given keys.
// Missing or expired keys are simply absent from the result map.
func (r *Repository) BatchGet(ctx context.Context, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var rows []embeddingCacheEntry
	err := r.db.NewSelect().
		Model(&rows).
		Where("key IN (?)", bun.In(keys)).
		Where("expires_at > ?", time.Now().UTC()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Key] = row.Vector
	}
	return out, nil
}

// BatchPut upserts a batch of freshly computed embeddings with a fixed TTL.
func (r *Repository) BatchPut(ctx context.Context, vectors map[string][]float32, ttl time.Duration) error {
	if len(vectors) == 0 {
		return nil
	}
	expiresAt := time.Now().UTC().Add(ttl)
	rows := make([]embeddingCacheEntry, 0, len(vectors))
	for key, vec := range vectors {
		rows = append(rows, embeddingCacheEntry{Key: key, Vector: vec, ExpiresAt: expiresAt})
	}

	_, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT (key) DO UPDATE").
		Set("vector = EXCLUDED.vector").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

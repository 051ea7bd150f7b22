// Package classification implements SmartClassifier (spec.md §4.8): deciding
// which of a project's field groups apply to a page before the orchestrator
// spends LLM calls on it.
package classification

import (
	"time"

	"github.com/uptrace/bun"
)

// embeddingCacheEntry is a content-addressed group-embedding cache row. Keys
// are a hash of the text that was embedded, so identical group definitions
// across projects share a cache entry. There is no ecosystem key-value
// store in the example pack (no redis/ristretto/bigcache client appears in
// any _examples go.mod), so the cache is a plain Postgres table reusing the
// same bun.IDB already open for every other domain table, following the
// TTL'd-row pattern internal/llmqueue uses for queued responses.
type embeddingCacheEntry struct {
	bun.BaseModel `bun:"table:ke.classifier_cache,alias:cc"`

	Key       string    `bun:"key,pk" json:"key"`
	Vector    []float32 `bun:"vector,type:jsonb" json:"vector"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

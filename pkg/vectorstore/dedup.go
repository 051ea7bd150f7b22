package vectorstore

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/embeddings"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
	"go.uber.org/fx"
)

// DuplicateResult is the Deduplicator contract's response (spec.md §4.7).
type DuplicateResult struct {
	IsDuplicate bool
	SimilarID   string
	Score       float32
}

// Deduplicator is the vector-similarity duplicate detector: embed the text,
// search the single best match scoped to (project, source_group), and
// compare against a threshold (default 0.90, inclusive).
type Deduplicator struct {
	store      *Store
	embeddings *embeddings.Service
	threshold  float64
	log        *slog.Logger
}

// DeduplicatorModule wires Deduplicator into the fx graph.
var DeduplicatorModule = fx.Module("deduplicator",
	fx.Provide(NewDeduplicator),
)

// NewDeduplicator constructs a Deduplicator using the configured
// KE_DEDUP_THRESHOLD (default 0.90).
func NewDeduplicator(store *Store, embSvc *embeddings.Service, cfg *config.Config, log *slog.Logger) *Deduplicator {
	return &Deduplicator{
		store:      store,
		embeddings: embSvc,
		threshold:  cfg.KE.DedupThreshold,
		log:        log.With(logger.Scope("deduplicator")),
	}
}

// CheckDuplicate embeds text and searches within {project_id, source_group};
// a score ≥ threshold (inclusive) is a duplicate (spec.md §4.7, §8 boundary:
// "a similarity of exactly threshold counts as a duplicate").
func (d *Deduplicator) CheckDuplicate(ctx context.Context, projectID, sourceGroup, text string) (DuplicateResult, error) {
	vector, err := d.embeddings.EmbedQuery(ctx, text)
	if err != nil {
		return DuplicateResult{}, err
	}
	if len(vector) == 0 {
		return DuplicateResult{}, nil
	}

	match, err := d.store.SearchTop1(ctx, vector, Filter{
		"project_id":   projectID,
		"source_group": sourceGroup,
	})
	if err != nil {
		return DuplicateResult{}, err
	}
	if match == nil {
		return DuplicateResult{}, nil
	}

	isDup := float64(match.Score) >= d.threshold
	return DuplicateResult{
		IsDuplicate: isDup,
		SimilarID:   match.ID,
		Score:       match.Score,
	}, nil
}

// UpsertExtraction embeds text and idempotently upserts it by extractionID,
// the point id a retry re-embeds and re-upserts (spec.md §5).
func (d *Deduplicator) UpsertExtraction(ctx context.Context, extractionID, projectID, sourceGroup, extractionType, text string) error {
	vector, err := d.embeddings.EmbedQuery(ctx, text)
	if err != nil {
		return err
	}
	if len(vector) == 0 {
		return nil
	}

	if _, err := uuid.Parse(extractionID); err != nil {
		return err
	}

	return d.store.Upsert(ctx, Point{
		ID:     extractionID,
		Vector: vector,
		Payload: map[string]any{
			"project_id":      projectID,
			"source_group":    sourceGroup,
			"extraction_type": extractionType,
		},
	})
}

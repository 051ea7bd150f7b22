package extractions

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

const (
	// DefaultLimit is the default number of extractions returned by List.
	DefaultLimit = 100
	// MaxLimit is the maximum number of extractions returned by List.
	MaxLimit = 500
)

// Service handles business logic for extractions.
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new extraction service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("extractions.svc")),
	}
}

// List returns extractions for a project, filtered and clamped.
func (s *Service) List(ctx context.Context, params ListParams) ([]Extraction, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	return s.repo.List(ctx, params)
}

// Create persists a new extraction within the given transactional handle
// (or the default connection when db is nil), used by ExtractionPipeline so
// that an extraction's creation, embedding, and vector upsert can share a
// unit of work when the caller requires it.
func (s *Service) Create(ctx context.Context, db bun.IDB, extraction *Extraction) error {
	return s.repo.Create(ctx, db, extraction)
}

// SetEmbeddingID records the vector-store point id for an extraction.
func (s *Service) SetEmbeddingID(ctx context.Context, id, embeddingID string) error {
	return s.repo.SetEmbeddingID(ctx, id, embeddingID)
}

// MarkEntitiesExtracted flips entities_extracted once every entity call for
// the extraction has succeeded.
func (s *Service) MarkEntitiesExtracted(ctx context.Context, id string) error {
	return s.repo.MarkEntitiesExtracted(ctx, id)
}

// CountByProject returns the total number of extractions for a project.
func (s *Service) CountByProject(ctx context.Context, projectID string) (int, error) {
	return s.repo.CountByProject(ctx, projectID)
}

package extractions

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Repository handles database operations for extractions.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new extraction repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("extractions.repo")),
	}
}

// List returns extractions matching params.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Extraction, error) {
	var rows []Extraction

	query := r.db.NewSelect().Model(&rows).
		Where("project_id = ?", params.ProjectID).
		Order("created_at DESC")

	if params.SourceID != "" {
		query = query.Where("source_id = ?", params.SourceID)
	}
	if params.ExtractionType != "" {
		query = query.Where("extraction_type = ?", params.ExtractionType)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}

	if err := query.Scan(ctx); err != nil {
		r.log.Error("failed to list extractions", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return rows, nil
}

// Create inserts a new extraction. Extractions are never updated except the
// entities_extracted flag (spec.md §3 lifecycle).
func (r *Repository) Create(ctx context.Context, db bun.IDB, extraction *Extraction) error {
	if db == nil {
		db = r.db
	}
	_, err := db.NewInsert().Model(extraction).Exec(ctx)
	if err != nil {
		r.log.Error("failed to create extraction", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetEmbeddingID records the vector-store point id for an extraction after
// upsert.
func (r *Repository) SetEmbeddingID(ctx context.Context, id, embeddingID string) error {
	_, err := r.db.NewUpdate().Model((*Extraction)(nil)).
		Set("embedding_id = ?", embeddingID).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to set embedding id", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// MarkEntitiesExtracted flips the entities_extracted flag once every entity
// call for the extraction has succeeded.
func (r *Repository) MarkEntitiesExtracted(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().Model((*Extraction)(nil)).
		Set("entities_extracted = true").
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to mark entities extracted", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// CountByProject returns the total number of extractions for a project.
func (r *Repository) CountByProject(ctx context.Context, projectID string) (int, error) {
	count, err := r.db.NewSelect().Model((*Extraction)(nil)).
		Where("project_id = ?", projectID).
		Count(ctx)
	if err != nil {
		r.log.Error("failed to count extractions", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return count, nil
}

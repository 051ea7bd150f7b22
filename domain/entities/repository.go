package entities

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
	"github.com/uptrace/bun"
)

// Repository handles database operations for entities and their extraction
// links.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new entity repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("entities.repo")),
	}
}

// ListParams filters an entity listing.
type ListParams struct {
	ProjectID  string
	EntityType string
	Limit      int
	Offset     int
}

// List returns entities for a project, optionally filtered by type.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Entity, error) {
	var rows []Entity

	query := r.db.NewSelect().Model(&rows).
		Where("project_id = ?", params.ProjectID).
		Order("created_at DESC")

	if params.EntityType != "" {
		query = query.Where("entity_type = ?", params.EntityType)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}

	if err := query.Scan(ctx); err != nil {
		r.log.Error("failed to list entities", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return rows, nil
}

// TypeSummary returns per-type entity counts for a project.
func (r *Repository) TypeSummary(ctx context.Context, projectID string) ([]TypeSummary, error) {
	var rows []TypeSummary

	err := r.db.NewSelect().Model((*Entity)(nil)).
		Column("entity_type").
		ColumnExpr("COUNT(*) AS count").
		Where("project_id = ?", projectID).
		Group("entity_type").
		Order("count DESC").
		Scan(ctx, &rows)
	if err != nil {
		r.log.Error("failed to summarize entity types", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return rows, nil
}

// GetByNaturalKey finds the entity matching the (project, source group,
// type, normalised value) uniqueness key, or nil.
func (r *Repository) GetByNaturalKey(ctx context.Context, projectID, sourceGroup, entityType, normalizedValue string) (*Entity, error) {
	var row Entity

	err := r.db.NewSelect().Model(&row).
		Where("project_id = ?", projectID).
		Where("source_group = ?", sourceGroup).
		Where("entity_type = ?", entityType).
		Where("normalized_value = ?", normalizedValue).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get entity by natural key", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return &row, nil
}

// GetOrCreate returns the existing entity for the natural key, or inserts a
// new one, racing safely against concurrent inserts via the unique
// constraint and a re-fetch on conflict.
func (r *Repository) GetOrCreate(ctx context.Context, entity *Entity) (*Entity, error) {
	existing, err := r.GetByNaturalKey(ctx, entity.ProjectID, entity.SourceGroup, entity.EntityType, entity.NormalizedValue)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	_, err = r.db.NewInsert().Model(entity).
		On("CONFLICT (project_id, source_group, entity_type, normalized_value) DO NOTHING").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to create entity", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if entity.ID != "" {
		return entity, nil
	}

	// Conflicted: another writer won the race, fetch what they created.
	return r.GetByNaturalKey(ctx, entity.ProjectID, entity.SourceGroup, entity.EntityType, entity.NormalizedValue)
}

// LinkGetOrCreate links an entity to an extraction, get-or-create on the
// (entity_id, extraction_id) pair.
func (r *Repository) LinkGetOrCreate(ctx context.Context, entityID, extractionID string) error {
	exists, err := r.db.NewSelect().Model((*ExtractionEntity)(nil)).
		Where("entity_id = ?", entityID).
		Where("extraction_id = ?", extractionID).
		Exists(ctx)
	if err != nil {
		r.log.Error("failed to check extraction-entity link", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	if exists {
		return nil
	}

	link := &ExtractionEntity{EntityID: entityID, ExtractionID: extractionID}
	_, err = r.db.NewInsert().Model(link).
		On("CONFLICT (entity_id, extraction_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to create extraction-entity link", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

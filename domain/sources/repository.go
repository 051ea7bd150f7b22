package sources

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Repository handles database operations for sources.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new source repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("sources.repo")),
	}
}

// List returns sources for a project, optionally filtered by status.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Source, error) {
	var rows []Source

	query := r.db.NewSelect().
		Model(&rows).
		Where("project_id = ?", params.ProjectID).
		Order("created_at DESC")

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}

	if err := query.Scan(ctx); err != nil {
		r.log.Error("failed to list sources", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return rows, nil
}

// GetByID returns a source by ID, or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*Source, error) {
	var row Source

	err := r.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get source", logger.Error(err), slog.String("id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return &row, nil
}

// GetByURI returns the source matching (project_id, uri), or nil.
func (r *Repository) GetByURI(ctx context.Context, projectID, uri string) (*Source, error) {
	var row Source

	err := r.db.NewSelect().Model(&row).
		Where("project_id = ?", projectID).
		Where("uri = ?", uri).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get source by uri", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return &row, nil
}

// Create inserts a new source.
func (r *Repository) Create(ctx context.Context, source *Source) error {
	_, err := r.db.NewInsert().Model(source).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(400, "duplicate", "a source with this URI already exists in this project")
		}
		r.log.Error("failed to create source", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Update persists changes to an existing source.
func (r *Repository) Update(ctx context.Context, source *Source) error {
	_, err := r.db.NewUpdate().Model(source).WherePK().Exec(ctx)
	if err != nil {
		r.log.Error("failed to update source", logger.Error(err), slog.String("id", source.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// UpdateStatus transitions a source to a new status, optionally recording an
// error message (StatusFailed) and clearing it otherwise.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, errMsg *string) error {
	_, err := r.db.NewUpdate().
		Model((*Source)(nil)).
		Set("status = ?", status).
		Set("error_message = ?", errMsg).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to update source status", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Delete permanently deletes a source and reports whether a row was removed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.NewDelete().Model((*Source)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete source", logger.Error(err), slog.String("id", id))
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// ListPendingExtraction returns sources ready for extraction that are not in
// excludeIDs (used by ExtractionPipeline's resume_from skip-set, spec.md §4.5).
func (r *Repository) ListPendingExtraction(ctx context.Context, projectID string, excludeIDs []string, limit int) ([]Source, error) {
	var rows []Source

	query := r.db.NewSelect().
		Model(&rows).
		Where("project_id = ?", projectID).
		Where("status = ?", StatusReady).
		Order("created_at ASC")

	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN (?)", bun.In(excludeIDs))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Scan(ctx); err != nil {
		r.log.Error("failed to list pending sources", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return rows, nil
}

func isUniqueViolation(err error) bool {
	return containsErrorCode(err, "23505")
}

func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return len(errStr) > 0 && (strings.Contains(errStr, code) || strings.Contains(errStr, "SQLSTATE "+code))
}

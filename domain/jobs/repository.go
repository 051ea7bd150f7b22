package jobs

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Repository handles database operations for jobs.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new job repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("jobs.repo")),
	}
}

// Create inserts a new job in the queued state.
func (r *Repository) Create(ctx context.Context, job *Job) error {
	_, err := r.db.NewInsert().Model(job).Exec(ctx)
	if err != nil {
		r.log.Error("failed to create job", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// GetByID returns a job by ID, or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*Job, error) {
	var row Job

	err := r.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get job", logger.Error(err), slog.String("id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return &row, nil
}

// List returns jobs, optionally filtered by project and status.
func (r *Repository) List(ctx context.Context, projectID string, status Status, limit int) ([]Job, error) {
	var rows []Job

	query := r.db.NewSelect().Model(&rows).Order("created_at DESC")
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Scan(ctx); err != nil {
		r.log.Error("failed to list jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return rows, nil
}

// UpdateStatus transitions a job to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	_, err := r.db.NewUpdate().Model((*Job)(nil)).
		Set("status = ?", status).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to update job status", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// CommitCheckpoint atomically persists a job's checkpoint under db, so that
// extractions written earlier in the same transaction and the checkpoint
// update commit or roll back as a unit (spec.md §4.5/§5).
func (r *Repository) CommitCheckpoint(ctx context.Context, db bun.IDB, id string, cp Checkpoint) error {
	if db == nil {
		db = r.db
	}

	job, err := r.getForUpdate(ctx, db, id)
	if err != nil {
		return err
	}
	if job == nil {
		return apperror.ErrNotFound.WithMessage("job not found")
	}

	job.SetCheckpoint(cp)

	_, err = db.NewUpdate().Model(job).
		Column("payload", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to commit checkpoint", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) getForUpdate(ctx context.Context, db bun.IDB, id string) (*Job, error) {
	var row Job
	err := db.NewSelect().Model(&row).Where("id = ?", id).For("UPDATE").Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &row, nil
}

// Complete sets a job to the terminal status the caller passes in and
// records its result/error.
func (r *Repository) Complete(ctx context.Context, id string, status Status, result JSON, errMsg *string) error {
	_, err := r.db.NewUpdate().Model((*Job)(nil)).
		Set("status = ?", status).
		Set("result = ?", result).
		Set("error = ?", errMsg).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to complete job", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

package projects

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Repository handles database operations for projects.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new project repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("projects.repo")),
	}
}

// ListParams defines parameters for listing projects.
type ListParams struct {
	IncludeStats bool
	Limit        int
}

// withStats adds the aggregate stat columns to a select when stats are requested.
func withStats(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		ColumnExpr("p.*").
		ColumnExpr("(SELECT COUNT(*) FROM ke.sources WHERE project_id = p.id) AS source_count").
		ColumnExpr("(SELECT COUNT(*) FROM ke.extractions WHERE project_id = p.id) AS extraction_count").
		ColumnExpr("(SELECT COUNT(DISTINCT e.id) FROM ke.entities e WHERE e.project_id = p.id) AS entity_count").
		ColumnExpr("(SELECT COUNT(*) FROM ke.jobs WHERE project_id = p.id) AS total_jobs").
		ColumnExpr("(SELECT COUNT(*) FROM ke.jobs WHERE project_id = p.id AND status = 'running') AS running_jobs").
		ColumnExpr("(SELECT COUNT(*) FROM ke.jobs WHERE project_id = p.id AND status = 'queued') AS queued_jobs")
}

// projectWithStats is used internally for scanning queries with stats.
type projectWithStats struct {
	Project

	SourceCount     int `bun:"source_count"`
	ExtractionCount int `bun:"extraction_count"`
	EntityCount     int `bun:"entity_count"`
	TotalJobs       int `bun:"total_jobs"`
	RunningJobs     int `bun:"running_jobs"`
	QueuedJobs      int `bun:"queued_jobs"`
}

func (p *projectWithStats) populateStats() {
	if p.Project.ID == "" {
		return
	}
	p.Project.Stats = &ProjectStats{
		SourceCount:     p.SourceCount,
		ExtractionCount: p.ExtractionCount,
		EntityCount:     p.EntityCount,
		TotalJobs:       p.TotalJobs,
		RunningJobs:     p.RunningJobs,
		QueuedJobs:      p.QueuedJobs,
	}
}

// List returns all projects, optionally annotated with aggregate stats.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Project, error) {
	var rows []projectWithStats

	query := r.db.NewSelect().
		Model(&rows).
		ModelTableExpr("ke.projects AS p").
		Order("p.created_at DESC")

	if params.IncludeStats {
		query = withStats(query)
	} else {
		query = query.ColumnExpr("p.*")
	}

	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}

	if err := query.Scan(ctx); err != nil {
		r.log.Error("failed to list projects", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	projects := make([]Project, len(rows))
	for i, row := range rows {
		if params.IncludeStats {
			row.populateStats()
		}
		projects[i] = row.Project
	}

	return projects, nil
}

// GetByID returns a project by ID, or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string, includeStats bool) (*Project, error) {
	var row projectWithStats

	query := r.db.NewSelect().
		Model(&row).
		ModelTableExpr("ke.projects AS p").
		Where("p.id = ?", id)

	if includeStats {
		query = withStats(query)
	} else {
		query = query.ColumnExpr("p.*")
	}

	err := query.Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get project", logger.Error(err), slog.String("id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if includeStats {
		row.populateStats()
	}

	return &row.Project, nil
}

// CheckDuplicateName reports whether a project with the given name already
// exists, excluding excludeID (used when renaming in place).
func (r *Repository) CheckDuplicateName(ctx context.Context, db bun.IDB, name, excludeID string) (bool, error) {
	if db == nil {
		db = r.db
	}
	query := db.NewSelect().
		Model((*Project)(nil)).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name))

	if excludeID != "" {
		query = query.Where("id != ?", excludeID)
	}

	exists, err := query.Exists(ctx)
	if err != nil {
		r.log.Error("failed to check duplicate project name", logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	return exists, nil
}

// Create inserts a new project.
func (r *Repository) Create(ctx context.Context, project *Project) error {
	_, err := r.db.NewInsert().
		Model(project).
		Returning("id, name, description, extraction_schema, entity_types, classification_config, created_at, updated_at").
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(400, "duplicate", "a project with this name already exists")
		}
		r.log.Error("failed to create project", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

// Update persists changes to an existing project.
func (r *Repository) Update(ctx context.Context, project *Project) error {
	_, err := r.db.NewUpdate().
		Model(project).
		WherePK().
		Returning("id, name, description, extraction_schema, entity_types, classification_config, created_at, updated_at").
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(400, "duplicate", "a project with this name already exists")
		}
		r.log.Error("failed to update project", logger.Error(err), slog.String("id", project.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

// Delete permanently deletes a project and reports whether a row was removed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.NewDelete().
		Model((*Project)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		r.log.Error("failed to delete project", logger.Error(err), slog.String("id", id))
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
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

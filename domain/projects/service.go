package projects

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

const (
	// DefaultLimit is the default number of projects to return.
	DefaultLimit = 100
	// MaxLimit is the maximum number of projects to return.
	MaxLimit = 500
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Service handles business logic for projects.
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new project service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("projects.svc")),
	}
}

// ServiceListParams defines parameters for listing projects.
type ServiceListParams struct {
	Limit        int
	IncludeStats bool
}

// List returns projects up to the requested (clamped) limit.
func (s *Service) List(ctx context.Context, params ServiceListParams) ([]Project, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return s.repo.List(ctx, ListParams{Limit: limit, IncludeStats: params.IncludeStats})
}

// GetByID returns a project by ID.
func (s *Service) GetByID(ctx context.Context, id string, includeStats bool) (*Project, error) {
	if !isValidUUID(id) {
		return nil, apperror.New(400, "invalid-uuid", "id must be a valid UUID")
	}

	project, err := s.repo.GetByID(ctx, id, includeStats)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrNotFound.WithMessage("project not found")
	}

	return project, nil
}

// Create creates a new project after validating its name and extraction
// schema (field-group names must be present and unique, and field names
// must be present and unique within each group).
func (s *Service) Create(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.New(400, "validation-failed", "name required").WithDetails(map[string]any{
			"name": []string{"must not be blank"},
		})
	}

	if err := validateExtractionSchema(req.ExtractionSchema); err != nil {
		return nil, err
	}

	isDuplicate, err := s.repo.CheckDuplicateName(ctx, nil, name, "")
	if err != nil {
		return nil, err
	}
	if isDuplicate {
		return nil, apperror.New(400, "duplicate", "a project with this name already exists")
	}

	project := &Project{
		Name:                 name,
		Description:          req.Description,
		ExtractionSchema:     req.ExtractionSchema,
		EntityTypes:          req.EntityTypes,
		ClassificationConfig: req.ClassificationConfig,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.log.Info("project created", slog.String("projectID", project.ID), slog.String("name", project.Name))

	return project, nil
}

// Update applies the requested changes to an existing project.
func (s *Service) Update(ctx context.Context, id string, req UpdateProjectRequest) (*Project, error) {
	if !isValidUUID(id) {
		return nil, apperror.New(400, "invalid-uuid", "id must be a valid UUID")
	}

	project, err := s.repo.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrNotFound.WithMessage("project not found")
	}

	hasUpdates := false

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperror.New(400, "validation-failed", "name cannot be empty").WithDetails(map[string]any{
				"name": []string{"must not be blank"},
			})
		}
		if name != project.Name {
			isDuplicate, err := s.repo.CheckDuplicateName(ctx, nil, name, id)
			if err != nil {
				return nil, err
			}
			if isDuplicate {
				return nil, apperror.New(400, "duplicate", "a project with this name already exists")
			}
			project.Name = name
			hasUpdates = true
		}
	}

	if req.Description != nil {
		project.Description = *req.Description
		hasUpdates = true
	}

	if req.ExtractionSchema != nil {
		if err := validateExtractionSchema(req.ExtractionSchema); err != nil {
			return nil, err
		}
		project.ExtractionSchema = req.ExtractionSchema
		hasUpdates = true
	}

	if req.EntityTypes != nil {
		project.EntityTypes = req.EntityTypes
		hasUpdates = true
	}

	if req.ClassificationConfig != nil {
		project.ClassificationConfig = req.ClassificationConfig
		hasUpdates = true
	}

	if !hasUpdates {
		return project, nil
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}

	s.log.Info("project updated", slog.String("projectID", project.ID), slog.String("name", project.Name))

	return project, nil
}

// Delete deletes a project.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !isValidUUID(id) {
		return apperror.New(400, "invalid-uuid", "id must be a valid UUID")
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperror.ErrNotFound.WithMessage("project not found")
	}

	s.log.Info("project deleted", slog.String("projectID", id))

	return nil
}

// validateExtractionSchema enforces field-group name uniqueness and that
// every field within a group has a unique name.
func validateExtractionSchema(groups []FieldGroup) error {
	seenGroups := make(map[string]bool, len(groups))
	for _, g := range groups {
		if g.Name == "" {
			return apperror.New(400, "validation-failed", "field group name required")
		}
		if seenGroups[g.Name] {
			return apperror.New(400, "validation-failed", "duplicate field group name: "+g.Name)
		}
		seenGroups[g.Name] = true

		seenFields := make(map[string]bool, len(g.Fields))
		for _, f := range g.Fields {
			if f.Name == "" {
				return apperror.New(400, "validation-failed", "field name required in group "+g.Name)
			}
			if seenFields[f.Name] {
				return apperror.New(400, "validation-failed", "duplicate field name "+f.Name+" in group "+g.Name)
			}
			seenFields[f.Name] = true
		}
	}
	return nil
}

func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

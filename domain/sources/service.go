package sources

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

const (
	// DefaultLimit is the default number of sources returned by List.
	DefaultLimit = 100
	// MaxLimit is the maximum number of sources returned by List.
	MaxLimit = 500
)

// Service handles business logic for sources.
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new source service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("sources.svc")),
	}
}

// List returns sources for a project up to the requested (clamped) limit.
func (s *Service) List(ctx context.Context, params ListParams) ([]Source, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	return s.repo.List(ctx, params)
}

// GetByID returns a source by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Source, error) {
	source, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, apperror.ErrNotFound.WithMessage("source not found")
	}
	return source, nil
}

// Create registers a new source in pending state, ahead of a scrape/crawl
// job fetching and populating its content.
func (s *Service) Create(ctx context.Context, projectID string, req CreateSourceRequest) (*Source, error) {
	uri := strings.TrimSpace(req.URI)
	if !isValidURI(uri) {
		return nil, apperror.New(400, "validation-failed", "uri must be a valid absolute URL").WithDetails(map[string]any{
			"uri": []string{"must be a valid absolute URL"},
		})
	}

	existing, err := s.repo.GetByURI(ctx, projectID, uri)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.New(400, "duplicate", "a source with this URI already exists in this project")
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = "web"
	}

	source := &Source{
		ProjectID:   projectID,
		URI:         uri,
		SourceGroup: req.SourceGroup,
		SourceType:  sourceType,
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, source); err != nil {
		return nil, err
	}

	s.log.Info("source created", slog.String("sourceID", source.ID), slog.String("uri", source.URI))

	return source, nil
}

// MarkReady records successfully fetched content and transitions the source
// to ready for extraction.
func (s *Service) MarkReady(ctx context.Context, id string, content, rawContent, title string, links []string, pageType *string) (*Source, error) {
	source, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, apperror.ErrNotFound.WithMessage("source not found")
	}

	source.Content = content
	source.RawContent = rawContent
	source.Title = title
	source.Links = links
	source.PageType = pageType
	source.Status = StatusReady
	source.ErrorMsg = nil

	if err := s.repo.Update(ctx, source); err != nil {
		return nil, err
	}

	s.log.Info("source ready", slog.String("sourceID", source.ID))

	return source, nil
}

// MarkFailed records a fetch/extraction failure on a source.
func (s *Service) MarkFailed(ctx context.Context, id string, reason string) error {
	if err := s.repo.UpdateStatus(ctx, id, StatusFailed, &reason); err != nil {
		return err
	}
	s.log.Warn("source failed", slog.String("sourceID", id), slog.String("reason", reason))
	return nil
}

// MarkExtracted transitions a source to extracted once its content has been
// run through the extraction pipeline.
func (s *Service) MarkExtracted(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, StatusExtracted, nil)
}

// PendingExtraction returns ready sources not yet in excludeIDs, for
// ExtractionPipeline's resume_from skip-set (spec.md §4.5).
func (s *Service) PendingExtraction(ctx context.Context, projectID string, excludeIDs []string, limit int) ([]Source, error) {
	return s.repo.ListPendingExtraction(ctx, projectID, excludeIDs, limit)
}

// Delete deletes a source.
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperror.ErrNotFound.WithMessage("source not found")
	}
	s.log.Info("source deleted", slog.String("sourceID", id))
	return nil
}

func isValidURI(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

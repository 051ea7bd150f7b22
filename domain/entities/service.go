package entities

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Service is the EntityExtractor component (spec.md §4.6): it turns an
// extraction payload into normalised, deduplicated entities linked back to
// the originating extraction.
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new EntityExtractor service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("entities.svc")),
	}
}

// List returns entities for a project.
func (s *Service) List(ctx context.Context, params ListParams) ([]Entity, error) {
	return s.repo.List(ctx, params)
}

// TypeSummary returns per-type entity counts for a project.
func (s *Service) TypeSummary(ctx context.Context, projectID string) ([]TypeSummary, error) {
	return s.repo.TypeSummary(ctx, projectID)
}

// ExtractFromPayload scans payload for keys matching one of the project's
// declared entityTypes, normalises each raw value, get-or-creates the
// resulting Entity row, and links it to extractionID. A payload value may be
// a single string or a list of strings (an entity-list field group).
//
// A successful run sets no flag on the extraction itself; callers flip
// `entities_extracted` once every entity call for that extraction succeeds.
func (s *Service) ExtractFromPayload(ctx context.Context, projectID, sourceGroup, extractionID string, payload map[string]any, entityTypes []string) (int, error) {
	declared := make(map[string]bool, len(entityTypes))
	for _, t := range entityTypes {
		declared[t] = true
	}

	created := 0
	for key, value := range payload {
		if !declared[key] {
			continue
		}

		for _, raw := range flattenToStrings(value) {
			if raw == "" {
				continue
			}

			entity := &Entity{
				ProjectID:       projectID,
				SourceGroup:     sourceGroup,
				EntityType:      key,
				RawValue:        raw,
				NormalizedValue: Normalize(key, raw),
			}

			stored, err := s.repo.GetOrCreate(ctx, entity)
			if err != nil {
				return created, fmt.Errorf("get-or-create entity %s=%q: %w", key, raw, err)
			}
			if stored == nil {
				continue
			}

			if err := s.repo.LinkGetOrCreate(ctx, stored.ID, extractionID); err != nil {
				return created, fmt.Errorf("link entity %s to extraction %s: %w", stored.ID, extractionID, err)
			}

			created++
		}
	}

	return created, nil
}

// flattenToStrings accepts the shapes a field value may take after JSON
// decoding (string, []string, []any of strings) and returns the raw values
// to normalise into entities.
func flattenToStrings(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/TKontu/knowledge-extraction/domain/classification"
	"github.com/TKontu/knowledge-extraction/domain/entities"
	"github.com/TKontu/knowledge-extraction/domain/extractions"
	"github.com/TKontu/knowledge-extraction/domain/jobs"
	"github.com/TKontu/knowledge-extraction/domain/projects"
	"github.com/TKontu/knowledge-extraction/domain/sources"
	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
	"github.com/TKontu/knowledge-extraction/pkg/vectorstore"
)

// Result is one process_source call's outcome (spec.md §4.5).
type Result struct {
	SourceID                string   `json:"source_id"`
	ExtractionsCreated      int      `json:"extractions_created"`
	ExtractionsDeduplicated int      `json:"extractions_deduplicated"`
	EntitiesCreated         int      `json:"entities_created"`
	Errors                  []string `json:"errors,omitempty"`
}

// BatchResult aggregates a process_batch/process_project_pending run.
type BatchResult struct {
	Results                 []Result `json:"results"`
	ExtractionsCreated      int      `json:"extractions_created"`
	ExtractionsDeduplicated int      `json:"extractions_deduplicated"`
	EntitiesCreated         int      `json:"entities_created"`
}

// Pipeline is the ExtractionPipeline component.
type Pipeline struct {
	db bun.IDB

	orchestrator *Orchestrator
	sources      *sources.Service
	extractions  *extractions.Service
	entities     *entities.Service
	jobsSvc      *jobs.Service
	projects     *projects.Service
	dedup        *vectorstore.Deduplicator
	classifier   *classification.Classifier

	ke  config.KEConfig
	log *slog.Logger
}

// NewPipeline constructs an ExtractionPipeline.
func NewPipeline(
	db bun.IDB,
	orchestrator *Orchestrator,
	sourcesSvc *sources.Service,
	extractionsSvc *extractions.Service,
	entitiesSvc *entities.Service,
	jobsSvc *jobs.Service,
	projectsSvc *projects.Service,
	dedup *vectorstore.Deduplicator,
	classifier *classification.Classifier,
	cfg *config.Config,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		db:           db,
		orchestrator: orchestrator,
		sources:      sourcesSvc,
		extractions:  extractionsSvc,
		entities:     entitiesSvc,
		jobsSvc:      jobsSvc,
		projects:     projectsSvc,
		dedup:        dedup,
		classifier:   classifier,
		ke:           cfg.KE,
		log:          log.With(logger.Scope("pipeline")),
	}
}

// ProcessSource runs the full per-source pipeline: for schema projects it
// first asks SmartClassifier which field groups apply (or whether to skip
// the page), then runs the schema (or generic fact) extraction, dedups,
// persists, embeds, and links entities for every record the orchestrator
// produced (spec.md §4.5).
func (p *Pipeline) ProcessSource(ctx context.Context, sourceID, projectID string) (*Result, error) {
	result := &Result{SourceID: sourceID}

	source, err := p.sources.GetByID(ctx, sourceID)
	if err != nil || source == nil || source.Content == "" {
		result.Errors = append(result.Errors, "Source not found or empty")
		return result, nil
	}

	project, err := p.projects.GetByID(ctx, projectID, false)
	if err != nil || project == nil {
		result.Errors = append(result.Errors, "Project not found")
		return result, nil
	}

	usesSchema := len(project.ExtractionSchema) > 0
	groups := project.ExtractionSchema
	if usesSchema && p.classifier != nil {
		decision, err := p.classifier.Classify(ctx, classification.PageInfo{
			URL: source.URI, Title: source.Title, ContentPrefix: source.Content,
		}, groups, project.ClassificationConfig)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("classify: %v", err))
		} else if decision.SkipExtraction {
			if err := p.sources.MarkExtracted(ctx, source.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("mark extracted: %v", err))
			}
			return result, nil
		} else if !decision.UseAllGroups {
			groups = filterGroups(groups, decision.SelectedGroups)
		}
	}

	var records []record
	switch {
	case usesSchema:
		records = p.schemaRecords(ctx, sourceID, source.Content, groups)
	default:
		records = p.factRecords(ctx, sourceID, source.Content)
	}

	for _, rec := range records {
		if err := p.processRecord(ctx, source.ID, projectID, source.SourceGroup, rec, project.EntityTypes, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	// Any successful completion — even a partial one — marks the source
	// extracted (spec.md §4.5 step 3).
	if err := p.sources.MarkExtracted(ctx, source.ID); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("mark extracted: %v", err))
	}

	return result, nil
}

// record is one candidate (payload, extraction_type, confidence) triple
// destined for dedup+persist, regardless of which pipeline produced it.
type record struct {
	extractionType string
	payload        map[string]any
	confidence     float64
}

func (p *Pipeline) schemaRecords(ctx context.Context, sourceID, markdown string, groups []projects.FieldGroup) []record {
	groupResults := p.orchestrator.ExtractAllGroups(ctx, sourceID, markdown, groups)

	records := make([]record, 0, len(groupResults))
	for _, gr := range groupResults {
		if gr.IsEntityList {
			if len(gr.Items) == 0 {
				continue
			}
			records = append(records, record{
				extractionType: gr.GroupName,
				payload:        map[string]any{"items": gr.Items},
				confidence:     gr.Confidence,
			})
			continue
		}
		if len(gr.Payload) == 0 {
			continue
		}
		records = append(records, record{
			extractionType: gr.GroupName,
			payload:        gr.Payload,
			confidence:     gr.Confidence,
		})
	}
	return records
}

// filterGroups narrows groups down to the names SmartClassifier selected,
// preserving the project's declared field-group order.
func filterGroups(groups []projects.FieldGroup, selected []string) []projects.FieldGroup {
	keep := make(map[string]bool, len(selected))
	for _, name := range selected {
		keep[name] = true
	}
	out := make([]projects.FieldGroup, 0, len(selected))
	for _, g := range groups {
		if keep[g.Name] {
			out = append(out, g)
		}
	}
	return out
}

func (p *Pipeline) factRecords(ctx context.Context, sourceID, markdown string) []record {
	facts := p.orchestrator.ExtractFacts(ctx, sourceID, markdown)
	records := make([]record, 0, len(facts))
	for _, f := range facts {
		records = append(records, record{
			extractionType: f.Category,
			payload:        map[string]any{"fact_text": f.Text, "category": f.Category},
			confidence:     f.Confidence,
		})
	}
	return records
}

// processRecord dedups, persists, embeds, and entity-links a single record,
// per the per-fact step in spec.md §4.5 step 2. Individual failures are
// reported but never abort the source.
func (p *Pipeline) processRecord(ctx context.Context, sourceID, projectID, sourceGroup string, rec record, entityTypes []string, result *Result) error {
	text := canonicalPayloadText(rec.payload)
	if text == "" {
		return nil
	}

	dup, err := p.dedup.CheckDuplicate(ctx, projectID, sourceGroup, text)
	if err != nil {
		return fmt.Errorf("check duplicate (%s): %w", rec.extractionType, err)
	}
	if dup.IsDuplicate {
		result.ExtractionsDeduplicated++
		return nil
	}

	confidence := rec.confidence
	ext := &extractions.Extraction{
		ProjectID:      projectID,
		SourceID:       sourceID,
		ExtractionType: rec.extractionType,
		SourceGroup:    sourceGroup,
		Payload:        rec.payload,
		Confidence:     &confidence,
	}
	if err := p.extractions.Create(ctx, p.db, ext); err != nil {
		return fmt.Errorf("persist extraction (%s): %w", rec.extractionType, err)
	}
	result.ExtractionsCreated++

	if err := p.dedup.UpsertExtraction(ctx, ext.ID, projectID, sourceGroup, rec.extractionType, text); err != nil {
		return fmt.Errorf("embed extraction %s: %w", ext.ID, err)
	}
	if err := p.extractions.SetEmbeddingID(ctx, ext.ID, ext.ID); err != nil {
		return fmt.Errorf("record embedding id %s: %w", ext.ID, err)
	}

	if len(entityTypes) > 0 {
		count, err := p.entities.ExtractFromPayload(ctx, projectID, sourceGroup, ext.ID, rec.payload, entityTypes)
		if err != nil {
			return fmt.Errorf("extract entities for %s: %w", ext.ID, err)
		}
		result.EntitiesCreated += count
		if err := p.extractions.MarkEntitiesExtracted(ctx, ext.ID); err != nil {
			return fmt.Errorf("mark entities extracted %s: %w", ext.ID, err)
		}
	}

	return nil
}

// ProcessBatch runs sourceIDs concurrently under
// extraction_max_concurrent_sources, aggregating per-source results
// (spec.md §4.5).
func (p *Pipeline) ProcessBatch(ctx context.Context, sourceIDs []string, projectID string) *BatchResult {
	bound := p.ke.ExtractionMaxConcurrentSources
	if bound <= 0 {
		bound = 10
	}

	results := make([]Result, len(sourceIDs))
	sem := make(chan struct{}, bound)
	var wg sync.WaitGroup

	for i, id := range sourceIDs {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := p.ProcessSource(ctx, id, projectID)
			if err != nil {
				r = &Result{SourceID: id, Errors: []string{err.Error()}}
			}
			results[i] = *r
		}(i, id)
	}
	wg.Wait()

	agg := &BatchResult{Results: results}
	for _, r := range results {
		agg.ExtractionsCreated += r.ExtractionsCreated
		agg.ExtractionsDeduplicated += r.ExtractionsDeduplicated
		agg.EntitiesCreated += r.EntitiesCreated
	}
	return agg
}

// ProcessProjectPending enumerates pending sources for project and delegates
// to ProcessBatch (spec.md §4.5).
func (p *Pipeline) ProcessProjectPending(ctx context.Context, projectID string, limit int) (*BatchResult, error) {
	pending, err := p.sources.PendingExtraction(ctx, projectID, nil, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(pending))
	for i, s := range pending {
		ids[i] = s.ID
	}
	return p.ProcessBatch(ctx, ids, projectID), nil
}

// RunCheckpointedJob drives the schema pipeline's checkpointed form: sources
// are processed in chunks of checkpoint_chunk_size; only successful source
// ids are appended to the checkpoint on each chunk boundary, and resumeFrom
// is skipped entirely (spec.md §4.5).
func (p *Pipeline) RunCheckpointedJob(ctx context.Context, jobID, projectID string, resumeFrom []string) error {
	chunkSize := p.ke.CheckpointChunkSize
	if chunkSize <= 0 {
		chunkSize = 20
	}

	skip := make([]string, len(resumeFrom))
	copy(skip, resumeFrom)

	totalExtractions, totalEntities := 0, 0

	for {
		job, err := p.jobsSvc.GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status == jobs.StatusCancelling {
			p.log.Info("checkpointed job cancelled, stopping before next chunk", slog.String("jobID", jobID))
			return nil
		}

		pending, err := p.sources.PendingExtraction(ctx, projectID, skip, chunkSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			break
		}

		ids := make([]string, len(pending))
		for i, s := range pending {
			ids[i] = s.ID
		}

		batch := p.ProcessBatch(ctx, ids, projectID)

		var successful []string
		for _, r := range batch.Results {
			if len(r.Errors) == 0 {
				successful = append(successful, r.SourceID)
			}
		}

		totalExtractions += batch.ExtractionsCreated
		totalEntities += batch.EntitiesCreated

		if _, err := p.jobsSvc.CommitCheckpoint(ctx, p.db, jobID, successful, batch.ExtractionsCreated, batch.EntitiesCreated); err != nil {
			return fmt.Errorf("commit checkpoint: %w", err)
		}

		skip = append(skip, successful...)

		if len(pending) < chunkSize {
			break
		}
	}

	return p.jobsSvc.Complete(ctx, jobID, jobs.StatusCompleted, jobs.JSON{
		"total_extractions": totalExtractions,
		"total_entities":    totalEntities,
		"completed_at":      time.Now().UTC().Format(time.RFC3339),
	}, nil)
}

// canonicalPayloadText renders payload as a stable string for dedup
// comparison and embedding, preferring a human-readable fact_text when
// present (generic pipeline) and falling back to canonical JSON otherwise
// (schema pipeline, spec.md §4.5: "embedding uses a canonical string form of
// the payload").
func canonicalPayloadText(payload map[string]any) string {
	if text, ok := payload["fact_text"].(string); ok && text != "" {
		return text
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(b)
}

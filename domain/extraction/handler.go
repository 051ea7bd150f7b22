package extraction

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/domain/jobs"
	"github.com/TKontu/knowledge-extraction/pkg/apperror"
)

// Handler exposes the extraction-trigger HTTP surface (spec.md §6:
// `POST /projects/{id}/extract`).
type Handler struct {
	pipeline *Pipeline
	jobsSvc  *jobs.Service
}

// NewHandler creates a new extraction handler.
func NewHandler(pipeline *Pipeline, jobsSvc *jobs.Service) *Handler {
	return &Handler{pipeline: pipeline, jobsSvc: jobsSvc}
}

type extractRequest struct {
	SourceIDs []string `json:"source_ids,omitempty"`
	Force     bool     `json:"force,omitempty"`
	Profile   string   `json:"profile,omitempty"`
}

type extractResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	SourceCount int    `json:"source_count"`
	ProjectID   string `json:"project_id"`
}

// Extract starts an asynchronous extraction job over a project's pending
// sources (or the explicit source_ids supplied), returning 202 immediately
// (spec.md §6).
// @Summary      Start an extraction job
// @Tags         extraction
// @Accept       json
// @Produce      json
// @Param        id path string true "Project ID"
// @Param        request body extractRequest false "Extraction options"
// @Success      202 {object} extractResponse
// @Failure      422 {object} apperror.Error
// @Router       /api/projects/{id}/extract [post]
func (h *Handler) Extract(c echo.Context) error {
	projectID := c.Param("id")
	if projectID == "" {
		return apperror.New(422, "validation-failed", "project id is required")
	}

	var body extractRequest
	if err := c.Bind(&body); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	ctx := c.Request().Context()

	job, err := h.jobsSvc.Create(ctx, &projectID, jobs.TypeExtract, jobs.JSON{
		"source_ids": body.SourceIDs,
		"force":      body.Force,
		"profile":    body.Profile,
	}, 0)
	if err != nil {
		return err
	}

	go h.runJob(job.ID, projectID, body.SourceIDs)

	return c.JSON(http.StatusAccepted, extractResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		SourceCount: len(body.SourceIDs),
		ProjectID:   projectID,
	})
}

// runJob drives the checkpointed pipeline to completion in the background;
// HTTP handling has already returned 202 by the time this runs.
func (h *Handler) runJob(jobID, projectID string, sourceIDs []string) {
	ctx := context.Background()

	if err := h.jobsSvc.MarkRunning(ctx, jobID); err != nil {
		return
	}

	var err error
	if len(sourceIDs) > 0 {
		batch := h.pipeline.ProcessBatch(ctx, sourceIDs, projectID)
		err = h.jobsSvc.Complete(ctx, jobID, jobs.StatusCompleted, jobs.JSON{
			"extractions_created":      batch.ExtractionsCreated,
			"extractions_deduplicated": batch.ExtractionsDeduplicated,
			"entities_created":         batch.EntitiesCreated,
		}, nil)
	} else {
		err = h.pipeline.RunCheckpointedJob(ctx, jobID, projectID, nil)
	}

	if err != nil {
		msg := err.Error()
		_ = h.jobsSvc.Complete(ctx, jobID, jobs.StatusFailed, jobs.JSON{}, &msg)
	}
}

package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// Service handles business logic for jobs, including the checkpointing
// contract ExtractionPipeline relies on (spec.md §4.5).
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new job service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("jobs.svc")),
	}
}

// Create starts a new job in the queued state.
func (s *Service) Create(ctx context.Context, projectID *string, jobType Type, payload JSON, priority int) (*Job, error) {
	job := &Job{
		ProjectID: projectID,
		Type:      jobType,
		Status:    StatusQueued,
		Priority:  priority,
		Payload:   payload,
	}
	if job.Payload == nil {
		job.Payload = JSON{}
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	s.log.Info("job created", slog.String("jobID", job.ID), slog.String("type", string(jobType)))
	return job, nil
}

// GetByID returns a job by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperror.ErrNotFound.WithMessage("job not found")
	}
	return job, nil
}

// List returns jobs, optionally filtered.
func (s *Service) List(ctx context.Context, projectID string, status Status, limit int) ([]Job, error) {
	return s.repo.List(ctx, projectID, status, limit)
}

// MarkRunning transitions a queued job to running.
func (s *Service) MarkRunning(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, StatusRunning)
}

// RequestCancel flags a running job for cancellation; workers observe this
// at chunk boundaries and stop starting new work (spec.md §5).
func (s *Service) RequestCancel(ctx context.Context, id string) error {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return apperror.New(409, "conflict", "job already in a terminal state")
	}
	return s.repo.UpdateStatus(ctx, id, StatusCancelling)
}

// CommitCheckpoint appends newlyProcessed (successful sources only) to the
// job's checkpoint and persists it atomically under db, so that the
// extractions written in the same unit of work and the checkpoint commit or
// roll back together.
func (s *Service) CommitCheckpoint(ctx context.Context, db bun.IDB, id string, newlyProcessed []string, extractionsDelta, entitiesDelta int) (Checkpoint, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Checkpoint{}, err
	}
	if job == nil {
		return Checkpoint{}, apperror.ErrNotFound.WithMessage("job not found")
	}

	cp := job.Checkpoint()
	cp.ProcessedSourceIDs = append(cp.ProcessedSourceIDs, newlyProcessed...)
	cp.TotalExtractions += extractionsDelta
	cp.TotalEntities += entitiesDelta
	cp.LastCheckpointAt = time.Now().UTC()

	if err := s.repo.CommitCheckpoint(ctx, db, id, cp); err != nil {
		return Checkpoint{}, err
	}

	s.log.Info("checkpoint committed",
		slog.String("jobID", id),
		slog.Int("processed", len(cp.ProcessedSourceIDs)),
		slog.Int("new", len(newlyProcessed)),
	)

	return cp, nil
}

// Complete marks a job completed or failed and records its result.
// A job with a non-empty errors count is still "completed" unless every
// source failed, per spec.md §7's user-visible-behaviour rule; callers
// decide the status and pass it in.
func (s *Service) Complete(ctx context.Context, id string, status Status, result JSON, errMsg *string) error {
	if err := s.repo.Complete(ctx, id, status, result, errMsg); err != nil {
		return err
	}
	s.log.Info("job finished", slog.String("jobID", id), slog.String("status", string(status)))
	return nil
}

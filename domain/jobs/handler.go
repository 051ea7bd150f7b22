package jobs

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for jobs.
type Handler struct {
	svc *Service
}

// NewHandler creates a new job handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns jobs, optionally filtered by project and status.
// @Summary      List jobs
// @Tags         jobs
// @Produce      json
// @Param        project_id query string false "Filter by project ID"
// @Param        status query string false "Filter by status"
// @Param        limit query int false "Max results"
// @Success      200 {array} Job
// @Router       /api/jobs [get]
func (h *Handler) List(c echo.Context) error {
	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	result, err := h.svc.List(c.Request().Context(), c.QueryParam("project_id"), Status(c.QueryParam("status")), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Get returns a single job by ID.
// @Summary      Get job by ID
// @Tags         jobs
// @Produce      json
// @Param        id path string true "Job ID (UUID)"
// @Success      200 {object} Job
// @Failure      404 {object} apperror.Error
// @Router       /api/jobs/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	job, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

// Cancel requests cancellation of a running job.
// @Summary      Cancel a job
// @Tags         jobs
// @Produce      json
// @Param        id path string true "Job ID (UUID)"
// @Success      200 {object} Job
// @Failure      409 {object} apperror.Error
// @Router       /api/jobs/{id}/cancel [post]
func (h *Handler) Cancel(c echo.Context) error {
	if err := h.svc.RequestCancel(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}

	job, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

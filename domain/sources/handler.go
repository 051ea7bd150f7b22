package sources

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
)

// Handler handles HTTP requests for sources.
type Handler struct {
	svc *Service
}

// NewHandler creates a new source handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns sources for a project.
// @Summary      List sources
// @Description  Returns sources registered under a project, optionally filtered by status
// @Tags         sources
// @Produce      json
// @Param        projectID path string true "Project ID (UUID)"
// @Param        status query string false "Filter by status (pending, ready, extracted, failed)"
// @Success      200 {array} Source
// @Failure      500 {object} apperror.Error
// @Router       /api/projects/{projectID}/sources [get]
func (h *Handler) List(c echo.Context) error {
	projectID := c.Param("projectID")

	params := ListParams{
		ProjectID: projectID,
		Status:    Status(c.QueryParam("status")),
	}

	result, err := h.svc.List(c.Request().Context(), params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Get returns a single source by ID.
// @Summary      Get source by ID
// @Tags         sources
// @Produce      json
// @Param        id path string true "Source ID (UUID)"
// @Success      200 {object} Source
// @Failure      404 {object} apperror.Error
// @Router       /api/sources/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	source, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, source)
}

// Create registers a new source for scraping/extraction.
// @Summary      Create a source
// @Tags         sources
// @Accept       json
// @Produce      json
// @Param        projectID path string true "Project ID (UUID)"
// @Param        request body CreateSourceRequest true "Source creation request"
// @Success      201 {object} Source
// @Failure      400 {object} apperror.Error
// @Router       /api/projects/{projectID}/sources [post]
func (h *Handler) Create(c echo.Context) error {
	projectID := c.Param("projectID")

	var req CreateSourceRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	source, err := h.svc.Create(c.Request().Context(), projectID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, source)
}

// Delete deletes a source by ID.
// @Summary      Delete a source
// @Tags         sources
// @Produce      json
// @Param        id path string true "Source ID (UUID)"
// @Success      200 {object} map[string]string
// @Failure      404 {object} apperror.Error
// @Router       /api/sources/{id} [delete]
func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

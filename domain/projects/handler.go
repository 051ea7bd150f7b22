package projects

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
)

// Handler handles HTTP requests for projects.
type Handler struct {
	svc *Service
}

// NewHandler creates a new project handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns all projects.
// @Summary      List projects
// @Description  Returns all configured projects, optionally with aggregate stats
// @Tags         projects
// @Produce      json
// @Param        limit query int false "Max results (1-500, default 100)" minimum(1) maximum(500)
// @Param        stats query bool false "Include aggregate statistics"
// @Success      200 {array} Project
// @Failure      500 {object} apperror.Error
// @Router       /api/projects [get]
func (h *Handler) List(c echo.Context) error {
	limit := DefaultLimit
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}
	includeStats := c.QueryParam("stats") == "true"

	projects, err := h.svc.List(c.Request().Context(), ServiceListParams{Limit: limit, IncludeStats: includeStats})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, projects)
}

// Get returns a single project by ID.
// @Summary      Get project by ID
// @Tags         projects
// @Produce      json
// @Param        id path string true "Project ID (UUID)"
// @Param        stats query bool false "Include aggregate statistics"
// @Success      200 {object} Project
// @Failure      400 {object} apperror.Error
// @Failure      404 {object} apperror.Error
// @Router       /api/projects/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	includeStats := c.QueryParam("stats") == "true"

	project, err := h.svc.GetByID(c.Request().Context(), id, includeStats)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, project)
}

// Create creates a new project.
// @Summary      Create a project
// @Tags         projects
// @Accept       json
// @Produce      json
// @Param        request body CreateProjectRequest true "Project creation request"
// @Success      201 {object} Project
// @Failure      400 {object} apperror.Error
// @Router       /api/projects [post]
func (h *Handler) Create(c echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	project, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, project)
}

// Update updates a project.
// @Summary      Update a project
// @Tags         projects
// @Accept       json
// @Produce      json
// @Param        id path string true "Project ID (UUID)"
// @Param        request body UpdateProjectRequest true "Project update request"
// @Success      200 {object} Project
// @Failure      400 {object} apperror.Error
// @Failure      404 {object} apperror.Error
// @Router       /api/projects/{id} [patch]
func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")

	var req UpdateProjectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	project, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, project)
}

// Delete deletes a project by ID.
// @Summary      Delete a project
// @Tags         projects
// @Produce      json
// @Param        id path string true "Project ID (UUID)"
// @Success      200 {object} map[string]string
// @Failure      400 {object} apperror.Error
// @Failure      404 {object} apperror.Error
// @Router       /api/projects/{id} [delete]
func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

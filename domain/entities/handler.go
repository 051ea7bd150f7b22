package entities

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for entities.
type Handler struct {
	svc *Service
}

// NewHandler creates a new entity handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns entities for a project.
// @Summary      List entities
// @Tags         entities
// @Produce      json
// @Param        projectID path string true "Project ID (UUID)"
// @Param        type query string false "Filter by entity type"
// @Param        limit query int false "Max results"
// @Success      200 {array} Entity
// @Router       /api/projects/{projectID}/entities [get]
func (h *Handler) List(c echo.Context) error {
	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	result, err := h.svc.List(c.Request().Context(), ListParams{
		ProjectID:  c.Param("projectID"),
		EntityType: c.QueryParam("type"),
		Limit:      limit,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// TypeSummary returns per-type entity counts for a project.
// @Summary      Entity type summary
// @Tags         entities
// @Produce      json
// @Param        projectID path string true "Project ID (UUID)"
// @Success      200 {array} TypeSummary
// @Router       /api/projects/{projectID}/entities/summary [get]
func (h *Handler) TypeSummary(c echo.Context) error {
	result, err := h.svc.TypeSummary(c.Request().Context(), c.Param("projectID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

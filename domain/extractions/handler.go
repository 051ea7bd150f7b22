package extractions

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for extractions.
type Handler struct {
	svc *Service
}

// NewHandler creates a new extraction handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns extractions for a project, with optional source/type filters.
// @Summary      List extractions
// @Tags         extractions
// @Produce      json
// @Param        projectID path string true "Project ID (UUID)"
// @Param        source_id query string false "Filter by source ID"
// @Param        type query string false "Filter by extraction type (field group name)"
// @Param        limit query int false "Max results (1-500, default 100)"
// @Success      200 {array} Extraction
// @Router       /api/projects/{projectID}/extractions [get]
func (h *Handler) List(c echo.Context) error {
	limit := DefaultLimit
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	result, err := h.svc.List(c.Request().Context(), ListParams{
		ProjectID:      c.Param("projectID"),
		SourceID:       c.QueryParam("source_id"),
		ExtractionType: c.QueryParam("type"),
		Limit:          limit,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

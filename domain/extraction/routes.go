package extraction

import (
	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/auth"
)

// RegisterRoutes registers the extraction-trigger route.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/projects")
	g.Use(authMiddleware.RequireAPIKey())

	g.POST("/:id/extract", h.Extract)
}

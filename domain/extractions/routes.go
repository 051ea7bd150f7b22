package extractions

import (
	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/auth"
)

// RegisterRoutes registers extraction routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/projects/:projectID/extractions")
	g.Use(authMiddleware.RequireAPIKey())

	g.GET("", h.List)
}

package entities

import (
	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/auth"
)

// RegisterRoutes registers entity routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/projects/:projectID/entities")
	g.Use(authMiddleware.RequireAPIKey())

	g.GET("", h.List)
	g.GET("/summary", h.TypeSummary)
}

package projects

import (
	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/auth"
)

// RegisterRoutes registers project routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/projects")
	g.Use(authMiddleware.RequireAPIKey())

	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

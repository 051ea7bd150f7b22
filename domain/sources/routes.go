package sources

import (
	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/auth"
)

// RegisterRoutes registers source routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	projectScoped := e.Group("/api/projects/:projectID/sources")
	projectScoped.Use(authMiddleware.RequireAPIKey())
	projectScoped.GET("", h.List)
	projectScoped.POST("", h.Create)

	g := e.Group("/api/sources")
	g.Use(authMiddleware.RequireAPIKey())
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
}

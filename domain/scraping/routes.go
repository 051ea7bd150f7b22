package scraping

import (
	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/auth"
)

// RegisterRoutes registers the scraper's internal HTTP surface.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	e.GET("/health/scraper", h.Health)

	g := e.Group("")
	g.Use(authMiddleware.RequireAPIKey())
	g.POST("/scrape", h.Scrape)
}

// Package auth enforces the single X-API-Key credential shared by every
// non-exempt HTTP route.
package auth

import (
	"crypto/subtle"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

var Module = fx.Module("auth",
	fx.Provide(NewMiddleware),
)

// exemptPaths never require X-API-Key.
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/ready":   true,
}

// Middleware validates the X-API-Key header against the configured key.
type Middleware struct {
	apiKey string
	log    *slog.Logger
}

// NewMiddleware creates the API-key middleware from process configuration.
func NewMiddleware(cfg *config.Config, log *slog.Logger) *Middleware {
	return &Middleware{
		apiKey: cfg.APIKey,
		log:    log.With(logger.Scope("auth")),
	}
}

// RequireAPIKey returns middleware that rejects requests whose X-API-Key
// header does not match the configured key. Health endpoints are exempt.
func (m *Middleware) RequireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if exemptPaths[c.Request().URL.Path] {
				return next(c)
			}

			got := c.Request().Header.Get("X-API-Key")
			if got == "" {
				return apperror.ErrMissingToken
			}

			if subtle.ConstantTimeCompare([]byte(got), []byte(m.apiKey)) != 1 {
				m.log.Warn("rejected request with invalid X-API-Key",
					slog.String("path", c.Request().URL.Path))
				return apperror.ErrInvalidToken
			}

			return next(c)
		}
	}
}

// Package scraping exposes BrowserPool as the internal scraper HTTP service
// described in spec.md §6, served as `POST /scrape` and `GET /health/scraper`.
package scraping

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/browserpool"
)

// Handler serves the scraper's internal HTTP surface.
type Handler struct {
	pool *browserpool.Pool
}

// NewHandler creates a new scraping handler.
func NewHandler(pool *browserpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// scrapeRequest mirrors spec.md §6's `POST /scrape` body.
type scrapeRequest struct {
	URL                 string            `json:"url"`
	Timeout             int               `json:"timeout"`
	WaitAfterLoad       int               `json:"wait_after_load"`
	Headers             map[string]string `json:"headers,omitempty"`
	CheckSelector       string            `json:"check_selector,omitempty"`
	SkipTLSVerification bool              `json:"skip_tls_verification,omitempty"`
	DiscoverAjax        bool              `json:"discover_ajax,omitempty"`
}

// Scrape renders a single page and returns its content.
// @Summary      Scrape a page
// @Tags         scraping
// @Accept       json
// @Produce      json
// @Param        request body scrapeRequest true "Scrape request"
// @Success      200 {object} browserpool.Response
// @Failure      400 {object} apperror.Error
// @Failure      500 {object} apperror.Error
// @Router       /scrape [post]
func (h *Handler) Scrape(c echo.Context) error {
	var body scrapeRequest
	if err := c.Bind(&body); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if body.URL == "" {
		return apperror.New(400, "missing-url", "url is required")
	}

	req := browserpool.Request{
		URL:           body.URL,
		Timeout:       time.Duration(body.Timeout) * time.Second,
		WaitAfterLoad: time.Duration(body.WaitAfterLoad) * time.Second,
		Headers:       body.Headers,
		CheckSelector: body.CheckSelector,
		SkipTLSVerify: body.SkipTLSVerification,
		DiscoverAjax:  body.DiscoverAjax,
	}

	resp, err := h.pool.Scrape(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Health reports the pool's concurrency usage.
// @Summary      Scraper health
// @Tags         scraping
// @Produce      json
// @Success      200 {object} map[string]any
// @Router       /health/scraper [get]
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"maxConcurrentPages": h.pool.MaxConcurrentPages(),
		"activePages":        h.pool.ActivePages(),
	})
}

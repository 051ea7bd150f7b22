package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newTestMiddleware(apiKey string) *Middleware {
	return &Middleware{
		apiKey: apiKey,
		log:    slog.Default(),
	}
}

func TestRequireAPIKey_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := newTestMiddleware("correct-key-1234567890")
	handler := mw.RequireAPIKey()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	err := handler(c)
	assert.Error(t, err)
}

func TestRequireAPIKey_WrongKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := newTestMiddleware("correct-key-1234567890")
	handler := mw.RequireAPIKey()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	err := handler(c)
	assert.Error(t, err)
}

func TestRequireAPIKey_CorrectKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("X-API-Key", "correct-key-1234567890")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := newTestMiddleware("correct-key-1234567890")
	handler := mw.RequireAPIKey()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	err := handler(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAPIKey_ExemptHealthEndpoint(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := newTestMiddleware("correct-key-1234567890")
	handler := mw.RequireAPIKey()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	err := handler(c)
	assert.NoError(t, err)
}

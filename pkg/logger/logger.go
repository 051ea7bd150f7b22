// Package logger wraps log/slog with the handler selection and request-log
// sink this service uses everywhere else.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/internal/config"
)

// Module provides the process-wide *slog.Logger and *HTTPLogger for fx
// injection, mirroring how config.Module and database.Module are wired.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
	fx.Provide(newHTTPLoggerFromConfig),
)

func newHTTPLoggerFromConfig(cfg *config.Config, log *slog.Logger) (*HTTPLogger, error) {
	return NewHTTPLogger(cfg.HTTPLogFile, log)
}

// Scope tags log records with the subsystem that emitted them, e.g.
// log.With(logger.Scope("llmqueue")).
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error attaches err under a consistent "error" key. Safe to call with nil.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger builds the process-wide slog.Logger. LOG_LEVEL selects the
// minimum level (debug/info/warn|warning/error, case-insensitive, defaults
// to info). GO_ENV=production switches to a JSON handler on stdout; any
// other value (including unset) uses a human-readable text handler.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// HTTPLogger appends a compact access-log line to a dedicated HTTP log file,
// independent of the structured application logger. It never returns an
// error to callers: a logging failure must not fail a request.
type HTTPLogger struct {
	mu   sync.Mutex
	file *os.File
	log  *slog.Logger
}

// NewHTTPLogger opens (creating if needed) the access-log file at path.
// If path is empty, LogRequest writes nothing.
func NewHTTPLogger(path string, log *slog.Logger) (*HTTPLogger, error) {
	h := &HTTPLogger{log: log}
	if path == "" {
		return h, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open http log file %q: %w", path, err)
	}
	h.file = f
	return h, nil
}

// LogRequest writes one access-log line. Failures are reported through the
// structured logger rather than returned, since request handling must not
// block on log-file health.
func (h *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	line := fmt.Sprintf("%s %s %s %s %d %s %q %s\n",
		time.Now().UTC().Format(time.RFC3339), ip, method, uri, status, latency, userAgent, requestID)

	if h.file == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.file.WriteString(line); err != nil && h.log != nil {
		h.log.Error("write http log line", Error(err))
	}
}

// Close releases the underlying log file, if any.
func (h *HTTPLogger) Close() error {
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}

// Package main provides the entry point for the Knowledge Extraction API server
//
// @title Knowledge Extraction API
// @version 0.1.0
// @description Knowledge Extraction Pipeline - schema-driven document ingestion and entity extraction
// @contact.name Knowledge Extraction Team
// @license.name Proprietary
// @host localhost:5300
// @BasePath /
// @schemes http https
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Shared API key
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/TKontu/knowledge-extraction/domain/classification"
	"github.com/TKontu/knowledge-extraction/domain/entities"
	"github.com/TKontu/knowledge-extraction/domain/extraction"
	"github.com/TKontu/knowledge-extraction/domain/extractions"
	"github.com/TKontu/knowledge-extraction/domain/health"
	"github.com/TKontu/knowledge-extraction/domain/jobs"
	"github.com/TKontu/knowledge-extraction/domain/merge"
	"github.com/TKontu/knowledge-extraction/domain/projects"
	"github.com/TKontu/knowledge-extraction/domain/scraping"
	"github.com/TKontu/knowledge-extraction/domain/sources"
	"github.com/TKontu/knowledge-extraction/domain/tracing"
	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/internal/database"
	"github.com/TKontu/knowledge-extraction/internal/llmqueue"
	"github.com/TKontu/knowledge-extraction/internal/llmworker"
	"github.com/TKontu/knowledge-extraction/internal/server"
	"github.com/TKontu/knowledge-extraction/pkg/auth"
	"github.com/TKontu/knowledge-extraction/pkg/embeddings"
	"github.com/TKontu/knowledge-extraction/pkg/llm"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
	"github.com/TKontu/knowledge-extraction/pkg/vectorstore"
)

func main() {
	// Load .env files if present (for local development)
	// Order matters: .env.local overrides .env
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local") // Overload ensures local values take precedence

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		server.Module,
		tracing.Module,

		// Auth module
		auth.Module,

		// Embeddings module (provides embedding client for classification/dedup)
		embeddings.Module,

		// LLM module (chat-completion provider backing the extraction queue)
		llm.Module,

		// LLM request/response queue (durable, Postgres-backed, LISTEN/NOTIFY)
		llmqueue.Module,

		// LLM worker (dequeues requests, dispatches to the configured provider)
		llmworker.Module,

		// Vector store (Qdrant-backed VectorStore + Deduplicator)
		vectorstore.Module,
		vectorstore.DeduplicatorModule,

		// Domain modules
		health.Module,
		projects.Module,
		sources.Module,
		extractions.Module,
		entities.Module,
		jobs.Module,
		classification.Module,
		extraction.Module,
		merge.Module,
		scraping.Module,
	).Run()
}

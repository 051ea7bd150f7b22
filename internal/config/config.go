// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// insecureAPIKeys is the set of values API_KEY must never equal or begin
// with (compared case-insensitively).
var insecureAPIKeys = map[string]bool{
	"changeme": true,
	"secret":   true,
	"password": true,
	"apikey":   true,
	"test":     true,
	"dev":      true,
	"":         true,
}

// Config holds all application configuration.
type Config struct {
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPLogFile   string `env:"HTTP_LOG_FILE" envDefault:""`

	// APIKey authenticates every non-exempt HTTP request via X-API-Key.
	APIKey string `env:"API_KEY,required"`

	Database   DatabaseConfig
	Embeddings EmbeddingsConfig
	LLM        LLMConfig
	Queue      QueueConfig
	KE         KEConfig
	Camoufox   CamoufoxConfig
	VectorDB   VectorDBConfig
	Otel       OtelConfig

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"ke"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"ke"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// EmbeddingsConfig holds embedding service configuration.
// Dimension is 1024 to satisfy the VectorStore contract; the teacher's
// default of 768 (text-embedding-004) does not fit here.
type EmbeddingsConfig struct {
	Provider         string        `env:"EMBEDDING_PROVIDER" envDefault:""`
	GCPProjectID     string        `env:"GCP_PROJECT_ID" envDefault:""`
	VertexAILocation string        `env:"VERTEX_AI_LOCATION" envDefault:"us-central1"`
	Model            string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-005"`
	Dimension        int           `env:"EMBEDDING_DIMENSION" envDefault:"1024"`
	RerankModel      string        `env:"RERANK_MODEL" envDefault:"semantic-ranker-512"`
	GoogleAPIKey     string        `env:"GOOGLE_API_KEY" envDefault:""`
	NetworkDisabled  bool          `env:"EMBEDDINGS_NETWORK_DISABLED" envDefault:"false"`
	CacheTTL         time.Duration `env:"EMBEDDING_CACHE_TTL" envDefault:"24h"`
}

func (e *EmbeddingsConfig) IsEnabled() bool {
	if e.NetworkDisabled {
		return false
	}
	return (e.GCPProjectID != "" && e.VertexAILocation != "") || e.GoogleAPIKey != ""
}

func (e *EmbeddingsConfig) UseVertexAI() bool {
	return e.GCPProjectID != "" && e.VertexAILocation != ""
}

// LLMConfig holds chat-completion configuration.
type LLMConfig struct {
	GCPProjectID     string        `env:"GCP_PROJECT_ID" envDefault:""`
	VertexAILocation string        `env:"VERTEX_AI_LOCATION" envDefault:"global"`
	Model            string        `env:"VERTEX_AI_MODEL" envDefault:"gemini-3-flash-preview"`
	MaxOutputTokens  int           `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"65536"`
	BaseTemperature  float64       `env:"LLM_BASE_TEMPERATURE" envDefault:"0"`
	RetryTempStep    float64       `env:"LLM_RETRY_TEMPERATURE_INCREMENT" envDefault:"0.2"`
	Timeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	GoogleAPIKey     string        `env:"GOOGLE_API_KEY" envDefault:""`
	NetworkDisabled  bool          `env:"LLM_NETWORK_DISABLED" envDefault:"false"`
}

func (l *LLMConfig) IsEnabled() bool {
	if l.NetworkDisabled {
		return false
	}
	return l.UseVertexAI() || l.GoogleAPIKey != ""
}

func (l *LLMConfig) UseVertexAI() bool {
	return l.GCPProjectID != "" && l.VertexAILocation != ""
}

// QueueConfig tunes the LLMQueue and LLMWorker (spec.md §4.1/§4.2).
type QueueConfig struct {
	MaxQueueDepth         int           `env:"LLM_QUEUE_MAX_DEPTH" envDefault:"1000"`
	BackpressureThreshold int           `env:"LLM_QUEUE_BACKPRESSURE_THRESHOLD" envDefault:"500"`
	ResponseTTL           time.Duration `env:"LLM_QUEUE_RESPONSE_TTL" envDefault:"10m"`
	PollInterval          time.Duration `env:"LLM_QUEUE_POLL_INTERVAL" envDefault:"250ms"`

	MinConcurrency     int           `env:"LLM_WORKER_MIN_CONCURRENCY" envDefault:"1"`
	MaxConcurrency     int           `env:"LLM_WORKER_MAX_CONCURRENCY" envDefault:"20"`
	InitialConcurrency int           `env:"LLM_WORKER_INITIAL_CONCURRENCY" envDefault:"5"`
	AdjustmentInterval time.Duration `env:"LLM_WORKER_ADJUSTMENT_INTERVAL" envDefault:"30s"`
	MaxRetries         int           `env:"LLM_WORKER_MAX_RETRIES" envDefault:"3"`
}

// KEConfig holds core pipeline tuning, prefixed KE_ per spec.md §6.
type KEConfig struct {
	DedupThreshold                 float64       `env:"KE_DEDUP_THRESHOLD" envDefault:"0.90"`
	ExtractionMaxConcurrentSources int           `env:"KE_EXTRACTION_MAX_CONCURRENT_SOURCES" envDefault:"10"`
	ExtractionMaxConcurrentChunks  int           `env:"KE_EXTRACTION_MAX_CONCURRENT_CHUNKS" envDefault:"8"`
	CheckpointChunkSize            int           `env:"KE_CHECKPOINT_CHUNK_SIZE" envDefault:"20"`
	ChunkSize                      int           `env:"KE_CHUNK_SIZE" envDefault:"4000"`
	ChunkOverlap                   int           `env:"KE_CHUNK_OVERLAP" envDefault:"400"`
	LLMRetryBackoffMin             time.Duration `env:"KE_LLM_RETRY_BACKOFF_MIN" envDefault:"500ms"`
	LLMRetryBackoffMax             time.Duration `env:"KE_LLM_RETRY_BACKOFF_MAX" envDefault:"10s"`
	ClassifierHighThreshold        float64       `env:"KE_CLASSIFIER_HIGH_THRESHOLD" envDefault:"0.75"`
	ClassifierLowThreshold         float64       `env:"KE_CLASSIFIER_LOW_THRESHOLD" envDefault:"0.35"`
	ClassifierRerankThreshold      float64       `env:"KE_CLASSIFIER_RERANK_THRESHOLD" envDefault:"0.5"`
	UseDefaultSkipPatterns         bool          `env:"KE_USE_DEFAULT_SKIP_PATTERNS" envDefault:"true"`
	SmartMergeMinConfidence        float64       `env:"KE_SMART_MERGE_MIN_CONFIDENCE" envDefault:"0.3"`
	SmartMergeMaxCandidates        int           `env:"KE_SMART_MERGE_MAX_CANDIDATES" envDefault:"8"`
}

// CamoufoxConfig holds BrowserPool/scraper tuning, prefixed CAMOUFOX_.
type CamoufoxConfig struct {
	BrowserCount         int           `env:"CAMOUFOX_BROWSER_COUNT" envDefault:"3"`
	MaxConcurrentPages   int           `env:"CAMOUFOX_MAX_CONCURRENT_PAGES" envDefault:"10"`
	RecycleAfterRequests int           `env:"CAMOUFOX_RECYCLE_AFTER_REQUESTS" envDefault:"200"`
	NavigationTimeout    time.Duration `env:"CAMOUFOX_NAVIGATION_TIMEOUT" envDefault:"30s"`
	NetworkIdleTimeout   time.Duration `env:"CAMOUFOX_NETWORK_IDLE_TIMEOUT" envDefault:"5s"`
	StabilityInterval    time.Duration `env:"CAMOUFOX_STABILITY_INTERVAL" envDefault:"250ms"`
	StabilityChecks      int           `env:"CAMOUFOX_STABILITY_CHECKS" envDefault:"3"`
	ShutdownDrain        time.Duration `env:"CAMOUFOX_SHUTDOWN_DRAIN" envDefault:"30s"`
	Headless             bool          `env:"CAMOUFOX_HEADLESS" envDefault:"true"`
}

// VectorDBConfig points at the Qdrant collection backing VectorStore.
type VectorDBConfig struct {
	Address    string `env:"QDRANT_ADDRESS" envDefault:"localhost:6334"`
	Collection string `env:"QDRANT_COLLECTION" envDefault:"ke_extractions"`
	Dimension  int    `env:"QDRANT_DIMENSION" envDefault:"1024"`
}

// NewConfig loads configuration from environment variables.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	weakKey := len(cfg.APIKey) < 16
	lowerKey := strings.ToLower(cfg.APIKey)
	for bad := range insecureAPIKeys {
		if bad != "" && strings.HasPrefix(lowerKey, bad) {
			weakKey = true
		}
	}
	if weakKey {
		return nil, fmt.Errorf("API_KEY must be at least 16 characters and not a known-insecure value")
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
	)

	return cfg, nil
}

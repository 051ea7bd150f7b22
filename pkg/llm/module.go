package llm

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/llm/vertex"
)

// Module provides the chat-completion llm.ChatProvider used by LLMWorker.
var Module = fx.Module("llm",
	fx.Provide(
		fx.Annotate(
			NewService,
			fx.As(new(ChatProvider)),
			fx.As(new(Provider)),
		),
	),
)

// Service selects and lazily initializes the configured chat-completion
// backend, falling back to NoopProvider when none is configured. Mirrors
// pkg/embeddings.Service's client-selection-on-start pattern.
type Service struct {
	ChatProvider
	log *slog.Logger
}

// NewService constructs the llm.ChatProvider for the process.
func NewService(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *Service {
	llmCfg := cfg.LLM
	svc := &Service{ChatProvider: NewNoopProvider(), log: log}

	if !llmCfg.IsEnabled() {
		log.Info("llm provider disabled - no configuration provided")
		return svc
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !llmCfg.UseVertexAI() {
				log.Warn("LLM_NETWORK_DISABLED=false but no Vertex AI project configured")
				return nil
			}

			client, err := vertex.NewClient(ctx, vertex.Config{
				ProjectID:       llmCfg.GCPProjectID,
				Location:        llmCfg.VertexAILocation,
				Model:           llmCfg.Model,
				Timeout:         llmCfg.Timeout,
				Temperature:     llmCfg.BaseTemperature,
				MaxOutputTokens: llmCfg.MaxOutputTokens,
			}, vertex.WithLogger(log))
			if err != nil {
				log.Error("failed to initialize Vertex AI chat client", slog.String("error", err.Error()))
				return nil
			}

			svc.ChatProvider = client
			log.Info("Vertex AI chat client initialized", slog.String("model", llmCfg.Model))
			return nil
		},
	})

	return svc
}

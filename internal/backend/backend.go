// Package backend wires the model runtime: Genkit initialization, the text
// generator with retry, and the embedding gateway used by the knowledge
// layer.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/fitcoach/fitcoach/internal/config"
	"github.com/fitcoach/fitcoach/internal/log"
)

// VectorDimension is the embedding width of bge-m3, matching the vector
// column in the knowledge_chunks table. Changing the embedding model means a
// migration.
const VectorDimension = 1024

// Backend holds the initialized Genkit runtime plus the handles the rest of
// the application generates and embeds through.
type Backend struct {
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	modelRef   string // provider-prefixed model name for genkit.Generate
	ollamaHost string
	cfg        *config.Config
	logger     log.Logger
}

// New initializes Genkit with the configured provider and registers the
// generation model and embedder.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*Backend, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	b := &Backend{
		ollamaHost: cfg.OllamaHost,
		cfg:        cfg,
		logger:     logger,
	}

	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration, there is no discovery.
		plugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

		b.Genkit = g
		b.Embedder = ollama.Embedder(g, cfg.OllamaHost)
		b.modelRef = "ollama/" + cfg.ModelName
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "embedder", cfg.EmbedderModel, "host", cfg.OllamaHost)

	case config.ProviderGoogleAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		b.Genkit = g
		b.Embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		b.modelRef = "googleai/" + cfg.ModelName
		logger.Info("initialized genkit with googleai provider", "model", cfg.ModelName)

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if b.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	return b, nil
}

// Generator builds the text generator backed by this runtime.
func (b *Backend) Generator() *Generator {
	return NewGenerator(b.Genkit, b.modelRef, b.cfg.Temperature, b.logger)
}

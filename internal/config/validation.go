package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Sentinel errors returned by Validate. Check with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the backend provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunking indicates the chunk size/overlap combination is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidMinScore indicates the relevance floor is out of range.
	ErrInvalidMinScore = errors.New("invalid min_score")

	// ErrInvalidPostgres indicates a PostgreSQL connection setting is invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Backend validation
	switch c.Provider {
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
	case ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for the googleai provider",
				ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidProvider, c.Provider, ProviderOllama, ProviderGoogleAI)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// RAG validation
	if c.RAG.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got overlap=%d size=%d",
			ErrInvalidChunking, c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK < 1 || c.RAG.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.RAG.TopK)
	}
	if c.RAG.MinScore < 0 || c.RAG.MinScore > 1 {
		return fmt.Errorf("%w: must be between 0 and 1, got %g", ErrInvalidMinScore, c.RAG.MinScore)
	}

	// PostgreSQL validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "fitcoach_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password before deploying")
	}

	// Modern SSL modes only; allow/prefer are deprecated.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: ssl mode %q is not valid, must be one of %v",
			ErrInvalidPostgres, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

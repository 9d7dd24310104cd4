package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/fitcoach/fitcoach/internal/log"
)

// RetryConfig configures the retry behavior for generation calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for local model servers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching because Genkit and provider SDKs do not expose
// typed errors for transient failures. Re-evaluate when they do.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}

// generateFunc matches genkit.Generate, injectable for tests.
type generateFunc func(ctx context.Context, g *genkit.Genkit, opts ...ai.GenerateOption) (*ai.ModelResponse, error)

// Generator produces completions through Genkit with exponential backoff on
// transient failures and a rate limiter in front of every attempt.
//
// Generator is safe for concurrent use by multiple goroutines.
type Generator struct {
	g           *genkit.Genkit
	generate    generateFunc
	modelRef    string
	temperature float64
	retry       RetryConfig
	limiter     *rate.Limiter
	logger      log.Logger
}

// NewGenerator creates a Generator for the given registered model.
func NewGenerator(g *genkit.Genkit, modelRef string, temperature float64, logger log.Logger) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{
		g:           g,
		generate:    genkit.Generate,
		modelRef:    modelRef,
		temperature: temperature,
		retry:       DefaultRetryConfig(),
		limiter:     rate.NewLimiter(rate.Limit(2), 4),
		logger:      logger,
	}
}

// Generate runs one completion. The system prompt sets the assistant's
// persona, prompt carries the composed request. Transient failures retry
// with exponential backoff; anything else returns immediately.
func (gen *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	delay := gen.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= gen.retry.MaxRetries; attempt++ {
		if gen.limiter != nil {
			if err := gen.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := gen.generate(ctx, gen.g,
			ai.WithModelName(gen.modelRef),
			ai.WithSystem(system),
			ai.WithPrompt(prompt),
			ai.WithConfig(&ai.GenerationCommonConfig{
				Temperature: gen.temperature,
			}),
		)
		if err == nil {
			text := resp.Text()
			gen.logger.Debug("generation finished",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
				"response_length", len(text))
			return text, nil
		}

		lastErr = err
		if !retryableError(err) {
			return "", fmt.Errorf("generate: %w", err)
		}
		if attempt == gen.retry.MaxRetries {
			break
		}

		gen.logger.Debug("retrying generation",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, gen.retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("generate after %d retries (elapsed %v): %w",
		gen.retry.MaxRetries, time.Since(start), lastErr)
}

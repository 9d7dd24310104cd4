package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fitcoach/fitcoach/internal/config"
)

// Status reports the model runtime's availability.
type Status struct {
	Reachable     bool   `json:"connected"`
	LLMReady      bool   `json:"llm_model_ready"`
	EmbedderReady bool   `json:"embedding_model_ready"`
	Detail        string `json:"detail,omitempty"`
}

// Healthy reports whether every component is ready.
func (s Status) Healthy() bool {
	return s.Reachable && s.LLMReady && s.EmbedderReady
}

// ollamaTags mirrors the response of Ollama's /api/tags endpoint.
type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Health probes the model server and reports whether the configured
// generation and embedding models are available. The Genkit plugin does not
// expose model listing, so for Ollama this talks to /api/tags directly.
func (b *Backend) Health(ctx context.Context) Status {
	if b.cfg.Provider != config.ProviderOllama {
		// Managed providers have no local server to probe; failures
		// surface on the first call instead.
		return Status{Reachable: true, LLMReady: true, EmbedderReady: true}
	}
	return probeOllama(ctx, b.ollamaHost, b.cfg.ModelName, b.cfg.EmbedderModel)
}

func probeOllama(ctx context.Context, host, model, embedder string) Status {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		strings.TrimSuffix(host, "/")+"/api/tags", nil)
	if err != nil {
		return Status{Detail: fmt.Sprintf("building probe request: %v", err)}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Status{Detail: fmt.Sprintf("ollama unreachable at %s: %v", host, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{Detail: fmt.Sprintf("ollama returned %s", resp.Status)}
	}

	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Status{Reachable: true, Detail: fmt.Sprintf("decoding model list: %v", err)}
	}

	status := Status{Reachable: true}
	var missing []string
	if modelListed(tags, model) {
		status.LLMReady = true
	} else {
		missing = append(missing, model)
	}
	if modelListed(tags, embedder) {
		status.EmbedderReady = true
	} else {
		missing = append(missing, embedder)
	}
	if len(missing) > 0 {
		status.Detail = fmt.Sprintf("models not pulled: %s", strings.Join(missing, ", "))
	}
	return status
}

// modelListed matches with or without the tag suffix, so "bge-m3" finds
// "bge-m3:latest".
func modelListed(tags ollamaTags, name string) bool {
	for _, m := range tags.Models {
		if m.Name == name {
			return true
		}
		if base, _, ok := strings.Cut(m.Name, ":"); ok && base == name {
			return true
		}
	}
	return false
}

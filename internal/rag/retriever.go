package rag

import (
	"context"

	"github.com/fitcoach/fitcoach/internal/knowledge"
	"github.com/fitcoach/fitcoach/internal/log"
)

// DefaultTopK is the retrieval depth used when the caller does not specify
// one.
const DefaultTopK = 5

// Searcher is the slice of the knowledge store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Retriever turns user queries into ranked knowledge passages.
type Retriever struct {
	store    Searcher
	topK     int
	minScore float64
	logger   log.Logger
}

// NewRetriever creates a Retriever. Non-positive topK falls back to
// DefaultTopK; minScore of 0 keeps every hit.
func NewRetriever(store Searcher, topK int, minScore float64, logger log.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		store:    store,
		topK:     topK,
		minScore: minScore,
		logger:   logger,
	}
}

// Retrieve returns at most topK passages relevant to the query, ordered by
// similarity descending. An empty or sparse index yields fewer passages, or
// none, without error. Errors wrap knowledge.ErrEmbedding or
// knowledge.ErrIndex so callers can pick a fallback.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = r.topK
	}

	results, err := r.store.Search(ctx, query,
		knowledge.WithTopK(topK),
		knowledge.WithMinScore(r.minScore),
	)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(results))
	for _, res := range results {
		passages = append(passages, Passage{
			Source:     res.Chunk.Source,
			Text:       res.Chunk.Text,
			Similarity: res.Similarity,
		})
	}
	r.logger.Debug("retrieved passages", "query_length", len(query), "count", len(passages))
	return passages, nil
}

package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/fitcoach/fitcoach/internal/log"
)

// Querier defines the database operations Store needs. The interface lives
// with its consumer so tests can substitute an in-memory implementation.
type Querier interface {
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error
	SearchChunks(ctx context.Context, embedding pgvector.Vector, limit int) ([]SearchChunksRow, error)
	CountChunks(ctx context.Context) (int64, error)
	CountSources(ctx context.Context) (int64, error)
	TruncateChunks(ctx context.Context) error
}

// Store manages the vector index of knowledge chunks. It generates
// embeddings through the configured embedder and runs similarity search over
// PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// NewStore creates a Store. A nil logger discards output.
func NewStore(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds one chunk and upserts it into the index. Chunks with an
// existing id are replaced, so re-ingesting a document never duplicates it.
func (s *Store) Add(ctx context.Context, chunk Chunk) error {
	embedding, err := s.embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("chunk %q: %w", chunk.ID, err)
	}

	err = s.queries.UpsertChunk(ctx, UpsertChunkParams{
		ID:        chunk.ID,
		Source:    chunk.Source,
		Seq:       chunk.Seq,
		Content:   chunk.Text,
		Embedding: embedding,
		Metadata:  chunk.Metadata,
	})
	if err != nil {
		return fmt.Errorf("upsert chunk %q: %w: %w", chunk.ID, ErrIndex, err)
	}

	s.logger.Debug("added chunk", "id", chunk.ID, "source", chunk.Source, "seq", chunk.Seq)
	return nil
}

// Search embeds the query and returns the nearest chunks ordered by
// similarity, highest first. Similarity is cosine similarity mapped to
// [0, 1]. An empty index yields an empty result, not an error.
//
// Example:
//
//	results, err := store.Search(ctx, "progressive overload",
//	    knowledge.WithTopK(5), knowledge.WithMinScore(0.3))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	// Bound the embedding call plus vector query so a stalled backend
	// cannot block the caller.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.queries.SearchChunks(queryCtx, embedding, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w: %w", ErrIndex, err)
		}
		return nil, fmt.Errorf("search: %w: %w", ErrIndex, err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		similarity := clampScore(row.Similarity)
		if similarity < cfg.minScore {
			continue
		}
		results = append(results, Result{
			Chunk: Chunk{
				ID:       row.ID,
				Text:     row.Content,
				Source:   row.Source,
				Seq:      row.Seq,
				Metadata: row.Metadata,
				CreateAt: row.CreatedAt,
			},
			Similarity: similarity,
		})
	}
	return results, nil
}

// Stats reports chunk and distinct-source counts for the index.
func (s *Store) Stats(ctx context.Context) (chunks, sources int64, err error) {
	chunks, err = s.queries.CountChunks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("count chunks: %w: %w", ErrIndex, err)
	}
	sources, err = s.queries.CountSources(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("count sources: %w: %w", ErrIndex, err)
	}
	return chunks, sources, nil
}

// Clear removes every chunk from the index. All or nothing: on error the
// index is unchanged.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.queries.TruncateChunks(ctx); err != nil {
		return fmt.Errorf("clear index: %w: %w", ErrIndex, err)
	}
	s.logger.Info("knowledge index cleared")
	return nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("%w: empty embedding returned", ErrEmbedding)
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// clampScore keeps similarity in [0, 1] even when float rounding in the
// distance computation nudges it outside.
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

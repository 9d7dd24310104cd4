package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the knowledge layer. Checked with errors.Is().
var (
	// ErrEmbedding indicates the embedding gateway failed or returned
	// malformed output.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndex indicates a vector index read or write failed.
	ErrIndex = errors.New("vector index failed")

	// ErrUnsupported indicates a document format the pipeline cannot extract
	// text from.
	ErrUnsupported = errors.New("unsupported document format")

	// ErrEmptyDocument indicates a document yielded no extractable text.
	ErrEmptyDocument = errors.New("document is empty")
)

// Chunk is a bounded-size slice of a source document, the unit of embedding
// and retrieval. Immutable once embedded; after an upsert the index owns its
// copy.
type Chunk struct {
	ID       string            // deterministic, derived from source and seq
	Text     string            // chunk content
	Source   string            // source document name
	Seq      int               // position within the source document
	Metadata map[string]string // caller metadata merged with source/seq
	CreateAt time.Time
}

// Result is a single search hit with its normalized similarity score.
type Result struct {
	Chunk      Chunk
	Similarity float64 // cosine similarity mapped to [0, 1]
}

// Stats is a read-only projection over the vector index and ingestion
// bookkeeping.
type Stats struct {
	TotalDocuments int    `json:"total_documents"`
	TotalChunks    int    `json:"total_chunks"`
	Collection     string `json:"collection_name"`
	EmbeddingModel string `json:"embedding_model"`
}

// ChunkID derives the stable id for a chunk of a source document.
// Re-ingesting the same document overwrites its chunks instead of
// duplicating them.
func ChunkID(source string, seq int) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%s#%d", source, seq))
	return "chunk_" + hex.EncodeToString(hash[:16])
}

// DefaultTopK is the number of results Search returns when WithTopK is
// not given.
const DefaultTopK = 5

// SearchOption configures Search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK     int
	minScore float64
	timeout  time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithMinScore drops results scoring below floor. Default 0 keeps everything.
func WithMinScore(floor float64) SearchOption {
	return func(c *searchConfig) {
		c.minScore = floor
	}
}

// WithTimeout bounds the embedding call plus index query. Default 10s.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    DefaultTopK,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

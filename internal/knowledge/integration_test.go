//go:build integration
// +build integration

package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/fitcoach/fitcoach/internal/log"
	"github.com/fitcoach/fitcoach/internal/testutil"
)

// Run with: go test -tags=integration ./internal/knowledge/...

// keywordEmbedder produces deterministic 1024-dimensional vectors so vector
// search behaves predictably without a real embedding model. Each topic
// keyword lights up one dimension; texts sharing keywords land close together
// in cosine space.
type keywordEmbedder struct{}

var topicDims = map[string]int{
	"squat":   0,
	"protein": 1,
	"sleep":   2,
}

func (keywordEmbedder) Name() string { return "keyword-embedder" }

func (keywordEmbedder) Register(_ api.Registry) {}

func (keywordEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	var embeddings []*ai.Embedding
	for _, doc := range req.Input {
		text := strings.ToLower(doc.Content[0].Text)
		vec := make([]float32, 1024)
		matched := false
		for keyword, dim := range topicDims {
			if strings.Contains(text, keyword) {
				vec[dim] = 1
				matched = true
			}
		}
		if !matched {
			vec[1023] = 1
		}
		embeddings = append(embeddings, &ai.Embedding{Embedding: vec})
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func TestStoreIntegration(t *testing.T) {
	pg := testutil.StartPostgres(t)
	store := NewStore(NewQueries(pg.Pool), keywordEmbedder{}, log.NewNop())
	ctx := context.Background()

	docs := []Chunk{
		{ID: ChunkID("strength.md", 0), Text: "The squat is the foundation of lower body strength.", Source: "strength.md", Seq: 0},
		{ID: ChunkID("nutrition.md", 0), Text: "Protein intake supports muscle recovery.", Source: "nutrition.md", Seq: 0},
		{ID: ChunkID("recovery.md", 0), Text: "Sleep quality drives adaptation.", Source: "recovery.md", Seq: 0},
	}
	for _, doc := range docs {
		if err := store.Add(ctx, doc); err != nil {
			t.Fatalf("Add(%s): %v", doc.Source, err)
		}
	}

	t.Run("search ranks by similarity", func(t *testing.T) {
		results, err := store.Search(ctx, "how deep should I squat")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("len(results) = %d, want 3", len(results))
		}
		if results[0].Chunk.Source != "strength.md" {
			t.Errorf("top result = %s, want strength.md", results[0].Chunk.Source)
		}
		if results[0].Similarity < 0.99 {
			t.Errorf("top similarity = %f, want ~1", results[0].Similarity)
		}
		for i := 1; i < len(results); i++ {
			if results[i].Similarity > results[i-1].Similarity {
				t.Errorf("results not ordered: [%d]=%f > [%d]=%f",
					i, results[i].Similarity, i-1, results[i-1].Similarity)
			}
		}
	})

	t.Run("min score filters weak matches", func(t *testing.T) {
		results, err := store.Search(ctx, "protein timing", WithMinScore(0.9))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		if results[0].Chunk.Source != "nutrition.md" {
			t.Errorf("result = %s, want nutrition.md", results[0].Chunk.Source)
		}
	})

	t.Run("upsert replaces instead of duplicating", func(t *testing.T) {
		updated := docs[0]
		updated.Text = "The squat builds strength through a full range of motion."
		if err := store.Add(ctx, updated); err != nil {
			t.Fatalf("Add: %v", err)
		}

		chunks, sources, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if chunks != 3 || sources != 3 {
			t.Errorf("Stats = (%d, %d), want (3, 3)", chunks, sources)
		}

		results, err := store.Search(ctx, "squat", WithTopK(1))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].Chunk.Text != updated.Text {
			t.Errorf("search returned stale chunk text: %+v", results)
		}
	})

	t.Run("clear empties the index", func(t *testing.T) {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		chunks, sources, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if chunks != 0 || sources != 0 {
			t.Errorf("Stats after clear = (%d, %d), want (0, 0)", chunks, sources)
		}
		results, err := store.Search(ctx, "squat")
		if err != nil {
			t.Fatalf("Search on empty index: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("len(results) = %d, want 0", len(results))
		}
	})
}

func TestPipelineIntegration(t *testing.T) {
	pg := testutil.StartPostgres(t)
	store := NewStore(NewQueries(pg.Pool), keywordEmbedder{}, log.NewNop())
	pipeline := NewPipeline(store, PipelineConfig{
		ChunkSize:      120,
		ChunkOverlap:   20,
		Collection:     "fitness_knowledge",
		EmbeddingModel: "keyword-embedder",
	}, log.NewNop())
	ctx := context.Background()

	text := strings.Repeat("Squat with control. ", 30)

	n, err := pipeline.IngestText(ctx, "form.md", text, nil)
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if n < 2 {
		t.Fatalf("chunks written = %d, want at least 2", n)
	}

	// Re-ingesting the same document must not grow the index.
	again, err := pipeline.IngestText(ctx, "form.md", text, nil)
	if err != nil {
		t.Fatalf("IngestText again: %v", err)
	}
	if again != n {
		t.Errorf("re-ingest wrote %d chunks, want %d", again, n)
	}

	stats, err := pipeline.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalChunks != n {
		t.Errorf("TotalChunks = %d, want %d", stats.TotalChunks, n)
	}
	if stats.TotalDocuments != 1 {
		t.Errorf("TotalDocuments = %d, want 1", stats.TotalDocuments)
	}
}

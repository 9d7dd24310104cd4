package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/fitcoach/fitcoach/internal/knowledge"
)

// stubSearcher implements Searcher.
type stubSearcher struct {
	results []knowledge.Result
	err     error
	gotOpts []knowledge.SearchOption
}

func (s *stubSearcher) Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error) {
	s.gotOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestRetrieve(t *testing.T) {
	searcher := &stubSearcher{
		results: []knowledge.Result{
			{Chunk: knowledge.Chunk{Source: "a.md", Text: "bar path matters"}, Similarity: 0.9},
			{Chunk: knowledge.Chunk{Source: "b.md", Text: "warm up first"}, Similarity: 0.6},
		},
	}
	r := NewRetriever(searcher, 5, 0, nil)

	passages, err := r.Retrieve(context.Background(), "squat tips", 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("got %d passages, want 2", len(passages))
	}
	if passages[0].Source != "a.md" || passages[0].Similarity != 0.9 {
		t.Errorf("first passage mismatch: %+v", passages[0])
	}
	for i := 1; i < len(passages); i++ {
		if passages[i].Similarity > passages[i-1].Similarity {
			t.Error("passages not ordered by similarity")
		}
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	r := NewRetriever(&stubSearcher{}, 5, 0, nil)
	passages, err := r.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("empty index must not error, got %v", err)
	}
	if len(passages) != 0 {
		t.Errorf("got %d passages, want 0", len(passages))
	}
}

func TestRetrievePropagatesErrors(t *testing.T) {
	searcher := &stubSearcher{err: knowledge.ErrEmbedding}
	r := NewRetriever(searcher, 5, 0, nil)
	_, err := r.Retrieve(context.Background(), "q", 0)
	if !errors.Is(err, knowledge.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestRetrieveDefaultTopK(t *testing.T) {
	r := NewRetriever(&stubSearcher{}, 0, 0, nil)
	if r.topK != DefaultTopK {
		t.Errorf("topK = %d, want %d", r.topK, DefaultTopK)
	}
}

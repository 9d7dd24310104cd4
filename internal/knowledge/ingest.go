package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fitcoach/fitcoach/internal/log"
)

// ingestConcurrency bounds how many documents a directory ingest processes
// at once. Embedding is the bottleneck and local Ollama servers degrade past
// a handful of parallel requests.
const ingestConcurrency = 4

// PipelineStore defines the storage operations Pipeline needs. Interface
// defined by the consumer so tests can use an in-memory store.
type PipelineStore interface {
	Add(ctx context.Context, chunk Chunk) error
	Stats(ctx context.Context) (chunks, sources int64, err error)
	Clear(ctx context.Context) error
}

// PipelineConfig carries chunking parameters and identity metadata for the
// stats report.
type PipelineConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	Collection     string
	EmbeddingModel string
}

// Pipeline turns source documents into embedded chunks in the vector index.
type Pipeline struct {
	store  PipelineStore
	cfg    PipelineConfig
	logger log.Logger
}

// NewPipeline creates an ingestion pipeline. Zero chunking parameters fall
// back to the package defaults.
func NewPipeline(store PipelineStore, cfg PipelineConfig, logger log.Logger) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{store: store, cfg: cfg, logger: logger}
}

// FileResult is the outcome of ingesting a single document.
type FileResult struct {
	Path   string
	Source string
	Chunks int
	Err    error
}

// BatchResult aggregates a directory ingest. Files keeps one entry per
// visited document in path order.
type BatchResult struct {
	Files       []FileResult
	Succeeded   int
	Failed      int
	Skipped     int
	ChunksAdded int
	Duration    time.Duration
}

// IngestFile extracts, chunks, embeds and indexes one document. Returns the
// number of chunks written. Writes are at-least-once: a mid-document failure
// aborts the rest of that document but chunks already written stay in the
// index, and a full re-ingest overwrites them in place.
func (p *Pipeline) IngestFile(ctx context.Context, path string, metadata map[string]string) (int, error) {
	text, err := ExtractText(path)
	if err != nil {
		return 0, err
	}
	source := filepath.Base(path)
	return p.IngestText(ctx, source, text, metadata)
}

// IngestText chunks and indexes raw text under the given source name.
func (p *Pipeline) IngestText(ctx context.Context, source, text string, metadata map[string]string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("ingest %q: %w", source, ErrEmptyDocument)
	}
	pieces, err := SplitText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("ingest %q: %w", source, err)
	}

	for seq, piece := range pieces {
		chunk := Chunk{
			ID:       ChunkID(source, seq),
			Text:     piece,
			Source:   source,
			Seq:      seq,
			Metadata: chunkMetadata(source, seq, metadata),
			CreateAt: time.Now(),
		}
		if err := p.store.Add(ctx, chunk); err != nil {
			return seq, fmt.Errorf("ingest %q: chunk %d/%d: %w", source, seq+1, len(pieces), err)
		}
	}

	p.logger.Info("ingested document", "source", source, "chunks", len(pieces))
	return len(pieces), nil
}

// IngestDir walks dir and ingests every supported document, up to
// ingestConcurrency at a time. One bad document marks its own entry failed
// and the walk continues. The error return covers the walk itself, not
// per-file failures.
func (p *Pipeline) IngestDir(ctx context.Context, dir string, metadata map[string]string) (*BatchResult, error) {
	start := time.Now()

	var paths []string
	skipped := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !SupportedFormat(filepath.Ext(path)) {
			skipped++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	result := &BatchResult{
		Files:   make([]FileResult, len(paths)),
		Skipped: skipped,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	var mu sync.Mutex
	for i, path := range paths {
		g.Go(func() error {
			chunks, err := p.IngestFile(gctx, path, metadata)
			mu.Lock()
			defer mu.Unlock()
			result.Files[i] = FileResult{
				Path:   path,
				Source: filepath.Base(path),
				Chunks: chunks,
				Err:    err,
			}
			if err != nil {
				result.Failed++
			} else {
				result.Succeeded++
				result.ChunksAdded += chunks
			}
			return nil
		})
	}
	// Workers never return errors; Wait only propagates context cancellation.
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("directory ingest finished",
		"dir", dir,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"chunks", result.ChunksAdded,
		"duration", result.Duration)
	return result, nil
}

// Stats reports index totals alongside the pipeline's collection identity.
func (p *Pipeline) Stats(ctx context.Context) (Stats, error) {
	chunks, sources, err := p.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalDocuments: int(sources),
		TotalChunks:    int(chunks),
		Collection:     p.cfg.Collection,
		EmbeddingModel: p.cfg.EmbeddingModel,
	}, nil
}

// Clear empties the knowledge index.
func (p *Pipeline) Clear(ctx context.Context) error {
	return p.store.Clear(ctx)
}

func chunkMetadata(source string, seq int, extra map[string]string) map[string]string {
	meta := make(map[string]string, len(extra)+3)
	for k, v := range extra {
		meta[k] = v
	}
	meta["source"] = source
	meta["seq"] = fmt.Sprintf("%d", seq)
	meta["ingested_at"] = time.Now().Format(time.RFC3339)
	return meta
}

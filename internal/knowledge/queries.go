package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx a Queries value needs, satisfied by both
// *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs the knowledge_chunks SQL against a pgx connection.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries bound to the given connection or pool.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// UpsertChunkParams carries one chunk plus its embedding into the index.
type UpsertChunkParams struct {
	ID        string
	Source    string
	Seq       int
	Content   string
	Embedding pgvector.Vector
	Metadata  map[string]string
}

const upsertChunkSQL = `
INSERT INTO knowledge_chunks (id, source, seq, content, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    source = EXCLUDED.source,
    seq = EXCLUDED.seq,
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata`

// UpsertChunk inserts a chunk or replaces the existing row with the same id.
func (q *Queries) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	meta, err := json.Marshal(arg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = q.db.Exec(ctx, upsertChunkSQL,
		arg.ID, arg.Source, arg.Seq, arg.Content, arg.Embedding, meta)
	return err
}

// SearchChunksRow is one nearest-neighbor hit ordered by cosine distance.
type SearchChunksRow struct {
	ID         string
	Source     string
	Seq        int
	Content    string
	Metadata   map[string]string
	CreatedAt  time.Time
	Similarity float64
}

const searchChunksSQL = `
SELECT id, source, seq, content, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM knowledge_chunks
ORDER BY embedding <=> $1, created_at, id
LIMIT $2`

// SearchChunks returns the limit nearest chunks to the query embedding.
// Equidistant rows come back in insertion order so repeated searches are
// stable.
func (q *Queries) SearchChunks(ctx context.Context, embedding pgvector.Vector, limit int) ([]SearchChunksRow, error) {
	rows, err := q.db.Query(ctx, searchChunksSQL, embedding, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchChunksRow
	for rows.Next() {
		var row SearchChunksRow
		var meta []byte
		if err := rows.Scan(&row.ID, &row.Source, &row.Seq, &row.Content, &meta, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", row.ID, err)
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// CountChunks returns the number of chunks in the index.
func (q *Queries) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM knowledge_chunks`).Scan(&n)
	return n, err
}

// CountSources returns the number of distinct source documents.
func (q *Queries) CountSources(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(DISTINCT source) FROM knowledge_chunks`).Scan(&n)
	return n, err
}

// TruncateChunks removes every chunk in a single statement, so a failure
// leaves the index untouched.
func (q *Queries) TruncateChunks(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `TRUNCATE knowledge_chunks`)
	return err
}

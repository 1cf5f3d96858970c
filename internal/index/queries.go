package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertChunkParams are the columns written by UpsertChunk.
type UpsertChunkParams struct {
	ID         string
	DocumentID string
	Content    string
	Embedding  *pgvector.Vector
	Metadata   []byte
}

// SearchChunksParams parameterizes a filtered vector search.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	FilterMetadata []byte
	ResultLimit    int32
}

// SearchChunksAllParams parameterizes an unfiltered vector search.
type SearchChunksAllParams struct {
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
}

// SearchChunksRow is one vector search result.
type SearchChunksRow struct {
	ID         string
	DocumentID string
	Content    string
	Metadata   []byte
	Distance   float64
}

const upsertChunkSQL = `
INSERT INTO chunks (id, document_id, content, embedding, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    document_id = EXCLUDED.document_id,
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata,
    updated_at = now()`

const searchChunksSQL = `
SELECT id, document_id, content, metadata,
       embedding <=> $1 AS distance
FROM chunks
WHERE metadata @> $2
ORDER BY embedding <=> $1
LIMIT $3`

const searchChunksAllSQL = `
SELECT id, document_id, content, metadata,
       embedding <=> $1 AS distance
FROM chunks
ORDER BY embedding <=> $1
LIMIT $2`

const deleteChunksByDocumentSQL = `
DELETE FROM chunks WHERE document_id = $1`

const countChunksSQL = `
SELECT count(*) FROM chunks WHERE metadata @> $1`

const countChunksAllSQL = `
SELECT count(*) FROM chunks`

// Queries is the pgx-backed Querier implementation.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries creates a Queries over the connection pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// UpsertChunk implements Querier.
func (q *Queries) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	_, err := q.pool.Exec(ctx, upsertChunkSQL,
		arg.ID, arg.DocumentID, arg.Content, arg.Embedding, arg.Metadata)
	return err
}

// SearchChunks implements Querier.
func (q *Queries) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	rows, err := q.pool.Query(ctx, searchChunksSQL,
		arg.QueryEmbedding, arg.FilterMetadata, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	return collectSearchRows(rows)
}

// SearchChunksAll implements Querier.
func (q *Queries) SearchChunksAll(ctx context.Context, arg SearchChunksAllParams) ([]SearchChunksRow, error) {
	rows, err := q.pool.Query(ctx, searchChunksAllSQL,
		arg.QueryEmbedding, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	return collectSearchRows(rows)
}

// DeleteChunksByDocument implements Querier.
func (q *Queries) DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteChunksByDocumentSQL, documentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountChunks implements Querier.
func (q *Queries) CountChunks(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	var err error
	if filterMetadata != nil {
		err = q.pool.QueryRow(ctx, countChunksSQL, filterMetadata).Scan(&count)
	} else {
		err = q.pool.QueryRow(ctx, countChunksAllSQL).Scan(&count)
	}
	return count, err
}

func collectSearchRows(rows pgx.Rows) ([]SearchChunksRow, error) {
	defer rows.Close()

	var out []SearchChunksRow
	for rows.Next() {
		var r SearchChunksRow
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Content, &r.Metadata, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

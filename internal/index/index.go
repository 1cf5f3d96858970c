// Package index stores and searches document chunks in PostgreSQL with
// pgvector. Embeddings are generated on write and on search through a
// Genkit embedder; the retrieval pipeline consumes the VectorIndex
// interface and never touches the database directly.
package index

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the vector index could not be reached or the
// search could not run. The pipeline treats this as fatal: no retrieval
// means no grounded answer.
var ErrUnavailable = errors.New("vector index unavailable")

// Metadata describes where a chunk came from.
type Metadata struct {
	Filename   string   `json:"filename"`
	Tags       []string `json:"tags,omitempty"`
	Folder     string   `json:"folder,omitempty"`
	DocumentID string   `json:"document_id"`
}

// Chunk is one retrievable unit of content.
//
// Distance is the cosine distance between the chunk and the search query,
// in [0, 2] where 0 is identical. It is only meaningful on chunks returned
// by Search.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Distance   float64
	Metadata   Metadata
}

// VectorIndex is the retrieval surface the pipeline depends on.
type VectorIndex interface {
	// Search returns up to topK chunks most similar to query, optionally
	// restricted to chunks whose metadata contains every filter entry.
	// Results are ordered by ascending distance.
	Search(ctx context.Context, query string, topK int, filter map[string]any) ([]Chunk, error)
}

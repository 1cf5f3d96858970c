package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/tessera-ai/tessera/internal/log"
)

// searchTimeout bounds a single vector search, embedding included.
const searchTimeout = 10 * time.Second

// Querier defines the database operations the Store needs. The interface
// lives with its consumer so tests can substitute an in-memory fake and
// production wires the pgx-backed implementation from queries.go.
type Querier interface {
	// UpsertChunk inserts or replaces a chunk by ID.
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error

	// SearchChunks performs filtered vector search.
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error)

	// SearchChunksAll performs unfiltered vector search.
	SearchChunksAll(ctx context.Context, arg SearchChunksAllParams) ([]SearchChunksRow, error)

	// DeleteChunksByDocument removes every chunk of a document.
	DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error)

	// CountChunks counts chunks matching the metadata filter; a nil filter
	// counts everything.
	CountChunks(ctx context.Context, filterMetadata []byte) (int64, error)
}

// Store manages chunk storage and vector similarity search.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// NewStore creates a Store over the given querier and embedder.
func NewStore(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger.With("component", "index"),
	}
}

// Upsert embeds the chunk content and writes the chunk to the index.
func (s *Store) Upsert(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk ID must not be empty")
	}
	if chunk.Content == "" {
		return fmt.Errorf("chunk %q has empty content", chunk.ID)
	}

	embedding, err := s.embed(ctx, chunk.Content)
	if err != nil {
		return fmt.Errorf("embed chunk %q: %w", chunk.ID, err)
	}

	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for chunk %q: %w", chunk.ID, err)
	}

	err = s.queries.UpsertChunk(ctx, UpsertChunkParams{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Content:    chunk.Content,
		Embedding:  embedding,
		Metadata:   metadataJSON,
	})
	if err != nil {
		return fmt.Errorf("upsert chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("upserted chunk",
		"id", chunk.ID,
		"document_id", chunk.DocumentID,
		"content_length", len(chunk.Content),
	)
	return nil
}

// Search implements VectorIndex. Failures are wrapped in ErrUnavailable so
// callers can distinguish "index down" from ordinary errors.
func (s *Store) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]Chunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding timeout: %w", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: embed query: %w", ErrUnavailable, err)
	}

	var rows []SearchChunksRow
	if len(filter) > 0 {
		// filterJSON always comes from json.Marshal and the query is
		// parameterized, so the JSONB containment operator is injection-safe.
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal filter: %w", marshalErr)
		}
		rows, err = s.queries.SearchChunks(queryCtx, SearchChunksParams{
			QueryEmbedding: embedding,
			FilterMetadata: filterJSON,
			ResultLimit:    int32(topK),
		})
	} else {
		rows, err = s.queries.SearchChunksAll(queryCtx, SearchChunksAllParams{
			QueryEmbedding: embedding,
			ResultLimit:    int32(topK),
		})
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: search timeout: %w", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: search: %w", ErrUnavailable, err)
	}

	chunks := make([]Chunk, 0, len(rows))
	for _, row := range rows {
		var metadata Metadata
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", row.ID, "error", err)
		}
		chunks = append(chunks, Chunk{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Content:    row.Content,
			Distance:   row.Distance,
			Metadata:   metadata,
		})
	}

	s.logger.Debug("vector search complete",
		"top_k", topK,
		"filtered", len(filter) > 0,
		"results", len(chunks),
	)
	return chunks, nil
}

// DeleteDocument removes every chunk belonging to the document and returns
// how many were removed.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	n, err := s.queries.DeleteChunksByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for document %q: %w", documentID, err)
	}
	s.logger.Debug("deleted document chunks", "document_id", documentID, "count", n)
	return int(n), nil
}

// Count returns the number of chunks matching the filter, or all chunks
// when filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]any) (int, error) {
	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshal filter: %w", err)
		}
	}

	count, err := s.queries.CountChunks(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("chunk count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

func (s *Store) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned no embedding")
	}
	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}

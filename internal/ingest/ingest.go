// Package ingest indexes local files into the vector store. Each file is
// chunked according to a per-document judge recommendation (or the
// semantic chunker when enabled) and written as one chunk row per piece.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/tessera-ai/tessera/internal/chunk"
	"github.com/tessera-ai/tessera/internal/index"
	"github.com/tessera-ai/tessera/internal/judge"
	"github.com/tessera-ai/tessera/internal/log"
)

// ChunkStore defines the storage operations the ingester needs. The
// interface lives with its consumer; index.Store satisfies it.
type ChunkStore interface {
	// Upsert writes one chunk.
	Upsert(ctx context.Context, c index.Chunk) error

	// DeleteDocument removes all chunks of a document, returning the count.
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}

// defaultSupportedExtensions are the file types indexed by default.
var defaultSupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".go":   true,
	".py":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".c":    true,
	".cpp":  true,
	".h":    true,
	".rs":   true,
	".rb":   true,
	".sh":   true,
	".yaml": true,
	".yml":  true,
	".json": true,
	".html": true,
	".sql":  true,
}

// MaxFileSize caps one indexable file. Chunking removes the embedding-model
// limit per row, so this only guards against accidentally indexing
// binaries or logs.
const MaxFileSize = 1 << 20 // 1 MiB

// Result summarizes one indexing operation.
type Result struct {
	FilesAdded    int
	FilesSkipped  int
	FilesFailed   int
	ChunksIndexed int
	TotalSize     int64
	Duration      time.Duration
}

// Config wires an Ingester. Store is required. A nil Judge skips the
// per-document recommendation and uses Defaults directly; a nil Semantic
// disables LLM-assisted boundary detection.
type Config struct {
	Store    ChunkStore
	Judge    *judge.ChunkingJudge
	Semantic *chunk.SemanticChunker

	// Defaults apply when no judge is configured.
	DefaultChunkSize    int
	DefaultChunkOverlap int

	// Extensions overrides the default supported file types.
	Extensions []string

	Logger log.Logger
}

// Ingester indexes files and directories.
type Ingester struct {
	store               ChunkStore
	judge               *judge.ChunkingJudge
	semantic            *chunk.SemanticChunker
	defaultSize         int
	defaultOverlap      int
	supportedExtensions map[string]bool
	logger              log.Logger
}

// New creates an Ingester.
func New(cfg Config) (*Ingester, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}

	extMap := make(map[string]bool)
	if len(cfg.Extensions) > 0 {
		for _, ext := range cfg.Extensions {
			extMap[strings.ToLower(ext)] = true
		}
	} else {
		// Copy so instances never share a mutable map.
		for k, v := range defaultSupportedExtensions {
			extMap[k] = v
		}
	}

	size := cfg.DefaultChunkSize
	if size <= 0 {
		size = 500
	}
	overlap := cfg.DefaultChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Ingester{
		store:               cfg.Store,
		judge:               cfg.Judge,
		semantic:            cfg.Semantic,
		defaultSize:         size,
		defaultOverlap:      overlap,
		supportedExtensions: extMap,
		logger:              logger.With("component", "ingest"),
	}, nil
}

// AddFile indexes a single file.
func (ing *Ingester) AddFile(ctx context.Context, filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, use AddDirectory instead")
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !ing.supportedExtensions[ext] {
		return fmt.Errorf("unsupported file type: %s", ext)
	}
	if info.Size() > MaxFileSize {
		return fmt.Errorf("file %s (%d bytes) exceeds size limit (%d bytes)", absPath, info.Size(), MaxFileSize)
	}

	content, err := os.ReadFile(absPath) // #nosec G304 -- path validated above
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	n, err := ing.indexDocument(ctx, absPath, filepath.Dir(absPath), string(content))
	if err != nil {
		return err
	}
	ing.logger.Info("indexed file", "path", absPath, "chunks", n)
	return nil
}

// AddDirectory recursively indexes all supported files under dirPath,
// honoring a .gitignore at the directory root. Per-file failures are
// counted, not fatal.
func (ing *Ingester) AddDirectory(ctx context.Context, dirPath string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolve directory path: %w", err)
	}

	var gitIgnore *ignore.GitIgnore
	gitignorePath := filepath.Join(absDir, ".gitignore")
	if _, statErr := os.Stat(gitignorePath); statErr == nil {
		// A malformed .gitignore disables ignore matching, never the run.
		gitIgnore, _ = ignore.CompileIgnoreFile(gitignorePath)
	}

	err = filepath.Walk(absDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			result.FilesFailed++
			return nil
		}

		relPath, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			result.FilesFailed++
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !ing.supportedExtensions[ext] {
			result.FilesSkipped++
			return nil
		}
		if info.Size() > MaxFileSize {
			result.FilesSkipped++
			return nil
		}

		content, readErr := os.ReadFile(path) // #nosec G304 -- path comes from the walk
		if readErr != nil {
			result.FilesFailed++
			return nil
		}

		n, idxErr := ing.indexDocument(ctx, path, absDir, string(content))
		if idxErr != nil {
			ing.logger.Warn("failed to index file", "path", path, "error", idxErr)
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.ChunksIndexed += n
		result.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	result.Duration = time.Since(start)
	ing.logger.Info("directory indexed",
		"dir", absDir,
		"added", result.FilesAdded,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed,
		"chunks", result.ChunksIndexed,
	)
	return result, nil
}

// RemoveDocument deletes all chunks of a previously indexed file.
func (ing *Ingester) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	return ing.store.DeleteDocument(ctx, documentID)
}

// DocumentID derives the stable document ID for a file path.
func DocumentID(filePath string) string {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		absPath = filePath
	}
	hash := sha256.Sum256([]byte(absPath))
	return "file_" + hex.EncodeToString(hash[:16])
}

// indexDocument chunks content and upserts one row per chunk. Re-indexing
// a file first drops its previous chunks so stale pieces never linger.
func (ing *Ingester) indexDocument(ctx context.Context, path, baseDir, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("empty file")
	}

	docID := DocumentID(path)
	filename := filepath.Base(path)

	folder := ""
	if rel, err := filepath.Rel(baseDir, filepath.Dir(path)); err == nil && rel != "." {
		folder = filepath.ToSlash(rel)
	}

	pieces := ing.chunkContent(ctx, filename, content)

	if _, err := ing.store.DeleteDocument(ctx, docID); err != nil {
		return 0, fmt.Errorf("clear previous chunks: %w", err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	meta := index.Metadata{
		Filename:   filename,
		Tags:       []string{ext},
		Folder:     folder,
		DocumentID: docID,
	}

	written := 0
	for i, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		err := ing.store.Upsert(ctx, index.Chunk{
			ID:         fmt.Sprintf("%s_%04d", docID, i),
			DocumentID: docID,
			Content:    piece,
			Metadata:   meta,
		})
		if err != nil {
			return written, fmt.Errorf("upsert chunk %d: %w", i, err)
		}
		written++
	}
	if written == 0 {
		return 0, fmt.Errorf("no indexable content")
	}
	return written, nil
}

// chunkContent picks the chunking path for one document: judge-recommended
// parameters feed either the semantic chunker or a deterministic splitter.
func (ing *Ingester) chunkContent(ctx context.Context, filename, content string) []string {
	strategy := judge.StrategyRecursive
	size := ing.defaultSize
	overlap := ing.defaultOverlap

	if ing.judge != nil {
		rec := ing.judge.Recommend(ctx, filename, content)
		strategy = rec.Strategy
		size = rec.ChunkSize
		overlap = rec.ChunkOverlap
	}

	if ing.semantic != nil {
		return ing.semantic.Split(ctx, content)
	}
	return chunk.Split(strategy, content, size, overlap)
}

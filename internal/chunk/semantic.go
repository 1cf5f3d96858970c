// Package chunk splits document text into retrievable pieces. It offers
// deterministic splitters (recursive, token, markdown) and an LLM-assisted
// SemanticChunker that asks the model for semantic boundary offsets and
// falls back to paragraph splitting on any failure.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tessera-ai/tessera/internal/judge"
	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/provider"
)

const (
	// defaultMaxContext is the usable prompt budget in characters for one
	// boundary-detection call.
	defaultMaxContext = 24000

	// promptOverhead reserves room for the boundary-detection instructions
	// around the section text.
	promptOverhead = 1000
)

// SemanticChunker splits long text at model-detected semantic boundaries.
//
// Results are cached by content hash: chunking a given text is a pure
// function of its content, so concurrent requests for the same document
// share one model call's worth of work. Safe for concurrent use.
type SemanticChunker struct {
	provider     provider.CompletionProvider
	model        string
	chunkSize    int
	chunkOverlap int
	maxContext   int
	logger       log.Logger

	mu    sync.Mutex
	cache map[string][]string
}

// SemanticConfig configures a SemanticChunker.
type SemanticConfig struct {
	Provider     provider.CompletionProvider
	Model        string // empty = provider default
	ChunkSize    int    // target chunk size in characters
	ChunkOverlap int    // characters prepended from the previous chunk
	MaxContext   int    // prompt budget per boundary call; 0 = default
	Logger       log.Logger
}

// NewSemantic creates a SemanticChunker.
func NewSemantic(cfg SemanticConfig) (*SemanticChunker, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", cfg.ChunkOverlap)
	}
	maxContext := cfg.MaxContext
	if maxContext <= 0 {
		maxContext = defaultMaxContext
	}
	if maxContext <= promptOverhead {
		return nil, fmt.Errorf("max context %d must exceed prompt overhead %d", maxContext, promptOverhead)
	}
	// The sectioning stride is sectionSize - overlap; it must stay positive
	// or the section window cannot advance.
	if cfg.ChunkOverlap >= maxContext-promptOverhead {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than the usable context %d",
			cfg.ChunkOverlap, maxContext-promptOverhead)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &SemanticChunker{
		provider:     cfg.Provider,
		model:        cfg.Model,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		maxContext:   maxContext,
		logger:       logger.With("component", "semantic_chunker"),
		cache:        make(map[string][]string),
	}, nil
}

// Split divides text into semantically coherent chunks. Text at or under
// the target chunk size is returned as-is with no model call. Split never
// fails: any model or parse error degrades to paragraph-based splitting.
func (s *SemanticChunker) Split(ctx context.Context, text string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	key := contentHash(text)
	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	chunks := s.split(ctx, text)

	s.mu.Lock()
	s.cache[key] = chunks
	s.mu.Unlock()
	return chunks
}

func (s *SemanticChunker) split(ctx context.Context, text string) []string {
	sectionSize := s.maxContext - promptOverhead

	var chunks []string
	if len(text) <= sectionSize {
		chunks = s.chunkSection(ctx, text)
	} else {
		chunks = s.chunkSections(ctx, text, sectionSize)
	}

	if len(chunks) == 0 {
		s.logger.Debug("boundary detection produced nothing, falling back to paragraphs",
			"text_length", len(text))
		chunks = paragraphSplit(text, s.chunkSize)
	}

	return applyOverlap(chunks, s.chunkOverlap)
}

// chunkSections handles text exceeding one prompt budget: divide into
// overlapping sections, boundary-detect each independently, and stitch the
// per-section chunk lists together.
func (s *SemanticChunker) chunkSections(ctx context.Context, text string, sectionSize int) []string {
	var all []string
	step := sectionSize - s.chunkOverlap

	for start := 0; start < len(text); start += step {
		end := min(start+sectionSize, len(text))
		section := text[start:end]

		chunks := s.chunkSection(ctx, section)
		if len(chunks) == 0 {
			return nil
		}

		// Continuation heuristic: a small leading chunk of a later section
		// is usually the tail of the previous section's final thought.
		if len(all) > 0 && len(chunks[0]) < s.chunkSize/2 {
			merged := all[len(all)-1] + chunks[0]
			if len(merged) < s.chunkSize*3/2 {
				all[len(all)-1] = merged
				chunks = chunks[1:]
			}
		}
		all = append(all, chunks...)

		if end == len(text) {
			break
		}
	}
	return all
}

// chunkSection boundary-detects one section that fits the prompt budget.
// Returns nil on any failure.
func (s *SemanticChunker) chunkSection(ctx context.Context, section string) []string {
	prompt := fmt.Sprintf(`Identify semantic boundaries in the text below: character offsets where one topic or thought ends and another begins. Aim for segments of roughly %d characters.

Text (%d characters):
%s

Respond with only a JSON array of integer character offsets, e.g. [0, 512, 1490].`,
		s.chunkSize, len(section), section)

	raw, err := s.provider.Generate(ctx, provider.GenerateRequest{
		Prompt: prompt,
		Model:  s.model,
	}, nil)
	if err != nil {
		s.logger.Debug("boundary detection call failed", "error", err)
		return nil
	}

	offsets, err := judge.ParseStructured[[]int](raw)
	if err != nil {
		s.logger.Debug("boundary list unparseable", "error", err)
		return nil
	}

	boundaries := sanitizeBoundaries(offsets, len(section))
	return buildChunks(section, boundaries)
}

// sanitizeBoundaries discards offsets outside (0, length), sorts,
// deduplicates, and force-inserts the leading 0.
func sanitizeBoundaries(offsets []int, length int) []int {
	cleaned := []int{0}
	seen := map[int]bool{0: true}
	for _, off := range offsets {
		if off <= 0 || off >= length || seen[off] {
			continue
		}
		seen[off] = true
		cleaned = append(cleaned, off)
	}
	sort.Ints(cleaned)
	return cleaned
}

// buildChunks slices text at the boundary offsets, skipping empty spans.
func buildChunks(text string, boundaries []int) []string {
	var chunks []string
	for i := range boundaries {
		start := boundaries[i]
		end := len(text)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		if piece := text[start:end]; strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks
}

// applyOverlap prepends the last overlap characters of each chunk to its
// successor. Skipped for a successor whose predecessor is too short to
// halve, so tiny chunks are not dominated by copied text.
func applyOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if len(prev) < overlap*2 {
			out[i] = chunks[i]
			continue
		}
		out[i] = prev[len(prev)-overlap:] + chunks[i]
	}
	return out
}

// paragraphSplit is the deterministic fallback: split on blank lines and
// greedily pack paragraphs under the target size.
func paragraphSplit(text string, chunkSize int) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)

		// A single paragraph larger than the target becomes its own chunk.
		if current.Len() > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}
	return chunks
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

package judge

import (
	"context"
	"fmt"
	"strings"
)

// Chunking strategies the judge may recommend.
const (
	StrategyRecursive = "recursive"
	StrategyToken     = "token"
	StrategyMarkdown  = "markdown"
)

// Fallback recommendation applied on any judge failure.
const (
	fallbackChunkSize    = 500
	fallbackChunkOverlap = 50
)

// Sampling limits for large documents. Documents at or under sampleThreshold
// are shown to the judge whole; larger ones as head+middle+tail slices.
const (
	sampleThreshold = 4000
	sampleSliceSize = 1200
	maxHeaderLines  = 30
)

// Recommendation is the chunking judge's decision for one document.
type Recommendation struct {
	Strategy      string `json:"strategy"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkOverlap  int    `json:"chunk_overlap"`
	Justification string `json:"justification"`
}

// ChunkingJudge recommends a chunking strategy and parameters per document
// at ingestion time.
type ChunkingJudge struct {
	client *Client
}

// NewChunkingJudge creates a ChunkingJudge over the given client.
func NewChunkingJudge(client *Client) *ChunkingJudge {
	return &ChunkingJudge{client: client}
}

// fallbackRecommendation is returned whenever the judge fails.
func fallbackRecommendation() Recommendation {
	return Recommendation{
		Strategy:      StrategyRecursive,
		ChunkSize:     fallbackChunkSize,
		ChunkOverlap:  fallbackChunkOverlap,
		Justification: "default strategy (judge unavailable)",
	}
}

// Recommend asks the judge for a chunking strategy for the document.
// Unknown strategies are coerced to recursive rather than rejected, and
// non-positive sizes are replaced with the defaults.
func (j *ChunkingJudge) Recommend(ctx context.Context, filename, content string) Recommendation {
	sample := Sample(filename, content)

	prompt := fmt.Sprintf(`You are a document chunking expert. Analyze this document sample and recommend a chunking configuration for a retrieval system.

Filename: %s

Document sample:
%s

Choose a strategy:
- "recursive": general prose, split on paragraph and sentence boundaries
- "token": dense or uniform text where fixed token windows work best
- "markdown": structured markdown where headers delimit topics

Respond with only a JSON object:
{"strategy": "recursive|token|markdown", "chunk_size": <int 100-2000>, "chunk_overlap": <int 0-200>, "justification": "<one sentence>"}`,
		filename, sample)

	return Ask(ctx, j.client, prompt, validateRecommendation, fallbackRecommendation())
}

func validateRecommendation(r *Recommendation) error {
	switch r.Strategy {
	case StrategyRecursive, StrategyToken, StrategyMarkdown:
	default:
		r.Strategy = StrategyRecursive
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = fallbackChunkSize
	}
	if r.ChunkOverlap <= 0 {
		r.ChunkOverlap = fallbackChunkOverlap
	}
	if r.ChunkOverlap >= r.ChunkSize {
		r.ChunkOverlap = r.ChunkSize / 10
	}
	return nil
}

// Sample produces a representative sample of content for the judge prompt.
// Short documents pass through whole. Longer ones are reduced to
// head+middle+tail slices, and for markdown files the extracted headers are
// prepended because header structure is the strongest chunking signal.
func Sample(filename, content string) string {
	if len(content) <= sampleThreshold {
		return content
	}

	var b strings.Builder

	if isMarkdown(filename) {
		if headers := extractHeaders(content); headers != "" {
			b.WriteString("Document headers:\n")
			b.WriteString(headers)
			b.WriteString("\n")
		}
	}

	mid := len(content) / 2
	b.WriteString("--- beginning ---\n")
	b.WriteString(content[:sampleSliceSize])
	b.WriteString("\n--- middle ---\n")
	b.WriteString(content[mid : mid+min(sampleSliceSize, len(content)-mid)])
	b.WriteString("\n--- end ---\n")
	b.WriteString(content[len(content)-sampleSliceSize:])

	return b.String()
}

func isMarkdown(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// extractHeaders returns the document's markdown header lines, capped at
// maxHeaderLines.
func extractHeaders(content string) string {
	var headers []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			headers = append(headers, trimmed)
			if len(headers) >= maxHeaderLines {
				break
			}
		}
	}
	return strings.Join(headers, "\n")
}

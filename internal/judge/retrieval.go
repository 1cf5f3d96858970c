package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessera-ai/tessera/internal/index"
)

// excerptLimit caps how much of each chunk is shown to the judge.
const excerptLimit = 600

// Evaluation is the retrieval judge's verdict on one candidate set.
type Evaluation struct {
	// Scores maps chunk ID to a relevance score in [0, 1].
	Scores map[string]float64
	// NeedsRefinement reports the judge's opinion that the query should be
	// rewritten and retrieval retried. Whether that happens is the
	// pipeline's decision, not the judge's.
	NeedsRefinement bool
}

// RetrievalJudge scores retrieved chunks, proposes query refinements, and
// reorders the final context selection.
type RetrievalJudge struct {
	client *Client
}

// NewRetrievalJudge creates a RetrievalJudge over the given client.
func NewRetrievalJudge(client *Client) *RetrievalJudge {
	return &RetrievalJudge{client: client}
}

// evaluatePayload is the JSON shape Evaluate expects from the model.
type evaluatePayload struct {
	Scores          map[string]float64 `json:"scores"`
	NeedsRefinement bool               `json:"needs_refinement"`
	Justification   string             `json:"justification"`
}

// Evaluate scores each chunk's relevance to the query. On judge failure the
// fallback derives scores from vector distance (1 - distance, clamped to
// [0, 1]) and never requests refinement.
func (j *RetrievalJudge) Evaluate(ctx context.Context, query string, chunks []index.Chunk) Evaluation {
	if len(chunks) == 0 {
		return Evaluation{Scores: map[string]float64{}, NeedsRefinement: true}
	}

	prompt := fmt.Sprintf(`You are a retrieval quality judge. Score each numbered passage for how well it answers the query.

Query: %s

Passages:
%s

Scoring: 1.0 = directly answers the query, 0.0 = unrelated. Set "needs_refinement" to true only if the passages collectively cannot answer the query and a rephrased search would plausibly do better.

Respond with only a JSON object:
{"scores": {"<chunk_id>": <0.0-1.0>, ...}, "needs_refinement": <bool>, "justification": "<one sentence>"}`,
		query, renderChunks(chunks))

	fallback := evaluatePayload{Scores: distanceScores(chunks), NeedsRefinement: false}
	payload := Ask(ctx, j.client, prompt, func(p *evaluatePayload) error {
		if len(p.Scores) == 0 {
			return fmt.Errorf("no scores returned")
		}
		for id, s := range p.Scores {
			p.Scores[id] = clamp01(s)
		}
		return nil
	}, fallback)

	return Evaluation{Scores: payload.Scores, NeedsRefinement: payload.NeedsRefinement}
}

// refinePayload is the JSON shape Refine expects from the model.
type refinePayload struct {
	RefinedQuery string `json:"refined_query"`
}

// Refine asks the judge for a better search query. Returns "" when the judge
// fails or produces nothing usable; the caller treats that as "keep the
// original query".
func (j *RetrievalJudge) Refine(ctx context.Context, query string, chunks []index.Chunk) string {
	prompt := fmt.Sprintf(`The following search query retrieved passages that did not answer it well. Rewrite the query to retrieve better passages from the same knowledge base. Keep the user's intent; add or substitute key terms that the relevant documents likely contain.

Original query: %s

Retrieved passages:
%s

Respond with only a JSON object:
{"refined_query": "<rewritten query>"}`,
		query, renderChunks(chunks))

	payload := Ask(ctx, j.client, prompt, func(p *refinePayload) error {
		p.RefinedQuery = strings.TrimSpace(p.RefinedQuery)
		if p.RefinedQuery == "" {
			return fmt.Errorf("empty refined query")
		}
		return nil
	}, refinePayload{})

	return payload.RefinedQuery
}

// optimizePayload is the JSON shape OptimizeContext expects from the model.
type optimizePayload struct {
	Order []string `json:"order"`
}

// OptimizeContext reorders (and may subset) an already-filtered chunk list
// for final context assembly. Returns nil when the judge produces nothing
// usable; the caller then keeps the unoptimized list.
func (j *RetrievalJudge) OptimizeContext(ctx context.Context, query string, chunks []index.Chunk) []index.Chunk {
	if len(chunks) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(`Select and order the passages that best support answering the query. Put the most load-bearing passage first. Drop passages that add nothing. Return at least one chunk ID.

Query: %s

Passages:
%s

Respond with only a JSON object:
{"order": ["<chunk_id>", ...]}`,
		query, renderChunks(chunks))

	payload := Ask(ctx, j.client, prompt, func(p *optimizePayload) error {
		if len(p.Order) == 0 {
			return fmt.Errorf("empty order")
		}
		return nil
	}, optimizePayload{})

	if len(payload.Order) == 0 {
		return nil
	}

	byID := make(map[string]index.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	seen := make(map[string]bool, len(payload.Order))
	var out []index.Chunk
	for _, id := range payload.Order {
		if seen[id] {
			continue
		}
		seen[id] = true
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		// Judge invented IDs; nothing usable.
		return nil
	}
	return out
}

// distanceScores derives relevance scores from vector distance when the
// judge supplied none. Assumes distance is normalized into [0, 1]; values
// outside clamp to the valid range.
func distanceScores(chunks []index.Chunk) map[string]float64 {
	scores := make(map[string]float64, len(chunks))
	for _, c := range chunks {
		scores[c.ID] = clamp01(1 - c.Distance)
	}
	return scores
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// renderChunks renders chunks as a numbered list with IDs for judge prompts.
func renderChunks(chunks []index.Chunk) string {
	items := make([]string, 0, len(chunks))
	for _, c := range chunks {
		items = append(items, fmt.Sprintf("[id=%s] %s", c.ID, truncate(c.Content, excerptLimit)))
	}
	return joinNumbered(items)
}

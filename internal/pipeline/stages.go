package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tessera-ai/tessera/internal/conversation"
	"github.com/tessera-ai/tessera/internal/index"
)

// Stage identifies one node of the pipeline state machine.
type Stage int

const (
	StageQueryAnalysis Stage = iota
	StageQueryPlanning
	StagePlanExecution
	StageRetrieval
	StageQueryRefinement
	StageContextOptimization
	StageGeneration
	StageComplete
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageQueryAnalysis:
		return "query_analysis"
	case StageQueryPlanning:
		return "query_planning"
	case StagePlanExecution:
		return "plan_execution"
	case StageRetrieval:
		return "retrieval"
	case StageQueryRefinement:
		return "query_refinement"
	case StageContextOptimization:
		return "context_optimization"
	case StageGeneration:
		return "generation"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// transition is one guarded edge of the state machine. A nil guard always
// fires. Edges are evaluated in order; the first passing guard wins.
type transition struct {
	guard func(*pipelineContext) bool
	next  Stage
}

// transitions is the full state graph. Only two nodes branch: analysis
// (into planning or straight to retrieval) and retrieval (into refinement
// at most once, then optimization).
var transitions = map[Stage][]transition{
	StageQueryAnalysis: {
		{guard: func(c *pipelineContext) bool { return c.analysis.NeedsPlanning() && c.plannerAvailable }, next: StageQueryPlanning},
		{next: StageRetrieval},
	},
	StageQueryPlanning: {
		{guard: func(c *pipelineContext) bool { return c.plan != nil }, next: StagePlanExecution},
		{next: StageRetrieval},
	},
	StagePlanExecution: {
		{next: StageRetrieval},
	},
	StageRetrieval: {
		{guard: func(c *pipelineContext) bool {
			return c.retrieval.needsRefinement && c.retrieval.refinedQuery == ""
		}, next: StageQueryRefinement},
		{next: StageContextOptimization},
	},
	StageQueryRefinement: {
		{next: StageRetrieval},
	},
	StageContextOptimization: {
		{next: StageGeneration},
	},
	StageGeneration: {
		{next: StageComplete},
	},
}

// nextStage resolves the first transition out of stage whose guard passes.
func nextStage(stage Stage, pctx *pipelineContext) Stage {
	for _, t := range transitions[stage] {
		if t.guard == nil || t.guard(pctx) {
			return t.next
		}
	}
	return StageComplete
}

// Context-assembly literals. The first is the exact text used when no chunk
// survives relevance filtering; the second replaces a context that is too
// short to ground an answer.
const (
	noRelevantDocsContext = "Note: No sufficiently relevant documents found in the knowledge base for your query. The system cannot provide a specific answer based on the available documents."

	insufficientContext = "Note: The retrieved context is too short to support a reliable answer. The system cannot provide a specific answer based on the available documents."

	// minContextLength is the threshold below which assembled context is
	// considered unusable.
	minContextLength = 50

	// contextTailChars is how much trailing conversation text augments the
	// vector search string.
	contextTailChars = 200

	// minCandidates floors the candidate fetch so the judge always has
	// material to grade.
	minCandidates = 15

	// candidateMargin is fetched beyond k so threshold filtering can drop
	// candidates without starving the context.
	candidateMargin = 5

	// optimizeMinChunks gates judge-assisted context optimization: below
	// this survivor count, ordering is already trivial.
	optimizeMinChunks = 3
)

func (p *Pipeline) stageAnalysis(ctx context.Context, pctx pipelineContext) pipelineContext {
	pctx.analysis = p.cfg.Analyzer.Analyze(ctx, pctx.request.Text, pctx.request.PriorTurns)
	pctx.plannerAvailable = p.cfg.Planner != nil
	pctx.retrieval.query = pctx.request.Text

	p.processLogger.LogStep(pctx.queryID, StageQueryAnalysis.String(), map[string]any{
		"complexity":     pctx.analysis.Complexity,
		"k":              pctx.analysis.Parameters.K,
		"threshold":      pctx.analysis.Parameters.Threshold,
		"requires_tools": pctx.analysis.RequiresTools,
	})
	return pctx
}

func (p *Pipeline) stagePlanning(ctx context.Context, pctx pipelineContext) pipelineContext {
	pctx.plan = p.cfg.Planner.CreatePlan(ctx, pctx.queryID, pctx.request.Text, pctx.request.PriorTurns)

	payload := map[string]any{"planned": pctx.plan != nil}
	if pctx.plan != nil {
		payload["steps"] = len(pctx.plan.Steps)
	}
	p.processLogger.LogStep(pctx.queryID, StageQueryPlanning.String(), payload)
	return pctx
}

func (p *Pipeline) stagePlanExecution(ctx context.Context, pctx pipelineContext) pipelineContext {
	result := p.cfg.Executor.Execute(ctx, pctx.plan)
	pctx.planResult = &result

	failures := 0
	for _, s := range result.Steps {
		if s.Error != "" {
			failures++
		}
	}
	p.processLogger.LogStep(pctx.queryID, StagePlanExecution.String(), map[string]any{
		"steps":    len(result.Steps),
		"failures": failures,
	})
	return pctx
}

func (p *Pipeline) stageRetrieval(ctx context.Context, pctx pipelineContext) (pipelineContext, error) {
	searchText := pctx.retrieval.query
	if tail := conversation.TailText(pctx.request.PriorTurns, contextTailChars); tail != "" {
		searchText = searchText + "\n" + tail
	}

	topK := max(minCandidates, pctx.analysis.Parameters.K+candidateMargin)

	chunks, err := p.cfg.Index.Search(ctx, searchText, topK, pctx.request.MetadataFilters)
	if err != nil {
		return pctx, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	// Results with no content cannot ground anything downstream.
	kept := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			kept = append(kept, c)
		}
	}
	pctx.retrieval.chunks = kept

	if p.cfg.RetrievalJudge != nil {
		eval := p.cfg.RetrievalJudge.Evaluate(ctx, pctx.retrieval.query, kept)
		pctx.retrieval.scores = eval.Scores
		pctx.retrieval.needsRefinement = eval.NeedsRefinement
	} else {
		pctx.retrieval.scores = map[string]float64{}
		pctx.retrieval.needsRefinement = false
	}

	p.processLogger.LogStep(pctx.queryID, StageRetrieval.String(), map[string]any{
		"top_k":            topK,
		"candidates":       len(kept),
		"needs_refinement": pctx.retrieval.needsRefinement,
		"refined":          pctx.retrieval.refinedQuery != "",
	})
	return pctx, nil
}

func (p *Pipeline) stageRefinement(ctx context.Context, pctx pipelineContext) pipelineContext {
	refined := p.cfg.RetrievalJudge.Refine(ctx, pctx.retrieval.query, pctx.retrieval.chunks)
	if refined == "" {
		// Keep the original query but still mark refinement as spent, so
		// the loop cannot re-enter.
		refined = pctx.retrieval.query
	}
	pctx.retrieval.refinedQuery = refined
	pctx.retrieval.query = refined

	p.processLogger.LogStep(pctx.queryID, StageQueryRefinement.String(), map[string]any{
		"refined_query": refined,
	})
	return pctx
}

func (p *Pipeline) stageOptimization(ctx context.Context, pctx pipelineContext) pipelineContext {
	threshold := pctx.analysis.Parameters.Threshold
	reranking := pctx.analysis.Parameters.Reranking

	scored := make([]scoredChunk, 0, len(pctx.retrieval.chunks))
	for _, c := range pctx.retrieval.chunks {
		score, ok := pctx.retrieval.scores[c.ID]
		if !ok {
			// Distance-derived fallback when the judge skipped a chunk.
			score = clamp01(1 - c.Distance)
		}
		if score >= threshold {
			scored = append(scored, scoredChunk{chunk: c, score: score})
		}
	}

	if reranking {
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	}

	if len(scored) > optimizeMinChunks && reranking && p.cfg.RetrievalJudge != nil {
		filtered := make([]index.Chunk, len(scored))
		scoreByID := make(map[string]float64, len(scored))
		for i, sc := range scored {
			filtered[i] = sc.chunk
			scoreByID[sc.chunk.ID] = sc.score
		}
		if optimized := p.cfg.RetrievalJudge.OptimizeContext(ctx, pctx.retrieval.query, filtered); len(optimized) > 0 {
			scored = scored[:0]
			for _, c := range optimized {
				scored = append(scored, scoredChunk{chunk: c, score: scoreByID[c.ID]})
			}
		}
	}

	pctx.genCtx = buildGenerationContext(scored)

	p.processLogger.LogStep(pctx.queryID, StageContextOptimization.String(), map[string]any{
		"threshold":      threshold,
		"reranking":      reranking,
		"survivors":      len(scored),
		"context_length": len(pctx.genCtx.contextText),
	})
	return pctx
}

type scoredChunk struct {
	chunk index.Chunk
	score float64
}

// buildGenerationContext assembles the numbered context blocks and their
// 1:1 source records. An empty survivor set or an unusably short context
// yields a literal fallback text and no sources.
func buildGenerationContext(scored []scoredChunk) generationContext {
	if len(scored) == 0 {
		return generationContext{
			contextText: noRelevantDocsContext,
			sources:     []Source{},
		}
	}

	var blocks []string
	sources := make([]Source, 0, len(scored))
	var documentIDs []string
	seenDocs := make(map[string]bool)

	for i, sc := range scored {
		c := sc.chunk
		blocks = append(blocks, fmt.Sprintf("[%d] Source: %s, Tags: %s, Folder: %s\n\n%s",
			i+1, c.Metadata.Filename, strings.Join(c.Metadata.Tags, ", "), c.Metadata.Folder, c.Content))
		sources = append(sources, Source{
			DocumentID:     c.DocumentID,
			ChunkID:        c.ID,
			RelevanceScore: sc.score,
			Excerpt:        excerpt(c.Content),
			Filename:       c.Metadata.Filename,
			Tags:           c.Metadata.Tags,
			Folder:         c.Metadata.Folder,
		})
		if !seenDocs[c.DocumentID] {
			seenDocs[c.DocumentID] = true
			documentIDs = append(documentIDs, c.DocumentID)
		}
	}

	contextText := strings.Join(blocks, "\n\n")
	if len(contextText) < minContextLength {
		// Citations would point at text that no longer exists, so the
		// sources go too.
		return generationContext{
			contextText: insufficientContext,
			sources:     []Source{},
		}
	}

	return generationContext{
		contextText: contextText,
		sources:     sources,
		documentIDs: documentIDs,
	}
}

const excerptLength = 200

func excerpt(content string) string {
	if len(content) <= excerptLength {
		return content
	}
	// Back up to a rune boundary so the excerpt stays valid UTF-8.
	end := excerptLength
	for end > 0 && !utf8.RuneStart(content[end]) {
		end--
	}
	return content[:end] + "..."
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

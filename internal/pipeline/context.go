package pipeline

import (
	"github.com/tessera-ai/tessera/internal/analyze"
	"github.com/tessera-ai/tessera/internal/index"
	"github.com/tessera-ai/tessera/internal/plan"
)

// retrievalState tracks the bounded retrieval/refinement cycle. Once
// refinedQuery is non-empty no further refinement is attempted, which
// bounds the loop to a single re-entry per request.
type retrievalState struct {
	query           string
	refinedQuery    string
	chunks          []index.Chunk
	scores          map[string]float64
	needsRefinement bool
}

// generationContext is the assembled evidence fed to generation. Built
// exactly once, after refinement has settled. sources[i] corresponds to the
// bracket citation [i+1] in contextText.
type generationContext struct {
	contextText string
	sources     []Source
	documentIDs []string
}

// pipelineContext is the per-request state threaded between stages. Stages
// receive it by value and return an updated copy, so no stage can mutate
// another stage's view behind its back.
type pipelineContext struct {
	request Request
	queryID string

	analysis analyze.Analysis

	// plannerAvailable mirrors whether a planner is configured, so the
	// transition table can branch on context alone.
	plannerAvailable bool
	plan             *plan.Plan
	planResult       *plan.Result

	retrieval retrievalState
	genCtx    generationContext

	answer string
}

// Package pipeline composes query analysis, optional planning, retrieval,
// judged refinement, context optimization, and answer generation into one
// orchestrated request flow. The flow is an explicit state machine: each
// request walks a transition table from QueryAnalysis to Complete, with a
// single allowed re-entry from refinement back into retrieval.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tessera-ai/tessera/internal/analyze"
	"github.com/tessera-ai/tessera/internal/conversation"
	"github.com/tessera-ai/tessera/internal/index"
	"github.com/tessera-ai/tessera/internal/judge"
	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/plan"
	"github.com/tessera-ai/tessera/internal/provider"
)

// ErrRetrievalUnavailable is the pipeline's only hard failure mode: without
// candidate chunks no grounded answer is possible. Every other stage
// degrades to a documented fallback.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// Request is the immutable per-request input.
type Request struct {
	Text            string
	ConversationID  string
	PriorTurns      []conversation.Turn
	MetadataFilters map[string]any
	Model           string
	Stream          bool
	ModelParameters map[string]any
}

// Source is one cited evidence record. Source i corresponds to the bracket
// citation [i+1] in the generated answer.
type Source struct {
	DocumentID     string   `json:"document_id"`
	ChunkID        string   `json:"chunk_id"`
	RelevanceScore float64  `json:"relevance_score"`
	Excerpt        string   `json:"excerpt"`
	Filename       string   `json:"filename"`
	Tags           []string `json:"tags"`
	Folder         string   `json:"folder"`
}

// Response is the pipeline's answer. Sources is never nil: absence of
// evidence is an empty list. ExecutionTrace is nil unless a plan executed.
type Response struct {
	Answer         string
	Sources        []Source
	ExecutionTrace []plan.StepResult
}

// StreamCallback receives answer tokens during streaming generation.
type StreamCallback = provider.StreamCallback

// Config wires the pipeline's collaborators. Provider, Index, and Analyzer
// are required. A nil RetrievalJudge disables judged scoring and refinement;
// a nil Planner disables the planning sub-pipeline.
type Config struct {
	Provider       provider.CompletionProvider
	Index          index.VectorIndex
	Analyzer       *analyze.Analyzer
	RetrievalJudge *judge.RetrievalJudge
	Planner        *plan.Planner
	Executor       *plan.Executor

	ProcessLogger ProcessLogger
	Logger        log.Logger
	Tracer        trace.Tracer

	// DropDanglingTurn removes a trailing user turn with no assistant reply
	// from prior history before analysis and generation.
	DropDanglingTurn bool

	// HistoryBudget caps rendered prior-turn text in characters.
	// 0 selects the default.
	HistoryBudget int
}

const defaultHistoryBudget = 6000

func (c *Config) validate() error {
	if c.Provider == nil {
		return fmt.Errorf("completion provider is required")
	}
	if c.Index == nil {
		return fmt.Errorf("vector index is required")
	}
	if c.Analyzer == nil {
		return fmt.Errorf("query analyzer is required")
	}
	if c.Planner != nil && c.Executor == nil {
		return fmt.Errorf("plan executor is required when a planner is configured")
	}
	return nil
}

// Pipeline is the orchestrator. Safe for concurrent use: all per-request
// state lives in the pipelineContext threaded through one Query call.
type Pipeline struct {
	cfg           Config
	processLogger ProcessLogger
	logger        log.Logger
	tracer        trace.Tracer
	historyBudget int
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}

	pl := cfg.ProcessLogger
	if pl == nil {
		pl = nopProcessLogger{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	budget := cfg.HistoryBudget
	if budget <= 0 {
		budget = defaultHistoryBudget
	}

	return &Pipeline{
		cfg:           cfg,
		processLogger: pl,
		logger:        logger.With("component", "pipeline"),
		tracer:        tracer,
		historyBudget: budget,
	}, nil
}

// Query answers the request in batch mode.
func (p *Pipeline) Query(ctx context.Context, req Request) (Response, error) {
	return p.run(ctx, req, nil)
}

// QueryStream answers the request in streaming mode, delivering answer
// tokens through cb as they are produced. The returned Response still
// carries the accumulated answer text and the same sources as batch mode.
func (p *Pipeline) QueryStream(ctx context.Context, req Request, cb StreamCallback) (Response, error) {
	if cb == nil {
		return Response{}, fmt.Errorf("stream callback is required")
	}
	req.Stream = true
	return p.run(ctx, req, cb)
}

// run executes the stage table to completion.
func (p *Pipeline) run(ctx context.Context, req Request, cb StreamCallback) (Response, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.query")
	defer span.End()

	if p.cfg.DropDanglingTurn {
		req.PriorTurns = conversation.DropDangling(req.PriorTurns)
	}

	pctx := pipelineContext{
		request: req,
		queryID: uuid.NewString(),
	}
	span.SetAttributes(attribute.String("query_id", pctx.queryID))

	stage := StageQueryAnalysis
	for stage != StageComplete {
		var err error
		pctx, err = p.runStage(ctx, stage, pctx, cb)
		if err != nil {
			return Response{}, err
		}
		stage = nextStage(stage, &pctx)
	}

	resp := Response{
		Answer:  pctx.answer,
		Sources: pctx.genCtx.sources,
	}
	if resp.Sources == nil {
		resp.Sources = []Source{}
	}
	if pctx.planResult != nil {
		resp.ExecutionTrace = pctx.planResult.Steps
	}

	p.processLogger.LogStep(pctx.queryID, "complete", map[string]any{
		"sources":  len(resp.Sources),
		"refined":  pctx.retrieval.refinedQuery != "",
		"planned":  pctx.planResult != nil,
		"answered": resp.Answer != "",
	})
	return resp, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, pctx pipelineContext, cb StreamCallback) (pipelineContext, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+stage.String())
	defer span.End()

	switch stage {
	case StageQueryAnalysis:
		return p.stageAnalysis(ctx, pctx), nil
	case StageQueryPlanning:
		return p.stagePlanning(ctx, pctx), nil
	case StagePlanExecution:
		return p.stagePlanExecution(ctx, pctx), nil
	case StageRetrieval:
		return p.stageRetrieval(ctx, pctx)
	case StageQueryRefinement:
		return p.stageRefinement(ctx, pctx), nil
	case StageContextOptimization:
		return p.stageOptimization(ctx, pctx), nil
	case StageGeneration:
		return p.stageGeneration(ctx, pctx, cb), nil
	default:
		return pctx, fmt.Errorf("no handler for stage %s", stage)
	}
}

// Package analyze classifies incoming queries and extracts retrieval
// parameters before the pipeline decides how to serve them.
package analyze

import (
	"context"
	"fmt"

	"github.com/tessera-ai/tessera/internal/conversation"
	"github.com/tessera-ai/tessera/internal/judge"
)

// Query complexity classes.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// Default retrieval parameters, also the analyzer's failure fallback.
const (
	DefaultK         = 10
	DefaultThreshold = 0.4
)

// Parameters are the retrieval hints extracted from a query.
type Parameters struct {
	K         int     `json:"k"`
	Threshold float64 `json:"threshold"`
	Reranking bool    `json:"reranking"`
}

// Analysis is the analyzer's verdict on one query. Produced once per
// request and read-only afterward.
type Analysis struct {
	Complexity    string     `json:"complexity"`
	Parameters    Parameters `json:"parameters"`
	RequiresTools []string   `json:"requires_tools"`
	SubQueries    []string   `json:"sub_queries"`
	Justification string     `json:"justification"`
}

// NeedsPlanning reports whether the query warrants a multi-step execution
// plan before retrieval.
func (a Analysis) NeedsPlanning() bool {
	return a.Complexity == ComplexityComplex || len(a.RequiresTools) > 0
}

// Analyzer classifies queries through the judge client.
type Analyzer struct {
	client   *judge.Client
	defaults Parameters
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithDefaultParameters overrides the retrieval parameters used as the
// failure fallback and as replacements for out-of-range judge values.
// Non-positive k or an out-of-range threshold keeps the package default.
func WithDefaultParameters(k int, threshold float64) Option {
	return func(a *Analyzer) {
		if k > 0 {
			a.defaults.K = k
		}
		if threshold > 0 && threshold <= 1 {
			a.defaults.Threshold = threshold
		}
	}
}

// New creates an Analyzer over the given judge client.
func New(client *judge.Client, opts ...Option) *Analyzer {
	a := &Analyzer{
		client: client,
		defaults: Parameters{
			K:         DefaultK,
			Threshold: DefaultThreshold,
			Reranking: true,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// fallback treats the query as simple with the analyzer's default retrieval
// parameters. Applied on any judge failure.
func (a *Analyzer) fallback() Analysis {
	return Analysis{
		Complexity:    ComplexitySimple,
		Parameters:    a.defaults,
		RequiresTools: []string{},
		SubQueries:    []string{},
		Justification: "default classification (analyzer unavailable)",
	}
}

// Analyze classifies the query using the model, considering how much prior
// conversation exists. Any failure yields the simple-query fallback.
func (a *Analyzer) Analyze(ctx context.Context, query string, priorTurns []conversation.Turn) Analysis {
	prompt := fmt.Sprintf(`You are a query router for a retrieval system. Classify this query and extract retrieval parameters.

Query: %s
Prior conversation turns: %d

Classification:
- "simple": a single factual question answerable from one retrieval pass
- "moderate": needs broader retrieval or synthesis across passages
- "complex": needs decomposition into sub-queries or external tools

Available tools: current_time, web_fetch, knowledge_search.

Respond with only a JSON object:
{"complexity": "simple|moderate|complex", "parameters": {"k": <int 1-30>, "threshold": <0.0-1.0>, "reranking": <bool>}, "requires_tools": ["<tool>", ...], "sub_queries": ["<sub-query>", ...], "justification": "<one sentence>"}`,
		query, len(priorTurns))

	return judge.Ask(ctx, a.client, prompt, a.validateAnalysis, a.fallback())
}

func (a *Analyzer) validateAnalysis(an *Analysis) error {
	switch an.Complexity {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
	default:
		return fmt.Errorf("unknown complexity %q", an.Complexity)
	}
	if an.Parameters.K <= 0 {
		an.Parameters.K = a.defaults.K
	}
	if an.Parameters.Threshold <= 0 || an.Parameters.Threshold > 1 {
		an.Parameters.Threshold = a.defaults.Threshold
	}
	if an.RequiresTools == nil {
		an.RequiresTools = []string{}
	}
	if an.SubQueries == nil {
		an.SubQueries = []string{}
	}
	return nil
}

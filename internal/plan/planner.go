package plan

import (
	"context"
	"fmt"

	"github.com/tessera-ai/tessera/internal/conversation"
	"github.com/tessera-ai/tessera/internal/judge"
)

// maxPlanSteps caps how many steps one plan may contain.
const maxPlanSteps = 8

// Planner asks the model to decompose a query into tool steps.
type Planner struct {
	client   *judge.Client
	registry *Registry
}

// NewPlanner creates a Planner over the judge client and tool registry.
func NewPlanner(client *judge.Client, registry *Registry) *Planner {
	return &Planner{client: client, registry: registry}
}

// plannerPayload is the JSON shape CreatePlan expects from the model.
type plannerPayload struct {
	Steps []Step `json:"steps"`
}

// CreatePlan builds an execution plan for the query. Returns nil when the
// planner produces nothing usable; the pipeline then skips planning and
// retrieves with the original query.
func (p *Planner) CreatePlan(ctx context.Context, queryID, query string, priorTurns []conversation.Turn) *Plan {
	prompt := fmt.Sprintf(`You are a query planner. Decompose this query into an ordered list of tool invocations whose outputs will help answer it.

Query: %s
Prior conversation turns: %d

Available tools:
%s
Rules: at most %d steps, each step's "input" is the literal string passed to the tool, "depends_on" lists zero-based indexes of earlier steps this step builds on.

Respond with only a JSON object:
{"steps": [{"tool": "<name>", "input": "<input>", "depends_on": [<int>, ...]}, ...]}`,
		query, len(priorTurns), p.registry.Describe(), maxPlanSteps)

	payload := judge.Ask(ctx, p.client, prompt, func(pl *plannerPayload) error {
		if len(pl.Steps) == 0 {
			return fmt.Errorf("empty plan")
		}
		if len(pl.Steps) > maxPlanSteps {
			pl.Steps = pl.Steps[:maxPlanSteps]
		}
		for i, s := range pl.Steps {
			if s.Tool == "" {
				return fmt.Errorf("step %d has no tool", i)
			}
		}
		return nil
	}, plannerPayload{})

	if len(payload.Steps) == 0 {
		return nil
	}
	return &Plan{QueryID: queryID, Steps: payload.Steps}
}

package plan

import (
	"context"

	"github.com/tessera-ai/tessera/internal/log"
)

// Executor runs plans against a tool registry.
type Executor struct {
	registry *Registry
	logger   log.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(registry *Registry, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Executor{
		registry: registry,
		logger:   logger.With("component", "plan_executor"),
	}
}

// Execute runs each step in order. A step failure is recorded in its
// StepResult and execution continues: the plan and result are always marked
// completed, because the pipeline can still answer from retrieval alone.
func (e *Executor) Execute(ctx context.Context, p *Plan) Result {
	result := Result{Steps: make([]StepResult, 0, len(p.Steps))}

	for i, step := range p.Steps {
		p.CurrentStep = i

		output, err := e.registry.Invoke(ctx, step.Tool, step.Input)
		sr := StepResult{Name: step.Tool, Output: output}
		if err != nil {
			sr.Error = err.Error()
			sr.Output = ""
			e.logger.Warn("plan step failed",
				"query_id", p.QueryID,
				"step", i,
				"tool", step.Tool,
				"error", err,
			)
		} else {
			e.logger.Debug("plan step complete",
				"query_id", p.QueryID,
				"step", i,
				"tool", step.Tool,
				"output_length", len(output),
			)
		}
		result.Steps = append(result.Steps, sr)
	}

	p.Completed = true
	result.Completed = true
	return result
}

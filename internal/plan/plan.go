// Package plan builds and executes multi-step tool plans for queries the
// analyzer classifies as complex or tool-requiring. Planning is best-effort
// throughout: a failed planner means no plan, a failed step is recorded in
// the trace, and the pipeline always proceeds to retrieval.
package plan

// Step is one tool invocation in an execution plan.
type Step struct {
	Tool  string `json:"tool"`
	Input string `json:"input"`
	// DependsOn lists zero-based indexes of earlier steps whose output this
	// step builds on. Informational: execution is already in plan order.
	DependsOn []int `json:"depends_on"`
}

// Plan is an ordered list of steps for one query. Mutated by the Executor
// as steps complete; frozen once Completed.
type Plan struct {
	QueryID     string
	Steps       []Step
	CurrentStep int
	Completed   bool
}

// StepResult records one executed step.
type StepResult struct {
	Name   string `json:"name"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of executing a plan. Completed is always true once
// execution has run: step failures are captured per step, never escalated.
type Result struct {
	Steps     []StepResult
	Completed bool
	Error     string
}

package plan

import (
	"context"
	"fmt"
	"sync"
)

// Tool is one capability a plan step can invoke. Inputs and outputs are
// free-form strings so the planner model can compose tools without a schema
// negotiation step.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input string) (string, error)
}

// Registry holds the tools available to plan execution.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Invoke runs the named tool.
func (r *Registry) Invoke(ctx context.Context, name, input string) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Invoke(ctx, input)
}

// Describe renders the tool catalog for planner prompts.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out string
	for _, t := range r.tools {
		out += fmt.Sprintf("- %s: %s\n", t.Name(), t.Description())
	}
	return out
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

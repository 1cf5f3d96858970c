package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/index"
	"github.com/tessera-ai/tessera/internal/judge"
	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/provider"
)

type stubProvider struct {
	reply string
	err   error
}

func (s *stubProvider) Generate(_ context.Context, _ provider.GenerateRequest, _ provider.StreamCallback) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

// echoTool returns its input, optionally failing.
type echoTool struct {
	name string
	err  error
}

func (t echoTool) Name() string        { return t.name }
func (t echoTool) Description() string { return "echoes input" }

func (t echoTool) Invoke(_ context.Context, input string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return "echo: " + input, nil
}

func newTestPlanner(p provider.CompletionProvider, reg *Registry) *Planner {
	return NewPlanner(judge.NewClient(p, "", time.Second, log.NewNop()), reg)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{name: "echo"})

	t.Run("invoke registered tool", func(t *testing.T) {
		out, err := reg.Invoke(context.Background(), "echo", "hi")
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", out)
	})

	t.Run("unknown tool errors", func(t *testing.T) {
		_, err := reg.Invoke(context.Background(), "missing", "hi")
		assert.Error(t, err)
	})

	t.Run("describe lists tools", func(t *testing.T) {
		assert.Contains(t, reg.Describe(), "echo: echoes input")
	})

	t.Run("register replaces by name", func(t *testing.T) {
		reg.Register(echoTool{name: "echo", err: errors.New("broken")})
		_, err := reg.Invoke(context.Background(), "echo", "hi")
		assert.Error(t, err)
		assert.Len(t, reg.Names(), 1)
	})
}

func TestCreatePlan(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{name: "echo"})

	t.Run("valid plan", func(t *testing.T) {
		p := newTestPlanner(&stubProvider{reply: `{"steps":[
			{"tool":"echo","input":"first","depends_on":[]},
			{"tool":"echo","input":"second","depends_on":[0]}
		]}`}, reg)

		got := p.CreatePlan(context.Background(), "q1", "query", nil)
		require.NotNil(t, got)
		assert.Equal(t, "q1", got.QueryID)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, []int{0}, got.Steps[1].DependsOn)
		assert.False(t, got.Completed)
	})

	t.Run("planner failure yields nil plan", func(t *testing.T) {
		p := newTestPlanner(&stubProvider{err: errors.New("model down")}, reg)
		assert.Nil(t, p.CreatePlan(context.Background(), "q1", "query", nil))
	})

	t.Run("empty steps yields nil plan", func(t *testing.T) {
		p := newTestPlanner(&stubProvider{reply: `{"steps":[]}`}, reg)
		assert.Nil(t, p.CreatePlan(context.Background(), "q1", "query", nil))
	})

	t.Run("step without tool yields nil plan", func(t *testing.T) {
		p := newTestPlanner(&stubProvider{reply: `{"steps":[{"tool":"","input":"x"}]}`}, reg)
		assert.Nil(t, p.CreatePlan(context.Background(), "q1", "query", nil))
	})

	t.Run("oversized plan truncated", func(t *testing.T) {
		steps := ""
		for i := 0; i < 12; i++ {
			if i > 0 {
				steps += ","
			}
			steps += fmt.Sprintf(`{"tool":"echo","input":"%d"}`, i)
		}
		p := newTestPlanner(&stubProvider{reply: `{"steps":[` + steps + `]}`}, reg)

		got := p.CreatePlan(context.Background(), "q1", "query", nil)
		require.NotNil(t, got)
		assert.Len(t, got.Steps, maxPlanSteps)
	})
}

func TestExecute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{name: "echo"})
	reg.Register(echoTool{name: "broken", err: errors.New("tool exploded")})
	exec := NewExecutor(reg, log.NewNop())

	t.Run("all steps succeed", func(t *testing.T) {
		p := &Plan{QueryID: "q1", Steps: []Step{
			{Tool: "echo", Input: "a"},
			{Tool: "echo", Input: "b"},
		}}

		result := exec.Execute(context.Background(), p)
		assert.True(t, result.Completed)
		assert.True(t, p.Completed)
		require.Len(t, result.Steps, 2)
		assert.Equal(t, "echo: a", result.Steps[0].Output)
		assert.Empty(t, result.Steps[0].Error)
	})

	t.Run("step failure recorded, execution continues", func(t *testing.T) {
		p := &Plan{QueryID: "q1", Steps: []Step{
			{Tool: "broken", Input: "a"},
			{Tool: "echo", Input: "b"},
		}}

		result := exec.Execute(context.Background(), p)
		assert.True(t, result.Completed, "plan completes despite step failure")
		require.Len(t, result.Steps, 2)
		assert.Equal(t, "tool exploded", result.Steps[0].Error)
		assert.Empty(t, result.Steps[0].Output)
		assert.Equal(t, "echo: b", result.Steps[1].Output)
	})

	t.Run("unknown tool recorded as step failure", func(t *testing.T) {
		p := &Plan{QueryID: "q1", Steps: []Step{{Tool: "nope", Input: "a"}}}

		result := exec.Execute(context.Background(), p)
		assert.True(t, result.Completed)
		require.Len(t, result.Steps, 1)
		assert.Contains(t, result.Steps[0].Error, "unknown tool")
	})
}

// stubIndex returns fixed chunks for any search.
type stubIndex struct {
	chunks []index.Chunk
	err    error
}

func (s *stubIndex) Search(_ context.Context, _ string, _ int, _ map[string]any) ([]index.Chunk, error) {
	return s.chunks, s.err
}

func TestKnowledgeSearchTool(t *testing.T) {
	t.Run("renders numbered passages", func(t *testing.T) {
		tool := KnowledgeSearchTool{Index: &stubIndex{chunks: []index.Chunk{
			{ID: "c1", Content: "alpha", Metadata: index.Metadata{Filename: "a.md"}},
			{ID: "c2", Content: "beta", Metadata: index.Metadata{Filename: "b.md"}},
		}}}

		out, err := tool.Invoke(context.Background(), "query")
		require.NoError(t, err)
		assert.Contains(t, out, "[1] a.md: alpha")
		assert.Contains(t, out, "[2] b.md: beta")
	})

	t.Run("empty result is a friendly message", func(t *testing.T) {
		tool := KnowledgeSearchTool{Index: &stubIndex{}}
		out, err := tool.Invoke(context.Background(), "query")
		require.NoError(t, err)
		assert.Equal(t, "no matching passages found", out)
	})

	t.Run("blank query rejected", func(t *testing.T) {
		tool := KnowledgeSearchTool{Index: &stubIndex{}}
		_, err := tool.Invoke(context.Background(), "   ")
		assert.Error(t, err)
	})
}

func TestCurrentTimeTool(t *testing.T) {
	out, err := CurrentTimeTool{}.Invoke(context.Background(), "")
	require.NoError(t, err)
	_, parseErr := time.Parse(time.RFC3339, out)
	assert.NoError(t, parseErr)
}

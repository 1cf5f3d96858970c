package analyze

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tessera-ai/tessera/internal/conversation"
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

func newAnalyzer(p provider.CompletionProvider) *Analyzer {
	return New(judge.NewClient(p, "", time.Second, log.NewNop()))
}

func TestAnalyze(t *testing.T) {
	t.Run("complex query with tools", func(t *testing.T) {
		a := newAnalyzer(&stubProvider{reply: `{
			"complexity": "complex",
			"parameters": {"k": 20, "threshold": 0.5, "reranking": true},
			"requires_tools": ["web_fetch"],
			"sub_queries": ["part one", "part two"],
			"justification": "multi-part question"
		}`})

		got := a.Analyze(context.Background(), "compare X and Y over time", nil)
		assert.Equal(t, ComplexityComplex, got.Complexity)
		assert.Equal(t, 20, got.Parameters.K)
		assert.Equal(t, []string{"web_fetch"}, got.RequiresTools)
		assert.True(t, got.NeedsPlanning())
	})

	t.Run("provider failure yields simple fallback", func(t *testing.T) {
		a := newAnalyzer(&stubProvider{err: errors.New("model down")})

		got := a.Analyze(context.Background(), "anything", []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi"},
		})
		assert.Equal(t, ComplexitySimple, got.Complexity)
		assert.Equal(t, DefaultK, got.Parameters.K)
		assert.Equal(t, DefaultThreshold, got.Parameters.Threshold)
		assert.True(t, got.Parameters.Reranking)
		assert.Empty(t, got.RequiresTools)
		assert.Empty(t, got.SubQueries)
		assert.False(t, got.NeedsPlanning())
	})

	t.Run("unknown complexity yields fallback", func(t *testing.T) {
		a := newAnalyzer(&stubProvider{reply: `{"complexity": "extreme", "parameters": {"k": 5, "threshold": 0.3, "reranking": false}}`})

		got := a.Analyze(context.Background(), "anything", nil)
		assert.Equal(t, ComplexitySimple, got.Complexity)
		assert.Equal(t, DefaultK, got.Parameters.K)
	})

	t.Run("omitted optionals filled with defaults", func(t *testing.T) {
		a := newAnalyzer(&stubProvider{reply: `{"complexity": "moderate", "parameters": {"k": 0, "threshold": 0, "reranking": false}}`})

		got := a.Analyze(context.Background(), "anything", nil)
		assert.Equal(t, ComplexityModerate, got.Complexity)
		assert.Equal(t, DefaultK, got.Parameters.K)
		assert.Equal(t, DefaultThreshold, got.Parameters.Threshold)
		assert.NotNil(t, got.RequiresTools)
		assert.NotNil(t, got.SubQueries)
	})
}

func TestWithDefaultParameters(t *testing.T) {
	t.Run("configured defaults replace fallback values", func(t *testing.T) {
		a := New(judge.NewClient(&stubProvider{err: errors.New("model down")}, "", time.Second, log.NewNop()),
			WithDefaultParameters(7, 0.6))

		got := a.Analyze(context.Background(), "anything", nil)
		assert.Equal(t, 7, got.Parameters.K)
		assert.Equal(t, 0.6, got.Parameters.Threshold)
	})

	t.Run("configured defaults fill out-of-range judge values", func(t *testing.T) {
		a := New(judge.NewClient(&stubProvider{reply: `{"complexity": "simple", "parameters": {"k": -1, "threshold": 2.0, "reranking": true}}`}, "", time.Second, log.NewNop()),
			WithDefaultParameters(7, 0.6))

		got := a.Analyze(context.Background(), "anything", nil)
		assert.Equal(t, 7, got.Parameters.K)
		assert.Equal(t, 0.6, got.Parameters.Threshold)
	})

	t.Run("out-of-range option values keep package defaults", func(t *testing.T) {
		a := New(judge.NewClient(&stubProvider{err: errors.New("model down")}, "", time.Second, log.NewNop()),
			WithDefaultParameters(0, 1.5))

		got := a.Analyze(context.Background(), "anything", nil)
		assert.Equal(t, DefaultK, got.Parameters.K)
		assert.Equal(t, DefaultThreshold, got.Parameters.Threshold)
	})
}

func TestNeedsPlanning(t *testing.T) {
	tests := []struct {
		name     string
		analysis Analysis
		want     bool
	}{
		{"simple no tools", Analysis{Complexity: ComplexitySimple}, false},
		{"moderate no tools", Analysis{Complexity: ComplexityModerate}, false},
		{"complex", Analysis{Complexity: ComplexityComplex}, true},
		{"simple with tools", Analysis{Complexity: ComplexitySimple, RequiresTools: []string{"current_time"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.analysis.NeedsPlanning())
		})
	}
}

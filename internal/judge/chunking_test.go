package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkingJudgeRecommend(t *testing.T) {
	t.Run("valid recommendation", func(t *testing.T) {
		stub := &stubProvider{reply: `{"strategy":"markdown","chunk_size":800,"chunk_overlap":80,"justification":"header-structured document"}`}
		j := NewChunkingJudge(newTestClient(stub))

		rec := j.Recommend(context.Background(), "guide.md", "# Title\nbody")
		assert.Equal(t, StrategyMarkdown, rec.Strategy)
		assert.Equal(t, 800, rec.ChunkSize)
		assert.Equal(t, 80, rec.ChunkOverlap)
	})

	t.Run("malformed output returns exact default", func(t *testing.T) {
		j := NewChunkingJudge(newTestClient(&stubProvider{reply: "not json at all"}))

		rec := j.Recommend(context.Background(), "file.txt", "content")
		assert.Equal(t, StrategyRecursive, rec.Strategy)
		assert.Equal(t, 500, rec.ChunkSize)
		assert.Equal(t, 50, rec.ChunkOverlap)
	})

	t.Run("provider error returns exact default", func(t *testing.T) {
		j := NewChunkingJudge(newTestClient(&stubProvider{err: errors.New("timeout")}))

		rec := j.Recommend(context.Background(), "file.txt", "content")
		assert.Equal(t, StrategyRecursive, rec.Strategy)
		assert.Equal(t, 500, rec.ChunkSize)
		assert.Equal(t, 50, rec.ChunkOverlap)
	})

	t.Run("unknown strategy coerced to recursive", func(t *testing.T) {
		stub := &stubProvider{reply: `{"strategy":"semantic","chunk_size":600,"chunk_overlap":60}`}
		j := NewChunkingJudge(newTestClient(stub))

		rec := j.Recommend(context.Background(), "file.txt", "content")
		assert.Equal(t, StrategyRecursive, rec.Strategy)
		assert.Equal(t, 600, rec.ChunkSize)
	})

	t.Run("non-positive sizes replaced with defaults", func(t *testing.T) {
		stub := &stubProvider{reply: `{"strategy":"token","chunk_size":0,"chunk_overlap":-5}`}
		j := NewChunkingJudge(newTestClient(stub))

		rec := j.Recommend(context.Background(), "file.txt", "content")
		assert.Equal(t, StrategyToken, rec.Strategy)
		assert.Equal(t, 500, rec.ChunkSize)
		assert.Equal(t, 50, rec.ChunkOverlap)
	})

	t.Run("overlap capped below chunk size", func(t *testing.T) {
		stub := &stubProvider{reply: `{"strategy":"token","chunk_size":100,"chunk_overlap":150}`}
		j := NewChunkingJudge(newTestClient(stub))

		rec := j.Recommend(context.Background(), "file.txt", "content")
		assert.Less(t, rec.ChunkOverlap, rec.ChunkSize)
	})
}

func TestSample(t *testing.T) {
	t.Run("short document passes through whole", func(t *testing.T) {
		content := "a short document"
		assert.Equal(t, content, Sample("file.txt", content))
	})

	t.Run("long document sampled head middle tail", func(t *testing.T) {
		content := strings.Repeat("x", 3000) + "MIDDLE-MARKER" + strings.Repeat("y", 3000)
		sample := Sample("file.txt", content)

		assert.Less(t, len(sample), len(content))
		assert.Contains(t, sample, "--- beginning ---")
		assert.Contains(t, sample, "--- middle ---")
		assert.Contains(t, sample, "--- end ---")
	})

	t.Run("markdown headers prepended for large markdown", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("# Main Title\n")
		b.WriteString(strings.Repeat("prose ", 1000))
		b.WriteString("\n## Section Two\n")
		b.WriteString(strings.Repeat("more prose ", 1000))
		content := b.String()
		require.Greater(t, len(content), sampleThreshold)

		sample := Sample("doc.md", content)
		assert.Contains(t, sample, "Document headers:")
		assert.Contains(t, sample, "# Main Title")
		assert.Contains(t, sample, "## Section Two")

		// Same content under a non-markdown name gets no header section.
		assert.NotContains(t, Sample("doc.txt", content), "Document headers:")
	})
}

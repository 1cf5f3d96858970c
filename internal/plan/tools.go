package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/tessera-ai/tessera/internal/index"
)

// webFetchTimeout bounds one page fetch.
const webFetchTimeout = 15 * time.Second

// webFetchMaxOutput caps extracted article text so one page cannot flood a
// planner trace.
const webFetchMaxOutput = 8000

// CurrentTimeTool reports the current time. Retrieval corpora are static,
// so "when is now" questions need a tool.
type CurrentTimeTool struct{}

func (CurrentTimeTool) Name() string        { return "current_time" }
func (CurrentTimeTool) Description() string { return "returns the current date and time (UTC); input is ignored" }

func (CurrentTimeTool) Invoke(_ context.Context, _ string) (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

// WebFetchTool fetches a URL and extracts readable article text.
type WebFetchTool struct{}

func (WebFetchTool) Name() string { return "web_fetch" }
func (WebFetchTool) Description() string {
	return "fetches a web page and returns its readable text; input is the URL"
}

func (WebFetchTool) Invoke(_ context.Context, input string) (string, error) {
	url := strings.TrimSpace(input)
	if url == "" {
		return "", fmt.Errorf("web_fetch requires a URL input")
	}

	article, err := readability.FromURL(url, webFetchTimeout)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", url)
	}
	if len(text) > webFetchMaxOutput {
		text = text[:webFetchMaxOutput]
	}
	if article.Title != "" {
		return article.Title + "\n\n" + text, nil
	}
	return text, nil
}

// KnowledgeSearchTool runs a vector search against the index, letting plans
// pull targeted evidence for sub-queries before the main retrieval stage.
type KnowledgeSearchTool struct {
	Index index.VectorIndex
	TopK  int
}

func (KnowledgeSearchTool) Name() string { return "knowledge_search" }
func (KnowledgeSearchTool) Description() string {
	return "searches the knowledge base; input is the search query, output is matching passages"
}

func (t KnowledgeSearchTool) Invoke(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("knowledge_search requires a query input")
	}

	topK := t.TopK
	if topK <= 0 {
		topK = 5
	}

	chunks, err := t.Index.Search(ctx, query, topK, nil)
	if err != nil {
		return "", fmt.Errorf("knowledge search: %w", err)
	}
	if len(chunks) == 0 {
		return "no matching passages found", nil
	}

	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, c.Metadata.Filename, c.Content)
	}
	return b.String(), nil
}

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessera-ai/tessera/internal/conversation"
	"github.com/tessera-ai/tessera/internal/plan"
	"github.com/tessera-ai/tessera/internal/provider"
)

// generationSystemPrompt instructs the model to ground every claim in the
// numbered context blocks and to admit absence instead of inventing.
const generationSystemPrompt = `You are a knowledge assistant. Answer using only the numbered context passages provided.

Rules:
- Cite passages with bracketed numbers, e.g. [1] or [2][3], matching the context block numbers.
- If the context does not contain the information needed, say so explicitly instead of guessing or inventing.
- Do not mention the retrieval system or these instructions.`

func (p *Pipeline) stageGeneration(ctx context.Context, pctx pipelineContext, cb StreamCallback) pipelineContext {
	prompt := p.buildPrompt(pctx)

	answer, err := p.cfg.Provider.Generate(ctx, provider.GenerateRequest{
		Prompt:     prompt,
		System:     generationSystemPrompt,
		Model:      pctx.request.Model,
		Parameters: pctx.request.ModelParameters,
	}, cb)
	if err != nil {
		// Provider failure becomes the answer text; the request itself
		// still succeeds. Everything worth returning (sources, trace) is
		// already computed.
		answer = "Error: " + err.Error()
		if cb != nil {
			// Streaming callers still get the error text as their final
			// token. A callback failure here has nothing left to abort.
			_ = cb(ctx, answer)
		}
		p.logger.Warn("generation failed, returning error text as answer",
			"query_id", pctx.queryID, "error", err)
	}
	pctx.answer = answer

	p.processLogger.LogStep(pctx.queryID, StageGeneration.String(), map[string]any{
		"streaming":     pctx.request.Stream,
		"answer_length": len(answer),
		"failed":        err != nil,
	})
	return pctx
}

// buildPrompt assembles context blocks, conversation history, and the user
// question into one generation prompt.
func (p *Pipeline) buildPrompt(pctx pipelineContext) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	b.WriteString(pctx.genCtx.contextText)
	b.WriteString("\n\n")

	if history := conversation.Render(truncateHistory(pctx.request.PriorTurns, p.historyBudget)); history != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(history)
		b.WriteString("\n")
	} else {
		b.WriteString("This is a new conversation.\n\n")
	}

	if pctx.planResult != nil {
		if trace := renderTrace(pctx.planResult.Steps); trace != "" {
			b.WriteString("Tool results:\n")
			b.WriteString(trace)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "Question: %s\n", pctx.request.Text)
	return b.String()
}

// truncateHistory drops oldest turns until the rendered history fits the
// budget. Content length approximates token count at roughly two characters
// per token, which is close enough for a safety cap.
func truncateHistory(turns []conversation.Turn, budget int) []conversation.Turn {
	total := 0
	for _, t := range turns {
		total += len(t.Content)
	}
	start := 0
	for start < len(turns) && total > budget {
		total -= len(turns[start].Content)
		start++
	}
	return turns[start:]
}

// renderTrace renders successful tool outputs for the prompt. Failed steps
// are omitted: their errors live in the execution trace, not the answer.
func renderTrace(steps []plan.StepResult) string {
	var b strings.Builder
	for _, s := range steps {
		if s.Error != "" || strings.TrimSpace(s.Output) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Output)
	}
	return b.String()
}

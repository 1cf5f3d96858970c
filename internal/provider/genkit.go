package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/tessera-ai/tessera/internal/log"
)

// Genkit is the production CompletionProvider backed by a Genkit instance.
//
// It applies proactive rate limiting to every call (judges included) but no
// retries; retry policy belongs to the Resilient wrapper and is applied only
// where the pipeline wants it.
type Genkit struct {
	g            *genkit.Genkit
	defaultModel string
	limiter      *rate.Limiter
	logger       log.Logger
}

// GenkitConfig configures the Genkit provider.
type GenkitConfig struct {
	Genkit       *genkit.Genkit
	DefaultModel string        // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	RateLimiter  *rate.Limiter // nil = default 10 req/s, burst 30
	Logger       log.Logger    // nil = nop
}

// NewGenkit creates a Genkit-backed provider.
func NewGenkit(cfg GenkitConfig) (*Genkit, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.DefaultModel == "" {
		return nil, fmt.Errorf("default model is required")
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Genkit{
		g:            cfg.Genkit,
		defaultModel: cfg.DefaultModel,
		limiter:      rl,
		logger:       logger.With("component", "provider"),
	}, nil
}

// Generate implements CompletionProvider.
func (p *Genkit) Generate(ctx context.Context, req GenerateRequest, cb StreamCallback) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	// Bare model names get the default provider prefix.
	if !strings.Contains(model, "/") {
		model = "googleai/" + model
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(model),
		ai.WithPrompt(req.Prompt),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Parameters) > 0 {
		opts = append(opts, ai.WithConfig(req.Parameters))
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(cbCtx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			return cb(cbCtx, text)
		}))
	}

	resp, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	p.logger.Debug("generation complete",
		"model", model,
		"prompt_length", len(req.Prompt),
		"response_length", len(text),
		"streaming", cb != nil,
	)

	return text, nil
}

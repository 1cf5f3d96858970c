// Package judge implements LLM-backed decision functions with deterministic
// fallbacks. A judge sends one prompt to the completion provider, extracts a
// JSON payload from the free-form reply, and decodes it into a typed
// decision. Any failure along that path (timeout, provider error, malformed
// JSON, invalid fields) yields the caller-supplied fallback instead of an
// error: judges trade best-effort recovery for bounded latency and are never
// retried.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/provider"
)

// ErrNoJSON indicates the model reply contained no JSON object or array.
var ErrNoJSON = errors.New("no JSON payload found in model output")

// DefaultTimeout bounds a single judge call when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// Client sends judge prompts to the completion provider.
//
// Judge calls use the bare provider, not the resilient generation wrapper:
// a slow or failed judge already has a deterministic answer waiting, so
// retrying only adds latency.
type Client struct {
	provider provider.CompletionProvider
	model    string
	timeout  time.Duration
	logger   log.Logger
}

// NewClient creates a judge client. model may be empty to use the provider
// default; a non-positive timeout selects DefaultTimeout.
func NewClient(p provider.CompletionProvider, model string, timeout time.Duration, logger log.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		provider: p,
		model:    model,
		timeout:  timeout,
		logger:   logger.With("component", "judge"),
	}
}

// Complete sends prompt to the provider in batch mode under the client's
// timeout and returns the raw reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.provider.Generate(callCtx, provider.GenerateRequest{
		Prompt: prompt,
		Model:  c.model,
	}, nil)
}

// Ask runs one judge decision: prompt the model, parse a T out of the reply,
// validate it, and return fallback on any failure. validate may be nil and
// may also normalize fields in place (coercing unknown enum values, filling
// omitted optionals); returning an error from it rejects the parse.
func Ask[T any](ctx context.Context, c *Client, prompt string, validate func(*T) error, fallback T) T {
	raw, err := c.Complete(ctx, prompt)
	if err != nil {
		c.logger.Debug("judge call failed, using fallback", "error", err)
		return fallback
	}

	parsed, err := ParseStructured[T](raw)
	if err != nil {
		c.logger.Debug("judge output unparseable, using fallback", "error", err)
		return fallback
	}

	if validate != nil {
		if err := validate(&parsed); err != nil {
			c.logger.Debug("judge output failed validation, using fallback", "error", err)
			return fallback
		}
	}

	return parsed
}

// ParseStructured extracts the first balanced JSON object or array from raw
// and decodes it into T. Models often wrap JSON in prose or markdown fences;
// the extractor ignores everything outside the first balanced payload.
func ParseStructured[T any](raw string) (T, error) {
	var out T

	payload := extractJSON(raw)
	if payload == "" {
		return out, ErrNoJSON
	}

	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("decode judge output: %w", err)
	}
	return out, nil
}

// extractJSON returns the first balanced {...} or [...] substring of s,
// tracking string literals and escapes so braces inside strings do not
// unbalance the scan. Returns "" when no balanced payload exists.
func extractJSON(s string) string {
	start := -1
	var opener, closer byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			opener = s[i]
			if opener == '{' {
				closer = '}'
			} else {
				closer = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// truncate shortens s for inclusion in prompts and log lines.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// joinNumbered renders items as a numbered list for judge prompts.
func joinNumbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

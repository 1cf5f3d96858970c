// Package provider abstracts the completion model runtime behind a small
// interface the pipeline and judges consume.
//
// The only implementation shipped here is Genkit-backed (Google AI via the
// googlegenai plugin), but every consumer depends on CompletionProvider, so
// tests substitute hand-rolled stubs and the orchestration core never
// imports a model SDK directly.
package provider

import (
	"context"
	"errors"
)

// ErrEmptyResponse indicates the model produced no usable text.
var ErrEmptyResponse = errors.New("provider returned empty response")

// StreamCallback receives partial response text as the model produces it.
// Returning an error aborts the stream.
type StreamCallback func(ctx context.Context, text string) error

// GenerateRequest describes one completion call.
type GenerateRequest struct {
	Prompt string
	System string

	// Model overrides the provider's default model when non-empty.
	Model string

	// Parameters is an opaque bag forwarded to the model runtime
	// (temperature, max tokens, ...). Nil is valid.
	Parameters map[string]any
}

// CompletionProvider generates text from a prompt.
//
// Generate blocks until the full response is available and returns the final
// text. When cb is non-nil the provider additionally streams partial text
// through it; the returned string is still the accumulated final text so
// callers have one bookkeeping path for both modes.
//
// Implementations must honor ctx cancellation and deadlines: this is the
// pipeline's only suspension point.
type CompletionProvider interface {
	Generate(ctx context.Context, req GenerateRequest, cb StreamCallback) (string, error)
}

package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tessera-ai/tessera/internal/log"
)

// RetryConfig configures the retry behavior for generation calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError determines if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Rate limit errors
	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}

	// Transient server errors
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}

	// Network errors
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// Resilient wraps a CompletionProvider with retry and a circuit breaker.
//
// The pipeline uses a Resilient provider for the generation stage only.
// Judge calls go to the bare provider on purpose: a judge timeout or parse
// failure already has a deterministic fallback, and retrying trades latency
// for a different bad answer.
type Resilient struct {
	inner   CompletionProvider
	retry   RetryConfig
	breaker *CircuitBreaker
	logger  log.Logger
}

// NewResilient wraps inner with retry and circuit-breaker behavior.
// Zero-value configs select defaults.
func NewResilient(inner CompletionProvider, retry RetryConfig, cb CircuitBreakerConfig, logger log.Logger) *Resilient {
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resilient{
		inner:   inner,
		retry:   retry,
		breaker: NewCircuitBreaker(cb),
		logger:  logger.With("component", "provider_resilient"),
	}
}

// Generate implements CompletionProvider with exponential backoff retry.
//
// Streaming calls are never retried after the first chunk has been delivered:
// a retry would replay partial output to the caller. Retries therefore apply
// only while nothing has been streamed yet.
func (r *Resilient) Generate(ctx context.Context, req GenerateRequest, cb StreamCallback) (string, error) {
	if err := r.breaker.Allow(); err != nil {
		r.logger.Warn("circuit breaker is open, rejecting request",
			"state", r.breaker.State().String())
		return "", fmt.Errorf("service unavailable: %w", err)
	}

	var lastErr error
	delay := r.retry.InitialInterval
	start := time.Now()
	streamed := false

	wrapped := cb
	if cb != nil {
		wrapped = func(cbCtx context.Context, text string) error {
			streamed = true
			return cb(cbCtx, text)
		}
	}

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		text, err := r.inner.Generate(ctx, req, wrapped)
		if err == nil {
			r.breaker.Record(nil)
			r.logger.Debug("generation succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return text, nil
		}

		lastErr = err

		if !retryableError(err) || streamed {
			r.breaker.Record(err)
			return "", fmt.Errorf("generate: %w", err)
		}

		if attempt == r.retry.MaxRetries {
			break
		}

		r.logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err,
		)

		select {
		case <-ctx.Done():
			// Caller cancellation is not evidence of endpoint health either
			// way; nothing is recorded.
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.retry.MaxInterval)
		}
	}

	r.breaker.Record(lastErr)
	return "", fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		r.retry.MaxRetries, time.Since(start), lastErr)
}

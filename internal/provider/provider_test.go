package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/log"
)

// stubProvider returns scripted responses per call.
type stubProvider struct {
	calls     int
	responses []stubResponse
}

type stubResponse struct {
	text   string
	chunks []string
	err    error
}

func (s *stubProvider) Generate(ctx context.Context, req GenerateRequest, cb StreamCallback) (string, error) {
	resp := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	if cb != nil {
		for _, c := range resp.chunks {
			if err := cb(ctx, c); err != nil {
				return "", err
			}
		}
	}
	if resp.err != nil {
		return "", resp.err
	}
	return resp.text, nil
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("Rate Limit exceeded"), true},
		{"429", errors.New("http 429 too many requests"), true},
		{"503", errors.New("upstream returned 503"), true},
		{"unavailable", errors.New("service UNAVAILABLE"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded (timeout)"), true},
		{"invalid request", errors.New("invalid argument: bad prompt"), false},
		{"auth", errors.New("401 unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestResilientRetriesTransientErrors(t *testing.T) {
	stub := &stubProvider{responses: []stubResponse{
		{err: errors.New("http 503")},
		{err: errors.New("rate limit")},
		{text: "recovered"},
	}}

	r := NewResilient(stub,
		RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		CircuitBreakerConfig{}, log.NewNop())

	text, err := r.Generate(context.Background(), GenerateRequest{Prompt: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, stub.calls)
}

func TestResilientDoesNotRetryPermanentErrors(t *testing.T) {
	stub := &stubProvider{responses: []stubResponse{
		{err: errors.New("invalid argument")},
	}}

	r := NewResilient(stub,
		RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		CircuitBreakerConfig{}, log.NewNop())

	_, err := r.Generate(context.Background(), GenerateRequest{Prompt: "hi"}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestResilientExhaustsRetries(t *testing.T) {
	stub := &stubProvider{responses: []stubResponse{
		{err: errors.New("http 503")},
	}}

	r := NewResilient(stub,
		RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		CircuitBreakerConfig{}, log.NewNop())

	_, err := r.Generate(context.Background(), GenerateRequest{Prompt: "hi"}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, stub.calls) // initial + 2 retries
}

func TestResilientNoRetryAfterStreamedChunks(t *testing.T) {
	stub := &stubProvider{responses: []stubResponse{
		{chunks: []string{"partial "}, err: errors.New("http 503")},
		{text: "should not reach"},
	}}

	r := NewResilient(stub,
		RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		CircuitBreakerConfig{}, log.NewNop())

	var got string
	_, err := r.Generate(context.Background(), GenerateRequest{Prompt: "hi"},
		func(ctx context.Context, text string) error {
			got += text
			return nil
		})
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "partial ", got)
}

func TestResilientHonorsContextCancellation(t *testing.T) {
	stub := &stubProvider{responses: []stubResponse{
		{err: errors.New("http 503")},
	}}

	r := NewResilient(stub,
		RetryConfig{MaxRetries: 5, InitialInterval: time.Hour, MaxInterval: time.Hour},
		CircuitBreakerConfig{}, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Generate(ctx, GenerateRequest{Prompt: "hi"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

var errOutage = errors.New("http 503 service unavailable")

func TestCircuitBreakerStateTransitions(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		CoolDown:         20 * time.Millisecond,
	})

	require.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Allow())

	cb.Record(errOutage)
	assert.Equal(t, CircuitClosed, cb.State())
	cb.Record(errOutage)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.Record(nil)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Allow())
	cb.Record(nil)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	// The endpoint is answering; request errors never open the circuit.
	for range 10 {
		cb.Record(errors.New("invalid argument: bad prompt"))
	}
	assert.Equal(t, CircuitClosed, cb.State())

	// They also break an outage streak.
	cb.Record(errOutage)
	cb.Record(errors.New("401 unauthorized"))
	cb.Record(errOutage)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerSingleProbeInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		CoolDown:         10 * time.Millisecond,
	})

	cb.Record(errOutage)
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.State())

	// The probe is still in flight; concurrent callers are rejected.
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	cb.Record(nil)
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreakerReopensFromHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		CoolDown:         10 * time.Millisecond,
	})

	cb.Record(errOutage)
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.State())

	cb.Record(errOutage)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	cb.Record(errOutage)
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

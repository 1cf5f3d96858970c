package judge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/log"
	"github.com/tessera-ai/tessera/internal/provider"
)

// stubProvider returns a fixed reply or error for every call.
type stubProvider struct {
	reply string
	err   error
	calls int
}

func (s *stubProvider) Generate(_ context.Context, _ provider.GenerateRequest, _ provider.StreamCallback) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestClient(p provider.CompletionProvider) *Client {
	return NewClient(p, "", time.Second, log.NewNop())
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"object in prose", `Sure! Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"markdown fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"array", `the offsets are [0, 10, 25]`, `[0, 10, 25]`},
		{"nested", `{"a":{"b":[1,2]}}`, `{"a":{"b":[1,2]}}`},
		{"brace inside string", `{"a":"closing } inside"}`, `{"a":"closing } inside"}`},
		{"escaped quote", `{"a":"she said \"}\" loudly"}`, `{"a":"she said \"}\" loudly"}`},
		{"unbalanced", `{"a": 1`, ""},
		{"no json", "I cannot answer that.", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestParseStructured(t *testing.T) {
	type decision struct {
		Strategy string `json:"strategy"`
		Size     int    `json:"size"`
	}

	t.Run("valid", func(t *testing.T) {
		got, err := ParseStructured[decision](`judge says: {"strategy":"token","size":300}`)
		require.NoError(t, err)
		assert.Equal(t, decision{Strategy: "token", Size: 300}, got)
	})

	t.Run("no payload", func(t *testing.T) {
		_, err := ParseStructured[decision]("no json here")
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := ParseStructured[decision](`{"strategy":42}`)
		assert.Error(t, err)
	})
}

func TestAsk(t *testing.T) {
	type decision struct {
		Value int `json:"value"`
	}
	fallback := decision{Value: -1}

	t.Run("parses valid output", func(t *testing.T) {
		c := newTestClient(&stubProvider{reply: `{"value": 7}`})
		got := Ask(context.Background(), c, "prompt", nil, fallback)
		assert.Equal(t, 7, got.Value)
	})

	t.Run("provider error yields fallback", func(t *testing.T) {
		stub := &stubProvider{err: errors.New("model down")}
		c := newTestClient(stub)
		got := Ask(context.Background(), c, "prompt", nil, fallback)
		assert.Equal(t, fallback, got)
		assert.Equal(t, 1, stub.calls, "judge calls are never retried")
	})

	t.Run("malformed output yields fallback", func(t *testing.T) {
		c := newTestClient(&stubProvider{reply: "I would rather not say."})
		got := Ask(context.Background(), c, "prompt", nil, fallback)
		assert.Equal(t, fallback, got)
	})

	t.Run("validation failure yields fallback", func(t *testing.T) {
		c := newTestClient(&stubProvider{reply: `{"value": 0}`})
		got := Ask(context.Background(), c, "prompt", func(d *decision) error {
			if d.Value == 0 {
				return fmt.Errorf("value missing")
			}
			return nil
		}, fallback)
		assert.Equal(t, fallback, got)
	})

	t.Run("validator may normalize fields", func(t *testing.T) {
		c := newTestClient(&stubProvider{reply: `{"value": 200}`})
		got := Ask(context.Background(), c, "prompt", func(d *decision) error {
			if d.Value > 100 {
				d.Value = 100
			}
			return nil
		}, fallback)
		assert.Equal(t, 100, got.Value)
	})
}

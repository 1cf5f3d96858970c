package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Provider:            "gemini",
		ModelName:           DefaultModelName,
		JudgeModel:          DefaultJudgeModel,
		EmbedderModel:       DefaultEmbedderModel,
		ChunkSize:           DefaultChunkSize,
		ChunkOverlap:        DefaultChunkOverlap,
		TopK:                DefaultTopK,
		Threshold:           DefaultThreshold,
		JudgeTimeoutSeconds: DefaultJudgeTimeoutSeconds,
		PostgresHost:        "localhost",
		PostgresPort:        5432,
		PostgresUser:        "tessera",
		PostgresPassword:    "secret-password-123",
		PostgresDBName:      "tessera",
		PostgresSSLMode:     "disable",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"empty judge model", func(c *Config) { c.JudgeModel = "" }, ErrInvalidModelName},
		{"chunk size too small", func(c *Config) { c.ChunkSize = 10 }, ErrInvalidChunking},
		{"overlap not below size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, ErrInvalidChunking},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, ErrInvalidChunking},
		{"threshold above one", func(c *Config) { c.Threshold = 1.5 }, ErrInvalidThreshold},
		{"zero topK", func(c *Config) { c.TopK = 0 }, ErrInvalidThreshold},
		{"judge timeout zero", func(c *Config) { c.JudgeTimeoutSeconds = 0 }, ErrInvalidJudgeTimeout},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgres},
		{"postgres port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	t.Run("nil config", func(t *testing.T) {
		var cfg *Config
		assert.ErrorIs(t, cfg.Validate(), ErrConfigNil)
	})
}

func TestMarshalJSONMasksSecrets(t *testing.T) {
	cfg := validConfig()

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-password-123")
	assert.Contains(t, string(data), maskedValue)
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := validConfig()
	assert.NotContains(t, cfg.String(), "secret-password-123")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, maskedValue, maskSecret("short"))

	long := maskSecret("my_long_secret_key_123")
	assert.True(t, strings.HasPrefix(long, "my"))
	assert.True(t, strings.HasSuffix(long, "23"))
	assert.NotContains(t, long, "long_secret")
}

func TestPostgresURL(t *testing.T) {
	cfg := validConfig()
	u := cfg.PostgresURL()
	assert.True(t, strings.HasPrefix(u, "postgres://"))
	assert.Contains(t, u, "sslmode=disable")
	assert.Contains(t, u, "localhost:5432")
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := validConfig()
	s := cfg.PostgresConnectionString()
	assert.Contains(t, s, "host=localhost")
	assert.Contains(t, s, "dbname=tessera")
}

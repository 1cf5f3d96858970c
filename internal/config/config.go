// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.tessera/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model selection, judge model, embedder
//   - Storage: PostgreSQL + pgvector connection
//   - Pipeline: feature flags and retrieval/chunking parameters
//   - Tracing: OTLP trace export
//
// The pipeline feature flags (UseChunkingJudge, UseRetrievalJudge,
// UsePlanner, UseSemanticChunker) are plain struct fields injected into the
// orchestrator constructor. There is no module-level flag state.
//
// Error handling uses sentinel errors so callers can check categories with
// errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidChunking indicates chunk size/overlap values are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidThreshold indicates the relevance threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid relevance threshold")

	// ErrInvalidPostgres indicates the PostgreSQL connection settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidJudgeTimeout indicates the judge timeout is out of range.
	ErrInvalidJudgeTimeout = errors.New("invalid judge timeout")
)

// Defaults applied when neither the config file nor the environment supplies
// a value. The retrieval defaults match the analyzer's deterministic
// fallback so a degraded analyzer still produces consistent behavior.
const (
	DefaultModelName     = "gemini-2.5-flash"
	DefaultJudgeModel    = "gemini-2.5-flash-lite"
	DefaultEmbedderModel = "gemini-embedding-001"

	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	DefaultTopK      = 10
	DefaultThreshold = 0.4

	DefaultJudgeTimeoutSeconds = 20
)

// TracingConfig configures OTLP trace export.
// Traces are exported to a local collector/agent over OTLP HTTP.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	JudgeModel    string `mapstructure:"judge_model" json:"judge_model"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Pipeline feature flags
	UseChunkingJudge   bool `mapstructure:"use_chunking_judge" json:"use_chunking_judge"`
	UseRetrievalJudge  bool `mapstructure:"use_retrieval_judge" json:"use_retrieval_judge"`
	UsePlanner         bool `mapstructure:"use_planner" json:"use_planner"`
	UseSemanticChunker bool `mapstructure:"use_semantic_chunker" json:"use_semantic_chunker"`
	DropDanglingTurn   bool `mapstructure:"drop_dangling_turn" json:"drop_dangling_turn"`

	// Retrieval and chunking parameters
	ChunkSize           int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	Threshold           float64 `mapstructure:"threshold" json:"threshold"`
	JudgeTimeoutSeconds int     `mapstructure:"judge_timeout_seconds" json:"judge_timeout_seconds"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".tessera")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", "gemini")
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("judge_model", DefaultJudgeModel)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("use_chunking_judge", true)
	viper.SetDefault("use_retrieval_judge", true)
	viper.SetDefault("use_planner", true)
	viper.SetDefault("use_semantic_chunker", false)
	viper.SetDefault("drop_dangling_turn", true)

	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("threshold", DefaultThreshold)
	viper.SetDefault("judge_timeout_seconds", DefaultJudgeTimeoutSeconds)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "tessera")
	viper.SetDefault("postgres_password", "tessera_dev_password")
	viper.SetDefault("postgres_db_name", "tessera")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "tessera")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via Viper.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "TESSERA_PROVIDER")
	mustBind("model_name", "TESSERA_MODEL_NAME")
	mustBind("judge_model", "TESSERA_JUDGE_MODEL")
	mustBind("postgres_host", "TESSERA_POSTGRES_HOST")
	mustBind("postgres_port", "TESSERA_POSTGRES_PORT")
	mustBind("postgres_user", "TESSERA_POSTGRES_USER")
	mustBind("postgres_password", "TESSERA_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "TESSERA_POSTGRES_DB")
	mustBind("tracing.enabled", "TESSERA_TRACING_ENABLED")
	mustBind("tracing.endpoint", "TESSERA_TRACING_ENDPOINT")
}

// PostgresURL returns a postgres:// URL suitable for golang-migrate.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// PostgresConnectionString returns a keyword/value connection string for pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDBName, c.PostgresSSLMode)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked to prevent substring leaks;
// longer ones keep the first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

package config

import "fmt"

// Validate checks the configuration for internally inconsistent or
// out-of-range values. It is called by Load immediately after unmarshaling
// (fail-fast) and may be called again on programmatically built configs.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if c.JudgeModel == "" {
		return fmt.Errorf("%w: judge_model must not be empty", ErrInvalidModelName)
	}

	if c.ChunkSize < 50 || c.ChunkSize > 100_000 {
		return fmt.Errorf("%w: chunk_size %d outside [50, 100000]", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold %.2f outside [0, 1]", ErrInvalidThreshold, c.Threshold)
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: top_k %d outside [1, 100]", ErrInvalidThreshold, c.TopK)
	}

	if c.JudgeTimeoutSeconds < 1 || c.JudgeTimeoutSeconds > 300 {
		return fmt.Errorf("%w: judge_timeout_seconds %d outside [1, 300]", ErrInvalidJudgeTimeout, c.JudgeTimeoutSeconds)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host must not be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: postgres_port %d outside [1, 65535]", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name must not be empty", ErrInvalidPostgres)
	}

	return nil
}

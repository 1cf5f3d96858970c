package pipeline

import (
	"github.com/tessera-ai/tessera/internal/log"
)

// ProcessLogger receives one record per pipeline stage transition. It is an
// observability sink: implementations must never block and must never fail
// the pipeline.
type ProcessLogger interface {
	LogStep(queryID, stepName string, payload map[string]any)
}

// SlogProcessLogger writes stage records through structured logging.
type SlogProcessLogger struct {
	logger log.Logger
}

// NewSlogProcessLogger creates a ProcessLogger over the given logger.
func NewSlogProcessLogger(logger log.Logger) *SlogProcessLogger {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SlogProcessLogger{logger: logger.With("component", "pipeline")}
}

// LogStep implements ProcessLogger.
func (l *SlogProcessLogger) LogStep(queryID, stepName string, payload map[string]any) {
	args := make([]any, 0, 4+2*len(payload))
	args = append(args, "query_id", queryID, "step", stepName)
	for k, v := range payload {
		args = append(args, k, v)
	}
	l.logger.Debug("pipeline step", args...)
}

// nopProcessLogger discards all records.
type nopProcessLogger struct{}

func (nopProcessLogger) LogStep(string, string, map[string]any) {}

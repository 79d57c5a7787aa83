package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// Log field names set from the tracing context
const (
	FieldTraceID    = "trace_id"
	FieldQueue      = "queue"
	FieldSequenceID = "sequence_id"
)

// PropagateToLogger adds tracing context to a zerolog logger. Fields named in present are
// already set on logger and are skipped.
func PropagateToLogger(ctx context.Context, logger zerolog.Logger, present ...string) zerolog.Logger {
	tc := FromContext(ctx)
	skip := func(field string) bool {
		for _, p := range present {
			if p == field {
				return true
			}
		}
		return false
	}

	if tc.TraceID != "" && !skip(FieldTraceID) {
		logger = logger.With().Str(FieldTraceID, tc.TraceID).Logger()
	}
	if tc.Queue != "" && !skip(FieldQueue) {
		logger = logger.With().Str(FieldQueue, tc.Queue).Logger()
	}
	if tc.SequenceID != 0 && !skip(FieldSequenceID) {
		logger = logger.With().Int64(FieldSequenceID, tc.SequenceID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger, present ...string) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger, present...)
}

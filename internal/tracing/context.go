package tracing

import (
	"context"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// QueueKey is the context key for the name of the queue running the work
	QueueKey ContextKey = "queue"
	// SequenceIDKey is the context key for the sequence id of the running task
	SequenceIDKey ContextKey = "sequence_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID    string
	Queue      string
	SequenceID int64
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithQueue adds a queue name to the context
func WithQueue(ctx context.Context, queue string) context.Context {
	return context.WithValue(ctx, QueueKey, queue)
}

// WithSequenceID adds a task sequence id to the context
func WithSequenceID(ctx context.Context, seq int64) context.Context {
	return context.WithValue(ctx, SequenceIDKey, seq)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetQueue retrieves the queue name from the context
func GetQueue(ctx context.Context) string {
	if queue, ok := ctx.Value(QueueKey).(string); ok {
		return queue
	}
	return ""
}

// GetSequenceID retrieves the task sequence id from the context, zero if unset
func GetSequenceID(ctx context.Context) int64 {
	if seq, ok := ctx.Value(SequenceIDKey).(int64); ok {
		return seq
	}
	return 0
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:    GetTraceID(ctx),
		Queue:      GetQueue(ctx),
		SequenceID: GetSequenceID(ctx),
	}
}

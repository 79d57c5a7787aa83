package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JournalEntry is one queue lifecycle record written to the journal
type JournalEntry struct {
	Queue      string                 `json:"queue"`
	Event      string                 `json:"event"` // closed, drained, timeout, error
	SequenceID int64                  `json:"sequence_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	TraceID    string                 `json:"trace_id,omitempty"`
}

// Journal appends lifecycle entries as JSON lines
type Journal struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	journalMu   sync.Mutex
	journalInst *Journal
)

// GetJournal returns the global journal, writing to stderr until InitJournal is called
func GetJournal() *Journal {
	journalMu.Lock()
	defer journalMu.Unlock()
	if journalInst == nil {
		journalInst = &Journal{
			logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
		}
	}
	return journalInst
}

// InitJournal points the global journal at a file
func InitJournal(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	journalMu.Lock()
	journalInst = &Journal{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	journalMu.Unlock()
	return nil
}

// NewJournal builds a journal over an arbitrary zerolog logger
func NewJournal(logger zerolog.Logger) *Journal {
	return &Journal{logger: logger}
}

// Record writes the entry and mirrors it as an event on the active span, if any
func (j *Journal) Record(ctx context.Context, entry JournalEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent("seqqueue."+entry.Event, trace.WithAttributes(
			attribute.String("queue", entry.Queue),
			attribute.Int64("sequence_id", entry.SequenceID),
		))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	ev := j.logger.Log().
		Str("queue", entry.Queue).
		Str("event", entry.Event).
		Int64("sequence_id", entry.SequenceID).
		Time("at", entry.Timestamp)
	if entry.Error != "" {
		ev.Str("error", entry.Error)
	}
	if entry.TraceID != "" {
		ev.Str("trace_id", entry.TraceID)
	}
	if entry.Metadata != nil {
		ev.Interface("metadata", entry.Metadata)
	}
	ev.Msg("")
}

// Close closes the journal's file handle
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

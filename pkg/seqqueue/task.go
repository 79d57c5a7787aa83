package seqqueue

import (
	"context"
	"time"

	"github.com/harun/seqqueue/internal/tracing"
	"go.opentelemetry.io/otel/trace"
)

// WorkFunc performs a task. It must eventually call done.Done(), from any goroutine, or the
// task is abandoned when its deadline passes. ctx is cancelled once the queue has moved past
// the task. A returned error (or a panic) is reported as an error event.
type WorkFunc func(ctx context.Context, done Completion) error

// Completion is handed to every running task.
type Completion interface {
	// Done signals completion. It reports false when the signal came too late to matter:
	// the task had already timed out, been abandoned, or Done was called before.
	Done() bool
}

// TaskOptions tunes a single submission
type TaskOptions struct {
	Name      string        // label used in logs and events
	Timeout   time.Duration // zero means the queue default
	OnTimeout func(t *Task) // called after the timeout event
}

// Task is a submitted unit of work. SequenceID and StartedAt are set when the task is
// dequeued for execution; the other exported fields are fixed at submission.
type Task struct {
	SequenceID  int64
	Name        string
	Timeout     time.Duration
	OnTimeout   func(t *Task)
	SubmittedAt time.Time
	StartedAt   time.Time

	work      WorkFunc
	submitCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	span      trace.Span
	settled   bool
	invoking  bool  // work is on a run loop's stack
	handoff   *Task // started by that run loop once work returns
}

// Context returns the context handed to the task's work, carrying its span. It is nil
// until the task starts.
func (t *Task) Context() context.Context {
	return t.ctx
}

type outcome string

const (
	outcomeCompleted outcome = "completed"
	outcomeTimeout   outcome = "timeout"
	outcomeError     outcome = "error"
	outcomeAborted   outcome = "aborted"
)

// handle is the Completion bound to one task
type handle struct {
	q *Queue
	t *Task
}

func (h *handle) Done() bool {
	return h.q.complete(h.t)
}

// SequenceID returns the sequence id of the task whose context this is, or zero.
func SequenceID(ctx context.Context) int64 {
	return tracing.GetSequenceID(ctx)
}

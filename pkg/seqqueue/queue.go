package seqqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/seqqueue/internal/observability"
	"github.com/harun/seqqueue/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTimeout applies to tasks submitted without their own timeout when the queue was
// created without a default.
const DefaultTimeout = 3000 * time.Millisecond

// Status is the lifecycle state of a Queue
type Status int

const (
	StatusIdle Status = iota + 1
	StatusBusy
	StatusClosing
	StatusDrained
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusClosing:
		return "closing"
	case StatusDrained:
		return "drained"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Config configures a Queue
type Config struct {
	Name           string          // metrics/log label, "default" if empty
	DefaultTimeout time.Duration   // must not be negative; zero means DefaultTimeout
	Logger         *zerolog.Logger // nil means the global zerolog logger
}

// Stats is a point-in-time snapshot of a Queue
type Stats struct {
	Status     Status
	Backlog    int
	Generation int64
	Running    bool
	Submitted  uint64
	Rejected   uint64
	Completed  uint64
	TimedOut   uint64
	Failed     uint64
	Aborted    uint64
}

// Queue executes tasks strictly one after another
type Queue struct {
	id             string
	name           string
	defaultTimeout time.Duration
	logger         zerolog.Logger

	mu         sync.Mutex
	generation int64
	status     Status
	backlog    []*Task
	current    *Task
	timer      *time.Timer
	drained    chan struct{}
	stats      Stats

	eventHandlers map[string][]EventHandler
	eventMu       sync.RWMutex
}

// New creates an idle queue
func New(cfg Config) (*Queue, error) {
	if cfg.DefaultTimeout < 0 {
		return nil, fmt.Errorf("%w: default timeout must be positive, got %s", ErrInvalidArgument, cfg.DefaultTimeout)
	}
	observability.EnsureRegistered()

	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}

	id := uuid.New().String()
	q := &Queue{
		id:             id,
		name:           name,
		defaultTimeout: timeout,
		logger: base.With().
			Str("component", "seqqueue").
			Str("queue", name).
			Str("queue_id", id).
			Logger(),
		status:        StatusIdle,
		drained:       make(chan struct{}),
		eventHandlers: make(map[string][]EventHandler),
	}
	observability.SetStatus(name, int(StatusIdle))
	observability.SetBacklogSize(name, 0)

	q.logger.Debug().Dur("defaultTimeout", timeout).Msg("Queue created")
	return q, nil
}

// Submit appends work to the backlog. See SubmitWithContext.
func (q *Queue) Submit(work WorkFunc, opts *TaskOptions) (bool, error) {
	return q.SubmitWithContext(context.Background(), work, opts)
}

// SubmitWithContext appends work to the backlog. The context's values (trace, deadline) are
// inherited by the context passed to work. It reports false without error once the queue is
// closing or drained. A nil work or negative timeout yields ErrInvalidArgument.
func (q *Queue) SubmitWithContext(ctx context.Context, work WorkFunc, opts *TaskOptions) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	if q.status != StatusIdle && q.status != StatusBusy {
		q.stats.Rejected++
		status := q.status
		q.mu.Unlock()

		observability.RecordRejected(q.name)
		q.logger.Debug().Stringer("status", status).Msg("Submission rejected")
		return false, nil
	}

	if work == nil {
		q.mu.Unlock()
		return false, fmt.Errorf("%w: work must not be nil", ErrInvalidArgument)
	}
	o := TaskOptions{}
	if opts != nil {
		o = *opts
	}
	if o.Timeout < 0 {
		q.mu.Unlock()
		return false, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidArgument, o.Timeout)
	}
	if o.Timeout == 0 {
		o.Timeout = q.defaultTimeout
	}

	task := &Task{
		Name:        o.Name,
		Timeout:     o.Timeout,
		OnTimeout:   o.OnTimeout,
		SubmittedAt: time.Now(),
		work:        work,
		submitCtx:   ctx,
	}
	q.backlog = append(q.backlog, task)
	q.stats.Submitted++
	backlog := len(q.backlog)

	wasIdle := q.status == StatusIdle
	gen := q.generation
	if wasIdle {
		q.setStatusLocked(StatusBusy)
	}
	q.mu.Unlock()

	observability.RecordSubmit(q.name, backlog)
	q.logger.Debug().
		Str("task", task.Name).
		Dur("timeout", task.Timeout).
		Int("backlog", backlog).
		Msg("Task submitted")

	if wasIdle {
		// No task is current yet, so the outcome passed here is never recorded.
		q.schedule(func() { q.advance(gen, outcomeCompleted) })
	}
	return true, nil
}

// schedule runs fn after the caller has returned, never on the caller's stack.
func (q *Queue) schedule(fn func()) {
	go fn()
}

// Close stops admission. With force the backlog is dropped and the running task abandoned;
// otherwise queued tasks still run and the queue drains after the last one.
func (q *Queue) Close(force bool) {
	q.mu.Lock()
	if q.status != StatusIdle && q.status != StatusBusy {
		q.mu.Unlock()
		return
	}

	if force {
		q.stopTimerLocked()
		result := outcomeAborted
		if q.current != nil {
			q.generation++
			// Settled but still current: its deadline passed and expire is mid-flight.
			if q.current.settled {
				result = outcomeTimeout
			}
		}
		q.releaseLocked(result)
		discarded := len(q.backlog)
		q.backlog = nil
		q.setStatusLocked(StatusDrained)
		close(q.drained)
		q.mu.Unlock()

		observability.RecordDiscarded(q.name, discarded)
		observability.SetBacklogSize(q.name, 0)
		q.logger.Info().Int("discarded", discarded).Msg("Queue force-closed")
		q.emit(Event{Type: EventDrained})
		return
	}

	wasIdle := q.status == StatusIdle
	if wasIdle {
		q.setStatusLocked(StatusDrained)
		close(q.drained)
	} else {
		q.setStatusLocked(StatusClosing)
	}
	backlog := len(q.backlog)
	q.mu.Unlock()

	q.logger.Info().Int("backlog", backlog).Msg("Queue closing")
	q.emit(Event{Type: EventClosed})
	if wasIdle {
		q.logger.Info().Msg("Queue drained")
		q.emit(Event{Type: EventDrained})
	}
}

// advance moves past the task with sequence id expected. Calls for any other generation,
// or after the queue has gone idle or drained, do nothing.
func (q *Queue) advance(expected int64, result outcome) {
	q.mu.Lock()
	next, drained := q.advanceLocked(expected, result)
	q.mu.Unlock()

	q.afterAdvance(next, drained)
}

// advanceLocked releases the current task and dequeues the next one, arming its deadline.
// q.mu must be held.
func (q *Queue) advanceLocked(expected int64, result outcome) (*Task, bool) {
	if expected != q.generation || (q.status != StatusBusy && q.status != StatusClosing) {
		return nil, false
	}

	q.stopTimerLocked()
	q.releaseLocked(result)

	if len(q.backlog) == 0 {
		if q.status == StatusBusy {
			q.setStatusLocked(StatusIdle)
			q.generation++
			q.logger.Debug().Int64("generation", q.generation).Msg("Queue idle")
			return nil, false
		}
		q.setStatusLocked(StatusDrained)
		close(q.drained)
		return nil, true
	}

	next := q.backlog[0]
	q.backlog[0] = nil
	q.backlog = q.backlog[1:]
	observability.SetBacklogSize(q.name, len(q.backlog))

	q.generation++
	next.SequenceID = q.generation
	next.StartedAt = time.Now()

	ctx := tracing.WithSequenceID(tracing.WithQueue(next.submitCtx, q.name), next.SequenceID)
	ctx, next.span = tracing.StartSpan(
		ctx,
		"seqqueue.execute_task",
		attribute.String("queue", q.name),
		attribute.Int64("sequence_id", next.SequenceID),
		attribute.String("task", next.Name),
	)
	next.ctx, next.cancel = context.WithCancel(ctx)

	q.current = next
	q.timer = time.AfterFunc(next.Timeout, func() { q.expire(next) })
	return next, false
}

func (q *Queue) afterAdvance(next *Task, drained bool) {
	if drained {
		q.emitDrained()
	}
	if next != nil {
		q.start(next)
	}
}

func (q *Queue) emitDrained() {
	q.logger.Info().Msg("Queue drained")
	q.emit(Event{Type: EventDrained})
}

// taskLogger adds t's trace and sequence id to the queue logger
func (q *Queue) taskLogger(t *Task) zerolog.Logger {
	return tracing.LoggerFromContext(t.ctx, q.logger, tracing.FieldQueue)
}

// releaseLocked settles the current task and records how it ended. q.mu must be held.
func (q *Queue) releaseLocked(result outcome) {
	t := q.current
	if t == nil {
		return
	}
	q.current = nil
	t.settled = true
	t.cancel()

	t.span.SetAttributes(attribute.String("outcome", string(result)))
	if result != outcomeCompleted {
		t.span.SetStatus(codes.Error, string(result))
	}
	t.span.End()

	switch result {
	case outcomeCompleted:
		q.stats.Completed++
	case outcomeTimeout:
		q.stats.TimedOut++
	case outcomeError:
		q.stats.Failed++
	case outcomeAborted:
		q.stats.Aborted++
	}
	observability.RecordTaskFinished(q.name, string(result), time.Since(t.StartedAt))
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue) setStatusLocked(s Status) {
	q.status = s
	observability.SetStatus(q.name, int(s))
}

// start runs t's work, then the work of every task handed off while a work function was
// still on the stack. The deadline of each task is already armed.
func (q *Queue) start(t *Task) {
	for t != nil {
		t = q.run(t)
	}
}

// run invokes t's work and returns the next task to start on this goroutine, if any.
func (q *Queue) run(t *Task) *Task {
	logger := q.taskLogger(t)
	logger.Debug().
		Str("task", t.Name).
		Dur("timeout", t.Timeout).
		Dur("waited", t.StartedAt.Sub(t.SubmittedAt)).
		Msg("Task started")

	q.mu.Lock()
	t.invoking = true
	q.mu.Unlock()

	err := q.invoke(t)

	q.mu.Lock()
	t.invoking = false
	next := t.handoff
	t.handoff = nil
	q.mu.Unlock()

	if err == nil {
		return next
	}

	t.span.RecordError(err)
	logger.Error().Err(err).Str("task", t.Name).Msg("Task failed")
	q.emit(Event{Type: EventError, Task: t, Err: err})

	// Only a task that is still current forces progression; if the queue already moved
	// past it, nothing is left to unblock.
	q.mu.Lock()
	drained := false
	if !t.settled && t.SequenceID == q.generation {
		next, drained = q.advanceLocked(q.generation, outcomeError)
	}
	q.mu.Unlock()

	if drained {
		q.emitDrained()
	}
	return next
}

func (q *Queue) invoke(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.work(t.ctx, &handle{q: q, t: t})
}

// complete is Completion.Done for t.
func (q *Queue) complete(t *Task) bool {
	q.mu.Lock()
	if t.settled || t.SequenceID != q.generation {
		gen := q.generation
		q.mu.Unlock()

		q.logger.Warn().
			Int64("sequence_id", t.SequenceID).
			Int64("generation", gen).
			Str("task", t.Name).
			Msg("Stale completion ignored")
		return false
	}
	next, drained := q.advanceLocked(t.SequenceID, outcomeCompleted)
	// While t's work is still running, its run loop starts next once the work returns.
	// Chains of synchronous completions therefore never grow the stack.
	if next != nil && t.invoking {
		t.handoff = next
		next = nil
	}
	q.mu.Unlock()

	q.logger.Debug().
		Int64("sequence_id", t.SequenceID).
		Str("task", t.Name).
		Dur("duration", time.Since(t.StartedAt)).
		Msg("Task completed")

	q.afterAdvance(next, drained)
	return true
}

// expire fires when t's deadline passes. The task is settled first so that a Done racing
// with the timer reports false.
func (q *Queue) expire(t *Task) {
	q.mu.Lock()
	if t.settled || t.SequenceID != q.generation || (q.status != StatusBusy && q.status != StatusClosing) {
		q.mu.Unlock()
		return
	}
	t.settled = true
	q.timer = nil
	q.mu.Unlock()

	logger := q.taskLogger(t)
	logger.Warn().
		Str("task", t.Name).
		Dur("timeout", t.Timeout).
		Msg("Task timed out")

	q.emit(Event{Type: EventTimeout, Task: t})
	if t.OnTimeout != nil {
		q.safeCall("onTimeout", func() { t.OnTimeout(t) })
	}

	q.advance(t.SequenceID, outcomeTimeout)
}

// Status returns the lifecycle state
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// Len returns the number of tasks waiting to start
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Stats returns a snapshot of the queue state and counters
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Status = q.status
	s.Backlog = len(q.backlog)
	s.Generation = q.generation
	s.Running = q.current != nil
	return s
}

// Name returns the queue's label
func (q *Queue) Name() string {
	return q.name
}

// ID returns the queue's unique instance id
func (q *Queue) ID() string {
	return q.id
}

// Drained returns a channel closed when the queue reaches StatusDrained
func (q *Queue) Drained() <-chan struct{} {
	return q.drained
}

// Wait blocks until the queue drains or ctx is done
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package seqqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClose_RejectsSubmissions(t *testing.T) {
	for _, force := range []bool{false, true} {
		force := force
		t.Run(map[bool]string{false: "graceful", true: "forced"}[force], func(t *testing.T) {
			q := newTestQueue(t, time.Second)
			_, err := q.Submit(immediate(func() {}), nil)
			require.NoError(t, err)

			q.Close(force)

			invoked := false
			for i := 0; i < 3; i++ {
				ok, err := q.Submit(immediate(func() { invoked = true }), nil)
				require.NoError(t, err)
				assert.False(t, ok)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(t, q.Wait(ctx))
			assert.False(t, invoked)
			assert.Equal(t, uint64(3), q.Stats().Rejected)
		})
	}
}

func TestClose_RejectedBeforeValidation(t *testing.T) {
	q := newTestQueue(t, time.Second)
	q.Close(true)

	ok, err := q.Submit(nil, nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestClose_ForceDiscardsBacklog(t *testing.T) {
	q := newTestQueue(t, time.Second)
	res := &results{}

	var drainedEvents int
	var mu sync.Mutex
	q.On(EventDrained, func(Event) {
		mu.Lock()
		drainedEvents++
		mu.Unlock()
	})
	closedEvents := 0
	q.On(EventClosed, func(Event) { closedEvents++ })

	_, err := q.Submit(immediate(func() { res.add(1) }), nil)
	require.NoError(t, err)
	_, err = q.Submit(immediate(func() { res.add(2) }), nil)
	require.NoError(t, err)

	started := make(chan struct{})
	handles := make(chan Completion, 1)
	cancelled := make(chan struct{})
	_, err = q.Submit(func(ctx context.Context, done Completion) error {
		handles <- done
		go func() {
			<-ctx.Done()
			close(cancelled)
		}()
		close(started)
		return nil
	}, nil)
	require.NoError(t, err)

	fourth := false
	_, err = q.Submit(immediate(func() { fourth = true }), nil)
	require.NoError(t, err)

	<-started
	q.Close(true)

	assert.Equal(t, StatusDrained, q.Status())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []int{1, 2}, res.get())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("abandoned task context not cancelled")
	}
	assert.False(t, (<-handles).Done(), "completion after forced close is stale")

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fourth)

	mu.Lock()
	assert.Equal(t, 1, drainedEvents)
	mu.Unlock()
	assert.Equal(t, 0, closedEvents, "forced close only reports drained")

	stats := q.Stats()
	assert.Equal(t, uint64(2), stats.Completed)
	assert.Equal(t, uint64(1), stats.Aborted)
}

func TestClose_GracefulRunsBacklog(t *testing.T) {
	q := newTestQueue(t, time.Second)
	res := &results{}

	var events []string
	var mu sync.Mutex
	record := func(ev Event) {
		mu.Lock()
		events = append(events, ev.Type)
		mu.Unlock()
	}
	q.On(EventClosed, record)
	q.On(EventDrained, record)

	_, err := q.Submit(immediate(func() { res.add(1) }), nil)
	require.NoError(t, err)
	_, err = q.Submit(immediate(func() { res.add(2) }), nil)
	require.NoError(t, err)
	_, err = q.Submit(func(ctx context.Context, done Completion) error {
		time.AfterFunc(30*time.Millisecond, func() {
			res.add(3)
			done.Done()
		})
		return nil
	}, nil)
	require.NoError(t, err)

	lastSaw := make(chan []int, 1)
	_, err = q.Submit(immediate(func() { lastSaw <- res.get() }), nil)
	require.NoError(t, err)

	q.Close(false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	assert.Equal(t, []int{1, 2, 3}, <-lastSaw)
	assert.Equal(t, StatusDrained, q.Status())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventClosed, EventDrained}, events)
}

func TestClose_GracefulWhileIdle(t *testing.T) {
	q := newTestQueue(t, time.Second)

	drained := make(chan struct{}, 1)
	q.On(EventDrained, func(Event) { drained <- struct{}{} })

	q.Close(false)

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("idle queue did not drain on close")
	}
	select {
	case <-q.Drained():
	default:
		t.Fatal("drained channel still open")
	}
	assert.Equal(t, StatusDrained, q.Status())
}

func TestClose_Idempotent(t *testing.T) {
	q := newTestQueue(t, time.Second)

	count := 0
	q.On(EventDrained, func(Event) { count++ })
	q.On(EventClosed, func(Event) { count++ })

	q.Close(false)
	q.Close(false)
	q.Close(true)

	assert.Equal(t, 2, count)
}

func TestClose_GracefulWaitsForTimeout(t *testing.T) {
	q := newTestQueue(t, 30*time.Millisecond)

	_, err := q.Submit(func(ctx context.Context, done Completion) error { return nil }, nil)
	require.NoError(t, err)
	res := &results{}
	_, err = q.Submit(immediate(func() { res.add(1) }), nil)
	require.NoError(t, err)

	q.Close(false)
	assert.Equal(t, StatusClosing, q.Status())

	drain(t, q)
	assert.Equal(t, []int{1}, res.get())
	assert.Equal(t, uint64(1), q.Stats().TimedOut)
}

func TestWait_ContextDone(t *testing.T) {
	q := newTestQueue(t, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}

func TestClose_ForceFromTimeoutHandler(t *testing.T) {
	q := newTestQueue(t, 20*time.Millisecond)
	q.On(EventTimeout, func(e Event) { q.Close(true) })

	_, err := q.Submit(func(ctx context.Context, done Completion) error { return nil }, nil)
	require.NoError(t, err)
	ran := false
	_, err = q.Submit(immediate(func() { ran = true }), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.TimedOut)
	assert.Zero(t, stats.Aborted)
	assert.Zero(t, stats.Completed)
	assert.False(t, ran)
}

package seqqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mock.Mock
}

func (r *eventRecorder) Handle(ev Event) {
	r.Called(ev.Type, ev.Queue)
}

func TestEvents_Lifecycle(t *testing.T) {
	q := newTestQueue(t, 20*time.Millisecond)

	rec := &eventRecorder{}
	rec.On("Handle", EventTimeout, q.Name()).Once()
	rec.On("Handle", EventError, q.Name()).Once()
	rec.On("Handle", EventClosed, q.Name()).Once()
	rec.On("Handle", EventDrained, q.Name()).Once()

	for _, typ := range []string{EventTimeout, EventError, EventClosed, EventDrained} {
		q.On(typ, rec.Handle)
	}

	_, err := q.Submit(func(ctx context.Context, done Completion) error { return nil }, nil)
	require.NoError(t, err)
	_, err = q.Submit(func(ctx context.Context, done Completion) error { return assert.AnError }, nil)
	require.NoError(t, err)

	drain(t, q)
	rec.AssertExpectations(t)
}

func TestEvents_Off(t *testing.T) {
	q := newTestQueue(t, time.Second)

	count := 0
	q.On(EventClosed, func(Event) { count++ })
	q.Off(EventClosed)

	q.Close(false)
	assert.Equal(t, 0, count)
}

func TestEvents_MultipleHandlersInOrder(t *testing.T) {
	q := newTestQueue(t, time.Second)

	var order []int
	q.On(EventClosed, func(Event) { order = append(order, 1) })
	q.On(EventClosed, func(Event) { order = append(order, 2) })

	q.Close(false)
	assert.Equal(t, []int{1, 2}, order)
}

func TestEvents_HandlerPanicRecovered(t *testing.T) {
	q := newTestQueue(t, time.Second)

	reached := false
	q.On(EventClosed, func(Event) { panic("handler bug") })
	q.On(EventClosed, func(Event) { reached = true })

	assert.NotPanics(t, func() { q.Close(false) })
	assert.True(t, reached)
	assert.Equal(t, StatusDrained, q.Status())
}

func TestEvents_HandlerMaySubmit(t *testing.T) {
	q := newTestQueue(t, 20*time.Millisecond)

	followUp := make(chan struct{})
	q.On(EventTimeout, func(ev Event) {
		_, _ = q.Submit(immediate(func() { close(followUp) }), nil)
	})

	_, err := q.Submit(func(ctx context.Context, done Completion) error { return nil }, nil)
	require.NoError(t, err)

	select {
	case <-followUp:
	case <-time.After(time.Second):
		t.Fatal("task submitted from a handler never ran")
	}
	drain(t, q)
}

package seqqueue

import (
	"fmt"
	"runtime/debug"
)

// Event types emitted by a Queue
const (
	EventClosed  = "closed"  // graceful close requested
	EventDrained = "drained" // no task will ever run again
	EventTimeout = "timeout" // Task was abandoned after its deadline
	EventError   = "error"   // Task work returned an error or panicked
)

// EventHandler is a function that handles queue events
type EventHandler func(event Event)

// Event represents a queue event
type Event struct {
	Type  string
	Queue string
	Task  *Task // set for timeout and error
	Err   error // set for error
}

// On registers an event handler for a specific event type
func (q *Queue) On(eventType string, handler EventHandler) {
	q.eventMu.Lock()
	defer q.eventMu.Unlock()

	q.eventHandlers[eventType] = append(q.eventHandlers[eventType], handler)
}

// Off removes all handlers for the event type
func (q *Queue) Off(eventType string) {
	q.eventMu.Lock()
	defer q.eventMu.Unlock()

	delete(q.eventHandlers, eventType)
}

// emit calls handlers synchronously. It must not be called with q.mu held.
func (q *Queue) emit(event Event) {
	event.Queue = q.name

	q.eventMu.RLock()
	handlers := q.eventHandlers[event.Type]
	q.eventMu.RUnlock()

	for _, handler := range handlers {
		q.safeCall("event:"+event.Type, func() { handler(event) })
	}
}

// safeCall runs user callbacks so that a panic is logged instead of taking down the queue.
func (q *Queue) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str("callback", what).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Callback panicked")
		}
	}()
	fn()
}

// Package seqqueue runs asynchronously-completing tasks one at a time, in submission order.
//
// Invariants:
//   - Tasks start in FIFO order; a task starts only after its predecessor signalled completion,
//     timed out, or failed.
//   - At most one task is in flight. Its deadline timer is the only cancellation mechanism.
//   - A completion handle is honoured once, and only while its task is still current. Late or
//     repeated calls to Done return false and change nothing.
//   - Once closed the queue never accepts work again; a forced close drops the backlog.
//
// Usage:
//
//	q, err := seqqueue.New(seqqueue.Config{DefaultTimeout: 2 * time.Second})
//	if err != nil {
//		return err
//	}
//	q.On(seqqueue.EventTimeout, func(ev seqqueue.Event) {
//		log.Warn().Int64("seq", ev.Task.SequenceID).Msg("abandoned")
//	})
//	q.Submit(func(ctx context.Context, done seqqueue.Completion) error {
//		go func() {
//			fetch(ctx)
//			done.Done()
//		}()
//		return nil
//	}, nil)
//	q.Close(false)
//	_ = q.Wait(ctx)
package seqqueue

package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/harun/seqqueue/pkg/seqqueue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var demoUnit time.Duration

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted sequence of tasks through a queue",
	Long: `Submit six tasks to a queue whose default deadline is one time unit:
two that finish at once, one that signals done long after its deadline, one that
finishes inside a longer explicit deadline, one that never signals and a final
immediate task. The demo waits for the queue to drain and for the late signal.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().DurationVar(&demoUnit, "unit", time.Second, "length of one time unit")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	if demoUnit <= 0 {
		return fmt.Errorf("--unit must be positive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	return Demo(cmd.Context(), cmd.OutOrStdout(), demoUnit, log.Logger)
}

// syncWriter serializes lines written from task goroutines
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

// Demo runs the scripted task sequence, writing one line per observable step to w.
func Demo(ctx context.Context, w io.Writer, unit time.Duration, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := &syncWriter{w: w}

	q, err := seqqueue.New(seqqueue.Config{
		Name:           "demo",
		DefaultTimeout: unit,
		Logger:         &logger,
	})
	if err != nil {
		return err
	}

	q.On(seqqueue.EventTimeout, func(e seqqueue.Event) {
		out.printf("timeout event: %s (sequence %d)", e.Task.Name, e.Task.SequenceID)
	})
	q.On(seqqueue.EventDrained, func(e seqqueue.Event) {
		out.printf("queue drained")
	})

	lateDone := make(chan struct{})

	submissions := []struct {
		work seqqueue.WorkFunc
		opts *seqqueue.TaskOptions
	}{
		{
			work: func(ctx context.Context, done seqqueue.Completion) error {
				out.printf("task-1 ran")
				done.Done()
				return nil
			},
			opts: &seqqueue.TaskOptions{Name: "task-1"},
		},
		{
			work: func(ctx context.Context, done seqqueue.Completion) error {
				out.printf("task-2 ran")
				done.Done()
				return nil
			},
			opts: &seqqueue.TaskOptions{Name: "task-2"},
		},
		{
			work: func(ctx context.Context, done seqqueue.Completion) error {
				time.AfterFunc(8*unit, func() {
					defer close(lateDone)
					out.printf("task-3 signalled done after its deadline, accepted=%t", done.Done())
				})
				return nil
			},
			opts: &seqqueue.TaskOptions{
				Name: "task-3",
				OnTimeout: func(t *seqqueue.Task) {
					out.printf("task-3 timeout callback")
				},
			},
		},
		{
			work: func(ctx context.Context, done seqqueue.Completion) error {
				time.AfterFunc(3*unit, func() {
					out.printf("task-4 ran")
					done.Done()
				})
				return nil
			},
			opts: &seqqueue.TaskOptions{
				Name:    "task-4",
				Timeout: 5 * unit,
				OnTimeout: func(t *seqqueue.Task) {
					out.printf("task-4 timeout callback")
				},
			},
		},
		{
			work: func(ctx context.Context, done seqqueue.Completion) error {
				time.AfterFunc(unit/2, func() {
					out.printf("task-5 finished without signalling")
				})
				return nil
			},
			opts: &seqqueue.TaskOptions{Name: "task-5"},
		},
		{
			work: func(ctx context.Context, done seqqueue.Completion) error {
				out.printf("task-6 ran")
				done.Done()
				return nil
			},
			opts: &seqqueue.TaskOptions{Name: "task-6"},
		},
	}

	for _, s := range submissions {
		if _, err := q.SubmitWithContext(ctx, s.work, s.opts); err != nil {
			return fmt.Errorf("failed to submit %s: %w", s.opts.Name, err)
		}
	}

	q.Close(false)
	if err := q.Wait(ctx); err != nil {
		return err
	}

	select {
	case <-lateDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	stats := q.Stats()
	out.printf("completed=%d timed_out=%d failed=%d", stats.Completed, stats.TimedOut, stats.Failed)
	return nil
}

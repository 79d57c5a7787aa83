package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/harun/seqqueue/internal/config"
	"github.com/harun/seqqueue/internal/observability"
	"github.com/harun/seqqueue/internal/tracing"
	"github.com/harun/seqqueue/pkg/seqqueue"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	soakSchedule     string
	soakTaskDuration time.Duration
	soakTaskTimeout  time.Duration
	soakDuration     time.Duration
	soakMetricsAddr  string
	soakJournal      string
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Feed a queue with synthetic tasks on a schedule",
	Long: `Submit a synthetic task on every tick of a cron schedule until interrupted or until
--duration elapses, then close the queue gracefully and wait for it to drain.
Tasks signal done after --task-duration; tasks slower than their deadline time out.`,
	RunE: runSoak,
}

func init() {
	soakCmd.Flags().StringVar(&soakSchedule, "schedule", "", "cron schedule for submissions (e.g. \"@every 1s\")")
	soakCmd.Flags().DurationVar(&soakTaskDuration, "task-duration", 0, "how long each synthetic task takes")
	soakCmd.Flags().DurationVar(&soakTaskTimeout, "task-timeout", 0, "per-task deadline (0 uses the queue default)")
	soakCmd.Flags().DurationVar(&soakDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	soakCmd.Flags().StringVar(&soakMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	soakCmd.Flags().StringVar(&soakJournal, "journal", "", "append queue lifecycle entries to this file")
	rootCmd.AddCommand(soakCmd)
}

// SoakOptions configures a soak run
type SoakOptions struct {
	Queue        seqqueue.Config
	Schedule     string
	TaskDuration time.Duration
	TaskTimeout  time.Duration
	Duration     time.Duration
	Journal      *observability.Journal
	Logger       zerolog.Logger
}

func runSoak(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applySoakFlags(cmd, cfg)

	v := config.NewValidator()
	if err := v.ValidateSchedule(cfg.Soak.Schedule); err != nil {
		return err
	}

	l, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	logger := l.Component("soak")

	if cfg.Tracing.Enabled {
		opt, err := tracing.WithWriterExporter(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, opt); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to flush spans")
			}
		}()
	}

	if cfg.Metrics.Enabled {
		if err := v.ValidateAddr(cfg.Metrics.Addr); err != nil {
			return err
		}
		srv := startMetricsServer(cfg.Metrics.Addr, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	var journal *observability.Journal
	if cfg.JournalFile != "" {
		if err := observability.InitJournal(cfg.JournalFile); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		journal = observability.GetJournal()
		defer journal.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := Soak(ctx, SoakOptions{
		Queue: seqqueue.Config{
			Name:           cfg.Queue.Name,
			DefaultTimeout: cfg.DefaultTimeout(),
		},
		Schedule:     cfg.Soak.Schedule,
		TaskDuration: time.Duration(cfg.Soak.TaskDurationMs) * time.Millisecond,
		TaskTimeout:  time.Duration(cfg.Soak.TaskTimeoutMs) * time.Millisecond,
		Duration:     time.Duration(cfg.Soak.DurationMs) * time.Millisecond,
		Journal:      journal,
		Logger:       log.Logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "submitted=%d rejected=%d completed=%d timed_out=%d failed=%d\n",
		stats.Submitted, stats.Rejected, stats.Completed, stats.TimedOut, stats.Failed)
	return nil
}

// applySoakFlags lets explicitly set flags win over the config file
func applySoakFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("schedule") {
		cfg.Soak.Schedule = soakSchedule
	}
	if flags.Changed("task-duration") {
		cfg.Soak.TaskDurationMs = int(soakTaskDuration.Milliseconds())
	}
	if flags.Changed("task-timeout") {
		cfg.Soak.TaskTimeoutMs = int(soakTaskTimeout.Milliseconds())
	}
	if flags.Changed("duration") {
		cfg.Soak.DurationMs = int(soakDuration.Milliseconds())
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = soakMetricsAddr != ""
		cfg.Metrics.Addr = soakMetricsAddr
	}
	if flags.Changed("journal") {
		cfg.JournalFile = soakJournal
	}
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	return srv
}

// Soak submits a synthetic task on every schedule tick until ctx is done or opts.Duration
// elapses, then closes the queue gracefully and waits for it to drain.
func Soak(ctx context.Context, opts SoakOptions) (seqqueue.Stats, error) {
	logger := opts.Logger.With().Str("component", "soak").Logger()
	if opts.Queue.Logger == nil {
		opts.Queue.Logger = &opts.Logger
	}

	q, err := seqqueue.New(opts.Queue)
	if err != nil {
		return seqqueue.Stats{}, err
	}

	if opts.Journal != nil {
		journalEvents(ctx, q, opts.Journal)
	}

	runCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	// Backlogged tasks outlive the run window and drain after it.
	submitCtx := context.WithoutCancel(ctx)

	var n atomic.Int64
	_, err = c.AddFunc(opts.Schedule, func() {
		id := n.Add(1)
		ok, err := q.SubmitWithContext(submitCtx, syntheticWork(opts.TaskDuration), &seqqueue.TaskOptions{
			Name:    fmt.Sprintf("soak-%d", id),
			Timeout: opts.TaskTimeout,
		})
		if err != nil {
			logger.Error().Err(err).Int64("task", id).Msg("Submit failed")
			return
		}
		if !ok {
			logger.Debug().Int64("task", id).Msg("Submit rejected, queue closing")
		}
	})
	if err != nil {
		return seqqueue.Stats{}, fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
	}

	logger.Info().Str("schedule", opts.Schedule).Dur("duration", opts.Duration).Msg("Soak started")
	c.Start()

	<-runCtx.Done()

	<-c.Stop().Done()
	q.Close(false)
	if err := q.Wait(context.Background()); err != nil {
		return q.Stats(), err
	}

	stats := q.Stats()
	logger.Info().
		Uint64("submitted", stats.Submitted).
		Uint64("completed", stats.Completed).
		Uint64("timed_out", stats.TimedOut).
		Msg("Soak finished")
	return stats, nil
}

// syntheticWork signals done after d unless the queue abandons the task first
func syntheticWork(d time.Duration) seqqueue.WorkFunc {
	return func(ctx context.Context, done seqqueue.Completion) error {
		go func() {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				done.Done()
			case <-ctx.Done():
			}
		}()
		return nil
	}
}

func journalEvents(ctx context.Context, q *seqqueue.Queue, journal *observability.Journal) {
	record := func(e seqqueue.Event) {
		entry := observability.JournalEntry{
			Queue: e.Queue,
			Event: e.Type,
		}
		recordCtx := ctx
		if e.Task != nil {
			entry.SequenceID = e.Task.SequenceID
			entry.Metadata = map[string]interface{}{"task": e.Task.Name}
			// Timeout and error events fire while the task span is still open.
			if taskCtx := e.Task.Context(); taskCtx != nil {
				recordCtx = taskCtx
			}
		}
		if e.Err != nil {
			entry.Error = e.Err.Error()
		}
		journal.Record(recordCtx, entry)
	}

	for _, ev := range []string{seqqueue.EventClosed, seqqueue.EventDrained, seqqueue.EventTimeout, seqqueue.EventError} {
		q.On(ev, record)
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

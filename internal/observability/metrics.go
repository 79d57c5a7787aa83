package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	backlogSize  *prometheus.GaugeVec
	status       *prometheus.GaugeVec
	submitTotal  *prometheus.CounterVec
	taskTotal    *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	discarded    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			backlogSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "seqqueue_backlog_size",
					Help: "Tasks waiting in the backlog by queue.",
				},
				[]string{"queue"},
			),
			status: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "seqqueue_status",
					Help: "Queue lifecycle status (1 idle, 2 busy, 3 closing, 4 drained).",
				},
				[]string{"queue"},
			),
			submitTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "seqqueue_submit_total",
					Help: "Submissions by queue and result (accepted, rejected).",
				},
				[]string{"queue", "result"},
			),
			taskTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "seqqueue_task_total",
					Help: "Finished tasks by queue and outcome (completed, timeout, error, aborted).",
				},
				[]string{"queue", "outcome"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "seqqueue_task_duration_seconds",
					Help:    "Time from task start until the queue moved past it.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"queue", "outcome"},
			),
			discarded: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "seqqueue_discarded_total",
					Help: "Backlogged tasks dropped by a forced close.",
				},
				[]string{"queue"},
			),
		}

		prometheus.MustRegister(
			m.backlogSize,
			m.status,
			m.submitTotal,
			m.taskTotal,
			m.taskDuration,
			m.discarded,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSubmit(queue string, backlog int) {
	m := getMetrics()
	m.submitTotal.WithLabelValues(queue, "accepted").Inc()
	m.backlogSize.WithLabelValues(queue).Set(float64(backlog))
}

func RecordRejected(queue string) {
	getMetrics().submitTotal.WithLabelValues(queue, "rejected").Inc()
}

func SetBacklogSize(queue string, backlog int) {
	getMetrics().backlogSize.WithLabelValues(queue).Set(float64(backlog))
}

func SetStatus(queue string, status int) {
	getMetrics().status.WithLabelValues(queue).Set(float64(status))
}

// RecordTaskFinished counts a task the queue has moved past and observes how long it ran.
func RecordTaskFinished(queue, outcome string, duration time.Duration) {
	m := getMetrics()
	m.taskTotal.WithLabelValues(queue, outcome).Inc()
	m.taskDuration.WithLabelValues(queue, outcome).Observe(duration.Seconds())
}

func RecordDiscarded(queue string, count int) {
	if count <= 0 {
		return
	}
	getMetrics().discarded.WithLabelValues(queue).Add(float64(count))
}

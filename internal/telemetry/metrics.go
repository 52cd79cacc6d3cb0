package telemetry

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics definitions. Everything is labelled by the parent issue
// identifier, so one long-lived exporter can serve several loop runs.
var (
	// Task outcomes
	TasksCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobius_tasks_completed_total",
		Help: "Sub-tasks completed and accepted.",
	}, []string{"parent"})
	TasksFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobius_tasks_failed_total",
		Help: "Sub-tasks that failed permanently.",
	}, []string{"parent"})
	TaskRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobius_task_retries_total",
		Help: "Sub-task executions requeued for retry.",
	}, []string{"parent"})
	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mobius_task_duration_seconds",
		Help:    "Wall-clock duration of one agent execution.",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"parent"})

	// Loop progress
	ActiveAgents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mobius_active_agents",
		Help: "Agents currently running in panes.",
	}, []string{"parent"})
	TasksBlocked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mobius_tasks_blocked",
		Help: "Sub-tasks waiting on unfinished blockers.",
	}, []string{"parent"})
	LoopIterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobius_loop_iterations_total",
		Help: "Scheduling iterations of the main loop.",
	}, []string{"parent"})
	VGFastRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobius_vg_fast_retries_total",
		Help: "Verification-gate completions rejected as suspiciously fast.",
	}, []string{"parent"})

	// Shared-state health
	LockContentionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobius_lock_contention_total",
		Help: "Runtime-state lock acquisitions that had to wait or retry.",
	}, []string{"parent"})
	QueuePushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobius_queue_pushes_total",
		Help: "Pending-update push attempts by outcome.",
	}, []string{"parent", "outcome"})
)

var (
	metricsOnce    sync.Once
	metricsMu      sync.Mutex
	metricsRunning bool
)

// StartMetricsServer starts a HTTP server exposing Prometheus metrics.
// It attempts to bind to the given port. If the port is in use, it will
// try the next 9 ports (10 in all) before giving up.
func StartMetricsServer(basePort int) error {
	metricsMu.Lock()
	if metricsRunning {
		metricsMu.Unlock()
		return nil // Already running
	}
	metricsRunning = true
	metricsMu.Unlock()

	metricsOnce.Do(func() {
		http.Handle("/metrics", promhttp.Handler())
	})

	var listener net.Listener
	var err error

	// Try up to 10 ports
	for i := 0; i < 10; i++ {
		port := basePort + i
		addr := ":" + strconv.Itoa(port)
		listener, err = net.Listen("tcp", addr)
		if err == nil {
			fmt.Fprintf(os.Stderr, "Starting metrics server on %s\n", addr)
			return http.Serve(listener, nil)
		}
	}

	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()
	return fmt.Errorf("failed to find available port starting from %d: %w", basePort, err)
}

// API helper functions

func TrackTaskCompleted(parent string) {
	TasksCompletedTotal.WithLabelValues(parent).Inc()
}

func TrackTaskFailed(parent string) {
	TasksFailedTotal.WithLabelValues(parent).Inc()
}

func TrackTaskRetry(parent string) {
	TaskRetriesTotal.WithLabelValues(parent).Inc()
}

func ObserveTaskDuration(parent string, seconds float64) {
	TaskDurationSeconds.WithLabelValues(parent).Observe(seconds)
}

func SetActiveAgents(parent string, count int) {
	ActiveAgents.WithLabelValues(parent).Set(float64(count))
}

func SetTasksBlocked(parent string, count int) {
	TasksBlocked.WithLabelValues(parent).Set(float64(count))
}

func TrackLoopIteration(parent string) {
	LoopIterationsTotal.WithLabelValues(parent).Inc()
}

func TrackVGFastRetry(parent string) {
	VGFastRetriesTotal.WithLabelValues(parent).Inc()
}

func TrackLockContention(parent string) {
	LockContentionTotal.WithLabelValues(parent).Inc()
}

func TrackQueuePush(parent string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	QueuePushesTotal.WithLabelValues(parent, outcome).Inc()
}

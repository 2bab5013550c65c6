package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskscheduler_tasks_total",
			Help: "Number of tasks currently known to the registry, by status",
		},
		[]string{"status"},
	)

	schedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskscheduler_running",
			Help: "1 if the polling loop is currently active, 0 otherwise",
		},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskscheduler_tick_duration_seconds",
			Help:    "Duration of a single scheduler tick",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskscheduler_ticks_total",
			Help: "Total number of scheduler ticks, partitioned by outcome",
		},
		[]string{"outcome"},
	)

	tasksExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskscheduler_tasks_executed_total",
			Help: "Total number of task executions, partitioned by outcome",
		},
		[]string{"outcome"},
	)
)

// recordTick publishes a tick's outcome to Prometheus and is called
// from runTick after every pass, successful or not.
func recordTick(durationMs int64, err error, results int) {
	tickDuration.Observe(float64(durationMs) / 1000)
	if err != nil {
		ticksTotal.WithLabelValues("error").Inc()
		return
	}
	ticksTotal.WithLabelValues("ok").Inc()
	_ = results
}

// recordExecutions tallies per-task outcomes from a RunBatch result set.
func recordExecutions(successful, failed int) {
	if successful > 0 {
		tasksExecutedTotal.WithLabelValues("success").Add(float64(successful))
	}
	if failed > 0 {
		tasksExecutedTotal.WithLabelValues("failure").Add(float64(failed))
	}
}

// publishMetrics mirrors a Metrics snapshot onto the package's gauges,
// called by Manager.GetMetrics so /metrics and getMetrics() never
// diverge.
func publishMetrics(m Metrics) {
	for status, count := range m.TaskStatusCounts {
		tasksTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	if m.IsRunning {
		schedulerRunning.Set(1)
	} else {
		schedulerRunning.Set(0)
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

type PipelineMetrics struct {
	service string

	runTotal       *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runInFlight    prometheus.Gauge
	slotWait       *prometheus.HistogramVec
	retryTotal     *prometheus.CounterVec
	breakerChanges *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registry prometheus.Registerer) *PipelineMetrics {
	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of in-flight pipeline runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	slotWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "slot_wait_seconds",
			Help:      "Delay between dispatch and the run acquiring a worker slot.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)
	retryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retries performed against external collaborators.",
		},
		[]string{"service", "operation"},
	)
	breakerChanges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by target state.",
		},
		[]string{"service", "operation", "to"},
	)

	registry.MustRegister(runTotal, runDuration, runInFlight, slotWait, retryTotal, breakerChanges)

	return &PipelineMetrics{
		service:        service,
		runTotal:       runTotal,
		runDuration:    runDuration,
		runInFlight:    runInFlight,
		slotWait:       slotWait,
		retryTotal:     retryTotal,
		breakerChanges: breakerChanges,
	}
}

func (m *PipelineMetrics) RunStarted() {
	m.runInFlight.Inc()
}

func (m *PipelineMetrics) RunFinished(outcome string, duration time.Duration) {
	m.runInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.runTotal.WithLabelValues(m.service, outcome).Inc()
	m.runDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveSlotWait(wait time.Duration) {
	if wait < 0 {
		return
	}
	m.slotWait.WithLabelValues(m.service).Observe(wait.Seconds())
}

// ResilienceHooks feeds executor retries and breaker transitions into the registry.
func (m *PipelineMetrics) ResilienceHooks() resilience.Hooks {
	return resilience.Hooks{
		OnRetry: func(operation string, _ int) {
			m.retryTotal.WithLabelValues(m.service, operation).Inc()
		},
		OnStateChange: func(operation, _, to string) {
			m.breakerChanges.WithLabelValues(m.service, operation, to).Inc()
		},
	}
}

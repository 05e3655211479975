package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks logical remote calls per endpoint
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepwiki_rpc_calls_total",
			Help: "Total number of logical remote calls",
		},
		[]string{"endpoint"},
	)

	// RPCErrorsTotal tracks remote calls that ended in a structured error
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepwiki_rpc_errors_total",
			Help: "Total number of remote calls that failed after classification",
		},
		[]string{"endpoint", "kind"},
	)

	// RPCRetriesTotal tracks retries scheduled by the backoff executor
	RPCRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepwiki_rpc_retries_total",
			Help: "Total number of retries after transient failures",
		},
		[]string{"endpoint", "kind"},
	)

	// RPCLatency tracks logical call latency, retries and backoff included
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepwiki_rpc_latency_seconds",
			Help:    "Remote call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
		},
		[]string{"endpoint"},
	)

	// GateInFlight tracks permits currently held
	GateInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepwiki_gate_in_flight",
			Help: "Remote calls currently holding an admission permit",
		},
	)

	// GateWaiting tracks callers blocked on the admission gate
	GateWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepwiki_gate_waiting",
			Help: "Callers waiting for an admission permit",
		},
	)

	// GateWait tracks how long callers wait for a permit
	GateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepwiki_gate_wait_seconds",
			Help:    "Time spent waiting for an admission permit",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PollAttempts tracks status checks needed per job
	PollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepwiki_poll_attempts",
			Help:    "Status checks performed before a job reached a terminal state",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 120},
		},
	)

	// JobsTotal tracks finished jobs by mode and outcome
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepwiki_jobs_total",
			Help: "Total number of jobs by terminal outcome",
		},
		[]string{"mode", "outcome"},
	)
)

var (
	// ProviderStatus tracks the monitor's view of the remote service
	ProviderStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepwiki_provider_status",
			Help: "Remote service status (0=healthy, 1=degraded, 2=throttled)",
		},
	)

	// ProviderAvgLatency tracks the moving average attempt latency
	ProviderAvgLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepwiki_provider_avg_latency_seconds",
			Help: "Average latency of recent remote attempts",
		},
	)
)

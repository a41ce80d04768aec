package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteCallsTotal tracks remote operations by resource and final outcome
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceguard_remote_calls_total",
			Help: "Total number of remote operations",
		},
		[]string{"resource", "outcome"},
	)

	// RemoteAttemptsTotal tracks individual attempts including retries
	RemoteAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceguard_remote_attempts_total",
			Help: "Total number of remote attempts, including retries",
		},
		[]string{"resource", "kind"},
	)

	// RemoteLatency tracks end-to-end latency of an operation, retries included
	RemoteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faceguard_remote_latency_seconds",
			Help:    "Remote operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	// CacheLookupsTotal tracks cache hits and misses
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceguard_cache_lookups_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"result"},
	)

	// CacheEntries tracks the number of live cache entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faceguard_cache_entries",
			Help: "Number of entries held by the response cache",
		},
	)

	// QueueDepth tracks queued writes by status
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faceguard_queue_depth",
			Help: "Number of offline queue items",
		},
		[]string{"status"},
	)

	// QueueReplayedTotal tracks replay results per item
	QueueReplayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceguard_queue_replayed_total",
			Help: "Total number of offline queue items replayed",
		},
		[]string{"result"},
	)

	// StaleResponsesTotal tracks page responses dropped because the filter changed
	StaleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faceguard_search_stale_responses_total",
			Help: "Total number of page responses discarded for a superseded filter",
		},
	)

	// CaptureTransitionsTotal tracks capture session state transitions
	CaptureTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceguard_capture_transitions_total",
			Help: "Total number of capture session transitions",
		},
		[]string{"from", "to"},
	)

	// RemoteOnline is 1 while the remote service answers probes
	RemoteOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faceguard_remote_online",
			Help: "Whether the remote service is reachable",
		},
	)
)

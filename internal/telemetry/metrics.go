package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WakeLockCount reports the current bus-power interlock refcount.
	WakeLockCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "whd",
			Name:      "wake_lock_count",
			Help:      "Current bus-power interlock wake-lock refcount",
		},
		[]string{"interface"},
	)

	// CommandsInFlight reports whether the command channel currently has
	// an outstanding exchange (0 or 1, per the single-command invariant).
	CommandsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "whd",
			Name:      "commands_in_flight",
			Help:      "Outstanding command-channel exchanges (invariant: <= 1)",
		},
		[]string{"interface"},
	)

	// IoctlLatency observes the latency of each IOCTL/IOVAR exchange.
	IoctlLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "whd",
			Name:      "ioctl_latency_seconds",
			Help:      "Latency of IOCTL/IOVAR exchanges on the command channel",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)

	// JoinOutcomes counts terminal join classifications.
	JoinOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whd",
			Name:      "join_outcomes_total",
			Help:      "Terminal join outcomes by classification",
		},
		[]string{"interface", "outcome"},
	)

	// ScanResultsTotal counts parsed scan results emitted to callbacks.
	ScanResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whd",
			Name:      "scan_results_total",
			Help:      "Scan results delivered to the scan callback",
		},
		[]string{"interface"},
	)

	// ScanDroppedTotal counts scan records dropped (off-channel, parse
	// failure).
	ScanDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whd",
			Name:      "scan_dropped_total",
			Help:      "Scan records dropped before reaching the callback",
		},
		[]string{"interface", "reason"},
	)

	once sync.Once
)

// InitMetrics registers all package metrics with the default Prometheus
// registry. Idempotent.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(WakeLockCount)
		prometheus.DefaultRegisterer.Register(CommandsInFlight)
		prometheus.DefaultRegisterer.Register(IoctlLatency)
		prometheus.DefaultRegisterer.Register(JoinOutcomes)
		prometheus.DefaultRegisterer.Register(ScanResultsTotal)
		prometheus.DefaultRegisterer.Register(ScanDroppedTotal)
	})
}

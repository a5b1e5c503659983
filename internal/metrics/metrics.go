// Package metrics provides Prometheus metrics for flarekeep.
//
// Collectors register on the default registry and are served by the
// health server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.bluewillows.net/root/flarekeep/internal/task"
)

// Namespace prefixes every metric name.
const Namespace = "flarekeep"

var (
	// BuildInfo reports the running version as a constant gauge.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Build information. Value is always 1.",
		},
		[]string{"version", "go_version"},
	)

	// CyclesTotal counts completed task cycles by outcome.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Completed task cycles by task and outcome.",
		},
		[]string{"task", "outcome"},
	)

	// CycleDuration tracks how long task cycles take.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Task cycle duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"task"},
	)

	// UnitsTotal counts per-cycle work units by action and status.
	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "units_total",
			Help:      "Processed work units by task, action, and status.",
		},
		[]string{"task", "action", "status"},
	)

	// CertificateExpiryDays reports the days until each certificate
	// group's expiry, as last observed by the certificate task.
	CertificateExpiryDays = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "certificate_expiry_days",
			Help:      "Days remaining until certificate expiry, by domain group.",
		},
		[]string{"group"},
	)

	// PublicIPLookupsTotal counts public IP resolutions by status.
	PublicIPLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "public_ip_lookups_total",
			Help:      "Public IP lookups by status.",
		},
		[]string{"status"},
	)

	// ProviderAPIRequestsTotal counts DNS provider API calls by
	// operation and status.
	ProviderAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_api_requests_total",
			Help:      "DNS provider API requests by operation and status.",
		},
		[]string{"operation", "status"},
	)
)

// SetBuildInfo records the build version labels.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// ObserveCycle records the counters and duration for one finished
// cycle. Wire it to the task runner as a cycle hook.
func ObserveCycle(result *task.Result) {
	CyclesTotal.WithLabelValues(result.Task, string(result.Outcome())).Inc()
	CycleDuration.WithLabelValues(result.Task).Observe(result.Duration().Seconds())

	for _, unit := range result.Units {
		status := "success"
		if unit.Failed() {
			status = "error"
		}
		UnitsTotal.WithLabelValues(result.Task, string(unit.Action), status).Inc()
	}
}

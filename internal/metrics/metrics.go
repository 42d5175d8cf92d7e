// Package metrics exposes daemon counters and gauges to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xgate",
			Subsystem: "daemon",
			Name:      "ticks_total",
			Help:      "Number of reconciliation ticks.",
		},
	)
	blockGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xgate",
			Subsystem: "daemon",
			Name:      "block",
			Help:      "1 while the blocklist is enforced.",
		},
	)
	processRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xgate",
			Subsystem: "process",
			Name:      "running",
			Help:      "1 while a focus process is running.",
		},
	)
	processActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xgate",
			Subsystem: "process",
			Name:      "active",
			Help:      "1 while a focus process is considered active.",
		},
	)
	evidence = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xgate",
			Subsystem: "process",
			Name:      "evidence_total",
			Help:      "Polls that reported each activity evidence.",
		}, []string{"evidence"},
	)
	reasons = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "xgate",
			Subsystem: "daemon",
			Name:      "block_reason",
			Help:      "1 while the reason contributes to the block.",
		}, []string{"reason"},
	)
	hostsUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xgate",
			Subsystem: "hosts",
			Name:      "updates_total",
			Help:      "Hosts file rewrites.",
		},
	)
	hostsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xgate",
			Subsystem: "hosts",
			Name:      "errors_total",
			Help:      "Failed hosts file updates.",
		}, []string{"kind"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{ticks, blockGauge, processRunning, processActive, evidence, reasons, hostsUpdates, hostsErrors}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has succeeded.

func IncTick() {
	if regOK.Load() {
		ticks.Inc()
	}
}

// ObserveActivity records one matcher poll.
func ObserveActivity(running, active bool, ev []string) {
	if !regOK.Load() {
		return
	}
	processRunning.Set(boolValue(running))
	processActive.Set(boolValue(active))
	for _, e := range ev {
		evidence.WithLabelValues(e).Inc()
	}
}

// SetDecision records the current block decision and its reasons.
func SetDecision(block bool, active []string) {
	if !regOK.Load() {
		return
	}
	blockGauge.Set(boolValue(block))
	reasons.Reset()
	for _, r := range active {
		reasons.WithLabelValues(r).Set(1)
	}
}

func IncHostsUpdate() {
	if regOK.Load() {
		hostsUpdates.Inc()
	}
}

// IncHostsError counts a failed hosts update; kind is "permission" or "io".
func IncHostsError(kind string) {
	if regOK.Load() {
		hostsErrors.WithLabelValues(kind).Inc()
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

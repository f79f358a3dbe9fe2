package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "gamehost"
	subsystem = "process"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "starts_total",
			Help:      "Number of successful game-server process launches.",
		},
	)
	startFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "start_failures_total",
			Help:      "Number of failed launches by cause.",
		}, []string{"reason"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "terminations_total",
			Help:      "Number of terminations requested, by termination reason.",
		}, []string{"reason"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exits_total",
			Help:      "Number of observed process exits by outcome (clean or error).",
		}, []string{"status"},
	)
	initTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "initialization_timeouts_total",
			Help:      "Number of processes that did not activate before their initialization deadline.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Number of lifecycle status transitions.",
		}, []string{"from", "to"},
	)
	processesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "processes",
			Help:      "Current number of tracked processes per lifecycle status.",
		}, []string{"status"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		processStarts, startFailures, terminations, exits, initTimeouts,
		stateTransitions, processesByStatus, cpuPercent, memoryRSS, numThreads,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			// already registered (e.g. default registry in tests) is fine
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

// Helpers below no-op until Register has succeeded.

func IncStart() {
	if regOK.Load() {
		processStarts.Inc()
	}
}

func IncStartFailure(reason string) {
	if regOK.Load() {
		startFailures.WithLabelValues(reason).Inc()
	}
}

func IncTermination(reason string) {
	if regOK.Load() {
		terminations.WithLabelValues(reason).Inc()
	}
}

// IncExit counts an exit; clean selects the "clean" or "error" label.
func IncExit(clean bool) {
	if !regOK.Load() {
		return
	}
	status := "error"
	if clean {
		status = "clean"
	}
	exits.WithLabelValues(status).Inc()
}

func IncInitializationTimeout() {
	if regOK.Load() {
		initTimeouts.Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

// SetProcesses replaces the per-status gauge with counts. Statuses missing
// from counts are reset to zero.
func SetProcesses(counts map[string]int, statuses []string) {
	if !regOK.Load() {
		return
	}
	for _, s := range statuses {
		processesByStatus.WithLabelValues(s).Set(float64(counts[s]))
	}
}

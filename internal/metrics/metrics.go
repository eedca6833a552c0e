// Package metrics exposes Prometheus instrumentation for the reminder engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dosewatch",
		Name:      "deliveries_total",
		Help:      "Notifications handed to the system facility, by record source.",
	}, []string{"source"})

	DeliveriesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dosewatch",
		Name:      "deliveries_suppressed_total",
		Help:      "Deliveries dropped because the facility was unavailable or not granted.",
	})

	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dosewatch",
		Name:      "sweep_runs_total",
		Help:      "Background sweep invocations.",
	})

	SweepRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dosewatch",
		Name:      "sweep_record_failures_total",
		Help:      "Records whose sweep transaction failed and was left for the next wake.",
	})

	SuccessorsRegenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dosewatch",
		Name:      "successors_regenerated_total",
		Help:      "Scheduled records reinserted at their next occurrence after consumption.",
	})

	ArmedTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dosewatch",
		Name:      "armed_timers",
		Help:      "Foreground timers currently armed.",
	})
)

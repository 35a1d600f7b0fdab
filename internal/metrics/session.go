// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionTransitionsTotal counts device lifecycle transitions.
	SessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_session_transitions_total",
		Help: "Total number of device session lifecycle transitions",
	}, []string{"from", "to"})

	// ReporterTicksTotal counts location reporter ticks by outcome.
	ReporterTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_reporter_ticks_total",
		Help: "Total number of location reporter ticks by outcome",
	}, []string{"outcome"}) // outcome=sent|acquire_failed|send_failed|cancelled

	reporterActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sosync_reporter_active",
		Help: "Number of running location reporters",
	})
)

func RecordSessionTransition(from, to string) {
	SessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordReporterTick(outcome string) {
	ReporterTicksTotal.WithLabelValues(outcome).Inc()
}

func IncReporterActive() { reporterActive.Inc() }
func DecReporterActive() { reporterActive.Dec() }

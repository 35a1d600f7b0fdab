// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AggregatorEventsTotal counts inbound dispatcher events by kind and outcome.
	AggregatorEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_aggregator_events_total",
		Help: "Total number of dispatcher events by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=applied|duplicate|stale|unknown_session

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sosync_active_sessions",
		Help: "Number of active sessions in the dispatcher view",
	})

	trackedUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sosync_tracked_units",
		Help: "Number of units with a known position",
	})

	// HistoryEvictionsTotal counts records evicted from the capped history.
	HistoryEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sosync_history_evictions_total",
		Help: "Total number of resolved-session records evicted by the history cap",
	})

	// RealtimePacketsTotal counts socket events by direction and name.
	RealtimePacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_realtime_events_total",
		Help: "Total number of real-time events by direction (in|out) and event name",
	}, []string{"direction", "event"})

	realtimeConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sosync_realtime_connected",
		Help: "Whether the real-time connection is established (1) or not (0)",
	})
)

func RecordAggregatorEvent(kind, outcome string) {
	AggregatorEventsTotal.WithLabelValues(kind, outcome).Inc()
}

func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }
func SetTrackedUnits(n int)   { trackedUnits.Set(float64(n)) }

func AddHistoryEvictions(n int) {
	if n > 0 {
		HistoryEvictionsTotal.Add(float64(n))
	}
}

func RecordRealtimeEvent(direction, event string) {
	RealtimePacketsTotal.WithLabelValues(direction, event).Inc()
}

func SetRealtimeConnected(up bool) {
	if up {
		realtimeConnected.Set(1)
		return
	}
	realtimeConnected.Set(0)
}

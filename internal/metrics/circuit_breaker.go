// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state values exported by sosync_breaker_state.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sosync_breaker_state",
		Help: "Route breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"route"})

	// BreakerTripsTotal counts transitions to open.
	BreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_breaker_trips_total",
		Help: "Route breaker trips by reason",
	}, []string{"route", "reason"}) // reason=threshold_exceeded|half_open_failure
)

// SetBreakerState publishes the breaker state for route. Unknown states are
// reported as closed.
func SetBreakerState(route, state string) {
	v := BreakerClosed
	switch state {
	case "half-open":
		v = BreakerHalfOpen
	case "open":
		v = BreakerOpen
	}
	breakerState.WithLabelValues(route).Set(float64(v))
}

// RecordBreakerTrip counts one trip of the route breaker.
func RecordBreakerTrip(route, reason string) {
	BreakerTripsTotal.WithLabelValues(route, reason).Inc()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusDroppedTotal counts events a subscriber did not take in time. Topics are
// reported by class (sessions, location, units, ...) to bound cardinality.
var BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sosync_bus_dropped_total",
	Help: "Real-time events dropped before reaching a subscriber, by topic class and reason",
}, []string{"topic", "reason"}) // reason=timeout|canceled|context_done

// RecordBusDrop records one undelivered event.
func RecordBusDrop(topicClass, reason string) {
	if topicClass == "" {
		topicClass = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(topicClass, reason).Inc()
}

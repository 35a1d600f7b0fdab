// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics provides Prometheus collectors for the synchronizer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransportSendsTotal counts outbound updates by route and outcome.
	TransportSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_transport_sends_total",
		Help: "Total number of outbound updates by route (http|socket) and outcome",
	}, []string{"route", "outcome"}) // outcome=ok|timeout|rejected|unavailable|auth_expired|error

	transportSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sosync_transport_send_duration_seconds",
		Help:    "Latency of outbound updates by route",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"route"})

	// ProbeVerdictsTotal counts connectivity probe results.
	ProbeVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_probe_verdicts_total",
		Help: "Total number of connectivity probes by verdict",
	}, []string{"verdict"})

	// APIRequestsTotal counts REST calls by operation and status class.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sosync_api_requests_total",
		Help: "Total number of backend REST calls by operation and status class",
	}, []string{"operation", "class"}) // class=2xx|4xx|5xx|error
)

// RecordTransportSend records one send attempt through a route.
func RecordTransportSend(route, outcome string, d time.Duration) {
	TransportSendsTotal.WithLabelValues(route, outcome).Inc()
	transportSendDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordProbe records a connectivity verdict.
func RecordProbe(verdict string) {
	ProbeVerdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordAPIRequest records a REST call outcome.
func RecordAPIRequest(operation string, status int, err error) {
	class := "error"
	switch {
	case err != nil && status == 0:
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 200:
		class = "2xx"
	}
	APIRequestsTotal.WithLabelValues(operation, class).Inc()
}

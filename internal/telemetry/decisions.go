// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "sosync.transport"

// RecordRouteDecision counts which route the selector picked for an update
// and annotates the active span. The meter is looked up per call so a
// provider installed after startup is honoured.
func RecordRouteDecision(ctx context.Context, kind, route, verdict string) {
	attrs := []attribute.KeyValue{
		attribute.String(UpdateKey, kind),
		attribute.String(RouteKey, route),
		attribute.String(VerdictKey, verdict),
	}
	trace.SpanFromContext(ctx).AddEvent("route.selected", trace.WithAttributes(attrs...))

	counter, err := otel.GetMeterProvider().Meter(meterName).Int64Counter(
		"sosync_route_decisions_total",
		metric.WithDescription("Updates routed by transport selection"),
	)
	if err != nil {
		otel.Handle(err)
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across packages.
const (
	SessionIDKey = "sos.session_id"
	RouteKey     = "sos.transport.route"
	VerdictKey   = "sos.transport.verdict"
	UpdateKey    = "sos.update.kind"
	OutcomeKey   = "sos.outcome"
	UnitIDKey    = "sos.unit_id"
	RoleKey      = "sosync.role"
)

// SendAttributes describes one transport send.
func SendAttributes(kind, route, verdict, sessionID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(UpdateKey, kind),
		attribute.String(RouteKey, route),
		attribute.String(VerdictKey, verdict),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	return attrs
}

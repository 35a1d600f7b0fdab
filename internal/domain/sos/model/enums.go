// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "fmt"

// Category is the kind of distress the device reported.
type Category string

const (
	CategoryEmergency Category = "EMERGENCY"
	CategoryAlert     Category = "ALERT"
)

// WireCode returns the integer sos_type used by the backend.
func (c Category) WireCode() int {
	if c == CategoryAlert {
		return 1
	}
	return 0
}

// CategoryFromCode maps a backend sos_type to a Category. Unknown codes fall
// back to Emergency, matching the backend default.
func CategoryFromCode(code int) Category {
	if code == 1 {
		return CategoryAlert
	}
	return CategoryEmergency
}

// ParseCategory accepts the config spelling ("emergency", "alert").
func ParseCategory(s string) (Category, error) {
	switch s {
	case "", "emergency", "EMERGENCY":
		return CategoryEmergency, nil
	case "alert", "ALERT":
		return CategoryAlert, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// LifecycleState is the device-side lifecycle of one SOS session.
type LifecycleState string

const (
	StateIdle      LifecycleState = "IDLE"
	StateCreating  LifecycleState = "CREATING"
	StateActive    LifecycleState = "ACTIVE"
	StateTracking  LifecycleState = "TRACKING"
	StateResolving LifecycleState = "RESOLVING"
	StateResolved  LifecycleState = "RESOLVED"
	StateFailed    LifecycleState = "FAILED"
)

// IsTerminal reports whether the session instance can no longer change.
func (s LifecycleState) IsTerminal() bool {
	return s == StateResolved
}

// IsInFlight reports whether a distress episode is currently being handled.
// At most one session per device may be in flight.
func (s LifecycleState) IsInFlight() bool {
	switch s {
	case StateCreating, StateActive, StateTracking, StateResolving:
		return true
	}
	return false
}

// ReasonCode is a compact, typed failure/decision signal.
// Keep these stable: metrics and logs depend on them.
type ReasonCode string

const (
	RNone                 ReasonCode = "R_NONE"
	RUnknown              ReasonCode = "R_UNKNOWN"
	RTransportTimeout     ReasonCode = "R_TRANSPORT_TIMEOUT"
	RTransportRejected    ReasonCode = "R_TRANSPORT_REJECTED"
	RTransportUnavailable ReasonCode = "R_TRANSPORT_UNAVAILABLE"
	RAuthExpired          ReasonCode = "R_AUTH_EXPIRED"
	RPermissionDenied     ReasonCode = "R_PERMISSION_DENIED"
	RUserSafe             ReasonCode = "R_USER_SAFE"
	RRemoteResolved       ReasonCode = "R_REMOTE_RESOLVED"
	RCancelled            ReasonCode = "R_CANCELLED"
)

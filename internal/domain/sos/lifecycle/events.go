// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/sosync/internal/domain/sos/model"

// EventKind is a domain event in the SOS session lifecycle.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvTriggerDistress
	EvCreateAcked
	EvCreateFailed
	EvTrackingStarted
	EvMarkSafe
	EvResolveAcked
	EvResolveFailed
	EvResolvedRemotely
)

var eventNames = map[EventKind]string{
	EvUnknown:          "unknown",
	EvTriggerDistress:  "trigger_distress",
	EvCreateAcked:      "create_acked",
	EvCreateFailed:     "create_failed",
	EvTrackingStarted:  "tracking_started",
	EvMarkSafe:         "mark_safe",
	EvResolveAcked:     "resolve_acked",
	EvResolveFailed:    "resolve_failed",
	EvResolvedRemotely: "resolved_remotely",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// AllEvents lists every event kind except EvUnknown.
func AllEvents() []EventKind {
	return []EventKind{
		EvTriggerDistress,
		EvCreateAcked,
		EvCreateFailed,
		EvTrackingStarted,
		EvMarkSafe,
		EvResolveAcked,
		EvResolveFailed,
		EvResolvedRemotely,
	}
}

// Event carries optional domain metadata for a transition.
type Event struct {
	Kind   EventKind
	Reason model.ReasonCode
}

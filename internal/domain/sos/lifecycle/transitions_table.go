// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/sosync/internal/domain/sos/model"

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From   model.LifecycleState
	To     model.LifecycleState
	Event  EventKind
	Reason model.ReasonCode
}

var transitionsTable = []Transition{
	// Creation path; Failed re-enters Creating on user retry.
	{From: model.StateIdle, To: model.StateCreating, Event: EvTriggerDistress},
	{From: model.StateFailed, To: model.StateCreating, Event: EvTriggerDistress},
	{From: model.StateCreating, To: model.StateActive, Event: EvCreateAcked},
	{From: model.StateCreating, To: model.StateFailed, Event: EvCreateFailed, Reason: model.RUnknown},
	{From: model.StateActive, To: model.StateTracking, Event: EvTrackingStarted},

	// User marks safe
	{From: model.StateActive, To: model.StateResolving, Event: EvMarkSafe, Reason: model.RUserSafe},
	{From: model.StateTracking, To: model.StateResolving, Event: EvMarkSafe, Reason: model.RUserSafe},
	{From: model.StateResolving, To: model.StateResolved, Event: EvResolveAcked, Reason: model.RUserSafe},
	{From: model.StateResolving, To: model.StateTracking, Event: EvResolveFailed},

	// Dispatcher resolution event for this session
	{From: model.StateActive, To: model.StateResolved, Event: EvResolvedRemotely, Reason: model.RRemoteResolved},
	{From: model.StateTracking, To: model.StateResolved, Event: EvResolvedRemotely, Reason: model.RRemoteResolved},
	{From: model.StateResolving, To: model.StateResolved, Event: EvResolvedRemotely, Reason: model.RRemoteResolved},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.LifecycleState, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/sosync/internal/domain/sos/model"

const (
	ForbiddenTerminalAbsorbing = "terminal_absorbing"
	ForbiddenOutOfOrder        = "out_of_order"
	ForbiddenSessionInFlight   = "session_in_flight"
	ForbiddenRequiresCreating  = "requires_creating"
	ForbiddenRequiresTracking  = "requires_tracking"
	ForbiddenRequiresResolving = "requires_resolving"
	ForbiddenNoSession         = "no_session"
)

// Decision records whether a transition is allowed and why it is forbidden.
type Decision struct {
	Allowed bool
	Reason  string
}

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// AllStates lists every lifecycle state.
func AllStates() []model.LifecycleState {
	return []model.LifecycleState{
		model.StateIdle,
		model.StateCreating,
		model.StateActive,
		model.StateTracking,
		model.StateResolving,
		model.StateResolved,
		model.StateFailed,
	}
}

// DecisionFor returns an explicit decision for every State×Event combination.
// The second result is false only for states or events outside the model.
func DecisionFor(from model.LifecycleState, ev EventKind) (Decision, bool) {
	if !knownState(from) || ev == EvUnknown {
		return Decision{}, false
	}
	if _, ok := TransitionFor(from, ev); ok {
		return allowed(), true
	}
	if from.IsTerminal() {
		return forbid(ForbiddenTerminalAbsorbing), true
	}

	switch ev {
	case EvTriggerDistress:
		return forbid(ForbiddenSessionInFlight), true
	case EvCreateAcked, EvCreateFailed:
		return forbid(ForbiddenRequiresCreating), true
	case EvMarkSafe:
		if from == model.StateIdle || from == model.StateFailed {
			return forbid(ForbiddenNoSession), true
		}
		return forbid(ForbiddenRequiresTracking), true
	case EvResolveAcked, EvResolveFailed:
		return forbid(ForbiddenRequiresResolving), true
	case EvResolvedRemotely:
		if from == model.StateIdle || from == model.StateFailed || from == model.StateCreating {
			return forbid(ForbiddenNoSession), true
		}
	}
	return forbid(ForbiddenOutOfOrder), true
}

// ForbiddenTransitionReason documents why a transition is disallowed.
func ForbiddenTransitionReason(from model.LifecycleState, ev EventKind) string {
	decision, ok := DecisionFor(from, ev)
	if !ok || decision.Allowed {
		return ""
	}
	return decision.Reason
}

func knownState(s model.LifecycleState) bool {
	for _, st := range AllStates() {
		if st == s {
			return true
		}
	}
	return false
}

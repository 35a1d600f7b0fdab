// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

// ErrIllegalTransition is returned when an event is not allowed in the
// session's current state. The session is left untouched.
var ErrIllegalTransition = errors.New("illegal transition")

// Dispatch resolves and applies the next transition for ev. It is the only
// entry point that mutates a session's lifecycle state.
func Dispatch(s *model.EmergencySession, ev Event, now time.Time) (Transition, error) {
	decision, ok := DecisionFor(s.State, ev.Kind)
	if !ok || !decision.Allowed {
		reason := decision.Reason
		if !ok {
			reason = "unknown_state_or_event"
		}
		return Transition{}, fmt.Errorf("%w: %s + %s (%s)", ErrIllegalTransition, s.State, ev.Kind, reason)
	}
	tr, _ := TransitionFor(s.State, ev.Kind)
	if ev.Reason != "" {
		tr.Reason = ev.Reason
	}
	ApplyTransition(s, tr, now)
	return tr, nil
}

// ApplyTransition mutates the session according to the transition.
func ApplyTransition(s *model.EmergencySession, tr Transition, now time.Time) {
	s.State = tr.To
	if tr.Reason != "" {
		s.Reason = tr.Reason
	}
	switch tr.To {
	case model.StateCreating:
		s.Reason = model.RNone
		s.ResolvedAt = nil
	case model.StateResolved:
		at := now
		s.ResolvedAt = &at
	}
}

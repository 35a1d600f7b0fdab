// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dispatch maintains the console's view of active sessions and
// responding units, built from real-time events.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/history"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/metrics"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/rs/zerolog"
)

// Outcome is what applying one event did.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeStale          Outcome = "stale"
	OutcomeUnknownSession Outcome = "unknown_session"
	OutcomeIgnored        Outcome = "ignored"
)

const (
	DefaultStaleAfter = 2 * time.Minute
	resolvedByConsole = "dispatcher"
)

// Aggregator is the in-memory session and unit table.
type Aggregator struct {
	history    *history.Cache
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*model.EmergencySession
	units    map[string]model.DispatchUnit
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithStaleAfter sets how long a silent unit stays visible. Zero keeps units
// forever.
func WithStaleAfter(d time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.staleAfter = d }
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator returns an empty table. hist may be nil.
func NewAggregator(hist *history.Cache, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		history:    hist,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     xglog.WithComponent("aggregator"),
		sessions:   make(map[string]*model.EmergencySession),
		units:      make(map[string]model.DispatchUnit),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds one event into the table.
func (a *Aggregator) Apply(ctx context.Context, ev wire.Event) Outcome {
	var (
		kind string
		out  Outcome
	)
	switch e := ev.(type) {
	case wire.SessionCreated:
		kind, out = "session_created", a.applyCreated(e)
	case wire.LocationUpdated:
		kind, out = "location_updated", a.applyLocation(e)
	case wire.LocationHistory:
		kind, out = "location_history", OutcomeStale
		for _, u := range e.Updates {
			if a.applyLocation(u) == OutcomeApplied {
				out = OutcomeApplied
			}
		}
		if len(e.Updates) == 0 {
			out = OutcomeIgnored
		}
	case wire.SessionResolved:
		kind, out = "session_resolved", a.applyResolved(ctx, e)
	case wire.UnitLocation:
		kind, out = "unit_location", a.applyUnit(e)
	default:
		kind, out = "other", OutcomeIgnored
	}
	metrics.RecordAggregatorEvent(kind, string(out))
	return out
}

func (a *Aggregator) applyCreated(e wire.SessionCreated) Outcome {
	if e.SessionID == "" {
		return OutcomeIgnored
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[e.SessionID]; ok {
		return OutcomeDuplicate
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = a.now().UTC()
	}
	a.sessions[e.SessionID] = &model.EmergencySession{
		SessionID:         e.SessionID,
		RoomID:            e.RoomID,
		OriginDeviceLabel: e.Name,
		Category:          e.Category,
		State:             model.StateActive,
		InitialPosition:   e.Position,
		CreatedAt:         created,
	}
	metrics.SetActiveSessions(len(a.sessions))
	a.logger.Info().
		Str(xglog.FieldEvent, "aggregator.session_created").
		Str(xglog.FieldSessionID, e.SessionID).
		Str(xglog.FieldRoomID, e.RoomID).
		Float64(xglog.FieldLatitude, e.Position.Latitude).
		Float64(xglog.FieldLongitude, e.Position.Longitude).
		Msg("new session")
	return OutcomeApplied
}

func (a *Aggregator) applyLocation(e wire.LocationUpdated) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[e.SessionID]
	if !ok {
		a.logger.Debug().Str(xglog.FieldEvent, "aggregator.location_dropped").Str(xglog.FieldSessionID, e.SessionID).Msg("location for unknown session")
		return OutcomeUnknownSession
	}
	if !s.ApplyFix(e.Fix) {
		a.logger.Debug().Str(xglog.FieldEvent, "aggregator.location_stale").
			Str(xglog.FieldSessionID, e.SessionID).
			Time(xglog.FieldCapturedAt, e.Fix.CapturedAt).
			Msg("stale location dropped")
		return OutcomeStale
	}
	if s.State == model.StateActive {
		s.State = model.StateTracking
	}
	if e.UnitID != "" && s.UnitDispatched == "" {
		s.UnitDispatched = e.UnitID
	}
	return OutcomeApplied
}

func (a *Aggregator) applyResolved(ctx context.Context, e wire.SessionResolved) Outcome {
	a.mu.Lock()
	s, ok := a.sessions[e.SessionID]
	if !ok {
		a.mu.Unlock()
		return OutcomeUnknownSession
	}
	delete(a.sessions, e.SessionID)
	metrics.SetActiveSessions(len(a.sessions))
	a.mu.Unlock()

	at := e.ResolvedAt
	if at.IsZero() {
		at = a.now().UTC()
	}
	by := e.ResolvedBy
	if by == "" {
		by = resolvedByConsole
	}
	s.State = model.StateResolved
	s.ResolvedAt = &at

	a.logger.Info().Str(xglog.FieldEvent, "aggregator.session_resolved").Str(xglog.FieldSessionID, e.SessionID).Str("resolved_by", by).Msg("session resolved")
	if a.history != nil {
		if err := a.history.Append(context.WithoutCancel(ctx), model.NewResolvedRecord(s, by, at)); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldSessionID, e.SessionID).Msg("failed to record resolved session")
		}
	}
	return OutcomeApplied
}

func (a *Aggregator) applyUnit(e wire.UnitLocation) Outcome {
	if e.UnitID == "" {
		return OutcomeIgnored
	}
	seen := e.Fix.CapturedAt
	if seen.IsZero() {
		seen = a.now().UTC()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if u, ok := a.units[e.UnitID]; ok && !seen.After(u.LastSeenAt) {
		return OutcomeStale
	}
	a.units[e.UnitID] = model.DispatchUnit{UnitID: e.UnitID, LastPosition: e.Fix.Position, LastSeenAt: seen}
	metrics.SetTrackedUnits(len(a.units))
	return OutcomeApplied
}

// AssignUnit records the unit dispatched to a session.
func (a *Aggregator) AssignUnit(sessionID, unit string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	if !ok {
		return false
	}
	s.UnitDispatched = unit
	return true
}

// Session returns a copy of one active session.
func (a *Aggregator) Session(id string) (*model.EmergencySession, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Sessions returns copies of active sessions, oldest first.
func (a *Aggregator) Sessions() []model.EmergencySession {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionsLocked()
}

// Units returns units seen within the staleness window, by unit ID. Stale
// units are treated as unknown.
func (a *Aggregator) Units(now time.Time) []model.DispatchUnit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.unitsLocked(now)
}

// Snapshot is a consistent render of the table.
type Snapshot struct {
	TakenAt  time.Time                `json:"takenAt"`
	Sessions []model.EmergencySession `json:"sessions"`
	Units    []model.DispatchUnit     `json:"units"`
}

func (a *Aggregator) Snapshot() Snapshot {
	now := a.now().UTC()
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{TakenAt: now, Sessions: a.sessionsLocked(), Units: a.unitsLocked(now)}
}

func (a *Aggregator) sessionsLocked() []model.EmergencySession {
	out := make([]model.EmergencySession, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, *s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (a *Aggregator) unitsLocked(now time.Time) []model.DispatchUnit {
	out := make([]model.DispatchUnit, 0, len(a.units))
	for _, u := range a.units {
		if !u.IsStale(now, a.staleAfter) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

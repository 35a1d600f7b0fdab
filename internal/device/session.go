// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package device runs the device side of an SOS: the session lifecycle and
// the location reporter bound to it.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/lifecycle"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/history"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/metrics"
	"github.com/ManuGH/sosync/internal/transport"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

// ErrSessionInFlight rejects a trigger while a distress episode is already
// being handled.
var ErrSessionInFlight = errors.New("device: a session is already in flight")

const (
	resolvedByUser       = "user"
	resolvedByDispatcher = "dispatcher"
)

// Observer sees every applied transition together with a copy of the
// session after it.
type Observer func(tr lifecycle.Transition, s *model.EmergencySession)

// Config is the static device setup.
type Config struct {
	Label    string
	Category model.Category
	Reporter ReporterConfig
}

// Session is the device's single SOS slot. At most one session is in
// flight; a resolved or failed session is replaced by the next trigger.
type Session struct {
	cfg     Config
	sender  Sender
	locator Locator
	history *history.Cache
	clock   Clock
	logger  zerolog.Logger

	mu        sync.Mutex
	cur       *model.EmergencySession
	pending   bool
	reporter  *ReporterHandle
	runCtx    context.Context
	observers []Observer
}

// NewSession wires a session slot. hist may be nil to skip local history.
func NewSession(ctx context.Context, sender Sender, loc Locator, hist *history.Cache, cfg Config) *Session {
	cfg.Reporter = cfg.Reporter.withDefaults()
	cfg.Label = norm.NFC.String(strings.TrimSpace(cfg.Label))
	if cfg.Category == "" {
		cfg.Category = model.CategoryEmergency
	}
	return &Session{
		cfg:     cfg,
		sender:  sender,
		locator: loc,
		history: hist,
		clock:   cfg.Reporter.Clock,
		logger:  xglog.WithComponent("session"),
		cur:     &model.EmergencySession{State: model.StateIdle, OriginDeviceLabel: cfg.Label, Category: cfg.Category},
		runCtx:  ctx,
	}
}

// OnTransition registers an observer. Observers run after the session lock
// is released, in registration order.
func (d *Session) OnTransition(fn Observer) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// Snapshot returns a copy of the current session.
func (d *Session) Snapshot() *model.EmergencySession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur.Clone()
}

type note struct {
	tr   lifecycle.Transition
	snap *model.EmergencySession
}

// apply dispatches ev on the current session. Caller holds d.mu.
func (d *Session) apply(ev lifecycle.Event, notes *[]note) error {
	tr, err := lifecycle.Dispatch(d.cur, ev, d.clock.Now().UTC())
	if err != nil {
		return err
	}
	metrics.RecordSessionTransition(string(tr.From), string(tr.To))
	d.logger.Info().
		Str(xglog.FieldEvent, "session.transition").
		Str(xglog.FieldSessionID, d.cur.SessionID).
		Str(xglog.FieldOldState, string(tr.From)).
		Str(xglog.FieldNewState, string(tr.To)).
		Str("trigger", ev.Kind.String()).
		Str("reason", string(d.cur.Reason)).
		Msg("session transition")
	*notes = append(*notes, note{tr: tr, snap: d.cur.Clone()})
	return nil
}

func (d *Session) notify(notes []note) {
	if len(notes) == 0 {
		return
	}
	d.mu.Lock()
	obs := append([]Observer(nil), d.observers...)
	d.mu.Unlock()
	for _, n := range notes {
		for _, fn := range obs {
			fn(n.tr, n.snap)
		}
	}
}

// Trigger raises distress: it acquires a position, creates the session
// through the transport and starts tracking. A trigger while a session is in
// flight returns ErrSessionInFlight and changes nothing. When no position can
// be acquired the session stays Idle.
func (d *Session) Trigger(ctx context.Context) (*model.EmergencySession, error) {
	d.mu.Lock()
	if d.pending || d.cur.State.IsInFlight() {
		d.mu.Unlock()
		return nil, ErrSessionInFlight
	}
	d.pending = true
	d.mu.Unlock()

	var notes []note
	defer func() { d.notify(notes) }()
	defer func() {
		d.mu.Lock()
		d.pending = false
		d.mu.Unlock()
	}()

	pos, err := acquire(ctx, d.locator, d.cfg.Reporter.AcquireTimeout)
	if err != nil {
		d.logger.Warn().Err(err).Str(xglog.FieldEvent, "session.locate_failed").Msg("cannot trigger without a position")
		return nil, err
	}

	d.mu.Lock()
	if d.cur.State == model.StateResolved {
		d.cur = &model.EmergencySession{State: model.StateIdle}
	}
	d.cur.OriginDeviceLabel = d.cfg.Label
	d.cur.Category = d.cfg.Category
	d.cur.SessionID, d.cur.RoomID, d.cur.UnitDispatched = "", "", ""
	d.cur.InitialPosition = pos
	d.cur.LastKnown = model.Fix{}
	if err := d.apply(lifecycle.Event{Kind: lifecycle.EvTriggerDistress}, &notes); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	ack, sendErr := d.sender.Send(ctx, transport.CreateUpdate{Name: d.cfg.Label, Category: d.cfg.Category, Position: pos})

	d.mu.Lock()
	defer d.mu.Unlock()
	if sendErr != nil {
		_ = d.apply(lifecycle.Event{Kind: lifecycle.EvCreateFailed, Reason: model.ReasonFor(sendErr)}, &notes)
		return d.cur.Clone(), fmt.Errorf("create session: %w", sendErr)
	}

	d.cur.SessionID = ack.SessionID
	d.cur.RoomID = ack.RoomID
	d.cur.CreatedAt = d.clock.Now().UTC()
	if err := d.apply(lifecycle.Event{Kind: lifecycle.EvCreateAcked}, &notes); err != nil {
		return nil, err
	}
	if err := d.apply(lifecycle.Event{Kind: lifecycle.EvTrackingStarted}, &notes); err != nil {
		return nil, err
	}
	d.startReporterLocked()
	return d.cur.Clone(), nil
}

// MarkSafe ends the session from the device side. The reporter is stopped
// before the resolve is sent; a failed resolve returns to Tracking and
// restarts reporting.
func (d *Session) MarkSafe(ctx context.Context) (*model.EmergencySession, error) {
	var notes []note
	defer func() { d.notify(notes) }()

	d.mu.Lock()
	if err := d.apply(lifecycle.Event{Kind: lifecycle.EvMarkSafe, Reason: model.RUserSafe}, &notes); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	sessionID := d.cur.SessionID
	h := d.reporter
	d.reporter = nil
	d.mu.Unlock()

	h.Stop()

	ack, sendErr := d.sender.Send(ctx, transport.ResolveUpdate{SessionID: sessionID})

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur.SessionID != sessionID || d.cur.State != model.StateResolving {
		// Resolved remotely while the call was in flight.
		return d.cur.Clone(), nil
	}
	if sendErr != nil {
		_ = d.apply(lifecycle.Event{Kind: lifecycle.EvResolveFailed, Reason: model.ReasonFor(sendErr)}, &notes)
		d.startReporterLocked()
		return d.cur.Clone(), fmt.Errorf("resolve session: %w", sendErr)
	}
	if err := d.apply(lifecycle.Event{Kind: lifecycle.EvResolveAcked, Reason: model.RUserSafe}, &notes); err != nil {
		return nil, err
	}
	if ack.Local {
		d.logger.Info().Str(xglog.FieldSessionID, sessionID).Msg("resolved locally; backend unreachable")
	}
	d.recordLocked(ctx, resolvedByUser)
	return d.cur.Clone(), nil
}

// HandleResolved applies a remote resolution. Events for other sessions are
// ignored and reported false.
func (d *Session) HandleResolved(ctx context.Context, ev wire.SessionResolved) bool {
	var notes []note
	defer func() { d.notify(notes) }()

	d.mu.Lock()
	if ev.SessionID == "" || ev.SessionID != d.cur.SessionID {
		d.mu.Unlock()
		return false
	}
	if err := d.apply(lifecycle.Event{Kind: lifecycle.EvResolvedRemotely, Reason: model.RRemoteResolved}, &notes); err != nil {
		d.mu.Unlock()
		return false
	}
	h := d.reporter
	d.reporter = nil
	by := ev.ResolvedBy
	if by == "" {
		by = resolvedByDispatcher
	}
	d.recordLocked(ctx, by)
	d.mu.Unlock()

	h.Stop()
	return true
}

// Close stops any running reporter.
func (d *Session) Close() {
	d.mu.Lock()
	h := d.reporter
	d.reporter = nil
	d.mu.Unlock()
	h.Stop()
}

func (d *Session) startReporterLocked() {
	sessionID := d.cur.SessionID
	d.reporter = StartReporter(d.runCtx, sessionID, d.locator, d.sender, d.cfg.Reporter, func(f model.Fix) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.cur.SessionID == sessionID {
			d.cur.ApplyFix(f)
		}
	})
}

func (d *Session) recordLocked(ctx context.Context, resolvedBy string) {
	if d.history == nil {
		return
	}
	at := d.clock.Now().UTC()
	if d.cur.ResolvedAt != nil {
		at = *d.cur.ResolvedAt
	}
	rec := model.NewResolvedRecord(d.cur, resolvedBy, at)
	if err := d.history.Append(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn().Err(err).Str(xglog.FieldSessionID, d.cur.SessionID).Msg("failed to record resolved session")
	}
}

// WaitResolved blocks until the current session reaches Resolved or ctx ends.
func (d *Session) WaitResolved(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		if d.Snapshot().State == model.StateResolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

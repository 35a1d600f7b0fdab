// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package transport routes outbound updates over exactly one of two paths:
// the HTTP API while the backend is reachable, or the real-time socket while
// it is not. The verdict is probed once and on explicit re-probe only; a
// failed send is reported to the caller and never retried on the other path.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/bus"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/metrics"
	"github.com/ManuGH/sosync/internal/realtime"
	"github.com/ManuGH/sosync/internal/resilience"
	"github.com/ManuGH/sosync/internal/sosapi"
	"github.com/ManuGH/sosync/internal/telemetry"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// Verdict is the cached connectivity decision.
type Verdict string

const (
	VerdictUnknown Verdict = "unknown"
	VerdictOnline  Verdict = "online"
	VerdictOffline Verdict = "offline"
)

// Route is the path an update travelled.
type Route string

const (
	RouteHTTP   Route = "http"
	RouteSocket Route = "socket"
)

const (
	DefaultTimeout          = 10 * time.Second
	defaultBreakerThreshold = 3
	defaultBreakerReset     = 30 * time.Second
)

// API is the subset of the REST client the selector drives.
type API interface {
	CreateSOS(ctx context.Context, name string, cat model.Category, pos model.Position) (sosapi.CreateResult, error)
	UpdateLocation(ctx context.Context, sessionID string, pos model.Position) error
	ResolveSOS(ctx context.Context, sessionID string) (sosapi.SessionRecord, error)
	Probe(ctx context.Context) error
}

// Socket is the subset of the real-time connection the selector drives.
type Socket interface {
	Connected() bool
	Emit(ctx context.Context, cmd wire.Command) error
	Subscribe(ctx context.Context, topic string) (bus.Subscriber, error)
}

// Selector implements the single send contract.
type Selector struct {
	api     API
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.RWMutex
	socket  Socket
	verdict Verdict

	probes singleflight.Group
	// sockMu serializes socket sends so each ack pairs with its command.
	sockMu sync.Mutex
}

// Option configures a Selector.
type Option func(*Selector)

// WithTimeout sets the per-send budget.
func WithTimeout(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBreaker replaces the default HTTP circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Selector) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

// New returns a selector. Either path may be nil; sends routed to a missing
// path fail with ErrUnavailable.
func New(api API, socket Socket, opts ...Option) *Selector {
	s := &Selector{
		api:     api,
		socket:  socket,
		timeout: DefaultTimeout,
		verdict: VerdictUnknown,
		logger:  xglog.WithComponent("transport"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = resilience.NewCircuitBreaker("sosapi", defaultBreakerThreshold, defaultBreakerReset,
			resilience.WithFailurePredicate(isInfraFailure))
	}
	return s
}

// SetSocket swaps the socket path, e.g. after the endpoint changed.
func (s *Selector) SetSocket(socket Socket) {
	s.mu.Lock()
	s.socket = socket
	s.mu.Unlock()
}

// Verdict returns the cached verdict without probing.
func (s *Selector) Verdict() Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verdict
}

// Probe determines the verdict if none is cached yet.
func (s *Selector) Probe(ctx context.Context) Verdict {
	if v := s.Verdict(); v != VerdictUnknown {
		return v
	}
	return s.Reprobe(ctx)
}

// Reprobe re-checks connectivity. Concurrent callers share one probe.
func (s *Selector) Reprobe(ctx context.Context) Verdict {
	ch := s.probes.DoChan("probe", func() (any, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		verdict := VerdictOffline
		var err error
		if s.api != nil {
			if err = s.api.Probe(probeCtx); err == nil {
				verdict = VerdictOnline
			}
		}

		s.mu.Lock()
		old := s.verdict
		s.verdict = verdict
		s.mu.Unlock()

		if verdict == VerdictOnline {
			s.breaker.Reset()
		}
		metrics.RecordProbe(string(verdict))
		ev := s.logger.Info()
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Str(xglog.FieldEvent, "transport.probed").
			Str(xglog.FieldOldState, string(old)).
			Str(xglog.FieldVerdict, string(verdict)).
			Msg("connectivity verdict")
		return verdict, nil
	})
	select {
	case res := <-ch:
		return res.Val.(Verdict)
	case <-ctx.Done():
		return s.Verdict()
	}
}

// Send delivers u over the route selected by the cached verdict.
func (s *Selector) Send(ctx context.Context, u Update) (Ack, error) {
	verdict := s.Probe(ctx)

	s.mu.RLock()
	route := routeFor(verdict, u)
	socket := s.socket
	s.mu.RUnlock()

	ctx, span := telemetry.Tracer("sosync.transport").Start(ctx, "transport.Send")
	span.SetAttributes(telemetry.SendAttributes(u.Kind(), string(route), string(verdict), sessionOf(u))...)
	defer span.End()
	telemetry.RecordRouteDecision(ctx, u.Kind(), string(route), string(verdict))

	start := time.Now()
	var (
		ack Ack
		err error
	)
	switch route {
	case RouteHTTP:
		ack, err = s.sendHTTP(ctx, u)
	default:
		ack, err = s.sendSocket(ctx, socket, u)
	}
	metrics.RecordTransportSend(string(route), outcome(err), time.Since(start))
	span.SetAttributes(attribute.String(telemetry.OutcomeKey, outcome(err)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "transport.send_failed").
			Str(xglog.FieldRoute, string(route)).
			Str("kind", u.Kind()).
			Str(xglog.FieldSessionID, sessionOf(u)).
			Msg("send failed")
		return Ack{}, err
	}
	return ack, nil
}

func routeFor(v Verdict, u Update) Route {
	if _, ok := u.(OfficerUpdate); ok {
		return RouteSocket
	}
	if v == VerdictOnline {
		return RouteHTTP
	}
	return RouteSocket
}

func (s *Selector) sendHTTP(ctx context.Context, u Update) (Ack, error) {
	if s.api == nil {
		return Ack{}, fmt.Errorf("%w: no http route configured", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ack := Ack{Route: RouteHTTP}
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		switch v := u.(type) {
		case CreateUpdate:
			res, err := s.api.CreateSOS(ctx, v.Name, v.Category, v.Position)
			if err != nil {
				return err
			}
			ack.SessionID, ack.RoomID = res.SessionID.String(), res.RoomID
		case LocationUpdate:
			ack.SessionID = v.SessionID
			return s.api.UpdateLocation(ctx, v.SessionID, v.Position)
		case ResolveUpdate:
			ack.SessionID = v.SessionID
			_, err := s.api.ResolveSOS(ctx, v.SessionID)
			return err
		default:
			return fmt.Errorf("transport: %s updates have no http route", u.Kind())
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Ack{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ack, httpError(err)
}

func httpError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sosapi.APIError
	if errors.Is(err, ErrRejected) && errors.As(err, &apiErr) {
		return &RejectedError{Route: RouteHTTP, Reason: apiErr.Body, Status: apiErr.Status, Err: err}
	}
	return err
}

func (s *Selector) sendSocket(ctx context.Context, socket Socket, u Update) (Ack, error) {
	if socket == nil || !socket.Connected() {
		return Ack{}, fmt.Errorf("%w: socket not connected", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch v := u.(type) {
	case CreateUpdate:
		return s.emitAwait(ctx, socket, wire.CreateSOS{Name: v.Name, Category: v.Category, Position: v.Position})
	case LocationUpdate:
		ack, err := s.emitAwait(ctx, socket, wire.UpdateLocation{SessionID: v.SessionID, Position: v.Position})
		ack.SessionID = v.SessionID
		return ack, err
	case ResolveUpdate:
		// The socket protocol has no resolve command; the device records
		// the resolution and the console learns of it from the backend.
		return Ack{Route: RouteSocket, SessionID: v.SessionID, Local: true}, nil
	case OfficerUpdate:
		err := socket.Emit(ctx, wire.OfficerLocationUpdate{UnitID: v.UnitID, Position: v.Position, Timestamp: v.CapturedAt})
		return Ack{Route: RouteSocket}, socketError(ctx, err)
	}
	return Ack{}, fmt.Errorf("transport: unknown update %T", u)
}

// emitAwait sends cmd and waits for the matching *_response event.
func (s *Selector) emitAwait(ctx context.Context, socket Socket, cmd wire.Command) (Ack, error) {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()

	sub, err := socket.Subscribe(ctx, realtime.TopicAcks)
	if err != nil {
		return Ack{}, socketError(ctx, err)
	}
	defer func() { _ = sub.Close() }()

	if err := socket.Emit(ctx, cmd); err != nil {
		return Ack{}, socketError(ctx, err)
	}

	_, wantCreate := cmd.(wire.CreateSOS)
	for {
		select {
		case <-ctx.Done():
			return Ack{}, socketError(ctx, ctx.Err())
		case msg, ok := <-sub.C():
			if !ok {
				return Ack{}, fmt.Errorf("%w: ack stream closed", ErrUnavailable)
			}
			switch ack := msg.(type) {
			case wire.CreateAck:
				if !wantCreate {
					continue
				}
				if !ack.Success {
					return Ack{}, &RejectedError{Route: RouteSocket, Reason: ack.Error, Status: ack.StatusCode}
				}
				return Ack{Route: RouteSocket, SessionID: ack.SessionID, RoomID: ack.RoomID}, nil
			case wire.UpdateAck:
				if wantCreate {
					continue
				}
				if !ack.Success {
					return Ack{}, &RejectedError{Route: RouteSocket, Reason: ack.Error, Status: ack.StatusCode}
				}
				return Ack{Route: RouteSocket}, nil
			}
		}
	}
}

func socketError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no socket acknowledgement: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

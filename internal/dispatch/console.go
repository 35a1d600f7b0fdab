// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/bus"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/realtime"
	"github.com/ManuGH/sosync/internal/sosapi"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/rs/zerolog"
)

var ErrNotRunning = errors.New("dispatch: console is not running")

// Source is the real-time connection the console listens on.
type Source interface {
	Emit(ctx context.Context, cmd wire.Command) error
	Subscribe(ctx context.Context, topic string) (bus.Subscriber, error)
	// Forget stops replaying join after a reconnect.
	Forget(join wire.Command)
}

// API is the subset of the REST client used by console actions.
type API interface {
	ListSessions(ctx context.Context) ([]sosapi.SessionRecord, error)
	ResolveSOS(ctx context.Context, sessionID string) (sosapi.SessionRecord, error)
	AssignOfficer(ctx context.Context, sessionID, officer, unit string) (sosapi.Assignment, error)
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithAutoTrack makes the console join every new session's room.
func WithAutoTrack() ConsoleOption {
	return func(c *Console) { c.autoTrack = true }
}

// Console owns the subscriptions of one dispatcher and feeds every event
// through a single processing loop into the aggregator.
type Console struct {
	src       Source
	api       API
	agg       *Aggregator
	autoTrack bool
	logger    zerolog.Logger

	events  chan applyReq
	running chan struct{}

	mu      sync.Mutex
	rooms   map[string]*Subscription
	runCtx  context.Context
	started bool
}

type applyReq struct {
	ev     wire.Event
	result chan Outcome // nil for fire-and-forget
}

// NewConsole wires a console. api may be nil when only watching.
func NewConsole(src Source, api API, agg *Aggregator, opts ...ConsoleOption) *Console {
	c := &Console{
		src:     src,
		api:     api,
		agg:     agg,
		logger:  xglog.WithComponent("console"),
		events:  make(chan applyReq, 64),
		running: make(chan struct{}),
		rooms:   make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Aggregator exposes the table for rendering.
func (c *Console) Aggregator() *Aggregator { return c.agg }

// Run processes events until ctx ends. It must be called once.
func (c *Console) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("dispatch: console already running")
	}
	c.started = true
	c.runCtx = ctx
	c.mu.Unlock()
	close(c.running)

	defer c.closeRooms()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.events:
			out := c.agg.Apply(ctx, req.ev)
			if req.result != nil {
				req.result <- out
			}
			switch e := req.ev.(type) {
			case wire.SessionCreated:
				if out == OutcomeApplied && c.autoTrack {
					if _, err := c.TrackSession(ctx, e.SessionID, e.RoomID); err != nil {
						c.logger.Warn().Err(err).Str(xglog.FieldSessionID, e.SessionID).Msg("auto-track failed")
					}
				}
			case wire.SessionResolved:
				c.untrack(e.SessionID)
			}
		}
	}
}

// Ready is closed once Run has started accepting events.
func (c *Console) Ready() <-chan struct{} { return c.running }

// submit queues ev for the processing loop and waits for its outcome.
func (c *Console) submit(ctx context.Context, ev wire.Event) (Outcome, error) {
	select {
	case <-c.running:
	default:
		return "", ErrNotRunning
	}
	req := applyReq{ev: ev, result: make(chan Outcome, 1)}
	select {
	case c.events <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case out := <-req.result:
		return out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscription is one independently cancellable event feed.
type Subscription struct {
	cancel  context.CancelFunc
	sub     []bus.Subscriber
	release func()
	done    chan struct{}
	once    sync.Once
}

// Close ends the feed, releases its join and waits for its forwarders to exit.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		for _, sub := range s.sub {
			_ = sub.Close()
		}
		if s.release != nil {
			s.release()
		}
	})
	<-s.done
}

// Done is closed when the feed has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// WatchNewSessions joins the global SOS channel and feeds new and resolved
// sessions to the loop.
func (c *Console) WatchNewSessions(ctx context.Context) (*Subscription, error) {
	return c.follow(ctx, wire.JoinSOSChannel{}, realtime.TopicSessions, realtime.TopicResolved)
}

// TrackSession joins a session's room and feeds its location updates,
// including the history replay, to the loop.
func (c *Console) TrackSession(ctx context.Context, sessionID, roomID string) (*Subscription, error) {
	if sessionID == "" || roomID == "" {
		return nil, fmt.Errorf("dispatch: session id and room id are required")
	}
	c.mu.Lock()
	if s, ok := c.rooms[sessionID]; ok {
		select {
		case <-s.done:
		default:
			c.mu.Unlock()
			return s, nil
		}
	}
	c.mu.Unlock()

	s, err := c.follow(ctx, wire.JoinSOSRoom{RoomID: roomID}, realtime.TopicLocation(sessionID))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rooms[sessionID] = s
	c.mu.Unlock()
	return s, nil
}

// TrackUnits joins the officer update channel and feeds unit positions.
func (c *Console) TrackUnits(ctx context.Context) (*Subscription, error) {
	return c.follow(ctx, wire.JoinOfficerUpdate{}, realtime.TopicUnits)
}

// follow subscribes to topics before emitting join so no event sent in
// answer to the join is missed.
func (c *Console) follow(ctx context.Context, join wire.Command, topics ...string) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{cancel: cancel, done: make(chan struct{}), release: func() { c.src.Forget(join) }}
	for _, topic := range topics {
		sub, err := c.src.Subscribe(subCtx, topic)
		if err != nil {
			for _, prev := range s.sub {
				_ = prev.Close()
			}
			cancel()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
		s.sub = append(s.sub, sub)
	}
	if err := c.src.Emit(ctx, join); err != nil {
		for _, sub := range s.sub {
			_ = sub.Close()
		}
		cancel()
		return nil, fmt.Errorf("%s: %w", join.CommandName(), err)
	}

	var wg sync.WaitGroup
	for _, sub := range s.sub {
		wg.Add(1)
		go func(sub bus.Subscriber) {
			defer wg.Done()
			c.forward(subCtx, sub)
		}(sub)
	}
	go func() {
		wg.Wait()
		close(s.done)
	}()
	return s, nil
}

func (c *Console) forward(ctx context.Context, sub bus.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			ev, ok := msg.(wire.Event)
			if !ok {
				continue
			}
			select {
			case c.events <- applyReq{ev: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Console) closeRooms() {
	c.mu.Lock()
	rooms := c.rooms
	c.rooms = make(map[string]*Subscription)
	c.mu.Unlock()
	for _, s := range rooms {
		s.Close()
	}
}

// Bootstrap loads unresolved sessions from the backend so the table is
// populated before the first real-time event.
func (c *Console) Bootstrap(ctx context.Context) (int, error) {
	if c.api == nil {
		return 0, nil
	}
	records, err := c.api.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if r.Resolved() {
			continue
		}
		s := r.Session()
		out, err := c.submit(ctx, wire.SessionCreated{
			SessionID: s.SessionID,
			RoomID:    s.RoomID,
			Name:      s.OriginDeviceLabel,
			Category:  s.Category,
			Position:  s.InitialPosition,
			CreatedAt: s.CreatedAt,
		})
		if err != nil {
			return n, err
		}
		if !s.LastKnown.IsZero() {
			if _, err := c.submit(ctx, wire.LocationUpdated{SessionID: s.SessionID, Fix: s.LastKnown}); err != nil {
				return n, err
			}
		}
		if s.UnitDispatched != "" {
			c.agg.AssignUnit(s.SessionID, s.UnitDispatched)
		}
		if out == OutcomeApplied {
			n++
		}
	}
	return n, nil
}

// Resolve closes a session on the backend and removes it from the table.
func (c *Console) Resolve(ctx context.Context, sessionID string) error {
	if c.api == nil {
		return fmt.Errorf("%w: no backend configured", model.ErrTransportUnavailable)
	}
	if _, err := c.api.ResolveSOS(ctx, sessionID); err != nil {
		return err
	}
	c.untrack(sessionID)
	_, err := c.submit(ctx, wire.SessionResolved{SessionID: sessionID, ResolvedBy: resolvedByConsole, ResolvedAt: time.Now().UTC()})
	return err
}

// AssignOfficer dispatches a unit to a session.
func (c *Console) AssignOfficer(ctx context.Context, sessionID, officer, unit string) (sosapi.Assignment, error) {
	if c.api == nil {
		return sosapi.Assignment{}, fmt.Errorf("%w: no backend configured", model.ErrTransportUnavailable)
	}
	a, err := c.api.AssignOfficer(ctx, sessionID, officer, unit)
	if err != nil {
		return sosapi.Assignment{}, err
	}
	c.agg.AssignUnit(sessionID, unit)
	return a, nil
}

func (c *Console) untrack(sessionID string) {
	c.mu.Lock()
	s := c.rooms[sessionID]
	delete(c.rooms, sessionID)
	c.mu.Unlock()
	s.Close()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package device

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/lifecycle"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/history"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/ManuGH/sosync/internal/transport"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clock   *manualClock
	sender  *recordingSender
	hist    *history.Cache
	session *Session

	mu     sync.Mutex
	states []model.LifecycleState
}

func newHarness(t *testing.T, loc Locator) *harness {
	t.Helper()
	h := &harness{clock: newManualClock(), sender: &recordingSender{}}
	hist, err := history.New(kv.NewMemoryStore(), "device", history.DefaultCapacity)
	require.NoError(t, err)
	h.hist = hist
	if loc == nil {
		loc = NewStaticLocator(model.Position{Latitude: 28.70, Longitude: 77.10})
	}
	h.session = NewSession(context.Background(), h.sender, loc, hist, Config{
		Label:    "Asha",
		Category: model.CategoryEmergency,
		Reporter: ReporterConfig{Interval: 5 * time.Second, Clock: h.clock},
	})
	h.session.OnTransition(func(tr lifecycle.Transition, s *model.EmergencySession) {
		h.mu.Lock()
		h.states = append(h.states, tr.To)
		h.mu.Unlock()
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) seen() []model.LifecycleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.LifecycleState(nil), h.states...)
}

func TestSession_TriggerReachesTrackingThroughEveryState(t *testing.T) {
	h := newHarness(t, nil)

	s, err := h.session.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateTracking, s.State)
	assert.Equal(t, "42", s.SessionID)
	assert.Equal(t, "room-42", s.RoomID)
	assert.Equal(t, model.Position{Latitude: 28.70, Longitude: 77.10}, s.InitialPosition)
	assert.Equal(t, []model.LifecycleState{model.StateCreating, model.StateActive, model.StateTracking}, h.seen())

	create := h.sender.all()[0].(transport.CreateUpdate)
	assert.Equal(t, "Asha", create.Name)

	require.True(t, h.clock.tick(5*time.Second))
	require.Eventually(t, func() bool { return !h.session.Snapshot().LastKnown.IsZero() }, time.Second, 5*time.Millisecond)
}

func TestSession_SecondTriggerIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.session.Trigger(context.Background())
	require.NoError(t, err)

	_, err = h.session.Trigger(context.Background())
	require.ErrorIs(t, err, ErrSessionInFlight)
	assert.Equal(t, 1, h.sender.count())
	assert.Equal(t, "42", h.session.Snapshot().SessionID)
}

func TestSession_NoPositionStaysIdle(t *testing.T) {
	denied := LocatorFunc(func(context.Context) (model.Position, error) {
		return model.Position{}, model.ErrPermissionDenied
	})
	h := newHarness(t, denied)

	_, err := h.session.Trigger(context.Background())
	require.ErrorIs(t, err, model.ErrPermissionDenied)
	assert.Equal(t, model.StateIdle, h.session.Snapshot().State)
	assert.Empty(t, h.seen())
	assert.Zero(t, h.sender.count())
}

func TestSession_CreateFailureFailsThenRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.sender.errFor = func(u transport.Update) error {
		if _, ok := u.(transport.CreateUpdate); ok {
			return fmt.Errorf("%w: deadline", transport.ErrTimeout)
		}
		return nil
	}

	s, err := h.session.Trigger(context.Background())
	require.ErrorIs(t, err, transport.ErrTimeout)
	assert.Equal(t, model.StateFailed, s.State)
	assert.Equal(t, model.RTransportTimeout, s.Reason)

	h.sender.mu.Lock()
	h.sender.errFor = nil
	h.sender.mu.Unlock()

	s, err = h.session.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateTracking, s.State)
	assert.Equal(t, model.RNone, s.Reason)
}

func TestSession_MarkSafeStopsReporterAndRecordsHistory(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.session.Trigger(context.Background())
	require.NoError(t, err)

	s, err := h.session.MarkSafe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, s.State)
	require.NotNil(t, s.ResolvedAt)
	assert.False(t, h.clock.tick(5*time.Second), "reporter must be stopped")

	ups := h.sender.all()
	assert.Equal(t, transport.ResolveUpdate{SessionID: "42"}, ups[len(ups)-1])

	recs, err := h.hist.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "42", recs[0].SessionID)
	assert.Equal(t, "user", recs[0].ResolvedBy)

	assert.Equal(t, []model.LifecycleState{
		model.StateCreating, model.StateActive, model.StateTracking, model.StateResolving, model.StateResolved,
	}, h.seen())
}

func TestSession_FailedResolveRevertsToTracking(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.session.Trigger(context.Background())
	require.NoError(t, err)

	h.sender.mu.Lock()
	h.sender.errFor = func(u transport.Update) error {
		if _, ok := u.(transport.ResolveUpdate); ok {
			return transport.ErrUnavailable
		}
		return nil
	}
	h.sender.mu.Unlock()

	s, err := h.session.MarkSafe(context.Background())
	require.ErrorIs(t, err, transport.ErrUnavailable)
	assert.Equal(t, model.StateTracking, s.State)

	before := h.sender.count()
	require.True(t, h.clock.tick(5*time.Second), "reporter must be running again")
	require.Eventually(t, func() bool { return h.sender.count() == before+1 }, time.Second, 5*time.Millisecond)
}

func TestSession_RemoteResolution(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.session.Trigger(context.Background())
	require.NoError(t, err)

	assert.False(t, h.session.HandleResolved(context.Background(), wire.SessionResolved{SessionID: "other"}))
	assert.Equal(t, model.StateTracking, h.session.Snapshot().State)

	assert.True(t, h.session.HandleResolved(context.Background(), wire.SessionResolved{SessionID: "42"}))
	s := h.session.Snapshot()
	assert.Equal(t, model.StateResolved, s.State)
	assert.Equal(t, model.RRemoteResolved, s.Reason)
	assert.False(t, h.clock.tick(5*time.Second))

	recs, err := h.hist.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "dispatcher", recs[0].ResolvedBy)

	_, err = h.session.MarkSafe(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrIllegalTransition)
}

func TestSession_TriggerAfterResolutionStartsFresh(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.session.Trigger(context.Background())
	require.NoError(t, err)
	_, err = h.session.MarkSafe(context.Background())
	require.NoError(t, err)

	s, err := h.session.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateTracking, s.State)
	assert.Nil(t, s.ResolvedAt)
}

func TestResolveEndpoint(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	ep, err := ResolveEndpoint(ctx, store, "")
	require.NoError(t, err)
	assert.Empty(t, ep)

	ep, err = ResolveEndpoint(ctx, store, "192.168.1.20:5000")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:5000", ep)

	ep, err = ResolveEndpoint(ctx, store, "")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:5000", ep)
}

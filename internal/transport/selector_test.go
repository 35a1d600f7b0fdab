// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/sosync/internal/bus"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/realtime"
	"github.com/ManuGH/sosync/internal/resilience"
	"github.com/ManuGH/sosync/internal/sosapi"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	probeErr   error
	probeGate  chan struct{}
	probes     atomic.Int32
	updates    atomic.Int32
	creates    atomic.Int32
	updateErr  error
	createResp sosapi.CreateResult
}

func (f *fakeAPI) CreateSOS(context.Context, string, model.Category, model.Position) (sosapi.CreateResult, error) {
	f.creates.Add(1)
	return f.createResp, nil
}

func (f *fakeAPI) UpdateLocation(context.Context, string, model.Position) error {
	f.updates.Add(1)
	return f.updateErr
}

func (f *fakeAPI) ResolveSOS(context.Context, string) (sosapi.SessionRecord, error) {
	return sosapi.SessionRecord{}, nil
}

func (f *fakeAPI) Probe(ctx context.Context) error {
	f.probes.Add(1)
	if f.probeGate != nil {
		select {
		case <-f.probeGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.probeErr
}

// fakeSocket answers commands with a scripted ack on the acks topic.
type fakeSocket struct {
	*bus.MemoryBus
	connected bool
	ack       wire.Event // nil means never answer

	mu    sync.Mutex
	emits []wire.Command
}

func newFakeSocket(ack wire.Event) *fakeSocket {
	return &fakeSocket{MemoryBus: bus.NewMemoryBus(), connected: true, ack: ack}
}

func (f *fakeSocket) Connected() bool { return f.connected }

func (f *fakeSocket) Emit(ctx context.Context, cmd wire.Command) error {
	f.mu.Lock()
	f.emits = append(f.emits, cmd)
	f.mu.Unlock()
	if f.ack != nil {
		return f.Publish(ctx, realtime.TopicAcks, f.ack)
	}
	return nil
}

func (f *fakeSocket) Emits() []wire.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Command(nil), f.emits...)
}

var offline = errors.New("no route to host")

func TestOfflineRoutesThroughSocketOnly(t *testing.T) {
	api := &fakeAPI{probeErr: offline, updateErr: errors.New("must not be called")}
	sock := newFakeSocket(wire.UpdateAck{Success: true, Status: "Location updated successfully", StatusCode: 201})
	s := New(api, sock)

	assert.Equal(t, VerdictOffline, s.Probe(context.Background()))

	ack, err := s.Send(context.Background(), LocationUpdate{SessionID: "7", Position: model.Position{Latitude: 28.7, Longitude: 77.1}})
	require.NoError(t, err)
	assert.Equal(t, RouteSocket, ack.Route)
	assert.Equal(t, "7", ack.SessionID)
	assert.Zero(t, api.updates.Load(), "http path must not be attempted")
	require.Len(t, sock.Emits(), 1)
	assert.Equal(t, wire.UpdateLocation{SessionID: "7", Position: model.Position{Latitude: 28.7, Longitude: 77.1}}, sock.Emits()[0])
}

func TestOnlineCreateUsesHTTP(t *testing.T) {
	api := &fakeAPI{createResp: sosapi.CreateResult{SessionID: "42", RoomID: "r-42"}}
	sock := newFakeSocket(nil)
	s := New(api, sock)

	ack, err := s.Send(context.Background(), CreateUpdate{Name: "Asha", Category: model.CategoryEmergency})
	require.NoError(t, err)
	assert.Equal(t, Ack{Route: RouteHTTP, SessionID: "42", RoomID: "r-42"}, ack)
	assert.Empty(t, sock.Emits())
	assert.Equal(t, VerdictOnline, s.Verdict())
}

func TestHTTPFailureIsNotRetriedOverSocket(t *testing.T) {
	api := &fakeAPI{updateErr: &sosapi.APIError{Sentinel: sosapi.ErrTimeout, Operation: "update_location"}}
	sock := newFakeSocket(wire.UpdateAck{Success: true})
	s := New(api, sock)

	_, err := s.Send(context.Background(), LocationUpdate{SessionID: "1"})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, model.KindTransportTimeout, model.Classify(err))
	assert.Empty(t, sock.Emits())
}

func TestHTTPRejectionCarriesReason(t *testing.T) {
	api := &fakeAPI{updateErr: &sosapi.APIError{Sentinel: sosapi.ErrRejected, Operation: "update_location", Status: http.StatusBadRequest, Body: "invalid sos_request"}}
	s := New(api, nil)

	_, err := s.Send(context.Background(), LocationUpdate{SessionID: "1"})
	require.ErrorIs(t, err, ErrRejected)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "invalid sos_request", rej.Reason)
	assert.Equal(t, RouteHTTP, rej.Route)
}

func TestSocketRejectionAndUnavailable(t *testing.T) {
	api := &fakeAPI{probeErr: offline}

	rejecting := New(api, newFakeSocket(wire.CreateAck{Success: false, Error: "name required", StatusCode: 400}))
	_, err := rejecting.Send(context.Background(), CreateUpdate{})
	require.ErrorIs(t, err, ErrRejected)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "name required", rej.Reason)

	down := newFakeSocket(nil)
	down.connected = false
	_, err = New(api, down).Send(context.Background(), CreateUpdate{})
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = New(api, nil).Send(context.Background(), CreateUpdate{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSocketCreateAck(t *testing.T) {
	api := &fakeAPI{probeErr: offline}
	s := New(api, newFakeSocket(wire.CreateAck{Success: true, SessionID: "9", RoomID: "r-9", StatusCode: 201}))

	ack, err := s.Send(context.Background(), CreateUpdate{Name: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, Ack{Route: RouteSocket, SessionID: "9", RoomID: "r-9"}, ack)
}

func TestSocketWithoutAckTimesOut(t *testing.T) {
	api := &fakeAPI{probeErr: offline}
	s := New(api, newFakeSocket(nil), WithTimeout(50*time.Millisecond))

	_, err := s.Send(context.Background(), LocationUpdate{SessionID: "1"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestOfficerUpdateAlwaysUsesSocket(t *testing.T) {
	api := &fakeAPI{}
	sock := newFakeSocket(nil)
	s := New(api, sock)

	_, err := s.Send(context.Background(), OfficerUpdate{UnitID: "U-1", Position: model.Position{Latitude: 1, Longitude: 2}})
	require.NoError(t, err)
	require.Len(t, sock.Emits(), 1)
	assert.IsType(t, wire.OfficerLocationUpdate{}, sock.Emits()[0])
}

func TestResolveOfflineIsLocal(t *testing.T) {
	s := New(&fakeAPI{probeErr: offline}, newFakeSocket(nil))
	ack, err := s.Send(context.Background(), ResolveUpdate{SessionID: "5"})
	require.NoError(t, err)
	assert.True(t, ack.Local)
	assert.Equal(t, "5", ack.SessionID)
}

func TestOpenBreakerFailsFast(t *testing.T) {
	api := &fakeAPI{updateErr: &sosapi.APIError{Sentinel: sosapi.ErrUnavailable, Operation: "update_location"}}
	cb := resilience.NewCircuitBreaker("test-transport", 2, time.Hour, resilience.WithFailurePredicate(isInfraFailure))
	s := New(api, newFakeSocket(nil), WithBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := s.Send(context.Background(), LocationUpdate{SessionID: "1"})
		require.ErrorIs(t, err, ErrUnavailable)
	}
	require.Equal(t, resilience.StateOpen, cb.State())

	_, err := s.Send(context.Background(), LocationUpdate{SessionID: "1"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 2, api.updates.Load(), "open breaker must not call the api")
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	api := &fakeAPI{updateErr: &sosapi.APIError{Sentinel: sosapi.ErrRejected, Status: http.StatusBadRequest}}
	cb := resilience.NewCircuitBreaker("test-transport-4xx", 1, time.Hour, resilience.WithFailurePredicate(isInfraFailure))
	s := New(api, nil, WithBreaker(cb))

	for i := 0; i < 3; i++ {
		_, _ = s.Send(context.Background(), LocationUpdate{SessionID: "1"})
	}
	assert.Equal(t, resilience.StateClosed, cb.State())
	assert.EqualValues(t, 3, api.updates.Load())
}

func TestServerErrorsTripBreaker(t *testing.T) {
	api := &fakeAPI{updateErr: &sosapi.APIError{Sentinel: sosapi.ErrRejected, Status: http.StatusBadGateway}}
	cb := resilience.NewCircuitBreaker("test-transport-5xx", 2, time.Hour, resilience.WithFailurePredicate(isInfraFailure))
	s := New(api, nil, WithBreaker(cb))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Send(ctx, LocationUpdate{SessionID: "1"})
		require.ErrorIs(t, err, ErrRejected)
	}
	assert.Equal(t, resilience.StateOpen, cb.State())

	_, err := s.Send(ctx, LocationUpdate{SessionID: "1"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 2, api.updates.Load())
}

func TestConcurrentReprobesCollapse(t *testing.T) {
	api := &fakeAPI{probeGate: make(chan struct{})}
	s := New(api, nil)

	var wg, ready sync.WaitGroup
	results := make([]Verdict, 5)
	for i := range results {
		wg.Add(1)
		ready.Add(1)
		go func(i int) {
			defer wg.Done()
			ready.Done()
			results[i] = s.Reprobe(context.Background())
		}(i)
	}
	ready.Wait()
	require.Eventually(t, func() bool { return api.probes.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(api.probeGate)
	wg.Wait()

	assert.EqualValues(t, 1, api.probes.Load())
	for _, v := range results {
		assert.Equal(t, VerdictOnline, v)
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/sosync/internal/dispatch"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/health"
	"github.com/ManuGH/sosync/internal/history"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, rateLimit int) (*Server, *dispatch.Aggregator, *history.Cache) {
	t.Helper()
	hist, err := history.New(kv.NewMemoryStore(), "console", 20)
	require.NoError(t, err)
	agg := dispatch.NewAggregator(hist, dispatch.WithNow(func() time.Time { return t0.Add(time.Minute) }))
	return New(Config{RateLimit: rateLimit}, agg, hist, health.NewManager("test")), agg, hist
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSessionsAndUnits(t *testing.T) {
	s, agg, _ := newTestServer(t, 0)
	ctx := context.Background()
	agg.Apply(ctx, wire.SessionCreated{SessionID: "42", RoomID: "room-42", Position: model.Position{Latitude: 28.70, Longitude: 77.10}, CreatedAt: t0})
	agg.Apply(ctx, wire.UnitLocation{UnitID: "U-1", Fix: model.Fix{Position: model.Position{Latitude: 28.69, Longitude: 77.09}, CapturedAt: t0.Add(30 * time.Second)}})

	rec := get(t, s.Handler(), "/api/v1/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	var body struct {
		Count    int                      `json:"count"`
		Sessions []model.EmergencySession `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "room-42", body.Sessions[0].RoomID)
	assert.Equal(t, 28.70, body.Sessions[0].InitialPosition.Latitude)

	rec = get(t, s.Handler(), "/api/v1/sessions/42")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s.Handler(), "/api/v1/sessions/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s.Handler(), "/api/v1/units")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unitId":"U-1"`)
}

func TestHistoryEndpoint(t *testing.T) {
	s, agg, _ := newTestServer(t, 0)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		agg.Apply(ctx, wire.SessionCreated{SessionID: id, RoomID: "r" + id, CreatedAt: t0})
		agg.Apply(ctx, wire.SessionResolved{SessionID: id, ResolvedAt: t0.Add(time.Minute)})
	}

	rec := get(t, s.Handler(), "/api/v1/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count   int                           `json:"count"`
		Records []model.ResolvedSessionRecord `json:"records"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "3", body.Records[0].SessionID)

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/v1/history?limit=abc").Code)
}

func TestProbesAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/readyz").Code)

	get(t, s.Handler(), "/api/v1/snapshot")
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sosync_http_request_duration_seconds")
}

func TestRateLimit(t *testing.T) {
	s, _, _ := newTestServer(t, 2)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/v1/units").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/v1/units").Code)
	rec := get(t, s.Handler(), "/api/v1/units")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code, "probes are not limited")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/history"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fix(lat, lon float64, at time.Time) model.Fix {
	return model.Fix{Position: model.Position{Latitude: lat, Longitude: lon}, CapturedAt: at}
}

func newTestAggregator(t *testing.T, now *time.Time) (*Aggregator, *history.Cache) {
	t.Helper()
	hist, err := history.New(kv.NewMemoryStore(), "console", 20)
	require.NoError(t, err)
	return NewAggregator(hist, WithNow(func() time.Time { return *now })), hist
}

func TestAggregator_CreateThenLocationTracksLatestFix(t *testing.T) {
	ctx := context.Background()
	now := t0
	agg, _ := newTestAggregator(t, &now)

	out := agg.Apply(ctx, wire.SessionCreated{
		SessionID: "42",
		RoomID:    "room-42",
		Name:      "Pixel 8",
		Category:  model.CategoryEmergency,
		Position:  model.Position{Latitude: 28.70, Longitude: 77.10},
		CreatedAt: t0,
	})
	require.Equal(t, OutcomeApplied, out)

	s, ok := agg.Session("42")
	require.True(t, ok)
	assert.Equal(t, model.StateActive, s.State)
	assert.Equal(t, model.Position{Latitude: 28.70, Longitude: 77.10}, s.CurrentPosition())

	assert.Equal(t, OutcomeApplied, agg.Apply(ctx, wire.LocationUpdated{SessionID: "42", Fix: fix(28.71, 77.11, t0.Add(5*time.Second))}))
	s, _ = agg.Session("42")
	assert.Equal(t, model.StateTracking, s.State)
	assert.InDelta(t, 28.71, s.LastKnown.Latitude, 1e-9)
}

func TestAggregator_OutOfOrderFixKeepsNewest(t *testing.T) {
	ctx := context.Background()
	now := t0
	agg, _ := newTestAggregator(t, &now)
	agg.Apply(ctx, wire.SessionCreated{SessionID: "7", RoomID: "r", CreatedAt: t0})

	t1, t2 := t0.Add(5*time.Second), t0.Add(10*time.Second)
	assert.Equal(t, OutcomeApplied, agg.Apply(ctx, wire.LocationUpdated{SessionID: "7", Fix: fix(1, 1, t2)}))
	assert.Equal(t, OutcomeStale, agg.Apply(ctx, wire.LocationUpdated{SessionID: "7", Fix: fix(2, 2, t1)}))
	assert.Equal(t, OutcomeStale, agg.Apply(ctx, wire.LocationUpdated{SessionID: "7", Fix: fix(3, 3, t2)}))

	s, _ := agg.Session("7")
	assert.Equal(t, t2, s.LastKnown.CapturedAt)
	assert.Equal(t, 1.0, s.LastKnown.Latitude)
}

func TestAggregator_DuplicateCreateAndUnknownSession(t *testing.T) {
	ctx := context.Background()
	now := t0
	agg, hist := newTestAggregator(t, &now)

	created := wire.SessionCreated{SessionID: "1", RoomID: "r1", Name: "first", CreatedAt: t0}
	require.Equal(t, OutcomeApplied, agg.Apply(ctx, created))
	created.Name = "second"
	assert.Equal(t, OutcomeDuplicate, agg.Apply(ctx, created))
	s, _ := agg.Session("1")
	assert.Equal(t, "first", s.OriginDeviceLabel)

	assert.Equal(t, OutcomeUnknownSession, agg.Apply(ctx, wire.LocationUpdated{SessionID: "nope", Fix: fix(1, 1, t0)}))
	assert.Equal(t, OutcomeUnknownSession, agg.Apply(ctx, wire.SessionResolved{SessionID: "nope"}))
	assert.Equal(t, OutcomeIgnored, agg.Apply(ctx, wire.Greeting{Message: "hi"}))

	recs, err := hist.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Len(t, agg.Sessions(), 1)
}

func TestAggregator_ResolveRemovesAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	now := t0
	agg, hist := newTestAggregator(t, &now)
	agg.Apply(ctx, wire.SessionCreated{SessionID: "9", RoomID: "r9", Position: model.Position{Latitude: 28.70, Longitude: 77.10}, CreatedAt: t0})
	agg.Apply(ctx, wire.LocationUpdated{SessionID: "9", Fix: fix(28.72, 77.12, t0.Add(time.Minute))})

	resolvedAt := t0.Add(3 * time.Minute)
	require.Equal(t, OutcomeApplied, agg.Apply(ctx, wire.SessionResolved{SessionID: "9", ResolvedAt: resolvedAt}))
	_, ok := agg.Session("9")
	assert.False(t, ok)

	recs, err := hist.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "9", recs[0].SessionID)
	assert.Equal(t, "dispatcher", recs[0].ResolvedBy)
	assert.Equal(t, 3*time.Minute, recs[0].ResponseDuration)
	assert.Equal(t, model.Position{Latitude: 28.72, Longitude: 77.12}, recs[0].LastPosition)

	assert.Equal(t, OutcomeUnknownSession, agg.Apply(ctx, wire.SessionResolved{SessionID: "9"}))
}

func TestAggregator_HistoryReplayAndRelayedUnit(t *testing.T) {
	ctx := context.Background()
	now := t0
	agg, _ := newTestAggregator(t, &now)
	agg.Apply(ctx, wire.SessionCreated{SessionID: "3", RoomID: "r3", CreatedAt: t0})

	out := agg.Apply(ctx, wire.LocationHistory{Updates: []wire.LocationUpdated{
		{SessionID: "3", Fix: fix(1, 1, t0.Add(1*time.Second))},
		{SessionID: "3", Fix: fix(2, 2, t0.Add(3*time.Second)), UnitID: "U-12"},
		{SessionID: "3", Fix: fix(9, 9, t0.Add(2*time.Second))},
	}})
	assert.Equal(t, OutcomeApplied, out)

	s, _ := agg.Session("3")
	assert.Equal(t, 2.0, s.LastKnown.Latitude)
	assert.Equal(t, "U-12", s.UnitDispatched)
	assert.Equal(t, OutcomeIgnored, agg.Apply(ctx, wire.LocationHistory{}))
}

func TestAggregator_UnitsGoStale(t *testing.T) {
	ctx := context.Background()
	now := t0
	hist, err := history.New(kv.NewMemoryStore(), "console", 20)
	require.NoError(t, err)
	agg := NewAggregator(hist, WithNow(func() time.Time { return now }), WithStaleAfter(time.Minute))

	require.Equal(t, OutcomeApplied, agg.Apply(ctx, wire.UnitLocation{UnitID: "A", Fix: fix(1, 1, t0)}))
	require.Equal(t, OutcomeApplied, agg.Apply(ctx, wire.UnitLocation{UnitID: "B", Fix: fix(2, 2, t0.Add(50*time.Second))}))
	assert.Equal(t, OutcomeStale, agg.Apply(ctx, wire.UnitLocation{UnitID: "A", Fix: fix(5, 5, t0.Add(-time.Second))}))

	assert.Len(t, agg.Units(t0.Add(30*time.Second)), 2)

	units := agg.Units(t0.Add(90 * time.Second))
	require.Len(t, units, 1)
	assert.Equal(t, "B", units[0].UnitID)
}

func TestAggregator_SnapshotIsConsistentCopy(t *testing.T) {
	ctx := context.Background()
	now := t0.Add(time.Minute)
	agg, _ := newTestAggregator(t, &now)

	agg.Apply(ctx, wire.SessionCreated{SessionID: "2", RoomID: "r2", Category: model.CategoryAlert, Position: model.Position{Latitude: 10, Longitude: 20}, CreatedAt: t0.Add(time.Second)})
	agg.Apply(ctx, wire.SessionCreated{SessionID: "1", RoomID: "r1", Position: model.Position{Latitude: 28.70, Longitude: 77.10}, CreatedAt: t0})
	agg.Apply(ctx, wire.UnitLocation{UnitID: "U-1", Fix: fix(28.69, 77.09, t0.Add(30*time.Second))})
	require.True(t, agg.AssignUnit("1", "U-1"))
	assert.False(t, agg.AssignUnit("missing", "U-1"))

	want := Snapshot{
		TakenAt: now,
		Sessions: []model.EmergencySession{
			{SessionID: "1", RoomID: "r1", State: model.StateActive, InitialPosition: model.Position{Latitude: 28.70, Longitude: 77.10}, UnitDispatched: "U-1", CreatedAt: t0},
			{SessionID: "2", RoomID: "r2", Category: model.CategoryAlert, State: model.StateActive, InitialPosition: model.Position{Latitude: 10, Longitude: 20}, CreatedAt: t0.Add(time.Second)},
		},
		Units: []model.DispatchUnit{
			{UnitID: "U-1", LastPosition: model.Position{Latitude: 28.69, Longitude: 77.09}, LastSeenAt: t0.Add(30 * time.Second)},
		},
	}
	got := agg.Snapshot()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	got.Sessions[0].UnitDispatched = "mutated"
	s, _ := agg.Session("1")
	assert.Equal(t, "U-1", s.UnitDispatched)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFix_KeepsMaximumCapturedAt(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fixes := make([]Fix, 0, 20)
	for i := 0; i < 20; i++ {
		fixes = append(fixes, Fix{
			Position:   Position{Latitude: 28.70 + float64(i)/100, Longitude: 77.10},
			CapturedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	want := fixes[len(fixes)-1]

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		shuffled := append([]Fix(nil), fixes...)
		// duplicate a few entries to exercise idempotency
		shuffled = append(shuffled, fixes[rng.Intn(len(fixes))], fixes[rng.Intn(len(fixes))])
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		s := &EmergencySession{}
		var maxSeen time.Time
		for _, f := range shuffled {
			s.ApplyFix(f)
			if f.CapturedAt.After(maxSeen) {
				maxSeen = f.CapturedAt
			}
			require.Equal(t, maxSeen, s.LastKnown.CapturedAt)
		}
		assert.Equal(t, want, s.LastKnown)
	}
}

func TestApplyFix_RejectsStaleAndZero(t *testing.T) {
	t2 := time.Date(2025, 3, 1, 12, 0, 2, 0, time.UTC)
	t1 := t2.Add(-time.Second)

	s := &EmergencySession{}
	assert.False(t, s.ApplyFix(Fix{Position: Position{Latitude: 1}}))
	assert.True(t, s.ApplyFix(Fix{Position: Position{Latitude: 2}, CapturedAt: t2}))
	assert.False(t, s.ApplyFix(Fix{Position: Position{Latitude: 1}, CapturedAt: t1}))
	assert.False(t, s.ApplyFix(Fix{Position: Position{Latitude: 3}, CapturedAt: t2}))
	assert.Equal(t, 2.0, s.LastKnown.Latitude)
}

func TestCurrentPositionFallsBackToInitial(t *testing.T) {
	s := &EmergencySession{InitialPosition: Position{Latitude: 28.70, Longitude: 77.10}}
	assert.Equal(t, s.InitialPosition, s.CurrentPosition())
}

func TestCloneIsDeep(t *testing.T) {
	at := time.Now()
	s := &EmergencySession{SessionID: "1", ResolvedAt: &at}
	c := s.Clone()
	*c.ResolvedAt = at.Add(time.Hour)
	assert.Equal(t, at, *s.ResolvedAt)
}

func TestDispatchUnitStaleness(t *testing.T) {
	now := time.Now()
	u := DispatchUnit{UnitID: "PCR-7", LastSeenAt: now.Add(-3 * time.Minute)}
	assert.True(t, u.IsStale(now, 2*time.Minute))
	assert.False(t, u.IsStale(now, 5*time.Minute))
	assert.False(t, u.IsStale(now, 0))
}

func TestNewResolvedRecord(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &EmergencySession{SessionID: "9", CreatedAt: created, InitialPosition: Position{Latitude: 1, Longitude: 2}}
	rec := NewResolvedRecord(s, "user", created.Add(90*time.Second))
	assert.Equal(t, "9", rec.SessionID)
	assert.Equal(t, 90*time.Second, rec.ResponseDuration)
	assert.Equal(t, Position{Latitude: 1, Longitude: 2}, rec.LastPosition)
}

func TestCategoryCodes(t *testing.T) {
	assert.Equal(t, 0, CategoryEmergency.WireCode())
	assert.Equal(t, 1, CategoryAlert.WireCode())
	assert.Equal(t, CategoryAlert, CategoryFromCode(1))
	assert.Equal(t, CategoryEmergency, CategoryFromCode(7))

	c, err := ParseCategory("alert")
	require.NoError(t, err)
	assert.Equal(t, CategoryAlert, c)
	_, err = ParseCategory("fire")
	assert.Error(t, err)
}

func TestPositionValidate(t *testing.T) {
	assert.NoError(t, Position{Latitude: 28.70, Longitude: 77.10}.Validate())
	assert.Error(t, Position{Latitude: 91}.Validate())
	assert.Error(t, Position{Longitude: -181}.Validate())
}

func TestClassify(t *testing.T) {
	cases := map[error]ErrorKind{
		nil: KindNone,
		fmt.Errorf("send: %w", ErrTransportTimeout): KindTransportTimeout,
		context.DeadlineExceeded:                    KindTransportTimeout,
		fmt.Errorf("x: %w", ErrTransportRejected):   KindTransportRejected,
		ErrTransportUnavailable:                     KindTransportUnavailable,
		ErrAuthExpired:                              KindAuthExpired,
		ErrDataConflict:                             KindDataConflict,
		ErrPermissionDenied:                         KindPermissionDenied,
		fmt.Errorf("boom"):                          KindUnknown,
	}
	for err, want := range cases {
		assert.Equal(t, want, Classify(err), "err=%v", err)
	}
	assert.Equal(t, RCancelled, ReasonFor(context.Canceled))
	assert.Equal(t, RTransportRejected, ReasonFor(ErrTransportRejected))
}

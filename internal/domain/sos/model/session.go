// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"fmt"
	"time"
)

// Position is a WGS84 coordinate.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects coordinates outside the WGS84 range.
func (p Position) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", p.Longitude)
	}
	return nil
}

// Fix is a position together with the instant it was sampled.
type Fix struct {
	Position
	CapturedAt time.Time `json:"capturedAt"`
}

// IsZero reports whether no fix has been recorded.
func (f Fix) IsZero() bool { return f.CapturedAt.IsZero() }

// EmergencySession is one distress episode from trigger to resolution.
type EmergencySession struct {
	SessionID         string         `json:"sessionId,omitempty"`
	RoomID            string         `json:"roomId,omitempty"`
	OriginDeviceLabel string         `json:"originDeviceLabel"`
	Category          Category       `json:"category"`
	State             LifecycleState `json:"state"`
	Reason            ReasonCode     `json:"reason,omitempty"`
	InitialPosition   Position       `json:"initialPosition"`
	LastKnown         Fix            `json:"lastKnown"`
	UnitDispatched    string         `json:"unitDispatched,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	ResolvedAt        *time.Time     `json:"resolvedAt,omitempty"`
}

// ApplyFix records f as the last known position if it is strictly newer than
// the stored one. Stale and duplicate fixes are discarded and reported false.
func (s *EmergencySession) ApplyFix(f Fix) bool {
	if f.CapturedAt.IsZero() {
		return false
	}
	if !s.LastKnown.IsZero() && !f.CapturedAt.After(s.LastKnown.CapturedAt) {
		return false
	}
	s.LastKnown = f
	return true
}

// CurrentPosition returns the best known position: the last fix, or the
// initial position when no fix has arrived yet.
func (s *EmergencySession) CurrentPosition() Position {
	if s.LastKnown.IsZero() {
		return s.InitialPosition
	}
	return s.LastKnown.Position
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *EmergencySession) Clone() *EmergencySession {
	if s == nil {
		return nil
	}
	out := *s
	if s.ResolvedAt != nil {
		t := *s.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

// DispatchUnit is a responding unit whose position is reported independently
// of any session.
type DispatchUnit struct {
	UnitID       string    `json:"unitId"`
	LastPosition Position  `json:"lastPosition"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// IsStale reports whether the unit has not been seen within window.
// A non-positive window disables staleness.
func (u DispatchUnit) IsStale(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(u.LastSeenAt) > window
}

// ResolvedSessionRecord is the local-history entry written on resolution.
type ResolvedSessionRecord struct {
	SessionID        string        `json:"sessionId"`
	ResolvedAt       time.Time     `json:"resolvedAt"`
	ResolvedBy       string        `json:"resolvedBy"`
	LastPosition     Position      `json:"lastPosition"`
	ResponseDuration time.Duration `json:"responseDuration"`
}

// NewResolvedRecord derives a history record from a resolved session.
func NewResolvedRecord(s *EmergencySession, resolvedBy string, at time.Time) ResolvedSessionRecord {
	var d time.Duration
	if !s.CreatedAt.IsZero() && at.After(s.CreatedAt) {
		d = at.Sub(s.CreatedAt)
	}
	return ResolvedSessionRecord{
		SessionID:        s.SessionID,
		ResolvedAt:       at,
		ResolvedBy:       resolvedBy,
		LastPosition:     s.CurrentPosition(),
		ResponseDuration: d,
	}
}

// EmergencyContact is a person notified by the user out of band.
type EmergencyContact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	Email       string    `json:"email,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
}

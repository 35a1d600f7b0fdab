// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

// Update is an outbound message. The set of implementations is closed.
type Update interface {
	Kind() string
	isUpdate()
}

// CreateUpdate opens a new session.
type CreateUpdate struct {
	Name     string
	Category model.Category
	Position model.Position
}

// LocationUpdate reports a position for an existing session.
type LocationUpdate struct {
	SessionID  string
	Position   model.Position
	CapturedAt time.Time
}

// ResolveUpdate closes a session the device owns.
type ResolveUpdate struct {
	SessionID string
}

// OfficerUpdate reports a responding unit's own position. The backend only
// accepts these over the socket.
type OfficerUpdate struct {
	UnitID     string
	Position   model.Position
	CapturedAt time.Time
}

func (CreateUpdate) Kind() string   { return "create" }
func (LocationUpdate) Kind() string { return "location" }
func (ResolveUpdate) Kind() string  { return "resolve" }
func (OfficerUpdate) Kind() string  { return "officer" }

func (CreateUpdate) isUpdate()   {}
func (LocationUpdate) isUpdate() {}
func (ResolveUpdate) isUpdate()  {}
func (OfficerUpdate) isUpdate()  {}

func sessionOf(u Update) string {
	switch v := u.(type) {
	case LocationUpdate:
		return v.SessionID
	case ResolveUpdate:
		return v.SessionID
	}
	return ""
}

// Ack is the acknowledgement of a successful send.
type Ack struct {
	Route     Route
	SessionID string
	RoomID    string
	// Local is set when the update had no remote counterpart on the chosen
	// route and was accepted locally.
	Local bool
}

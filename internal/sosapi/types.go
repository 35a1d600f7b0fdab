// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sosapi

import (
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/wire"
)

// CreateResult is the backend answer to create-sos.
type CreateResult struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	SessionID wire.ID `json:"sos_id"`
	RoomID    string  `json:"room_id"`
}

// LocationRecord is a stored location update.
type LocationRecord struct {
	ID        wire.ID        `json:"id"`
	SessionID wire.ID        `json:"sos_request"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Timestamp wire.Timestamp `json:"timestamp"`
}

// Assignment is an officer attached to a session.
type Assignment struct {
	ID          wire.ID        `json:"id"`
	SessionID   wire.ID        `json:"sos_request"`
	OfficerName string         `json:"officer_name"`
	UnitNumber  string         `json:"unit_number"`
	AssignedAt  wire.Timestamp `json:"assigned_at"`
}

// SessionRecord is the backend representation of an SOS.
type SessionRecord struct {
	ID                   wire.ID          `json:"id"`
	Name                 string           `json:"name"`
	SOSType              int              `json:"sos_type"`
	StatusFlag           int              `json:"status_flag"`
	InitialLatitude      float64          `json:"initial_latitude"`
	InitialLongitude     float64          `json:"initial_longitude"`
	UnitNumberDispatched *string          `json:"unit_number_dispatched"`
	AcknowledgedFlag     int              `json:"acknowledged_flag"`
	RoomID               *string          `json:"room_id"`
	CreatedAt            wire.Timestamp   `json:"created_at"`
	UpdatedAt            wire.Timestamp   `json:"updated_at"`
	LocationUpdates      []LocationRecord `json:"location_updates,omitempty"`
	OfficerAssignments   []Assignment     `json:"officer_assignments,omitempty"`
}

// Resolved reports the backend status flag.
func (r SessionRecord) Resolved() bool { return r.StatusFlag == 1 }

// Session converts the record into the shared session model. The last known
// fix is the newest stored location update.
func (r SessionRecord) Session() *model.EmergencySession {
	s := &model.EmergencySession{
		SessionID:         r.ID.String(),
		OriginDeviceLabel: r.Name,
		Category:          model.CategoryFromCode(r.SOSType),
		State:             model.StateTracking,
		InitialPosition:   model.Position{Latitude: r.InitialLatitude, Longitude: r.InitialLongitude},
		CreatedAt:         r.CreatedAt.Time,
	}
	if r.RoomID != nil {
		s.RoomID = *r.RoomID
	}
	if r.UnitNumberDispatched != nil {
		s.UnitDispatched = *r.UnitNumberDispatched
	}
	for _, u := range r.LocationUpdates {
		s.ApplyFix(model.Fix{
			Position:   model.Position{Latitude: u.Latitude, Longitude: u.Longitude},
			CapturedAt: u.Timestamp.Time,
		})
	}
	if r.Resolved() {
		s.State = model.StateResolved
		if !r.UpdatedAt.IsZero() {
			t := r.UpdatedAt.Time
			s.ResolvedAt = &t
		}
	}
	return s
}

type createRequest struct {
	Name      string  `json:"name"`
	SOSType   int     `json:"sos_type"`
	Latitude  float64 `json:"initial_latitude"`
	Longitude float64 `json:"initial_longitude"`
}

type locationRequest struct {
	SessionID wire.ID `json:"sos_request"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type assignRequest struct {
	SessionID   wire.ID `json:"sos_request"`
	OfficerName string  `json:"officer_name"`
	UnitNumber  string  `json:"unit_number"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AuthToken string `json:"auth_token"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type resolveResponse struct {
	Status string        `json:"status"`
	SOS    SessionRecord `json:"sos"`
}

type assignResponse struct {
	Status  string     `json:"status"`
	Officer Assignment `json:"officer"`
}

type listResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Data    []SessionRecord `json:"data"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

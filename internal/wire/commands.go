// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package wire

import (
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

// Outbound event names understood by the socket server.
const (
	NameJoinSOSChannel    = "join_sos_channel"
	NameJoinSOSRoom       = "join_sos_room"
	NameJoinOfficerRoom   = "join_officer_room"
	NameJoinOfficerUpdate = "join_officer_update"
	NameCreateSOS         = "create_sos"
	NameUpdateLocation    = "update_location"
	NameOfficerLocUpdate  = "officer_location_update"
)

// Command is an outbound real-time event. The set of implementations is closed.
type Command interface {
	CommandName() string
	payload() any
}

// JoinSOSChannel subscribes to the global new-session channel.
type JoinSOSChannel struct{}

// JoinSOSRoom subscribes to one session's location updates.
type JoinSOSRoom struct {
	RoomID string
}

// JoinOfficerRoom subscribes to updates relayed to a unit.
type JoinOfficerRoom struct {
	UnitNumber string
}

// JoinOfficerUpdate subscribes to every unit's self-reported location.
type JoinOfficerUpdate struct{}

// CreateSOS asks the server to open a session.
type CreateSOS struct {
	Name     string
	Category model.Category
	Position model.Position
}

// UpdateLocation reports a session position.
type UpdateLocation struct {
	SessionID string
	Position  model.Position
}

// OfficerLocationUpdate reports a unit position.
type OfficerLocationUpdate struct {
	UnitID    string
	Position  model.Position
	Timestamp time.Time
}

func (JoinSOSChannel) CommandName() string        { return NameJoinSOSChannel }
func (JoinSOSRoom) CommandName() string           { return NameJoinSOSRoom }
func (JoinOfficerRoom) CommandName() string       { return NameJoinOfficerRoom }
func (JoinOfficerUpdate) CommandName() string     { return NameJoinOfficerUpdate }
func (CreateSOS) CommandName() string             { return NameCreateSOS }
func (UpdateLocation) CommandName() string        { return NameUpdateLocation }
func (OfficerLocationUpdate) CommandName() string { return NameOfficerLocUpdate }

type emptyPayload struct{}

type roomPayload struct {
	RoomID string `json:"room_id"`
}

type unitRoomPayload struct {
	UnitNumber string `json:"unit_number"`
}

type createPayload struct {
	Name             string  `json:"name"`
	SOSType          int     `json:"sos_type"`
	InitialLatitude  float64 `json:"initial_latitude"`
	InitialLongitude float64 `json:"initial_longitude"`
}

type updatePayload struct {
	SOSRequest ID      `json:"sos_request"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

type officerPayload struct {
	UnitID    string    `json:"unit_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp Timestamp `json:"timestamp"`
}

func (JoinSOSChannel) payload() any    { return emptyPayload{} }
func (c JoinSOSRoom) payload() any     { return roomPayload{RoomID: c.RoomID} }
func (c JoinOfficerRoom) payload() any { return unitRoomPayload{UnitNumber: c.UnitNumber} }
func (JoinOfficerUpdate) payload() any { return emptyPayload{} }

func (c CreateSOS) payload() any {
	return createPayload{
		Name:             c.Name,
		SOSType:          c.Category.WireCode(),
		InitialLatitude:  c.Position.Latitude,
		InitialLongitude: c.Position.Longitude,
	}
}

func (c UpdateLocation) payload() any {
	return updatePayload{
		SOSRequest: ID(c.SessionID),
		Latitude:   c.Position.Latitude,
		Longitude:  c.Position.Longitude,
	}
}

func (c OfficerLocationUpdate) payload() any {
	return officerPayload{
		UnitID:    c.UnitID,
		Latitude:  c.Position.Latitude,
		Longitude: c.Position.Longitude,
		Timestamp: Timestamp{Time: c.Timestamp},
	}
}

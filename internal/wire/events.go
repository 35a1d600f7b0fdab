// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package wire

import (
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

// Inbound event names emitted by the socket server.
const (
	NameConnect            = "connect"
	NameDisconnect         = "disconnect"
	NameConnectError       = "connect_error"
	NameConnectionReady    = "connection_established"
	NameNewSOS             = "new_sos"
	NameLocationHistory    = "location_history"
	NameUnitLoc            = "unit_loc"
	NameUnitLocationUpdate = "unit_location_update"
	NameTrackingUpdate     = "location_tracking_update"
	NameSOSResolved        = "sos_resolved"
	NameCreateSOSResponse  = "create_sos_response"
	NameUpdateLocResponse  = "update_location_response"
	NameRoomJoined         = "room_joined"
	NameError              = "error"
)

// Event is an inbound real-time event. The set of implementations is closed.
type Event interface {
	EventName() string
	isEvent()
}

// SessionCreated announces a new SOS on the global channel.
type SessionCreated struct {
	SessionID string
	RoomID    string
	Name      string
	Category  model.Category
	Position  model.Position
	CreatedAt time.Time
}

// LocationUpdated is one position report for a session.
type LocationUpdated struct {
	SessionID string
	Fix       model.Fix
	// UnitID is set when the update was relayed through a unit room.
	UnitID string
}

// LocationHistory is the replay batch sent after joining a session room.
type LocationHistory struct {
	Updates []LocationUpdated
}

// SessionResolved marks a session as closed by the dispatcher side.
type SessionResolved struct {
	SessionID  string
	ResolvedBy string
	ResolvedAt time.Time
}

// UnitLocation is a responding unit's self-reported position.
type UnitLocation struct {
	UnitID string
	Fix    model.Fix
}

// CreateAck answers a create_sos command sent over the socket.
type CreateAck struct {
	Success    bool
	SessionID  string
	RoomID     string
	Error      string
	StatusCode int
}

// UpdateAck answers an update_location command sent over the socket.
type UpdateAck struct {
	Success    bool
	Status     string
	Error      string
	StatusCode int
}

// RoomJoined confirms a room or channel subscription.
type RoomJoined struct {
	RoomID     string
	UnitNumber string
	Channel    string
	Message    string
}

// ServerError is an application-level error emitted by the server.
type ServerError struct {
	Message string
}

// Greeting is the server's welcome message after connecting.
type Greeting struct {
	Message string
}

// Connected is raised when the namespace handshake completes.
type Connected struct {
	SID string
}

// Disconnected is raised when the connection drops or is closed.
type Disconnected struct {
	Reason string
}

// ConnectError is raised when the server refuses the namespace connect.
type ConnectError struct {
	Message string
}

func (SessionCreated) EventName() string  { return NameNewSOS }
func (LocationUpdated) EventName() string { return NameLocationHistory }
func (LocationHistory) EventName() string { return NameLocationHistory }
func (SessionResolved) EventName() string { return NameSOSResolved }
func (UnitLocation) EventName() string    { return NameUnitLoc }
func (CreateAck) EventName() string       { return NameCreateSOSResponse }
func (UpdateAck) EventName() string       { return NameUpdateLocResponse }
func (RoomJoined) EventName() string      { return NameRoomJoined }
func (ServerError) EventName() string     { return NameError }
func (Greeting) EventName() string        { return NameConnectionReady }
func (Connected) EventName() string       { return NameConnect }
func (Disconnected) EventName() string    { return NameDisconnect }
func (ConnectError) EventName() string    { return NameConnectError }

func (SessionCreated) isEvent()  {}
func (LocationUpdated) isEvent() {}
func (LocationHistory) isEvent() {}
func (SessionResolved) isEvent() {}
func (UnitLocation) isEvent()    {}
func (CreateAck) isEvent()       {}
func (UpdateAck) isEvent()       {}
func (RoomJoined) isEvent()      {}
func (ServerError) isEvent()     {}
func (Greeting) isEvent()        {}
func (Connected) isEvent()       {}
func (Disconnected) isEvent()    {}
func (ConnectError) isEvent()    {}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import "github.com/ManuGH/sosync/internal/wire"

// Bus topics the connection publishes inbound events on.
const (
	TopicSessions = "sessions"
	TopicResolved = "resolved"
	TopicUnits    = "units"
	TopicAcks     = "acks"
	TopicConn     = "conn"
	TopicErrors   = "errors"

	locationPrefix = "location/"
)

// TopicLocation is the per-session location topic.
func TopicLocation(sessionID string) string { return locationPrefix + sessionID }

// Routed pairs an event with the topic it is published on.
type Routed struct {
	Topic string
	Event wire.Event
}

// Route fans an inbound event out to topics. Replay batches are split so
// each session's subscribers see plain location updates.
func Route(ev wire.Event) []Routed {
	switch e := ev.(type) {
	case wire.SessionCreated:
		return []Routed{{TopicSessions, e}}
	case wire.LocationUpdated:
		return []Routed{{TopicLocation(e.SessionID), e}}
	case wire.LocationHistory:
		out := make([]Routed, 0, len(e.Updates))
		for _, u := range e.Updates {
			out = append(out, Routed{TopicLocation(u.SessionID), u})
		}
		return out
	case wire.SessionResolved:
		return []Routed{{TopicResolved, e}}
	case wire.UnitLocation:
		return []Routed{{TopicUnits, e}}
	case wire.CreateAck, wire.UpdateAck:
		return []Routed{{TopicAcks, e}}
	case wire.ServerError:
		return []Routed{{TopicErrors, e}}
	case wire.Connected, wire.Disconnected, wire.ConnectError, wire.Greeting, wire.RoomJoined:
		return []Routed{{TopicConn, e}}
	default:
		return nil
	}
}

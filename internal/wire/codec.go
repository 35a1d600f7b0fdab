// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

var (
	// ErrUnknownEvent is returned for event names outside the closed set.
	ErrUnknownEvent = errors.New("wire: unknown event")
	// ErrMalformed is returned when a known event carries an unusable payload.
	ErrMalformed = errors.New("wire: malformed payload")
)

type newSOSPayload struct {
	SOSID     ID        `json:"sos_id"`
	RoomID    ID        `json:"room_id"`
	Name      string    `json:"name"`
	SOSType   int       `json:"sos_type"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt Timestamp `json:"created_at"`
}

type locationPayload struct {
	SOSID      ID        `json:"sos_id"`
	UnitNumber ID        `json:"unit_number"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  Timestamp `json:"timestamp"`
}

type historyPayload struct {
	Updates *[]locationPayload `json:"updates"`
}

type unitPayload struct {
	UnitID     ID        `json:"unit_id"`
	UnitNumber ID        `json:"unit_number"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  Timestamp `json:"timestamp"`
}

type resolvedPayload struct {
	SOSID      ID        `json:"sos_id"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt Timestamp `json:"resolved_at"`
}

type ackPayload struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Data       *struct {
		SOSID  ID     `json:"sos_id"`
		RoomID ID     `json:"room_id"`
		Status string `json:"status"`
	} `json:"data"`
}

type roomJoinedPayload struct {
	RoomID     ID     `json:"room_id"`
	UnitNumber ID     `json:"unit_number"`
	Channel    string `json:"channel"`
	Message    string `json:"message"`
}

type messagePayload struct {
	Message string `json:"message"`
	SID     string `json:"sid"`
}

// Decode converts a named event and its JSON payload into a typed variant.
func Decode(name string, payload json.RawMessage) (Event, error) {
	switch name {
	case NameNewSOS:
		var p newSOSPayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		if p.SOSID == "" {
			return nil, fmt.Errorf("%w: %s without sos_id", ErrMalformed, name)
		}
		return SessionCreated{
			SessionID: p.SOSID.String(),
			RoomID:    p.RoomID.String(),
			Name:      p.Name,
			Category:  model.CategoryFromCode(p.SOSType),
			Position:  model.Position{Latitude: p.Latitude, Longitude: p.Longitude},
			CreatedAt: p.CreatedAt.Time,
		}, nil

	case NameLocationHistory:
		var h historyPayload
		if err := unmarshal(name, payload, &h); err != nil {
			return nil, err
		}
		if h.Updates != nil {
			out := LocationHistory{Updates: make([]LocationUpdated, 0, len(*h.Updates))}
			for _, u := range *h.Updates {
				if u.SOSID == "" {
					continue
				}
				out.Updates = append(out.Updates, u.toEvent())
			}
			return out, nil
		}
		return decodeLocation(name, payload)

	case NameUnitLocationUpdate, NameTrackingUpdate:
		return decodeLocation(name, payload)

	case NameUnitLoc:
		var p unitPayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		id := p.UnitID
		if id == "" {
			id = p.UnitNumber
		}
		if id == "" {
			return nil, fmt.Errorf("%w: %s without unit_id", ErrMalformed, name)
		}
		return UnitLocation{
			UnitID: id.String(),
			Fix: model.Fix{
				Position:   model.Position{Latitude: p.Latitude, Longitude: p.Longitude},
				CapturedAt: p.Timestamp.Time,
			},
		}, nil

	case NameSOSResolved:
		var p resolvedPayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		if p.SOSID == "" {
			return nil, fmt.Errorf("%w: %s without sos_id", ErrMalformed, name)
		}
		return SessionResolved{SessionID: p.SOSID.String(), ResolvedBy: p.ResolvedBy, ResolvedAt: p.ResolvedAt.Time}, nil

	case NameCreateSOSResponse:
		var p ackPayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		ack := CreateAck{Success: p.Success, Error: p.Error, StatusCode: p.StatusCode}
		if p.Data != nil {
			ack.SessionID = p.Data.SOSID.String()
			ack.RoomID = p.Data.RoomID.String()
		}
		return ack, nil

	case NameUpdateLocResponse:
		var p ackPayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		ack := UpdateAck{Success: p.Success, Error: p.Error, StatusCode: p.StatusCode}
		if p.Data != nil {
			ack.Status = p.Data.Status
		}
		return ack, nil

	case NameRoomJoined:
		var p roomJoinedPayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		return RoomJoined{RoomID: p.RoomID.String(), UnitNumber: p.UnitNumber.String(), Channel: p.Channel, Message: p.Message}, nil

	case NameError:
		var p messagePayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		return ServerError{Message: p.Message}, nil

	case NameConnectionReady:
		var p messagePayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		return Greeting{Message: p.Message}, nil

	case NameConnect:
		var p messagePayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		return Connected{SID: p.SID}, nil

	case NameConnectError:
		var p messagePayload
		if err := unmarshal(name, payload, &p); err != nil {
			return nil, err
		}
		return ConnectError{Message: p.Message}, nil

	case NameDisconnect:
		var reason string
		if len(bytes.TrimSpace(payload)) > 0 {
			_ = json.Unmarshal(payload, &reason)
		}
		return Disconnected{Reason: reason}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// Encode returns the event name and JSON payload for an outbound command.
func Encode(c Command) (string, json.RawMessage, error) {
	b, err := json.Marshal(c.payload())
	if err != nil {
		return "", nil, fmt.Errorf("wire: encode %s: %w", c.CommandName(), err)
	}
	return c.CommandName(), b, nil
}

func decodeLocation(name string, payload json.RawMessage) (Event, error) {
	var p locationPayload
	if err := unmarshal(name, payload, &p); err != nil {
		return nil, err
	}
	if p.SOSID == "" {
		return nil, fmt.Errorf("%w: %s without sos_id", ErrMalformed, name)
	}
	return p.toEvent(), nil
}

func (p locationPayload) toEvent() LocationUpdated {
	return LocationUpdated{
		SessionID: p.SOSID.String(),
		UnitID:    p.UnitNumber.String(),
		Fix: model.Fix{
			Position:   model.Position{Latitude: p.Latitude, Longitude: p.Longitude},
			CapturedAt: p.Timestamp.Time,
		},
	}
}

func unmarshal(name string, payload json.RawMessage, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRoomID    = "room_id"
	FieldUnitID    = "unit_id"
	FieldRequestID = "request_id"
	FieldEntity    = "entity"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldRoute     = "route"
	FieldVerdict   = "verdict"
	FieldTopic     = "topic"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Location fields
	FieldLatitude   = "latitude"
	FieldLongitude  = "longitude"
	FieldCapturedAt = "captured_at"

	// Network fields
	FieldEndpoint = "endpoint"
	FieldBaseURL  = "base_url"
	FieldStatus   = "status"
)

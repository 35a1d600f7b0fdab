// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"context"
	"errors"
)

// Sentinel errors shared across transports and components. Packages alias
// these so callers can match with errors.Is regardless of origin.
var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrTransportTimeout     = errors.New("transport: timed out")
	ErrTransportRejected    = errors.New("transport: rejected")
	ErrTransportUnavailable = errors.New("transport: unavailable")
	ErrDataConflict         = errors.New("data conflict")
	ErrAuthExpired          = errors.New("auth expired")
)

// ErrorKind is the user-facing error taxonomy.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindPermissionDenied     ErrorKind = "PermissionDenied"
	KindTransportTimeout     ErrorKind = "TransportTimeout"
	KindTransportRejected    ErrorKind = "TransportRejected"
	KindTransportUnavailable ErrorKind = "TransportUnavailable"
	KindDataConflict         ErrorKind = "DataConflict"
	KindAuthExpired          ErrorKind = "AuthExpired"
	KindUnknown              ErrorKind = "Unknown"
)

// Classify maps err onto the taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthExpired):
		return KindAuthExpired
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrTransportTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTransportTimeout
	case errors.Is(err, ErrTransportRejected):
		return KindTransportRejected
	case errors.Is(err, ErrTransportUnavailable):
		return KindTransportUnavailable
	case errors.Is(err, ErrDataConflict):
		return KindDataConflict
	default:
		return KindUnknown
	}
}

// ReasonFor maps an error to the reason code recorded on a failed session.
func ReasonFor(err error) ReasonCode {
	switch Classify(err) {
	case KindNone:
		return RNone
	case KindAuthExpired:
		return RAuthExpired
	case KindPermissionDenied:
		return RPermissionDenied
	case KindTransportTimeout:
		return RTransportTimeout
	case KindTransportRejected:
		return RTransportRejected
	case KindTransportUnavailable:
		return RTransportUnavailable
	}
	if errors.Is(err, context.Canceled) {
		return RCancelled
	}
	return RUnknown
}

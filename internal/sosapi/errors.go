// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sosapi

import (
	"errors"
	"fmt"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrTimeout      = model.ErrTransportTimeout
	ErrRejected     = model.ErrTransportRejected
	ErrUnavailable  = model.ErrTransportUnavailable
	ErrAuthExpired  = model.ErrAuthExpired
	ErrNotFound     = fmt.Errorf("%w: resource not found", model.ErrTransportRejected)
	ErrBadResponse  = errors.New("backend: malformed response")
	ErrUnauthorized = fmt.Errorf("%w: not authenticated", model.ErrAuthExpired)
)

// APIError wraps a sentinel with the failing operation and HTTP context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("sosapi: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

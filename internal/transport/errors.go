// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"errors"
	"fmt"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/sosapi"
)

var (
	ErrTimeout     = model.ErrTransportTimeout
	ErrRejected    = model.ErrTransportRejected
	ErrUnavailable = model.ErrTransportUnavailable
)

// RejectedError carries the server-reported reason for a refused update.
type RejectedError struct {
	Route  Route
	Reason string
	Status int
	Err    error
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("transport: %s route rejected update", e.Route)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

func (e *RejectedError) Unwrap() error { return e.Err }

// outcome is the metric label for a send result.
func outcome(err error) string {
	switch model.Classify(err) {
	case model.KindNone:
		return "ok"
	case model.KindTransportTimeout:
		return "timeout"
	case model.KindTransportRejected:
		return "rejected"
	case model.KindTransportUnavailable:
		return "unavailable"
	case model.KindAuthExpired:
		return "auth_expired"
	}
	return "error"
}

// isInfraFailure reports errors that should trip the HTTP breaker: timeouts,
// unreachable hosts and 5xx answers. A 4xx rejection proves the backend is up.
func isInfraFailure(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		return true
	}
	var apiErr *sosapi.APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

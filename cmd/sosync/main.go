// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command sosync runs the device and console sides of the emergency-session
// synchronizer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

// Exit codes by error class.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitUnavailable = 3
	exitRejected    = 4
	exitAuth        = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	switch model.Classify(err) {
	case model.KindAuthExpired, model.KindPermissionDenied:
		return exitAuth
	case model.KindTransportRejected, model.KindDataConflict:
		return exitRejected
	case model.KindTransportUnavailable, model.KindTransportTimeout:
		return exitUnavailable
	default:
		return exitFailure
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"

	"github.com/ManuGH/sosync/internal/bus"
	"github.com/ManuGH/sosync/internal/device"
	"github.com/ManuGH/sosync/internal/realtime"
	"golang.org/x/time/rate"
)

// dialRealtime connects to the configured or remembered socket endpoint.
// It returns a nil Conn when no endpoint is known.
func (a *app) dialRealtime(ctx context.Context) (*realtime.Conn, error) {
	endpoint, err := device.ResolveEndpoint(ctx, a.store, a.cfg.Realtime.Endpoint)
	if err != nil {
		return nil, err
	}
	if endpoint == "" {
		return nil, nil
	}
	return realtime.Dial(ctx, realtime.Options{
		Endpoint:  endpoint,
		Path:      a.cfg.Realtime.Path,
		EmitRate:  rate.Limit(a.cfg.Realtime.EmitRate),
		EmitBurst: a.cfg.Realtime.EmitBurst,
		Reconnect: a.cfg.Realtime.Reconnect,
	}, bus.NewMemoryBus())
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/ManuGH/sosync/internal/validate"
)

var storageBackends = []string{kv.BackendFile, kv.BackendSQLite, kv.BackendBadger, kv.BackendRedis, kv.BackendMemory}

// Validate checks cfg and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)

	// The device needs at least one way to reach dispatch. An empty realtime
	// endpoint may still be filled from the stored one at startup.
	if strings.TrimSpace(cfg.API.BaseURL) != "" {
		v.URL("api.baseURL", cfg.API.BaseURL, []string{"http", "https"})
	}
	v.DurationRange("api.timeout", cfg.API.Timeout, 500*time.Millisecond, 2*time.Minute)
	if cfg.API.ProbePath != "" && !strings.HasPrefix(cfg.API.ProbePath, "/") {
		v.AddError("api.probePath", "must start with /", cfg.API.ProbePath)
	}

	switch ep := cfg.Realtime.Endpoint; {
	case ep == "":
	case strings.Contains(ep, "://"):
		v.URL("realtime.endpoint", ep, []string{"ws", "wss", "http", "https"})
	default:
		v.HostPort("realtime.endpoint", ep)
	}
	if !strings.HasPrefix(cfg.Realtime.Path, "/") {
		v.AddError("realtime.path", "must start with /", cfg.Realtime.Path)
	}
	if cfg.Realtime.EmitRate <= 0 {
		v.AddError("realtime.emitRate", "must be positive", cfg.Realtime.EmitRate)
	}
	v.Positive("realtime.emitBurst", cfg.Realtime.EmitBurst)

	v.DurationRange("reporter.interval", cfg.Reporter.Interval, time.Second, 10*time.Minute)
	v.DurationRange("reporter.acquireTimeout", cfg.Reporter.AcquireTimeout, 100*time.Millisecond, time.Minute)

	v.NotEmpty("device.label", cfg.Device.Label)
	if _, err := model.ParseCategory(cfg.Device.Category); err != nil {
		v.AddError("device.category", err.Error(), cfg.Device.Category)
	}

	v.Range("history.capacity", cfg.History.Capacity, 1, 1000)
	if cfg.Units.StaleAfter < 0 {
		v.AddError("units.staleAfter", "must not be negative", cfg.Units.StaleAfter)
	}

	v.OneOf("storage.backend", cfg.Storage.Backend, storageBackends)
	switch cfg.Storage.Backend {
	case kv.BackendFile, kv.BackendSQLite, kv.BackendBadger:
		v.NotEmpty("storage.path", cfg.Storage.Path)
		v.Path("storage.path", cfg.Storage.Path)
	case kv.BackendRedis:
		v.HostPort("storage.redis.addr", cfg.Storage.Redis.Addr)
		v.Range("storage.redis.db", cfg.Storage.Redis.DB, 0, 15)
	}

	if cfg.Status.Listen != "" {
		v.HostPort("status.listen", cfg.Status.Listen)
	}
	if cfg.Status.RateLimit < 0 {
		v.AddError("status.rateLimit", "must not be negative", cfg.Status.RateLimit)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.protocol", cfg.Telemetry.Protocol, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		validate.Between(v, "telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}

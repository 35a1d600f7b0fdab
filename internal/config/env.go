// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of every environment key the loader reads.
const EnvPrefix = "SOSYNC_"

// Environment keys, one per configurable field.
const (
	EnvLogLevel              = "SOSYNC_LOG_LEVEL"
	EnvLogService            = "SOSYNC_LOG_SERVICE"
	EnvAPIBaseURL            = "SOSYNC_API_BASE_URL"
	EnvAPITimeout            = "SOSYNC_API_TIMEOUT"
	EnvAPIProbePath          = "SOSYNC_API_PROBE_PATH"
	EnvRealtimeEndpoint      = "SOSYNC_REALTIME_ENDPOINT"
	EnvRealtimePath          = "SOSYNC_REALTIME_PATH"
	EnvRealtimeEmitRate      = "SOSYNC_REALTIME_EMIT_RATE"
	EnvRealtimeEmitBurst     = "SOSYNC_REALTIME_EMIT_BURST"
	EnvRealtimeReconnect     = "SOSYNC_REALTIME_RECONNECT"
	EnvReporterInterval      = "SOSYNC_REPORTER_INTERVAL"
	EnvReporterAcquire       = "SOSYNC_REPORTER_ACQUIRE_TIMEOUT"
	EnvDeviceLabel           = "SOSYNC_DEVICE_LABEL"
	EnvDeviceCategory        = "SOSYNC_DEVICE_CATEGORY"
	EnvDeviceUnitID          = "SOSYNC_DEVICE_UNIT_ID"
	EnvHistoryCapacity       = "SOSYNC_HISTORY_CAPACITY"
	EnvUnitsStaleAfter       = "SOSYNC_UNITS_STALE_AFTER"
	EnvStorageBackend        = "SOSYNC_STORAGE_BACKEND"
	EnvStoragePath           = "SOSYNC_STORAGE_PATH"
	EnvRedisAddr             = "SOSYNC_REDIS_ADDR"
	EnvRedisPassword         = "SOSYNC_REDIS_PASSWORD"
	EnvRedisDB               = "SOSYNC_REDIS_DB"
	EnvStatusListen          = "SOSYNC_STATUS_LISTEN"
	EnvStatusRateLimit       = "SOSYNC_STATUS_RATE_LIMIT"
	EnvTelemetryEnabled      = "SOSYNC_TELEMETRY_ENABLED"
	EnvTelemetryProtocol     = "SOSYNC_TELEMETRY_PROTOCOL"
	EnvTelemetryEndpoint     = "SOSYNC_TELEMETRY_ENDPOINT"
	EnvTelemetrySamplingRate = "SOSYNC_TELEMETRY_SAMPLING_RATE"

	// Read by the CLI rather than the loader.
	EnvConfigPath = "SOSYNC_CONFIG"
	EnvPassword   = "SOSYNC_PASSWORD"
)

// Wrapper methods track every key the loader consults so unknown SOSYNC_*
// variables can be reported.

func (l *Loader) lookup(key string) (string, bool) {
	l.consumed[key] = struct{}{}
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	if isSensitiveKey(key) {
		l.logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
	} else {
		l.logger.Debug().Str("key", key).Str("value", v).Str("source", "environment").Msg("using environment variable")
	}
	return strings.TrimSpace(v), true
}

func (l *Loader) invalid(key, raw string, err error) {
	l.envErrs = append(l.envErrs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidEnv, key, raw, err))
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			l.invalid(key, v, err)
			return
		}
		*dst = i
	}
}

func (l *Loader) envFloat(key string, dst *float64) {
	if v, ok := l.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			l.invalid(key, v, err)
			return
		}
		*dst = f
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			l.invalid(key, v, err)
			return
		}
		*dst = b
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.invalid(key, v, err)
			return
		}
		*dst = d
	}
}

// mergeEnvConfig applies SOSYNC_* overrides on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	l.envString(EnvLogLevel, &cfg.LogLevel)
	l.envString(EnvLogService, &cfg.LogService)

	l.envString(EnvAPIBaseURL, &cfg.API.BaseURL)
	l.envDuration(EnvAPITimeout, &cfg.API.Timeout)
	l.envString(EnvAPIProbePath, &cfg.API.ProbePath)

	l.envString(EnvRealtimeEndpoint, &cfg.Realtime.Endpoint)
	l.envString(EnvRealtimePath, &cfg.Realtime.Path)
	l.envFloat(EnvRealtimeEmitRate, &cfg.Realtime.EmitRate)
	l.envInt(EnvRealtimeEmitBurst, &cfg.Realtime.EmitBurst)
	l.envBool(EnvRealtimeReconnect, &cfg.Realtime.Reconnect)

	l.envDuration(EnvReporterInterval, &cfg.Reporter.Interval)
	l.envDuration(EnvReporterAcquire, &cfg.Reporter.AcquireTimeout)

	l.envString(EnvDeviceLabel, &cfg.Device.Label)
	l.envString(EnvDeviceCategory, &cfg.Device.Category)
	l.envString(EnvDeviceUnitID, &cfg.Device.UnitID)

	l.envInt(EnvHistoryCapacity, &cfg.History.Capacity)
	l.envDuration(EnvUnitsStaleAfter, &cfg.Units.StaleAfter)

	l.envString(EnvStorageBackend, &cfg.Storage.Backend)
	l.envString(EnvStoragePath, &cfg.Storage.Path)
	l.envString(EnvRedisAddr, &cfg.Storage.Redis.Addr)
	l.envString(EnvRedisPassword, &cfg.Storage.Redis.Password)
	l.envInt(EnvRedisDB, &cfg.Storage.Redis.DB)

	l.envString(EnvStatusListen, &cfg.Status.Listen)
	l.envInt(EnvStatusRateLimit, &cfg.Status.RateLimit)

	l.envBool(EnvTelemetryEnabled, &cfg.Telemetry.Enabled)
	l.envString(EnvTelemetryProtocol, &cfg.Telemetry.Protocol)
	l.envString(EnvTelemetryEndpoint, &cfg.Telemetry.Endpoint)
	l.envFloat(EnvTelemetrySamplingRate, &cfg.Telemetry.SamplingRate)
}

// UnknownEnvKeys lists SOSYNC_* variables present in the environment that
// the last Load did not consume, usually typos.
func (l *Loader) UnknownEnvKeys() []string {
	ignored := map[string]struct{}{EnvConfigPath: {}, EnvPassword: {}}

	var out []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := ignored[key]; ok {
			continue
		}
		if _, ok := l.consumed[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token") || strings.Contains(k, "secret")
}

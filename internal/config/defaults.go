// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/sosync/internal/kv"
)

const (
	DefaultAPITimeout      = 10 * time.Second
	DefaultRealtimePath    = "/socket.io/"
	DefaultReportInterval  = 5 * time.Second
	DefaultAcquireTimeout  = 8 * time.Second
	DefaultHistoryCapacity = 20
	DefaultUnitStaleAfter  = 2 * time.Minute
	DefaultDataDir         = "./data"
)

// Defaults returns the configuration used when neither file nor env set a key.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "sosync",
		API: APIConfig{
			Timeout:   DefaultAPITimeout,
			ProbePath: "/api/get-all-sos/",
		},
		Realtime: RealtimeConfig{
			Path:      DefaultRealtimePath,
			EmitRate:  10,
			EmitBurst: 5,
			Reconnect: true,
		},
		Reporter: ReporterConfig{
			Interval:       DefaultReportInterval,
			AcquireTimeout: DefaultAcquireTimeout,
		},
		Device: DeviceConfig{
			Label:    "sosync-device",
			Category: "emergency",
		},
		History: HistoryConfig{Capacity: DefaultHistoryCapacity},
		Units:   UnitsConfig{StaleAfter: DefaultUnitStaleAfter},
		Storage: StorageConfig{
			Backend: kv.BackendFile,
			Path:    DefaultDataDir,
		},
		Status: StatusConfig{RateLimit: 60},
		Telemetry: TelemetryConfig{
			Protocol:     "grpc",
			SamplingRate: 1.0,
		},
	}
}

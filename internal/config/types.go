// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/sosync/internal/kv"
)

// AppConfig is the fully resolved configuration.
type AppConfig struct {
	Version    string `yaml:"-"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	API       APIConfig       `yaml:"api"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Reporter  ReporterConfig  `yaml:"reporter"`
	Device    DeviceConfig    `yaml:"device"`
	History   HistoryConfig   `yaml:"history"`
	Units     UnitsConfig     `yaml:"units"`
	Storage   StorageConfig   `yaml:"storage"`
	Status    StatusConfig    `yaml:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// APIConfig points at the REST backend.
type APIConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout"`
	ProbePath string        `yaml:"probePath"`
}

// RealtimeConfig points at the Socket.IO server.
type RealtimeConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	Path      string  `yaml:"path"`
	EmitRate  float64 `yaml:"emitRate"`
	EmitBurst int     `yaml:"emitBurst"`
	Reconnect bool    `yaml:"reconnect"`
}

type ReporterConfig struct {
	Interval       time.Duration `yaml:"interval"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
}

// DeviceConfig describes the reporting device. UnitID is set only on
// responder units.
type DeviceConfig struct {
	Label    string `yaml:"label"`
	Category string `yaml:"category"`
	UnitID   string `yaml:"unitID"`
}

type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

type UnitsConfig struct {
	StaleAfter time.Duration `yaml:"staleAfter"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StatusConfig controls the console's local status surface. An empty
// Listen disables it.
type StatusConfig struct {
	Listen    string `yaml:"listen"`
	RateLimit int    `yaml:"rateLimit"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Protocol     string  `yaml:"protocol"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// KV maps the storage section onto a kv backend configuration.
func (s StorageConfig) KV() kv.Config {
	return kv.Config{
		Backend: s.Backend,
		Path:    s.Path,
		Redis:   kv.RedisConfig{Addr: s.Redis.Addr, Password: s.Redis.Password, DB: s.Redis.DB},
	}
}

// Redacted returns a copy safe to print.
func (c AppConfig) Redacted() AppConfig {
	out := c
	if out.Storage.Redis.Password != "" {
		out.Storage.Redis.Password = "***"
	}
	return out
}

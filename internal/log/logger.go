// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, sink and the identity fields stamped on every entry.
type Config struct {
	Level   string    // zerolog level name; empty or unknown means info
	Output  io.Writer // defaults to os.Stderr so command output stays clean
	Service string    // defaults to "sosync"
	Version string
}

var base atomic.Pointer[zerolog.Logger]

// Configure replaces the process logger. The CLI calls it twice: once with
// defaults before the config is read and once with the loaded settings.
func Configure(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	service := cfg.Service
	if service == "" {
		service = "sosync"
	}

	b := zerolog.New(out).With().Timestamp().Str("service", service)
	if cfg.Version != "" {
		b = b.Str("version", cfg.Version)
	}
	l := b.Logger()
	base.Store(&l)
}

func current() zerolog.Logger {
	if l := base.Load(); l != nil {
		return *l
	}
	Configure(Config{})
	return *base.Load()
}

// L returns a copy of the process logger for one-off call sites.
func L() *zerolog.Logger {
	l := current()
	return &l
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return current().With().Str(FieldComponent, component).Logger()
}

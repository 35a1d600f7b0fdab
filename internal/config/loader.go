// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownConfigField marks a config file key that maps to no setting.
	ErrUnknownConfigField = errors.New("unknown config field")
	// ErrInvalidEnv marks an SOSYNC_* variable that could not be parsed.
	ErrInvalidEnv = errors.New("invalid environment value")
)

// Loader builds an AppConfig from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
type Loader struct {
	path    string
	version string
	logger  zerolog.Logger

	// Per-Load state.
	consumed map[string]struct{}
	envErrs  []error
}

// NewLoader returns a loader for path. An empty path means defaults plus
// environment only.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version, logger: xglog.WithComponent("config")}
}

func (l *Loader) Path() string { return l.path }

// Load returns a validated configuration. On error the partially built
// config is returned alongside it for diagnostics.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	l.consumed = make(map[string]struct{})
	l.envErrs = nil

	if l.path != "" {
		if err := decodeFile(l.path, &cfg); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", l.path, err)
		}
	}
	l.mergeEnvConfig(&cfg)
	if err := errors.Join(l.envErrs...); err != nil {
		return cfg, err
	}
	for _, key := range l.UnknownEnvKeys() {
		l.logger.Warn().Str(xglog.FieldEvent, "config.unknown_env").Str("key", key).Msg("ignoring unknown environment variable")
	}

	normalize(&cfg)
	cfg.Version = l.version
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *AppConfig) {
	cfg.Device.Label = strings.TrimSpace(cfg.Device.Label)
	cfg.Device.Category = strings.ToLower(strings.TrimSpace(cfg.Device.Category))
	if cfg.Storage.Path != "" {
		if abs, err := filepath.Abs(cfg.Storage.Path); err == nil {
			cfg.Storage.Path = abs
		}
	}
}

// decodeFile overlays a single YAML document onto cfg. Keys absent from the
// file keep their current values.
func decodeFile(path string, cfg *AppConfig) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("unsupported format %q, expected .yaml or .yml", ext)
	}
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- operator-supplied path
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	switch err := dec.Decode(cfg); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
	case strings.Contains(err.Error(), "not found in type"):
		return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
	default:
		return fmt.Errorf("parse: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("multiple documents are not supported")
	}
	return nil
}

// Dump renders cfg as YAML with secrets redacted.
func Dump(cfg AppConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

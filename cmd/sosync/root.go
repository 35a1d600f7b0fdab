// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ManuGH/sosync/internal/config"
	"github.com/ManuGH/sosync/internal/credentials"
	"github.com/ManuGH/sosync/internal/kv"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/sosapi"
	"github.com/ManuGH/sosync/internal/telemetry"
	"github.com/ManuGH/sosync/internal/transport"
	"github.com/ManuGH/sosync/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errUsage = errors.New("usage")

// app carries what every subcommand needs after configuration is loaded.
type app struct {
	loader *config.Loader
	cfg    config.AppConfig
	logger zerolog.Logger

	store kv.Store
	creds *credentials.Store
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sosync",
		Short:         "Emergency-session synchronizer for devices and dispatch consoles",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvConfigPath), "path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logLevel")

	root.AddCommand(
		newDeviceCmd(opts),
		newConsoleCmd(opts),
		newHistoryCmd(opts),
		newContactsCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	root.AddCommand(newAuthCmds(opts)...)
	return root
}

// loadConfig loads and validates configuration and configures logging.
func loadConfig(opts *rootOptions) (*config.Loader, config.AppConfig, error) {
	xglog.Configure(xglog.Config{Level: "info", Output: os.Stderr, Service: "sosync", Version: version.Version})

	loader := config.NewLoader(opts.configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, cfg, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Output: os.Stderr, Service: cfg.LogService, Version: cfg.Version})
	return loader, cfg, nil
}

// openApp loads configuration and opens local storage.
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	loader, cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := xglog.WithComponent("cli")
	store, err := kv.Open(ctx, cfg.Storage.KV(), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &app{
		loader: loader,
		cfg:    cfg,
		logger: logger,
		store:  store,
		creds:  credentials.New(store),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// apiClient returns the REST client, or nil when no backend is configured.
func (a *app) apiClient() (*sosapi.Client, error) {
	if a.cfg.API.BaseURL == "" {
		return nil, nil
	}
	return sosapi.New(a.cfg.API.BaseURL, a.cfg.API.Timeout,
		sosapi.WithCredentials(a.creds),
		sosapi.WithProbePath(a.cfg.API.ProbePath))
}

// requireAPI is apiClient for commands that cannot work offline.
func (a *app) requireAPI() (*sosapi.Client, error) {
	c, err := a.apiClient()
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: api.baseURL is not configured", transport.ErrUnavailable)
	}
	return c, nil
}

// startTelemetry installs the tracer provider for role.
func (a *app) startTelemetry(ctx context.Context, role string) (func(), error) {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        a.cfg.Telemetry.Enabled,
		ServiceName:    a.cfg.LogService,
		ServiceVersion: a.cfg.Version,
		Role:           role,
		Protocol:       a.cfg.Telemetry.Protocol,
		Endpoint:       a.cfg.Telemetry.Endpoint,
		SamplingRate:   a.cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}

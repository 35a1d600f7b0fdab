// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/ManuGH/sosync/internal/dispatch"
	"github.com/ManuGH/sosync/internal/health"
	"github.com/ManuGH/sosync/internal/history"
	"github.com/ManuGH/sosync/internal/kv"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/statusapi"
	"github.com/ManuGH/sosync/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const consoleHistoryEntity = "console"

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	var autoTrack bool
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the dispatch console and its status API",
		Long: `Run the dispatch console: watch new sessions, follow their locations and
responding units, and expose the live table on the status API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := health.PerformStartupChecks(ctx, a.cfg); err != nil {
				return err
			}
			stopTelemetry, err := a.startTelemetry(ctx, "console")
			if err != nil {
				return err
			}
			defer stopTelemetry()
			return a.runConsole(ctx, autoTrack)
		},
	}
	cmd.Flags().BoolVar(&autoTrack, "auto-track", true, "follow the location room of every new session")
	cmd.AddCommand(newResolveCmd(opts), newAssignCmd(opts), newSessionsCmd(opts))
	return cmd
}

func (a *app) runConsole(ctx context.Context, autoTrack bool) error {
	client, err := a.apiClient()
	if err != nil {
		return err
	}
	var api dispatch.API
	if client != nil {
		api = client
	}

	conn, err := a.dialRealtime(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrUnavailable, err)
	}
	if conn == nil {
		return fmt.Errorf("%w: realtime.endpoint is not configured", transport.ErrUnavailable)
	}
	defer conn.Close()

	hist, err := history.New(a.store, consoleHistoryEntity, a.cfg.History.Capacity)
	if err != nil {
		return err
	}
	agg := dispatch.NewAggregator(hist, dispatch.WithStaleAfter(a.cfg.Units.StaleAfter))
	var consoleOpts []dispatch.ConsoleOption
	if autoTrack {
		consoleOpts = append(consoleOpts, dispatch.WithAutoTrack())
	}
	console := dispatch.NewConsole(conn, api, agg, consoleOpts...)

	hm := health.NewManager(a.cfg.Version)
	hm.RegisterChecker(health.NewStoreChecker(a.store))
	if sq, ok := a.store.(*kv.SQLiteStore); ok {
		hm.RegisterChecker(health.NewSQLiteChecker(sq.DB()))
	}
	hm.RegisterChecker(health.NewRealtimeChecker(conn.Connected))
	if client != nil {
		hm.RegisterChecker(health.NewFuncChecker("api", health.StatusDegraded, client.Probe))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return console.Run(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-console.Ready():
		}
		watch, err := console.WatchNewSessions(gctx)
		if err != nil {
			return err
		}
		defer watch.Close()
		units, err := console.TrackUnits(gctx)
		if err != nil {
			return err
		}
		defer units.Close()

		n, err := console.Bootstrap(gctx)
		switch {
		case err == nil:
			a.logger.Info().Int("sessions", n).Str(xglog.FieldEvent, "console.bootstrap").Msg("loaded open sessions")
		case errors.Is(err, context.Canceled):
			return nil
		default:
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "console.bootstrap").Msg("could not load open sessions")
		}
		<-gctx.Done()
		return nil
	})
	if a.cfg.Status.Listen != "" {
		srv := statusapi.New(statusapi.Config{
			Listen:    a.cfg.Status.Listen,
			RateLimit: a.cfg.Status.RateLimit,
			Service:   a.cfg.LogService,
		}, agg, hist, hm)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-conn.Done():
			a.logger.Warn().Str(xglog.FieldEvent, "console.socket_closed").Msg("real-time connection closed")
		}
		return nil
	})
	return g.Wait()
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <session-id>",
		Short: "Resolve a session on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			client, err := a.requireAPI()
			if err != nil {
				return err
			}
			rec, err := client.ResolveSOS(ctx, args[0])
			if err != nil {
				return err
			}
			s := rec.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s (%s)\n", s.SessionID, s.OriginDeviceLabel)
			return nil
		},
	}
}

func newAssignCmd(opts *rootOptions) *cobra.Command {
	var officer, unit string
	cmd := &cobra.Command{
		Use:   "assign <session-id>",
		Short: "Dispatch a unit to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if officer == "" || unit == "" {
				return fmt.Errorf("%w: --officer and --unit are required", errUsage)
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			client, err := a.requireAPI()
			if err != nil {
				return err
			}
			as, err := client.AssignOfficer(ctx, args[0], officer, unit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned %s (%s) to %s\n", as.UnitNumber, as.OfficerName, as.SessionID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&officer, "officer", "", "officer name")
	cmd.Flags().StringVar(&unit, "unit", "", "unit number")
	return cmd
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions known to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			client, err := a.requireAPI()
			if err != nil {
				return err
			}
			records, err := client.ListSessions(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tCATEGORY\tSTATE\tUNIT\tCREATED")
			for _, r := range records {
				if r.Resolved() && !all {
					continue
				}
				s := r.Session()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.SessionID, s.OriginDeviceLabel, s.Category, s.State, s.UnitDispatched, s.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include resolved sessions")
	return cmd
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/config"
	"github.com/ManuGH/sosync/internal/device"
	"github.com/ManuGH/sosync/internal/domain/sos/lifecycle"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/history"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/realtime"
	"github.com/ManuGH/sosync/internal/transport"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	deviceHistoryEntity = "device"
	resolveGrace        = 15 * time.Second
)

type positionFlags struct {
	lat, lon float64
	set      bool
}

func (p *positionFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&p.lat, "lat", 0, "latitude of the current position")
	cmd.Flags().Float64Var(&p.lon, "lon", 0, "longitude of the current position")
}

func (p *positionFlags) position(cmd *cobra.Command) (model.Position, error) {
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return model.Position{}, fmt.Errorf("%w: --lat and --lon are required", errUsage)
	}
	pos := model.Position{Latitude: p.lat, Longitude: p.lon}
	if err := pos.Validate(); err != nil {
		return model.Position{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	return pos, nil
}

func newDeviceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Device-side commands",
	}
	cmd.AddCommand(newTriggerCmd(opts), newUnitCmd(opts))
	return cmd
}

// deviceRuntime is the transport stack shared by device commands.
type deviceRuntime struct {
	app      *app
	conn     *realtime.Conn
	selector *transport.Selector
}

func (a *app) startDevice(ctx context.Context) (*deviceRuntime, error) {
	client, err := a.apiClient()
	if err != nil {
		return nil, err
	}
	var api transport.API
	if client != nil {
		api = client
	}

	conn, err := a.dialRealtime(ctx)
	if err != nil {
		// The HTTP route may still work; sends routed to the socket fail
		// with Unavailable.
		a.logger.Warn().Err(err).Str(xglog.FieldEvent, "device.socket_unavailable").Msg("real-time connection failed")
		conn = nil
	}
	var socket transport.Socket
	if conn != nil {
		socket = conn
	}
	if api == nil && socket == nil {
		return nil, fmt.Errorf("%w: no api.baseURL and no reachable realtime endpoint", transport.ErrUnavailable)
	}

	sel := transport.New(api, socket, transport.WithTimeout(a.cfg.API.Timeout))
	sel.Probe(ctx)
	return &deviceRuntime{app: a, conn: conn, selector: sel}, nil
}

func (r *deviceRuntime) Close() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// watchConfig re-probes connectivity when the config file moves a backend.
func (r *deviceRuntime) watchConfig(ctx context.Context) error {
	holder := config.NewHolder(r.app.cfg, r.app.loader)
	updates := make(chan config.AppConfig, 1)
	holder.RegisterListener(updates)
	if err := holder.StartWatcher(ctx); err != nil {
		return err
	}
	defer holder.Wait()

	last := r.app.cfg
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-updates:
			if config.ConnectivityChanged(last, cfg) {
				r.app.logger.Info().Str(xglog.FieldEvent, "device.reprobe").Msg("backend configuration changed")
				r.selector.Reprobe(ctx)
			}
			last = cfg
		}
	}
}

func newTriggerCmd(opts *rootOptions) *cobra.Command {
	var (
		pos      positionFlags
		label    string
		category string
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Raise a distress session and report location until marked safe",
		Long: `Raise a distress session from the current position and keep reporting
location until interrupted (marks the session safe) or a dispatcher resolves it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pos.position(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if label == "" {
				label = a.cfg.Device.Label
			}
			if category == "" {
				category = a.cfg.Device.Category
			}
			cat, err := model.ParseCategory(category)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			stopTelemetry, err := a.startTelemetry(ctx, "device")
			if err != nil {
				return err
			}
			defer stopTelemetry()

			rt, err := a.startDevice(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			hist, err := history.New(a.store, deviceHistoryEntity, a.cfg.History.Capacity)
			if err != nil {
				return err
			}
			return runTrigger(ctx, cmd.OutOrStdout(), rt, hist, device.NewStaticLocator(p), device.Config{
				Label:    label,
				Category: cat,
				Reporter: device.ReporterConfig{
					Interval:       a.cfg.Reporter.Interval,
					AcquireTimeout: a.cfg.Reporter.AcquireTimeout,
				},
			})
		},
	}
	pos.register(cmd)
	cmd.Flags().StringVar(&label, "label", "", "device label sent with the session (default device.label)")
	cmd.Flags().StringVar(&category, "category", "", "emergency or alert (default device.category)")
	return cmd
}

func runTrigger(ctx context.Context, out io.Writer, rt *deviceRuntime, hist *history.Cache, loc device.Locator, cfg device.Config) error {
	// The session outlives ctx so that an interrupt can still mark it safe.
	sessCtx, cancelSess := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSess()

	sess := device.NewSession(sessCtx, rt.selector, loc, hist, cfg)
	defer sess.Close()

	var outMu sync.Mutex
	sess.OnTransition(func(tr lifecycle.Transition, s *model.EmergencySession) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, "%s -> %s", tr.From, tr.To)
		if s.SessionID != "" {
			fmt.Fprintf(out, " session=%s", s.SessionID)
		}
		if s.Reason != "" {
			fmt.Fprintf(out, " reason=%s", s.Reason)
		}
		fmt.Fprintln(out)
	})

	g, gctx := errgroup.WithContext(sessCtx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer func() {
		stopWatch()
		_ = g.Wait()
	}()

	if rt.conn != nil {
		sub, err := rt.conn.Subscribe(watchCtx, realtime.TopicResolved)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer sub.Close()
			for {
				select {
				case <-watchCtx.Done():
					return nil
				case msg, ok := <-sub.C():
					if !ok {
						return nil
					}
					if ev, ok := msg.(wire.SessionResolved); ok {
						sess.HandleResolved(watchCtx, ev)
					}
				}
			}
		})
	}
	g.Go(func() error { return rt.watchConfig(watchCtx) })

	if _, err := sess.Trigger(ctx); err != nil {
		return err
	}

	waitErr := sess.WaitResolved(ctx, 0)
	if waitErr == nil {
		fmt.Fprintln(out, "session resolved by dispatch")
		return nil
	}
	if !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}

	resolveCtx, cancel := context.WithTimeout(sessCtx, resolveGrace)
	defer cancel()
	if _, err := sess.MarkSafe(resolveCtx); err != nil {
		return fmt.Errorf("mark safe: %w", err)
	}
	fmt.Fprintln(out, "marked safe")
	return nil
}

func newUnitCmd(opts *rootOptions) *cobra.Command {
	var (
		pos    positionFlags
		unitID string
	)
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Report a responding unit's position until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pos.position(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if unitID == "" {
				unitID = a.cfg.Device.UnitID
			}
			if unitID == "" {
				return fmt.Errorf("%w: --unit or device.unitID is required", errUsage)
			}

			rt, err := a.startDevice(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.conn != nil {
				if err := rt.conn.Emit(ctx, wire.JoinOfficerRoom{UnitNumber: unitID}); err != nil {
					return err
				}
			}

			h := device.StartUnitReporter(ctx, unitID, device.NewStaticLocator(p), rt.selector, device.ReporterConfig{
				Interval:       a.cfg.Reporter.Interval,
				AcquireTimeout: a.cfg.Reporter.AcquireTimeout,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "reporting unit %s every %s\n", unitID, a.cfg.Reporter.Interval)
			<-ctx.Done()
			h.Stop()
			return nil
		},
	}
	pos.register(cmd)
	cmd.Flags().StringVar(&unitID, "unit", "", "unit number (default device.unitID)")
	return cmd
}

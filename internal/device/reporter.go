// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package device

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/metrics"
	"github.com/ManuGH/sosync/internal/transport"
	"github.com/rs/zerolog"
)

const (
	DefaultReportInterval = 5 * time.Second
	DefaultAcquireTimeout = 8 * time.Second
)

// Sender delivers updates. *transport.Selector implements it.
type Sender interface {
	Send(ctx context.Context, u transport.Update) (transport.Ack, error)
}

// ReporterConfig tunes the periodic location task.
type ReporterConfig struct {
	Interval       time.Duration
	AcquireTimeout time.Duration
	Clock          Clock
}

func (c ReporterConfig) withDefaults() ReporterConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultReportInterval
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	return c
}

// ReporterHandle owns one running location task. The task lives exactly as
// long as the handle: Stop ends it and waits for it to exit.
type ReporterHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the task and blocks until the loop has exited. No send starts
// after Stop returns. Stop is idempotent.
func (h *ReporterHandle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed when the loop has exited.
func (h *ReporterHandle) Done() <-chan struct{} { return h.done }

// StartReporter begins reporting the device position for sessionID every
// interval. onFix, if set, observes each fix that was delivered.
func StartReporter(ctx context.Context, sessionID string, loc Locator, sender Sender, cfg ReporterConfig, onFix func(model.Fix)) *ReporterHandle {
	cfg = cfg.withDefaults()
	ctx = xglog.ContextWithSessionID(ctx, sessionID)
	logger := xglog.WithComponentFromContext(ctx, "reporter")
	return startLoop(ctx, cfg, logger, func(ctx context.Context) error {
		pos, err := acquire(ctx, loc, cfg.AcquireTimeout)
		if err != nil {
			return err
		}
		fix := model.Fix{Position: pos, CapturedAt: cfg.Clock.Now().UTC()}
		if _, err := sender.Send(ctx, transport.LocationUpdate{SessionID: sessionID, Position: pos, CapturedAt: fix.CapturedAt}); err != nil {
			return err
		}
		if onFix != nil {
			onFix(fix)
		}
		return nil
	})
}

// StartUnitReporter reports a responding unit's own position.
func StartUnitReporter(ctx context.Context, unitID string, loc Locator, sender Sender, cfg ReporterConfig) *ReporterHandle {
	cfg = cfg.withDefaults()
	ctx = xglog.ContextWithUnitID(ctx, unitID)
	logger := xglog.WithComponentFromContext(ctx, "unit_reporter")
	return startLoop(ctx, cfg, logger, func(ctx context.Context) error {
		pos, err := acquire(ctx, loc, cfg.AcquireTimeout)
		if err != nil {
			return err
		}
		_, err = sender.Send(ctx, transport.OfficerUpdate{UnitID: unitID, Position: pos, CapturedAt: cfg.Clock.Now().UTC()})
		return err
	})
}

func startLoop(parent context.Context, cfg ReporterConfig, logger zerolog.Logger, tick func(context.Context) error) *ReporterHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &ReporterHandle{cancel: cancel, done: make(chan struct{})}
	ticker := cfg.Clock.NewTicker(cfg.Interval)

	metrics.IncReporterActive()
	go func() {
		defer close(h.done)
		defer metrics.DecReporterActive()
		defer ticker.Stop()

		logger.Info().Str(xglog.FieldEvent, "reporter.started").Dur("interval", cfg.Interval).Msg("location reporter started")
		for {
			select {
			case <-ctx.Done():
				logger.Info().Str(xglog.FieldEvent, "reporter.stopped").Msg("location reporter stopped")
				return
			case <-ticker.C():
			}
			// A tick and a cancel may be ready together; cancel wins.
			if ctx.Err() != nil {
				continue
			}
			if err := tick(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				metrics.RecordReporterTick(string(model.Classify(err)))
				logger.Warn().Err(err).Str(xglog.FieldEvent, "reporter.tick_failed").Msg("location report failed")
				continue
			}
			metrics.RecordReporterTick("ok")
		}
	}()
	return h
}

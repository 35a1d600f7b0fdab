// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
)

// ErrLocationTimeout is returned when no position arrives within the
// acquisition budget.
var ErrLocationTimeout = errors.New("location: acquisition timed out")

// Locator yields the device's current position. Implementations return
// model.ErrPermissionDenied when location access is refused.
type Locator interface {
	Locate(ctx context.Context) (model.Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (model.Position, error)

func (f LocatorFunc) Locate(ctx context.Context) (model.Position, error) { return f(ctx) }

// StaticLocator reports a fixed position that can be moved at runtime.
type StaticLocator struct {
	mu  sync.RWMutex
	pos model.Position
}

func NewStaticLocator(pos model.Position) *StaticLocator {
	return &StaticLocator{pos: pos}
}

func (l *StaticLocator) Set(pos model.Position) {
	l.mu.Lock()
	l.pos = pos
	l.mu.Unlock()
}

func (l *StaticLocator) Locate(ctx context.Context) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pos, nil
}

// acquire asks loc for a position within timeout and validates it.
func acquire(ctx context.Context, loc Locator, timeout time.Duration) (model.Position, error) {
	if loc == nil {
		return model.Position{}, fmt.Errorf("%w: no location source", model.ErrPermissionDenied)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	pos, err := loc.Locate(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.Position{}, fmt.Errorf("%w: %v", ErrLocationTimeout, err)
		}
		return model.Position{}, err
	}
	if err := pos.Validate(); err != nil {
		return model.Position{}, fmt.Errorf("location: %w", err)
	}
	return pos, nil
}

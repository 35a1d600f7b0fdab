// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/sosync/internal/kv"
	platformnet "github.com/ManuGH/sosync/internal/platform/net"
)

const endpointKey = "realtime/endpoint"

// ResolveEndpoint returns the socket endpoint to use. A configured endpoint
// is normalized and remembered; otherwise the last remembered one is used.
// It returns "" when neither exists.
func ResolveEndpoint(ctx context.Context, store kv.Store, configured string) (string, error) {
	configured = strings.TrimSpace(configured)
	if configured != "" {
		if _, err := platformnet.SocketURL(configured, ""); err != nil {
			return "", err
		}
		if err := store.Put(ctx, endpointKey, []byte(configured)); err != nil {
			return "", fmt.Errorf("remember endpoint: %w", err)
		}
		return configured, nil
	}
	raw, err := store.Get(ctx, endpointKey)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("recall endpoint: %w", err)
	}
	return string(raw), nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package wire defines the closed set of real-time events exchanged with the
// SOS socket server. Payloads are decoded once at the transport boundary into
// typed variants; nothing above this package handles raw event names.
package wire

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package version holds build metadata set through -ldflags, e.g.
//
//	-X github.com/ManuGH/sosync/internal/version.Version=v1.2.0
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build metadata for the version command.
func String() string {
	return fmt.Sprintf("sosync %s (commit: %s, built: %s)", Version, Commit, Date)
}

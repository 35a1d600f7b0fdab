// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads sosync configuration with precedence
// ENV > File > Defaults and hot-reloads the file through Holder.
package config

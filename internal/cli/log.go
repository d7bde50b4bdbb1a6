// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"

	"github.com/pterm/pterm"
)

// NewLogger returns a slog logger that renders through pterm at the given
// level (debug, info, warn, error).
func NewLogger(w io.Writer, level string) *slog.Logger {
	pl := pterm.DefaultLogger.WithWriter(w).WithLevel(ptermLevel(level))
	return slog.New(pterm.NewSlogHandler(pl))
}

func ptermLevel(level string) pterm.LogLevel {
	switch level {
	case "debug":
		return pterm.LogLevelDebug
	case "warn":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	default:
		return pterm.LogLevelInfo
	}
}

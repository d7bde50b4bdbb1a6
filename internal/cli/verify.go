// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/marcelocantos/ledgerchain/internal/config"
	"github.com/marcelocantos/ledgerchain/internal/ledger"
	"github.com/marcelocantos/ledgerchain/internal/store"
)

// Exit codes shared by all subcommands.
const (
	ExitOK     = 0 // success, chain verified
	ExitBroken = 1 // chain broken
	ExitError  = 2 // usage, source, or malformed entry error
)

// RunVerify handles `ledgerchain verify [--all] [path]`.
func RunVerify(ctx context.Context, w io.Writer, log *slog.Logger, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(w)
	all := fs.Bool("all", cfg.Mode() == ledger.ModeExhaustive, "report every break instead of stopping at the first")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	src, err := openSource(cfg, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(w, "ledgerchain verify: %v\n", err)
		return ExitError
	}
	entries, err := src.Entries(ctx)
	if err != nil {
		return reportError(w, "verify", err)
	}

	mode := ledger.ModeFailFast
	if *all {
		mode = ledger.ModeExhaustive
	}
	log.Debug("verifying ledger", "entries", len(entries), "mode", mode.String())

	report, err := ledger.Verify(entries, mode)
	if err != nil {
		return reportError(w, "verify", err)
	}

	v := report.Verdict()
	fmt.Fprintln(w, v.Report)
	if v.Valid {
		log.Info("ledger verified", "entries", report.Checked)
		return ExitOK
	}
	if mode == ledger.ModeExhaustive {
		for _, b := range report.Breaks {
			fmt.Fprintf(w, "  position %d: entry %s: expected %s, stored %s\n",
				b.Index, b.EntryID, short(b.Expected), short(b.Stored))
		}
	}
	log.Warn("ledger chain broken", "entry", v.EntryID, "position", v.Index, "breaks", len(report.Breaks))
	return ExitBroken
}

// reportError prints a structural error with its category and returns
// ExitError. These are never integrity verdicts.
func reportError(w io.Writer, cmd string, err error) int {
	var sre *store.SourceReadError
	var mfe *ledger.MissingFieldError
	switch {
	case errors.As(err, &sre):
		fmt.Fprintf(w, "ledgerchain %s: source error: %v\n", cmd, err)
	case errors.As(err, &mfe):
		fmt.Fprintf(w, "ledgerchain %s: malformed entry: %v\n", cmd, err)
	default:
		fmt.Fprintf(w, "ledgerchain %s: %v\n", cmd, err)
	}
	return ExitError
}

// openSource opens the configured ledger, or path if given.
func openSource(cfg *config.Config, path string) (store.Source, error) {
	opts := cfg.SourceOptions()
	if path != "" {
		opts.Path = path
		opts.Format = store.FormatAuto
		opts.DSN = ""
	}
	return store.Open(opts)
}

func short(h string) string {
	if h == "" {
		return "(none)"
	}
	if len(h) > 16 {
		return h[:16] + "..."
	}
	return h
}

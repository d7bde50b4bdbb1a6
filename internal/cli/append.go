// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/marcelocantos/ledgerchain/internal/config"
	"github.com/marcelocantos/ledgerchain/internal/ledger"
	"github.com/marcelocantos/ledgerchain/internal/store"
)

// RunAppend handles `ledgerchain append --type T --decision D ...`.
func RunAppend(ctx context.Context, w io.Writer, log *slog.Logger, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("append", flag.ContinueOnError)
	fs.SetOutput(w)
	var r ledger.Record
	fs.StringVar(&r.DecisionType, "type", "", "decision type (required)")
	fs.StringVar(&r.Decision, "decision", "", "the decision made (required)")
	fs.StringVar(&r.Rationale, "rationale", "", "justification for the decision")
	fs.StringVar(&r.Approver, "approver", "", "approving party (required)")
	fs.StringVar(&r.RiskGrade, "risk", "", "risk grade, e.g. L1, L2, L3 (required)")
	fs.StringVar(&r.EntryID, "id", "", "entry id (default: random UUID)")
	fs.StringVar(&r.Timestamp, "timestamp", "", "RFC 3339 timestamp (default: now)")
	path := fs.String("ledger", "", "JSONL ledger `path` (default: configured ledger)")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	opts := cfg.SourceOptions()
	if *path != "" {
		opts.Path = *path
		opts.Format = store.FormatAuto
		opts.DSN = ""
	}
	if f := opts.Resolve(); f != store.FormatJSONL {
		fmt.Fprintf(w, "ledgerchain append: only jsonl ledgers can be appended to (ledger is %s)\n", f)
		return ExitError
	}

	a, err := store.NewAppender(opts.Path)
	if err != nil {
		return reportError(w, "append", err)
	}
	e, err := a.Append(ctx, r)
	if err != nil {
		return reportError(w, "append", err)
	}
	h, _ := e.Hash()
	log.Info("ledger entry appended", "entry", e.ID(), "path", a.Path())
	fmt.Fprintf(w, "appended entry %s (hash: %s)\n", e.ID(), h)
	return ExitOK
}

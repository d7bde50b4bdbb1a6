// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/marcelocantos/ledgerchain/internal/config"
	"github.com/marcelocantos/ledgerchain/internal/filter"
	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

// RunShow handles `ledgerchain show [-n N] [--where EXPR] [--json] [path]`.
func RunShow(ctx context.Context, w io.Writer, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(w)
	n := fs.Int("n", 20, "show the last `N` matching entries (0 for all)")
	where := fs.String("where", "", "Starlark `expression` selecting entries")
	asJSON := fs.Bool("json", false, "print entries as JSON lines")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	var f *filter.Filter
	if *where != "" {
		var err error
		if f, err = filter.Compile(*where); err != nil {
			fmt.Fprintf(w, "ledgerchain show: %v\n", err)
			return ExitError
		}
	}

	src, err := openSource(cfg, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(w, "ledgerchain show: %v\n", err)
		return ExitError
	}
	entries, err := src.Entries(ctx)
	if err != nil {
		return reportError(w, "show", err)
	}

	type row struct {
		pos   int
		entry ledger.Entry
	}
	var rows []row
	for i, e := range entries {
		if f != nil {
			ok, err := f.Match(e)
			if err != nil {
				fmt.Fprintf(w, "ledgerchain show: %v\n", err)
				return ExitError
			}
			if !ok {
				continue
			}
		}
		rows = append(rows, row{i, e})
	}
	if *n > 0 && len(rows) > *n {
		rows = rows[len(rows)-*n:]
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "no ledger entries")
		return ExitOK
	}

	if *asJSON {
		for _, r := range rows {
			data, err := json.Marshal(r.entry)
			if err != nil {
				fmt.Fprintf(w, "ledgerchain show: %v\n", err)
				return ExitError
			}
			fmt.Fprintf(w, "%s\n", data)
		}
		return ExitOK
	}

	data := pterm.TableData{{"#", "ENTRY", "TIMESTAMP", "TYPE", "RISK", "APPROVER", "DECISION", "HASH"}}
	for _, r := range rows {
		h, _ := r.entry.Hash()
		if len(h) > 12 {
			h = h[:12]
		}
		data = append(data, []string{
			strconv.Itoa(r.pos),
			r.entry.ID(),
			field(r.entry, ledger.FieldTimestamp),
			field(r.entry, ledger.FieldDecisionType),
			field(r.entry, ledger.FieldRiskGrade),
			field(r.entry, ledger.FieldApprover),
			truncate(field(r.entry, ledger.FieldDecision), 40),
			h,
		})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		fmt.Fprintf(w, "ledgerchain show: %v\n", err)
		return ExitError
	}
	fmt.Fprintln(w, out)
	return ExitOK
}

func field(e ledger.Entry, name string) string {
	v, ok := e[name]
	if !ok || v == nil {
		return "-"
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

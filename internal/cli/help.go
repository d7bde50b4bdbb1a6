// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
)

// RunHelp shows general usage.
func RunHelp(w io.Writer) int {
	fmt.Fprintln(w, "ledgerchain — tamper-evident decision ledger")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  ledgerchain verify [--all] [path]                 verify the hash chain")
	fmt.Fprintln(w, "  ledgerchain show [-n N] [--where EXPR] [--json] [path]")
	fmt.Fprintln(w, "                                                    list entries")
	fmt.Fprintln(w, "  ledgerchain append --type T --decision D --approver A --risk R")
	fmt.Fprintln(w, "                     [--rationale R] [--id ID] [--ledger path]")
	fmt.Fprintln(w, "                                                    append a decision")
	fmt.Fprintln(w, "  ledgerchain hash [--prev H] [--canonical] <entry.json|->")
	fmt.Fprintln(w, "                                                    hash a single entry")
	fmt.Fprintln(w, "  ledgerchain serve                                 MCP server on stdio")
	fmt.Fprintln(w, "  ledgerchain version                               show version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ledger formats: .jsonl (default), .yaml/.yml, postgres:// DSN")
	fmt.Fprintln(w, "exit codes: 0 verified, 1 chain broken, 2 error")
	return ExitOK
}

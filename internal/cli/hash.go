// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
	"github.com/marcelocantos/ledgerchain/internal/store"
)

// RunHash handles `ledgerchain hash [--prev H] [--canonical] <entry.json|->`.
// It prints the hash an entry must carry when chained to the given
// previous hash.
func RunHash(stdin io.Reader, w io.Writer, args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(w)
	prev := fs.String("prev", ledger.Genesis, "previous entry `hash`")
	showCanonical := fs.Bool("canonical", false, "also print the canonical JSON that is hashed")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(w, "usage: ledgerchain hash [--prev H] [--canonical] <entry.json|->")
		return ExitError
	}

	var data []byte
	var err error
	if name := fs.Arg(0); name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		fmt.Fprintf(w, "ledgerchain hash: %v\n", err)
		return ExitError
	}

	e, err := store.DecodeEntry(data)
	if err != nil {
		fmt.Fprintf(w, "ledgerchain hash: %v\n", err)
		return ExitError
	}
	if *showCanonical {
		c, err := ledger.CanonicalBytes(e, *prev)
		if err != nil {
			return reportError(w, "hash", err)
		}
		fmt.Fprintf(w, "%s\n", c)
	}
	h, err := ledger.ComputeEntryHash(e, *prev)
	if err != nil {
		return reportError(w, "hash", err)
	}
	fmt.Fprintln(w, h)
	return ExitOK
}

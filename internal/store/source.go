// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package store reads ledgers from durable storage and appends to them.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

// Source yields ledger entries in append order.
type Source interface {
	Entries(ctx context.Context) ([]ledger.Entry, error)
}

// SourceReadError reports that a ledger could not be materialised. It is
// distinct from a broken chain: nothing is known about integrity.
type SourceReadError struct {
	Source string
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read ledger %s: %v", e.Source, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// Format names a storage format.
type Format string

const (
	FormatAuto     Format = "auto"
	FormatJSONL    Format = "jsonl"
	FormatYAML     Format = "yaml"
	FormatPostgres Format = "postgres"
)

// ParseFormat validates a format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSONL, FormatYAML, FormatPostgres:
		return f, nil
	default:
		return "", fmt.Errorf("invalid ledger format %q (want auto, jsonl, yaml, or postgres)", s)
	}
}

// DefaultTable is the Postgres table read when none is configured.
const DefaultTable = "ledger_entries"

// Options locates a ledger.
type Options struct {
	Path   string
	Format Format
	DSN    string
	Table  string
}

// Resolve returns the concrete format for opts. In auto mode a DSN, or a
// postgres:// path, selects Postgres; otherwise the file extension decides.
func (o Options) Resolve() Format {
	if o.Format != "" && o.Format != FormatAuto {
		return o.Format
	}
	if isPostgresURL(o.Path) || o.DSN != "" {
		return FormatPostgres
	}
	switch strings.ToLower(filepath.Ext(o.Path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

func isPostgresURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

// Open returns the Source described by opts. A Postgres source reads
// opts.Table (default ledger_entries), which needs a seq column for
// ordering plus one column per canonical field and entry_hash; see Postgres
// for how non-text columns are handled.
func Open(opts Options) (Source, error) {
	switch opts.Resolve() {
	case FormatJSONL:
		if opts.Path == "" {
			return nil, fmt.Errorf("jsonl ledger: no path configured")
		}
		return &JSONLFile{Path: opts.Path}, nil
	case FormatYAML:
		if opts.Path == "" {
			return nil, fmt.Errorf("yaml ledger: no path configured")
		}
		return &YAMLFile{Path: opts.Path}, nil
	case FormatPostgres:
		dsn := opts.DSN
		if isPostgresURL(opts.Path) {
			dsn = opts.Path
		}
		if dsn == "" {
			return nil, fmt.Errorf("postgres ledger: no dsn configured")
		}
		table := opts.Table
		if table == "" {
			table = DefaultTable
		}
		return &PostgresDSN{DSN: dsn, Table: table}, nil
	default:
		return nil, fmt.Errorf("unsupported ledger format %q", opts.Format)
	}
}

// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

// Querier is the subset of *pgx.Conn and *pgxpool.Pool used to read a
// ledger table.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres reads a ledger table ordered by its seq column. Every column is
// selected as ::text, so non-text columns (timestamptz, integer ids) are
// hashed in Postgres's text rendering; store them as text if the hashes must
// match what the writer sealed. A NULL column is left out of the entry so
// that verification reports it as missing rather than hashing a default.
type Postgres struct {
	Querier Querier
	Table   string
}

var pgColumns = append(append([]string{}, ledger.Fields...), ledger.FieldEntryHash)

func (p *Postgres) query() string {
	cols := make([]string, len(pgColumns))
	for i, c := range pgColumns {
		cols[i] = pgx.Identifier{c}.Sanitize() + "::text"
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY seq",
		strings.Join(cols, ", "),
		pgx.Identifier(strings.Split(p.Table, ".")).Sanitize())
}

// Entries reads every row in seq order.
func (p *Postgres) Entries(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := p.Querier.Query(ctx, p.query())
	if err != nil {
		return nil, &SourceReadError{Source: p.Table, Err: err}
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		values := make([]*string, len(pgColumns))
		dest := make([]any, len(pgColumns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &SourceReadError{Source: p.Table, Err: fmt.Errorf("row %d: %w", len(entries)+1, err)}
		}
		e := make(ledger.Entry, len(pgColumns))
		for i, v := range values {
			if v != nil {
				e[pgColumns[i]] = *v
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &SourceReadError{Source: p.Table, Err: err}
	}
	return entries, nil
}

// PostgresDSN connects for each read and delegates to Postgres.
type PostgresDSN struct {
	DSN   string
	Table string
}

// Entries opens a connection, reads the table, and closes the connection.
func (p *PostgresDSN) Entries(ctx context.Context) ([]ledger.Entry, error) {
	conn, err := pgx.Connect(ctx, p.DSN)
	if err != nil {
		return nil, &SourceReadError{Source: p.Table, Err: fmt.Errorf("connect: %w", err)}
	}
	defer conn.Close(ctx)
	return (&Postgres{Querier: conn, Table: p.Table}).Entries(ctx)
}

// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

// YAMLFile is a ledger stored as a YAML document with a top-level
// entries list.
//
// Unquoted timestamps stay strings; integers and floats keep their YAML
// types, so `risk_grade: 1` and `risk_grade: "1"` hash differently.
type YAMLFile struct {
	Path string
}

type yamlDocument struct {
	Entries []map[string]any `yaml:"entries"`
}

// Entries reads every entry in document order.
func (f *YAMLFile) Entries(ctx context.Context) ([]ledger.Entry, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &SourceReadError{Source: f.Path, Err: err}
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SourceReadError{Source: f.Path, Err: fmt.Errorf("parse: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]ledger.Entry, len(doc.Entries))
	for i, m := range doc.Entries {
		if m == nil {
			return nil, &SourceReadError{Source: f.Path, Err: fmt.Errorf("entry %d: not a mapping", i)}
		}
		entries[i] = ledger.Entry(m)
	}
	return entries, nil
}

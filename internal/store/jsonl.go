// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

// JSONLFile is a ledger stored as one JSON object per line.
type JSONLFile struct {
	Path string
}

// Entries reads every entry in file order.
func (f *JSONLFile) Entries(ctx context.Context) ([]ledger.Entry, error) {
	lines, err := f.lines()
	if err != nil {
		return nil, err
	}
	return f.decode(ctx, lines, 0)
}

// Tail returns the last n entries.
func (f *JSONLFile) Tail(ctx context.Context, n int) ([]ledger.Entry, error) {
	lines, err := f.lines()
	if err != nil {
		return nil, err
	}
	if n > len(lines) {
		n = len(lines)
	}
	first := len(lines) - n
	return f.decode(ctx, lines[first:], first)
}

func (f *JSONLFile) lines() ([][]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &SourceReadError{Source: f.Path, Err: err}
	}
	return splitLines(data), nil
}

func (f *JSONLFile) decode(ctx context.Context, lines [][]byte, offset int) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, len(lines))
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := DecodeEntry(line)
		if err != nil {
			return nil, &SourceReadError{
				Source: f.Path,
				Err:    fmt.Errorf("line %d: %w", offset+i+1, err),
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DecodeEntry parses one JSON object into an Entry. Numbers keep their
// literal text as json.Number so that hashing sees what was written.
// Invalid UTF-8 and unpaired surrogate escapes are rejected, since the
// decoder would otherwise replace them with U+FFFD.
func DecodeEntry(data []byte) (ledger.Entry, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("entry is not valid UTF-8")
	}
	if err := checkSurrogates(data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var e ledger.Entry
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if e == nil {
		return nil, errors.New("entry is not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after entry")
	}
	return e, nil
}

// checkSurrogates reports \u escapes that do not form a UTF-16 pair.
// Backslashes only occur inside JSON strings, so no string tracking is needed.
func checkSurrogates(data []byte) error {
	pendingHigh := false
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' {
			if pendingHigh {
				return errors.New("unpaired surrogate escape")
			}
			continue
		}
		if i+1 >= len(data) || data[i+1] != 'u' {
			if pendingHigh {
				return errors.New("unpaired surrogate escape")
			}
			i++
			continue
		}
		if i+6 > len(data) {
			return errors.New("truncated \\u escape")
		}
		n, err := strconv.ParseUint(string(data[i+2:i+6]), 16, 16)
		if err != nil {
			return fmt.Errorf("invalid \\u escape %q", data[i:i+6])
		}
		r := rune(n)
		switch {
		case pendingHigh && (r < 0xdc00 || r > 0xdfff):
			return errors.New("unpaired surrogate escape")
		case pendingHigh:
			pendingHigh = false
		case r >= 0xd800 && r <= 0xdbff:
			pendingHigh = true
		case utf16.IsSurrogate(r):
			return errors.New("unpaired surrogate escape")
		}
		i += 5
	}
	if pendingHigh {
		return errors.New("unpaired surrogate escape")
	}
	return nil
}

// splitLines splits data on newlines, dropping blank lines.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

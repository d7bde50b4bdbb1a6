// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

// Appender is an append-only, hash-chained writer for a JSONL ledger.
// Every Append re-reads the chain head under an exclusive file lock, so
// several appenders (in one process or many) can share a ledger.
type Appender struct {
	mu       sync.Mutex
	path     string
	prevHash string

	now   func() time.Time
	newID func() string
}

// NewAppender opens or creates the ledger at path. It reads the last entry
// to check that the hash chain can be resumed.
func NewAppender(path string) (*Appender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	a := &Appender{
		path:     path,
		prevHash: ledger.Genesis,
		now:      time.Now,
		newID:    uuid.NewString,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, &SourceReadError{Source: path, Err: err}
	}
	if a.prevHash, err = headOf(path, data); err != nil {
		return nil, err
	}
	return a, nil
}

// headOf returns the entry_hash of the last entry in data, or the genesis
// hash for an empty ledger.
func headOf(path string, data []byte) (string, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return ledger.Genesis, nil
	}
	last, err := DecodeEntry(lines[len(lines)-1])
	if err != nil {
		return "", &SourceReadError{Source: path, Err: fmt.Errorf("line %d: %w", len(lines), err)}
	}
	h, ok := last.Hash()
	if !ok || !ledger.ValidHash(h) {
		return "", fmt.Errorf("cannot resume chain: last entry %s has no valid entry_hash", last.ID())
	}
	return h, nil
}

// Append seals r onto the chain and writes it as one line. Empty EntryID
// and Timestamp are filled with a UUID and the current UTC time.
func (a *Appender) Append(ctx context.Context, r ledger.Record) (ledger.Entry, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &SourceReadError{Source: a.path, Err: err}
	}
	prev, err := headOf(a.path, data)
	if err != nil {
		return nil, err
	}

	if r.EntryID == "" {
		r.EntryID = a.newID()
	}
	if r.Timestamp == "" {
		r.Timestamp = a.now().UTC().Format(time.RFC3339)
	}

	entry, err := ledger.Seal(r.Entry(), prev)
	if err != nil {
		return nil, err
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return nil, fmt.Errorf("write ledger entry: %w", err)
	}
	a.prevHash = entry[ledger.FieldEntryHash].(string)
	return entry, nil
}

// Head returns the entry_hash last seen by this appender: the resumed head
// after NewAppender, then the hash of its most recent Append.
func (a *Appender) Head() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prevHash
}

// Path returns the ledger file path.
func (a *Appender) Path() string {
	return a.path
}

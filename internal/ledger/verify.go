// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"
)

// ReportVerified is the report of a chain that verified end to end.
const ReportVerified = "Chain integrity verified"

const reportBrokenPrefix = "Chain broken at entry "

// Mode selects how far verification scans after a break.
type Mode int

const (
	// ModeFailFast stops at the first break.
	ModeFailFast Mode = iota
	// ModeExhaustive records every break.
	ModeExhaustive
)

func (m Mode) String() string {
	switch m {
	case ModeFailFast:
		return "fail-fast"
	case ModeExhaustive:
		return "exhaustive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a config string to a Mode. Empty means fail-fast.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "fail-fast":
		return ModeFailFast, nil
	case "exhaustive":
		return ModeExhaustive, nil
	default:
		return 0, fmt.Errorf("invalid verify mode %q (want fail-fast or exhaustive)", s)
	}
}

// Verdict is the outcome of verifying a chain.
type Verdict struct {
	Valid   bool
	Report  string
	Index   int // position of the first break, or -1
	EntryID string
}

// Err returns a *ChainBrokenError for a broken verdict and nil otherwise.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return &ChainBrokenError{Index: v.Index, EntryID: v.EntryID}
}

// ChainBrokenError identifies the entry at which the chain stopped
// matching its stored hashes.
type ChainBrokenError struct {
	Index   int
	EntryID string
}

func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("ledger: chain broken at entry %s (position %d)", e.EntryID, e.Index)
}

// Break describes one entry whose stored hash disagrees with its content.
type Break struct {
	Index    int
	EntryID  string
	Expected string
	Stored   string // empty if entry_hash was absent or not a string
}

// Report is the result of a scan in either mode.
type Report struct {
	Checked int // entries examined
	Breaks  []Break
}

// Valid reports whether no breaks were found.
func (r Report) Valid() bool { return len(r.Breaks) == 0 }

// Verdict reduces the report to its first break.
func (r Report) Verdict() Verdict {
	if r.Valid() {
		return Verdict{Valid: true, Report: ReportVerified, Index: -1}
	}
	b := r.Breaks[0]
	return Verdict{
		Valid:   false,
		Report:  reportBrokenPrefix + b.EntryID,
		Index:   b.Index,
		EntryID: b.EntryID,
	}
}

// VerifyChain checks that entries form an unbroken chain from Genesis,
// stopping at the first mismatch. An empty chain is valid. Structural
// problems such as a *MissingFieldError abort the run and are returned as
// errors rather than verdicts.
func VerifyChain(entries []Entry) (Verdict, error) {
	r, err := scan(entries, true)
	if err != nil {
		return Verdict{}, err
	}
	return r.Verdict(), nil
}

// VerifyAll scans the whole chain and records every break. After a break
// the scan continues from the stored hash, so each later entry is judged
// against what the ledger claims precedes it.
func VerifyAll(entries []Entry) (Report, error) {
	return scan(entries, false)
}

// Verify scans entries in the given mode.
func Verify(entries []Entry, mode Mode) (Report, error) {
	return scan(entries, mode != ModeExhaustive)
}

func scan(entries []Entry, failFast bool) (Report, error) {
	var r Report
	prev := Genesis
	for i, e := range entries {
		expected, err := ComputeEntryHash(e, prev)
		if err != nil {
			return Report{}, fmt.Errorf("entry %d: %w", i, err)
		}
		r.Checked++

		stored, ok := e.Hash()
		if ok && stored == expected {
			prev = stored
			continue
		}

		r.Breaks = append(r.Breaks, Break{
			Index:    i,
			EntryID:  e.ID(),
			Expected: expected,
			Stored:   stored,
		})
		if failFast {
			return r, nil
		}
		if ok && ValidHash(stored) {
			prev = stored
		} else {
			prev = expected
		}
	}
	return r, nil
}

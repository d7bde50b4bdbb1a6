// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package ledger implements the hash chain over decision records: canonical
// entry hashing and full-chain verification from the genesis sentinel.
package ledger

import (
	"errors"
	"fmt"
	"maps"
)

// Canonical field names.
const (
	FieldEntryID      = "entry_id"
	FieldTimestamp    = "timestamp"
	FieldDecisionType = "decision_type"
	FieldDecision     = "decision"
	FieldRationale    = "rationale"
	FieldApprover     = "approver"
	FieldRiskGrade    = "risk_grade"

	FieldPreviousHash = "previous_hash"
	FieldEntryHash    = "entry_hash"
)

// Fields lists the entry fields that every hash commits to.
var Fields = []string{
	FieldEntryID,
	FieldTimestamp,
	FieldDecisionType,
	FieldDecision,
	FieldRationale,
	FieldApprover,
	FieldRiskGrade,
}

// Entry is one ledger record as read from storage. Besides the canonical
// fields and entry_hash it may carry metadata, which hashing ignores.
type Entry map[string]any

// ID renders entry_id as text, or "" if absent. An explicit null renders
// as "null".
func (e Entry) ID() string {
	v, ok := e[FieldEntryID]
	switch {
	case !ok:
		return ""
	case v == nil:
		return "null"
	}
	return fmt.Sprint(v)
}

// Hash returns the stored entry_hash and whether it is present as a string.
func (e Entry) Hash() (string, bool) {
	h, ok := e[FieldEntryHash].(string)
	return h, ok
}

// Clone returns a shallow copy of e.
func (e Entry) Clone() Entry {
	return maps.Clone(e)
}

// MissingFieldError reports a canonical field absent from an entry.
type MissingFieldError struct {
	Field   string
	EntryID string
}

func (e *MissingFieldError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("ledger: entry missing required field %q", e.Field)
	}
	return fmt.Sprintf("ledger: entry %s missing required field %q", e.EntryID, e.Field)
}

// Record is the typed form used when authoring a new entry.
type Record struct {
	EntryID      string `json:"entry_id"`
	Timestamp    string `json:"timestamp"`
	DecisionType string `json:"decision_type"`
	Decision     string `json:"decision"`
	Rationale    string `json:"rationale"`
	Approver     string `json:"approver"`
	RiskGrade    string `json:"risk_grade"`
}

// Validate checks the fields an author must supply. Rationale may be empty;
// EntryID and Timestamp are filled in by the appender when empty.
func (r Record) Validate() error {
	var missing []error
	for _, f := range []struct{ name, value string }{
		{FieldDecisionType, r.DecisionType},
		{FieldDecision, r.Decision},
		{FieldApprover, r.Approver},
		{FieldRiskGrade, r.RiskGrade},
	} {
		if f.value == "" {
			missing = append(missing, fmt.Errorf("%s is required", f.name))
		}
	}
	return errors.Join(missing...)
}

// Entry converts r to an unsealed Entry.
func (r Record) Entry() Entry {
	return Entry{
		FieldEntryID:      r.EntryID,
		FieldTimestamp:    r.Timestamp,
		FieldDecisionType: r.DecisionType,
		FieldDecision:     r.Decision,
		FieldRationale:    r.Rationale,
		FieldApprover:     r.Approver,
		FieldRiskGrade:    r.RiskGrade,
	}
}

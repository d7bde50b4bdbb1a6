// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/marcelocantos/ledgerchain/internal/canonical"
)

// Genesis is the previous hash of the first entry in every chain.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// HashLen is the length of a hex-encoded SHA-256 digest.
const HashLen = sha256.Size * 2

// ErrInvalidHash is returned for a previous hash that is not 64 lowercase
// hex characters.
var ErrInvalidHash = errors.New("ledger: invalid hash")

// ValidHash reports whether s is a 64-character lowercase hex digest.
func ValidHash(s string) bool {
	if len(s) != HashLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// CanonicalBytes returns the canonical JSON that an entry's hash commits
// to: the seven canonical fields plus previous_hash, keys sorted.
func CanonicalBytes(e Entry, previousHash string) ([]byte, error) {
	if !ValidHash(previousHash) {
		return nil, fmt.Errorf("%w: previous hash %q", ErrInvalidHash, previousHash)
	}
	payload := make(map[string]any, len(Fields)+1)
	for _, f := range Fields {
		v, ok := e[f]
		if !ok {
			return nil, &MissingFieldError{Field: f, EntryID: e.ID()}
		}
		payload[f] = v
	}
	payload[FieldPreviousHash] = previousHash

	data, err := canonical.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize entry %s: %w", e.ID(), err)
	}
	return data, nil
}

// ComputeEntryHash returns the lowercase hex SHA-256 of the entry's
// canonical form chained to previousHash.
func ComputeEntryHash(e Entry, previousHash string) (string, error) {
	data, err := CanonicalBytes(e, previousHash)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal returns a copy of e with entry_hash set for the given previous hash.
func Seal(e Entry, previousHash string) (Entry, error) {
	h, err := ComputeEntryHash(e, previousHash)
	if err != nil {
		return nil, err
	}
	sealed := e.Clone()
	sealed[FieldEntryHash] = h
	return sealed, nil
}

// SealChain seals entries in order starting from Genesis.
func SealChain(entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	prev := Genesis
	for i, e := range entries {
		sealed, err := Seal(e, prev)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, sealed)
		prev = sealed[FieldEntryHash].(string)
	}
	return out, nil
}

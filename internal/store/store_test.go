// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

func record(i int) ledger.Record {
	return ledger.Record{
		DecisionType: "approval",
		Decision:     fmt.Sprintf("decision %d", i),
		Rationale:    "meets criteria",
		Approver:     "alice",
		RiskGrade:    "L2",
	}
}

func TestAppendAndVerify(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger", "ledger.jsonl")

	a, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	if a.Head() != ledger.Genesis {
		t.Fatalf("new ledger head = %s, want genesis", a.Head())
	}

	for i := 0; i < 5; i++ {
		e, err := a.Append(ctx, record(i))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if e.ID() == "" {
			t.Errorf("append %d: no entry_id assigned", i)
		}
		if _, err := time.Parse(time.RFC3339, e[ledger.FieldTimestamp].(string)); err != nil {
			t.Errorf("append %d: timestamp: %v", i, err)
		}
	}

	entries, err := (&JSONLFile{Path: path}).Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	v, err := ledger.VerifyChain(entries)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestAppenderResumesChain(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	a1, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = a1.Append(ctx, record(1))
	last, err := a1.Append(ctx, record(2))
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a process restart.
	a2, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	if h, _ := last.Hash(); a2.Head() != h {
		t.Fatalf("resumed head = %s, want %s", a2.Head(), h)
	}
	r := record(3)
	r.EntryID = "E3"
	r.Timestamp = "2024-01-03T00:00:00Z"
	e, err := a2.Append(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if e.ID() != "E3" || e[ledger.FieldTimestamp] != "2024-01-03T00:00:00Z" {
		t.Errorf("supplied id/timestamp not kept: %v", e)
	}

	entries, err := (&JSONLFile{Path: path}).Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ledger.VerifyChain(entries)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid || len(entries) != 3 {
		t.Fatalf("verdict = %+v, entries = %d", v, len(entries))
	}
}

func TestAppenderConcurrent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	a, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := a.Append(ctx, record(i)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := (&JSONLFile{Path: path}).Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ledger.VerifyChain(entries)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid || len(entries) != 20 {
		t.Fatalf("verdict = %+v, entries = %d", v, len(entries))
	}
}

func TestAppendersShareLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	// Both open before either writes, as with a long-running server and a
	// one-shot append.
	a1, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		a := a1
		if i%2 == 1 {
			a = a2
		}
		if i < 4 {
			if _, err := a.Append(ctx, record(i)); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
			continue
		}
		wg.Add(1)
		go func(a *Appender, i int) {
			defer wg.Done()
			if _, err := a.Append(ctx, record(i)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(a, i)
	}
	wg.Wait()

	entries, err := (&JSONLFile{Path: path}).Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ledger.VerifyChain(entries)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid || len(entries) != 10 {
		t.Fatalf("verdict = %+v, entries = %d", v, len(entries))
	}
	if h, _ := entries[9].Hash(); a1.Head() != h && a2.Head() != h {
		t.Errorf("neither appender saw the final head %s", h)
	}
}

func TestAppenderRejectsInvalidRecord(t *testing.T) {
	a, err := NewAppender(filepath.Join(t.TempDir(), "ledger.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	r := record(1)
	r.RiskGrade = ""
	if _, err := a.Append(context.Background(), r); err == nil {
		t.Fatal("want error for missing risk_grade")
	}
}

func TestAppenderRefusesUnresumableLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	if err := os.WriteFile(path, []byte(`{"entry_id":"E1"}`+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewAppender(path); err == nil {
		t.Fatal("want error when last entry has no entry_hash")
	}

	if err := os.WriteFile(path, []byte("not json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := NewAppender(path)
	var sre *SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("error = %v, want SourceReadError", err)
	}
}

func TestJSONLDetectsTampering(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	a, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		_, _ = a.Append(ctx, record(i))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data = []byte(strings.Replace(string(data), "decision 1", "decision X", 1))
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	entries, err := (&JSONLFile{Path: path}).Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ledger.VerifyChain(entries)
	if err != nil {
		t.Fatal(err)
	}
	if v.Valid || v.Index != 1 {
		t.Fatalf("verdict = %+v, want break at 1", v)
	}
}

func TestJSONLPreservesNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	content := `{"entry_id":7,"risk_grade":2.50}` + "\n\n   \n" + `{"entry_id":"8"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	entries, err := (&JSONLFile{Path: path}).Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (blank lines skipped)", len(entries))
	}
	if n, ok := entries[0]["entry_id"].(json.Number); !ok || n != "7" {
		t.Errorf("entry_id = %#v, want json.Number 7", entries[0]["entry_id"])
	}
	if entries[0].ID() != "7" {
		t.Errorf("ID() = %q, want 7", entries[0].ID())
	}
}

func TestJSONLReadErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := (&JSONLFile{Path: filepath.Join(dir, "missing.jsonl")}).Entries(ctx)
	var sre *SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("missing file: error = %v, want SourceReadError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: error should unwrap to ErrNotExist: %v", err)
	}

	for name, content := range map[string]string{
		"malformed": `{"entry_id":"E1"}` + "\n{not json\n",
		"array":     `["E1"]` + "\n",
		"null":      "null\n",
		"trailing":  `{"entry_id":"E1"} {"entry_id":"E2"}` + "\n",
		"not utf8":  `{"entry_id":"E1","decision":"pay ` + "\xff" + `"}` + "\n",
		"surrogate": `{"entry_id":"E1","decision":"pay \udcff"}` + "\n",
	} {
		path := filepath.Join(dir, name+".jsonl")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := (&JSONLFile{Path: path}).Entries(ctx)
		if !errors.As(err, &sre) {
			t.Errorf("%s: error = %v, want SourceReadError", name, err)
		}
	}
}

func TestDecodeEntryUnicode(t *testing.T) {
	for _, line := range []string{
		`{"decision":"caf\u00e9"}`,
		`{"decision":"\ud83d\ude00"}`,
		`{"decision":"caf` + "\u00e9" + `"}`,
		`{"decision":"a\\udcff"}`, // escaped backslash, not an escape
	} {
		if _, err := DecodeEntry([]byte(line)); err != nil {
			t.Errorf("DecodeEntry(%s): %v", line, err)
		}
	}

	for _, line := range []string{
		"{\"decision\":\"pay \xff\"}",
		"{\"decision\":\"pay \xfe\"}",
		`{"decision":"\udcff"}`,
		`{"decision":"\ud83d"}`,
		`{"decision":"\ud83dx"}`,
		`{"decision":"\ud83d\ud83d"}`,
	} {
		if _, err := DecodeEntry([]byte(line)); err == nil {
			t.Errorf("DecodeEntry(%q) should fail", line)
		}
	}
}

func TestJSONLFileSwappedInvalidByteIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	a, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Append(context.Background(), record(0)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data = []byte(strings.Replace(string(data), "decision 0", "decision \xfe", 1))
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	_, err = (&JSONLFile{Path: path}).Entries(context.Background())
	var sre *SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("error = %v, want SourceReadError", err)
	}
}

func TestJSONLEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	entries, err := (&JSONLFile{Path: path}).Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func TestJSONLTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	a, err := NewAppender(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		_, _ = a.Append(ctx, record(i))
	}

	f := &JSONLFile{Path: path}
	tail, err := f.Tail(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[1][ledger.FieldDecision] != "decision 4" {
		t.Fatalf("tail = %v", tail)
	}
	all, err := f.Tail(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("tail(100) = %d entries, want 5", len(all))
	}
}

func TestYAMLFile(t *testing.T) {
	sealed, err := ledger.SealChain([]ledger.Entry{
		{"entry_id": "E1", "timestamp": "2024-01-01T00:00:00Z", "decision_type": "approval",
			"decision": "proceed", "rationale": "meets criteria", "approver": "alice", "risk_grade": "low"},
		{"entry_id": "E2", "timestamp": "2024-01-02T00:00:00Z", "decision_type": "approval",
			"decision": "hold", "rationale": "pending review", "approver": "bob", "risk_grade": "L2"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	b.WriteString("entries:\n")
	for _, e := range sealed {
		fmt.Fprintf(&b, "  - entry_id: %s\n", e["entry_id"])
		fmt.Fprintf(&b, "    timestamp: %s\n", e["timestamp"])
		fmt.Fprintf(&b, "    decision_type: %s\n", e["decision_type"])
		fmt.Fprintf(&b, "    decision: %s\n", e["decision"])
		fmt.Fprintf(&b, "    rationale: %s\n", e["rationale"])
		fmt.Fprintf(&b, "    approver: %s\n", e["approver"])
		fmt.Fprintf(&b, "    risk_grade: %s\n", e["risk_grade"])
		fmt.Fprintf(&b, "    entry_hash: %q\n", e["entry_hash"])
		b.WriteString("    reviewer_notes: ignored\n")
	}
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatal(err)
	}

	entries, err := (&YAMLFile{Path: path}).Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	v, err := ledger.VerifyChain(entries)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestYAMLFileNumericFieldHashesAsNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	doc := `entries:
  - entry_id: 1
    timestamp: "2024-01-01T00:00:00Z"
    decision_type: approval
    decision: proceed
    rationale: meets criteria
    approver: alice
    risk_grade: low
`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}
	entries, err := (&YAMLFile{Path: path}).Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := entries[0]["entry_id"].(int); !ok {
		t.Fatalf("entry_id = %#v, want int", entries[0]["entry_id"])
	}
	asInt, _ := ledger.ComputeEntryHash(entries[0], ledger.Genesis)
	entries[0]["entry_id"] = "1"
	asString, _ := ledger.ComputeEntryHash(entries[0], ledger.Genesis)
	if asInt == asString {
		t.Error("numeric and string entry_id hashed identically")
	}
}

func TestYAMLFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("entries: [\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := (&YAMLFile{Path: path}).Entries(context.Background())
	var sre *SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("error = %v, want SourceReadError", err)
	}

	_, err = (&YAMLFile{Path: filepath.Join(dir, "missing.yaml")}).Entries(context.Background())
	if !errors.As(err, &sre) {
		t.Fatalf("missing: error = %v, want SourceReadError", err)
	}
}

func TestOptionsResolve(t *testing.T) {
	tests := []struct {
		opts Options
		want Format
	}{
		{Options{Path: "ledger.jsonl"}, FormatJSONL},
		{Options{Path: "ledger.log"}, FormatJSONL},
		{Options{Path: "META_LEDGER.yaml"}, FormatYAML},
		{Options{Path: "x.YML", Format: FormatAuto}, FormatYAML},
		{Options{Path: "postgres://u@h/db"}, FormatPostgres},
		{Options{DSN: "postgres://u@h/db"}, FormatPostgres},
		{Options{Path: "ledger.jsonl", DSN: "postgres://u@h/db"}, FormatPostgres},
		{Options{Path: "ledger.jsonl", DSN: "postgres://u@h/db", Format: FormatJSONL}, FormatJSONL},
		{Options{Path: "ledger.yaml", Format: FormatJSONL}, FormatJSONL},
	}
	for _, tt := range tests {
		if got := tt.opts.Resolve(); got != tt.want {
			t.Errorf("%+v.Resolve() = %s, want %s", tt.opts, got, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	src, err := Open(Options{Path: "a.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*YAMLFile); !ok {
		t.Errorf("Open(a.yaml) = %T, want *YAMLFile", src)
	}

	src, err = Open(Options{Path: "postgresql://u@h/db"})
	if err != nil {
		t.Fatal(err)
	}
	pg, ok := src.(*PostgresDSN)
	if !ok || pg.Table != DefaultTable || pg.DSN != "postgresql://u@h/db" {
		t.Errorf("Open(postgres) = %#v", src)
	}

	if _, err := Open(Options{Format: FormatPostgres}); err == nil {
		t.Error("want error for postgres without dsn")
	}
	if _, err := Open(Options{}); err == nil {
		t.Error("want error for empty path")
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"", "auto", "jsonl", "yaml", "postgres"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("sqlite"); err == nil {
		t.Error("want error for sqlite")
	}
}

// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package filter selects ledger entries with Starlark expressions such as
//
//	risk_grade == "L3" and approver != "alice"
//
// Every canonical field is bound as a global (None when absent), any other
// top-level field with an identifier-like name is bound too, and the whole
// entry is available as the dict `entry`.
package filter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/marcelocantos/ledgerchain/internal/ledger"
)

// maxSteps bounds the work a single evaluation may do.
const maxSteps = 100_000

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Filter is a compiled entry predicate.
type Filter struct {
	expr string
}

// Compile checks that expr is a syntactically valid Starlark expression.
func Compile(expr string) (*Filter, error) {
	if _, err := syntax.ParseExpr("where", expr, 0); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return &Filter{expr: expr}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }

// Match evaluates the expression against e and reports its truth value.
func (f *Filter) Match(e ledger.Entry) (bool, error) {
	env, err := globals(e)
	if err != nil {
		return false, err
	}
	thread := &starlark.Thread{Name: "filter"}
	thread.SetMaxExecutionSteps(maxSteps)

	v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "where", f.expr, env)
	if err != nil {
		return false, fmt.Errorf("filter %q on entry %s: %w", f.expr, e.ID(), err)
	}
	return bool(v.Truth()), nil
}

// Apply returns the entries matching f, in order. A nil filter matches all.
func Apply(entries []ledger.Entry, f *Filter) ([]ledger.Entry, error) {
	if f == nil {
		return entries, nil
	}
	var out []ledger.Entry
	for _, e := range entries {
		ok, err := f.Match(e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func globals(e ledger.Entry) (starlark.StringDict, error) {
	env := starlark.StringDict{}
	for _, name := range ledger.Fields {
		env[name] = starlark.None
	}
	env[ledger.FieldEntryHash] = starlark.None

	dict := starlark.NewDict(len(e))
	for _, k := range sortedKeys(e) {
		v, err := toValue(e[k])
		if err != nil {
			return nil, fmt.Errorf("filter: field %s: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), v); err != nil {
			return nil, err
		}
		if identRE.MatchString(k) && k != "entry" {
			env[k] = v
		}
	}
	env["entry"] = dict
	return env, nil
}

func toValue(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(x), nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case float64:
		return starlark.Float(x), nil
	case json.Number:
		if i, ok := new(big.Int).SetString(x.String(), 10); ok {
			return starlark.MakeBigInt(i), nil
		}
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	case time.Time:
		return starlark.String(x.UTC().Format(time.RFC3339Nano)), nil
	case map[string]any:
		d := starlark.NewDict(len(x))
		for _, k := range sortedKeys(x) {
			item, err := toValue(x[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), item); err != nil {
				return nil, err
			}
		}
		return d, nil
	case []any:
		items := make([]starlark.Value, len(x))
		for i, item := range x {
			sv, err := toValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	default:
		return starlark.String(fmt.Sprint(x)), nil
	}
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

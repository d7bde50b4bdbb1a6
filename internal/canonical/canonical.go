// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package canonical encodes values as canonical JSON.
//
// Object keys are sorted at every level, no whitespace is emitted, and the
// output is pure ASCII: anything outside the printable ASCII range is written
// as a \uXXXX escape. The result matches what a sort_keys, compact,
// ASCII-escaping JSON encoder produces, so ledgers written by other tools
// hash identically.
package canonical

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// TimeFormat is the layout used for time.Time values.
const TimeFormat = time.RFC3339Nano

// UnsupportedTypeError is returned when a value has no canonical form.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("canonical: unsupported type %v", e.Type)
}

// UnsupportedValueError is returned for values of a supported type that
// cannot be represented, such as NaN.
type UnsupportedValueError struct {
	Value string
}

func (e *UnsupportedValueError) Error() string {
	return "canonical: unsupported value " + e.Value
}

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return appendValue(nil, v)
}

func appendValue(b []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(b, "null"...), nil
	case string:
		return appendString(b, x)
	case bool:
		return strconv.AppendBool(b, x), nil
	case int:
		return strconv.AppendInt(b, int64(x), 10), nil
	case int64:
		return strconv.AppendInt(b, x, 10), nil
	case uint64:
		return strconv.AppendUint(b, x, 10), nil
	case float64:
		return appendFloat(b, x, 64)
	case float32:
		return appendFloat(b, float64(x), 32)
	case json.Number:
		return appendNumber(b, x)
	case time.Time:
		return appendString(b, x.UTC().Format(TimeFormat))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		return appendObject(b, keys, func(k string) any { return x[k] })
	case []any:
		b = append(b, '[')
		for i, item := range x {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = appendValue(b, item); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	}
	return appendReflect(b, reflect.ValueOf(v))
}

// appendReflect handles named types and typed containers.
func appendReflect(b []byte, rv reflect.Value) ([]byte, error) {
	switch rv.Kind() {
	case reflect.String:
		return appendString(b, rv.String())
	case reflect.Bool:
		return strconv.AppendBool(b, rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.AppendInt(b, rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.AppendUint(b, rv.Uint(), 10), nil
	case reflect.Float32:
		return appendFloat(b, rv.Float(), 32)
	case reflect.Float64:
		return appendFloat(b, rv.Float(), 64)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return append(b, "null"...), nil
		}
		return appendValue(b, rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := make([]string, 0, rv.Len())
		values := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			values[k] = iter.Value().Interface()
		}
		return appendObject(b, keys, func(k string) any { return values[k] })
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return append(b, "null"...), nil
		}
		b = append(b, '[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = appendValue(b, rv.Index(i).Interface()); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	}
	return nil, &UnsupportedTypeError{Type: rv.Type()}
}

func appendObject(b []byte, keys []string, value func(string) any) ([]byte, error) {
	sort.Strings(keys)
	b = append(b, '{')
	for i, k := range keys {
		if i > 0 {
			b = append(b, ',')
		}
		var err error
		if b, err = appendString(b, k); err != nil {
			return nil, err
		}
		b = append(b, ':')
		if b, err = appendValue(b, value(k)); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
	}
	return append(b, '}'), nil
}

const hexDigits = "0123456789abcdef"

// appendString rejects invalid UTF-8 rather than substituting U+FFFD, which
// would let distinct byte strings share an encoding.
func appendString(b []byte, s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, &UnsupportedValueError{Value: "invalid UTF-8 string " + strconv.QuoteToASCII(s)}
	}
	b = append(b, '"')
	for _, r := range s {
		switch r {
		case '"':
			b = append(b, '\\', '"')
		case '\\':
			b = append(b, '\\', '\\')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				b = append(b, byte(r))
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				b = appendEscape(b, hi)
				b = appendEscape(b, lo)
			default:
				b = appendEscape(b, r)
			}
		}
	}
	return append(b, '"'), nil
}

func appendEscape(b []byte, r rune) []byte {
	return append(b, '\\', 'u',
		hexDigits[r>>12&0xf], hexDigits[r>>8&0xf],
		hexDigits[r>>4&0xf], hexDigits[r&0xf])
}

// appendFloat writes the shortest round-trip representation. Integral
// values keep a trailing ".0" and exponent form is used outside
// 1e-4 <= |f| < 1e16, so floats never collide with integers.
func appendFloat(b []byte, f float64, bits int) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &UnsupportedValueError{Value: strconv.FormatFloat(f, 'g', -1, bits)}
	}
	if f == 0 {
		if math.Signbit(f) {
			return append(b, "-0.0"...), nil
		}
		return append(b, "0.0"...), nil
	}
	sci := strconv.FormatFloat(f, 'e', -1, bits)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil {
		return nil, fmt.Errorf("canonical: float exponent %q: %w", sci, err)
	}
	if exp < -4 || exp >= 16 {
		return append(b, sci...), nil
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	b = append(b, s...)
	if !strings.ContainsRune(s, '.') {
		b = append(b, ".0"...)
	}
	return b, nil
}

func appendNumber(b []byte, n json.Number) ([]byte, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, &UnsupportedValueError{Value: strconv.Quote(s)}
		}
		return i.Append(b, 10), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &UnsupportedValueError{Value: strconv.Quote(s)}
	}
	return appendFloat(b, f, 64)
}

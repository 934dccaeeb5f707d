// Package canon produces deterministic byte-serializations of JSON-shaped
// values for signing and hashing. It is the only serialization used on
// those paths; no other encoder may stand in for it.
package canon

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
)

// Error reports a value that cannot be canonicalized: functions, cycles,
// non-UTF-8 strings, or NaN/±Inf numbers.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("canonicalization error: %s", e.Reason)
}

// Marshal canonicalizes v: object keys sorted lexicographically, no
// insignificant whitespace, exact integers emitted without a fractional
// part. v is walked by reflection first to reject anything
// encoding/json would otherwise accept by silently coercing —
// NaN/±Inf, non-UTF-8 strings, functions, channels, cycles — then
// marshaled with encoding/json and transformed to RFC 8785 canonical
// form via jcs.
func Marshal(v any) ([]byte, error) {
	if err := validate(reflect.ValueOf(v), map[uintptr]bool{}); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Reason: err.Error()}
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &Error{Reason: err.Error()}
	}
	return out, nil
}

// MustMarshal is Marshal for call sites that have already validated v and
// treat a canonicalization failure as a programmer error.
func MustMarshal(v any) []byte {
	out, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Equal reports whether two values canonicalize to the same bytes.
func Equal(a, b any) (bool, error) {
	ca, err := Marshal(a)
	if err != nil {
		return false, err
	}
	cb, err := Marshal(b)
	if err != nil {
		return false, err
	}
	return string(ca) == string(cb), nil
}

// validate walks v by reflection — structs, pointers, interfaces, maps,
// and slices included, not just the map[string]any/[]any shapes
// encoding/json itself produces — rejecting anything encoding/json
// would otherwise accept silently: NaN/±Inf floats, non-UTF-8 strings
// (encoding/json substitutes U+FFFD instead of erroring), functions,
// channels, and cyclic structures. visited tracks pointers/maps/slices
// currently on the walk stack; a repeat hit before the walk backtracks
// past it is a cycle, not merely a DAG with shared structure.
func validate(rv reflect.Value, visited map[uintptr]bool) error {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return &Error{Reason: "unsupported type: " + rv.Kind().String()}
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return &Error{Reason: "non-finite number"}
		}
	case reflect.String:
		if !utf8.ValidString(rv.String()) {
			return &Error{Reason: "invalid UTF-8 string"}
		}
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return withCycleGuard(rv.Pointer(), visited, func() error {
			return validate(rv.Elem(), visited)
		})
	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return validate(rv.Elem(), visited)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return withCycleGuard(rv.Pointer(), visited, func() error {
			for _, key := range rv.MapKeys() {
				if err := validate(key, visited); err != nil {
					return err
				}
				if err := validate(rv.MapIndex(key), visited); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		return withCycleGuard(rv.Pointer(), visited, func() error {
			return validateElements(rv, visited)
		})
	case reflect.Array:
		return validateElements(rv, visited)
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if rv.Type().Field(i).PkgPath != "" {
				continue // unexported field
			}
			if err := validate(rv.Field(i), visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateElements(rv reflect.Value, visited map[uintptr]bool) error {
	for i := 0; i < rv.Len(); i++ {
		if err := validate(rv.Index(i), visited); err != nil {
			return err
		}
	}
	return nil
}

// withCycleGuard marks ptr visited for the duration of fn, returning a
// cycle Error if ptr is already on the walk stack. The mark is cleared
// on return so sibling branches may still reference the same pointer
// (a DAG, not a cycle).
func withCycleGuard(ptr uintptr, visited map[uintptr]bool, fn func() error) error {
	if visited[ptr] {
		return &Error{Reason: "cyclic structure"}
	}
	visited[ptr] = true
	defer delete(visited, ptr)
	return fn()
}

// Package errors holds the constant error kinds shared by every package of the
// server. An error kind is a plain string constant; formatting it with F or
// attaching context with KV returns a Struct that still matches the kind with
// errors.Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// String is an error kind with a fixed message.
	String string
	// StringF is an error kind whose message is a fmt format string. It may
	// wrap another error with %w.
	StringF string
	// State is an error kind that describes a terminal state of a connection
	// (closed, timed out) rather than a fault.
	State string

	// Struct is a formatted instance of an error kind.
	Struct struct {
		kind error
		err  error
		kv   []interface{}
	}
)

func (e String) Error() string { return string(e) }

func (e String) F(v ...interface{}) Struct { return newStruct(e, string(e), v...) }

func (e String) KV(kv ...interface{}) Struct { return Struct{kind: e, err: e, kv: kv} }

func (e StringF) Error() string { return string(e) }

func (e StringF) F(v ...interface{}) Struct { return newStruct(e, string(e), v...) }

func (e StringF) KV(kv ...interface{}) Struct { return Struct{kind: e, err: e, kv: kv} }

func (e State) Error() string { return string(e) }

func (e State) KV(kv ...interface{}) Struct { return Struct{kind: e, err: e, kv: kv} }

func newStruct(kind error, format string, v ...interface{}) Struct {
	var kv []interface{}
	for i, val := range v {
		if s, ok := val.(Struct); ok && len(s.kv) > 0 {
			kv = append(kv, s.kv...)
			s.kv = nil
			v[i] = s
		}
	}
	if !strings.Contains(format, "%") {
		return Struct{kind: kind, err: kind, kv: kv}
	}
	return Struct{kind: kind, err: fmt.Errorf(format, v...), kv: kv}
}

func (e Struct) Error() string { return e.err.Error() + fmtKV(e.kv) }

// KV returns a copy of e with more key/value context attached.
func (e Struct) KV(kv ...interface{}) Struct {
	return Struct{kind: e.kind, err: e.err, kv: append(append([]interface{}{}, e.kv...), kv...)}
}

// Unwrap exposes the wrapped error (if any) to errors.Is and errors.As.
func (e Struct) Unwrap() error {
	if e.err == e.kind {
		return nil
	}
	return errors.Unwrap(e.err)
}

// Is matches the error kind that produced e.
func (e Struct) Is(target error) bool {
	if t, ok := target.(Struct); ok {
		return e.kind == t.kind
	}
	return e.kind == target
}

// Value returns the value stored for key, or nil.
func (e Struct) Value(key interface{}) interface{} {
	for i := 0; i+1 < len(e.kv); i += 2 {
		if e.kv[i] == key {
			return e.kv[i+1]
		}
	}
	return nil
}

func fmtKV(kvPairs []interface{}) string {
	if len(kvPairs) == 0 {
		return ""
	}

	pairs := make([]string, 0, (len(kvPairs)+1)/2)
	for n := 0; n < len(kvPairs); n += 2 {
		key, val := kvPairs[n], interface{}("")
		if n+1 < len(kvPairs) {
			val = kvPairs[n+1]
		}
		pairs = append(pairs, fmt.Sprint(key, "=", val))
	}

	return " [" + strings.Join(pairs, " ") + "]"
}

// Package callback adapts plain Go functions to the handler interfaces the
// server calls: event handlers, handlers that answer an acknowledgment, and
// the success/timeout callbacks of an emitted packet that asked for one.
package callback

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// EventCallback is called with the decoded payload of an event.
type EventCallback interface {
	Callback(...interface{}) error
}

// AckCallback answers an event that requested an acknowledgment. The
// returned values are sent back as the ACK payload.
type AckCallback interface {
	CallbackAck(...interface{}) []interface{}
}

// Reply is the ack handle appended as the last argument of an event that
// requested an acknowledgment, when the handler is not an AckCallback. Only
// the first call sends anything.
type Reply func(...interface{}) error

type ErrorWrap func() error

func (fn ErrorWrap) Callback(...interface{}) error { return fn() }

type FuncAny func(...interface{}) error

func (fn FuncAny) Callback(v ...interface{}) error { return fn(v...) }

type FuncString func(string)

func (fn FuncString) Callback(v ...interface{}) error {
	if len(v) == 0 {
		v = append(v, "unknown")
	}
	if val, ok := v[0].(string); ok {
		fn(val)
	} else {
		fn("undefined")
	}
	return nil
}

// FuncAck is an event handler whose return values acknowledge the event.
type FuncAck func(...interface{}) []interface{}

func (fn FuncAck) Callback(v ...interface{}) error { fn(v...); return nil }

func (fn FuncAck) CallbackAck(v ...interface{}) []interface{} { return fn(v...) }

// Wrap calls any func value, converting each payload value to the type of
// the matching parameter. Missing arguments are zero values, extra ones are
// dropped. A trailing error result is returned by Callback; the other
// results form the acknowledgment for CallbackAck.
type Wrap struct {
	Func interface{}
}

func (fn Wrap) Callback(data ...interface{}) error {
	_, err := fn.call(data)
	return err
}

func (fn Wrap) CallbackAck(data ...interface{}) []interface{} {
	out, _ := fn.call(data)
	return out
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func (fn Wrap) call(data []interface{}) (out []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	f := reflect.ValueOf(fn.Func)
	if f.Kind() != reflect.Func {
		return nil, ErrNotAFunc.F(fn.Func)
	}

	ft := f.Type()
	numIn := ft.NumIn()
	if ft.IsVariadic() {
		numIn--
	}

	in := make([]reflect.Value, 0, len(data))
	for i := 0; i < numIn; i++ {
		var v interface{}
		if i < len(data) {
			v = data[i]
		}
		rv, err := convert(v, ft.In(i))
		if err != nil {
			return nil, ErrParamConvert.F(i, ft.In(i), err)
		}
		in = append(in, rv)
	}
	if ft.IsVariadic() {
		elem := ft.In(numIn).Elem()
		for i := numIn; i < len(data); i++ {
			rv, err := convert(data[i], elem)
			if err != nil {
				return nil, ErrParamConvert.F(i, elem, err)
			}
			in = append(in, rv)
		}
	}

	for _, res := range f.Call(in) {
		if res.Type() == errorType {
			if !res.IsNil() {
				err = res.Interface().(error)
			}
			continue
		}
		out = append(out, res.Interface())
	}
	return out, err
}

func convert(v interface{}, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumber(rv.Kind()) && isNumber(t.Kind()) {
		return rv.Convert(t), nil
	}

	// decoded JSON shapes into structs, typed slices and maps
	b, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(b, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Invoke calls cb and turns a panic into an error.
func Invoke(cb EventCallback, v ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return cb.Callback(v...)
}

// InvokeAck calls cb and turns a panic into an error.
func InvokeAck(cb AckCallback, v ...interface{}) (out []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return cb.CallbackAck(v...), nil
}

func panicError(r interface{}) error {
	switch e := r.(type) {
	case string:
		return ErrHandlerPanic.F(errors.New(e))
	case error:
		return ErrHandlerPanic.F(e)
	}
	return ErrHandlerPanic.F(fmt.Errorf("%v", r))
}

// Package optional contains a value that may or may not be present.
//
// It is the "optional" return shape of a declared endpoint: an endpoint
// returning Value[T] decodes a T and delivers None when the decoder
// produced nothing.
package optional

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Value is an optional value. The zero value is None.
type Value[T any] struct {
	indirect *T
}

// None constructs an empty Value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// Some constructs a Value holding value. Nil pointers, maps, slices,
// interfaces and similar nil-able values yield None.
func Some[T any](value T) Value[T] {
	if isNil(value) {
		return None[T]()
	}
	return Value[T]{indirect: &value}
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// IsNone returns whether the Value is empty.
func (v Value[T]) IsNone() bool {
	return v.indirect == nil
}

// Get returns the underlying value and whether it is present.
func (v Value[T]) Get() (T, bool) {
	if v.indirect == nil {
		var zero T
		return zero, false
	}
	return *v.indirect, true
}

// Unwrap returns the underlying value or panics when the Value is empty.
func (v Value[T]) Unwrap() T {
	if v.indirect == nil {
		panic("optional: unwrapping an empty Value")
	}
	return *v.indirect
}

// UnwrapOr returns the underlying value or fallback when the Value is empty.
func (v Value[T]) UnwrapOr(fallback T) T {
	if v.indirect == nil {
		return fallback
	}
	return *v.indirect
}

// MarshalJSON implements json.Marshaler. An empty Value is null.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if v.indirect == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*v.indirect)
}

// UnmarshalJSON implements json.Unmarshaler. A null input is None.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		v.indirect = nil
		return nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*v = Some(value)
	return nil
}

// OptionalElem returns the reflect.Type of T. Endpoint compilation uses it
// to recognise Value[T] as an optional return shape.
func (Value[T]) OptionalElem() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// WrapAny converts an untyped decoded result into a Value[T] boxed as any.
// A nil result yields None; a result of the wrong type is reported
// through ok.
func (Value[T]) WrapAny(result any) (wrapped any, ok bool) {
	if result == nil {
		return None[T](), true
	}
	typed, ok := result.(T)
	if !ok {
		return nil, false
	}
	return Some(typed), true
}

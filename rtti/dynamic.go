package rtti

import (
	"reflect"
)

// Dynamic is implemented by values that know their most-derived value.
//
// Go has no virtual dispatch through embedding: a *Circle handed around
// as its embedded *Shape has lost its outer type. A base that records the
// outer pointer can report it:
//
//	type Shape struct{ self any }
//
//	func (s *Shape) DynamicValue() any { return s.self }
type Dynamic interface {
	DynamicValue() any
}

// Outer returns the most-derived value behind v: the result of
// DynamicValue when v implements [Dynamic] and reports one, else v.
func Outer(v any) any {
	d, ok := v.(Dynamic)
	if !ok {
		return v
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return v
	}
	if out := d.DynamicValue(); out != nil {
		return out
	}
	return v
}

// TypeOf returns the most-derived type of v, the concrete type of
// Outer(v).
func TypeOf(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(Outer(v))
}

// Base returns the embedding parent of t: the type of the first field of
// a struct when that field is embedded. Pointers are looked through on
// both sides.
func Base(t reflect.Type) (reflect.Type, bool) {
	t = Normalize(t)
	if t == nil || t.Kind() != reflect.Struct || t.NumField() == 0 {
		return nil, false
	}
	f := t.Field(0)
	if !f.Anonymous {
		return nil, false
	}
	ft := Normalize(f.Type)
	if ft.Kind() != reflect.Struct {
		return nil, false
	}
	return ft, true
}

// Ancestors returns t followed by its embedding chain, nearest first.
func Ancestors(t reflect.Type) []reflect.Type {
	var out []reflect.Type
	seen := make(map[reflect.Type]bool)
	for t = Normalize(t); t != nil && !seen[t]; {
		seen[t] = true
		out = append(out, t)
		b, ok := Base(t)
		if !ok {
			break
		}
		t = b
	}
	return out
}

// Upcast converts v to target. It succeeds when v is assignable to target,
// or when target is reached by walking v's embedded fields; a *Derived
// upcasts to *Base as &d.Base.
func Upcast(v reflect.Value, target reflect.Type) (reflect.Value, bool) {
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	if v.Type().AssignableTo(target) {
		return v, true
	}

	var s reflect.Value
	switch {
	case v.Kind() == reflect.Pointer && v.Type().Elem().Kind() == reflect.Struct:
		if v.IsNil() {
			return reflect.Value{}, false
		}
		s = v.Elem()
	case v.Kind() == reflect.Struct:
		s = v
	default:
		return reflect.Value{}, false
	}

	for i := 0; i < s.NumField(); i++ {
		f := s.Type().Field(i)
		if !f.Anonymous {
			continue
		}
		fv := s.Field(i)
		if f.Type.Kind() == reflect.Struct && fv.CanAddr() {
			fv = fv.Addr()
		}
		if out, ok := Upcast(fv, target); ok {
			return out, true
		}
	}
	return reflect.Value{}, false
}

// Builtin reports whether t is converted structurally rather than through
// a registered class: booleans, numbers, strings, byte slices, the empty
// interface and error.
func Builtin(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	case reflect.Interface:
		return t.NumMethod() == 0 || t == errorType
	}
	return false
}

var errorType = reflect.TypeFor[error]()

// Elems returns the element types a container type is converted through:
// the element of a slice or array, the key and value of a map. Other
// types have none.
func Elems(t reflect.Type) []reflect.Type {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return []reflect.Type{t.Elem()}
	case reflect.Map:
		return []reflect.Type{t.Key(), t.Elem()}
	}
	return nil
}

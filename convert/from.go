package convert

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/registry"
)

// FromHost converts v to a Go value of type t.
//
// A host Integer converts to any Go number it fits, a host Float to Go
// floats and, when integral, to Go integers. Booleans follow host
// truthiness. Wrapped objects convert to pointers (or copied values) of
// their registered type or any type it embeds.
func (c *Converter) FromHost(v host.Value, t reflect.Type) (reflect.Value, error) {
	if r, ok := c.rule(t); ok && r.FromHost != nil {
		return r.FromHost(v)
	}
	if t == hostValueType {
		return reflect.ValueOf(v), nil
	}

	rt := c.rt
	switch t.Kind() {
	case reflect.Bool:
		return reflect.ValueOf(rt.Truthy(v)).Convert(t), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := c.integer(v, t)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, &RangeError{Value: fmt.Sprintf("integer %d", n), Type: t}
		}
		out.SetInt(n)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := c.integer(v, t)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t).Elem()
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, &RangeError{Value: fmt.Sprintf("integer %d", n), Type: t}
		}
		out.SetUint(uint64(n))
		return out, nil

	case reflect.Float32, reflect.Float64:
		var f float64
		if n, ok := rt.Int(v); ok {
			f = float64(n)
		} else if x, ok := rt.Float(v); ok {
			f = x
		} else {
			return reflect.Value{}, c.notConvertible(v, t)
		}
		out := reflect.New(t).Elem()
		if !math.IsInf(f, 0) && !math.IsNaN(f) && out.OverflowFloat(f) {
			return reflect.Value{}, &RangeError{Value: fmt.Sprintf("float %g", f), Type: t}
		}
		out.SetFloat(f)
		return out, nil

	case reflect.String:
		if s, ok := rt.Str(v); ok {
			return reflect.ValueOf(s).Convert(t), nil
		}
		if s, ok := rt.Symbol(v); ok {
			return reflect.ValueOf(s).Convert(t), nil
		}
		return reflect.Value{}, c.notConvertible(v, t)

	case reflect.Interface:
		return c.interfaceFromHost(v, t)

	case reflect.Pointer:
		if v == host.Nil {
			return reflect.Zero(t), nil
		}
		// Types with a rule convert by value, so the pointer is a fresh copy.
		if r, ruled := c.rule(t.Elem()); !ruled || r.FromHost == nil {
			if e, ok := c.reg.Lookup(t); ok && !e.Placeholder() {
				return c.carrier.Unwrap(v, e, t)
			}
		}
		elem, err := c.FromHost(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil

	case reflect.Struct:
		e, ok := c.reg.Lookup(t)
		if !ok || e.Placeholder() {
			return reflect.Value{}, &registry.TypeNotRegisteredError{Type: t}
		}
		p, err := c.carrier.Unwrap(v, e, reflect.PointerTo(t))
		if err != nil {
			return reflect.Value{}, err
		}
		return p.Elem(), nil

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			if s, ok := rt.Str(v); ok {
				return reflect.ValueOf([]byte(s)).Convert(t), nil
			}
		}
		if v == host.Nil {
			return reflect.Zero(t), nil
		}
		items, ok := rt.ArrayItems(v)
		if !ok {
			return reflect.Value{}, c.notConvertible(v, t)
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, it := range items {
			ev, err := c.FromHost(it, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case reflect.Array:
		items, ok := rt.ArrayItems(v)
		if !ok {
			return reflect.Value{}, c.notConvertible(v, t)
		}
		if len(items) != t.Len() {
			return reflect.Value{}, &RangeError{Value: fmt.Sprintf("array of %d elements", len(items)), Type: t}
		}
		out := reflect.New(t).Elem()
		for i, it := range items {
			ev, err := c.FromHost(it, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case reflect.Map:
		return c.mapFromHost(v, t)
	}
	return reflect.Value{}, &registry.TypeNotRegisteredError{Type: t}
}

func (c *Converter) notConvertible(v host.Value, t reflect.Type) error {
	return &data.NotConvertibleError{Class: data.ClassName(c.rt, v), Target: t}
}

// integer reads v as an int64 for conversion to t.
func (c *Converter) integer(v host.Value, t reflect.Type) (int64, error) {
	if n, ok := c.rt.Int(v); ok {
		return n, nil
	}
	f, ok := c.rt.Float(v)
	if !ok {
		return 0, c.notConvertible(v, t)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, &RangeError{Value: fmt.Sprintf("float %g", f), Type: t}
	}
	if f != math.Trunc(f) && !c.lossy {
		return 0, c.notConvertible(v, t)
	}
	return int64(f), nil
}

func (c *Converter) interfaceFromHost(v host.Value, t reflect.Type) (reflect.Value, error) {
	if v == host.Nil {
		return reflect.Zero(t), nil
	}
	if t == errorType {
		s, ok := c.rt.Str(v)
		if !ok {
			return reflect.Value{}, c.notConvertible(v, t)
		}
		return reflect.ValueOf(errors.New(s)), nil
	}
	if t.NumMethod() == 0 {
		nat, err := c.natural(v)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t).Elem()
		if nat != nil {
			out.Set(reflect.ValueOf(nat))
		}
		return out, nil
	}

	// A non-empty interface is satisfied by the wrapped pointer itself.
	e, ok := c.entryOf(v)
	if !ok {
		return reflect.Value{}, c.notConvertible(v, t)
	}
	return c.carrier.Unwrap(v, e, t)
}

// entryOf finds the registration for the class of v or its nearest
// registered superclass.
func (c *Converter) entryOf(v host.Value) (registry.Entry, bool) {
	if _, _, ok := c.rt.DataPayload(v); !ok {
		return registry.Entry{}, false
	}
	for class := c.rt.ClassOf(v); class != host.Nil; class = c.rt.Superclass(class) {
		if e, ok := c.reg.ByClass(class); ok {
			return e, true
		}
	}
	return registry.Entry{}, false
}

// natural converts v to the Go value an untyped caller expects: bool,
// int64, float64, string, []any, map[any]any, a wrapped pointer, or the
// host.Value itself for anything else.
func (c *Converter) natural(v host.Value) (any, error) {
	rt := c.rt
	switch rt.KindOf(v) {
	case host.KindNil:
		return nil, nil
	case host.KindBool:
		return v == host.True, nil
	case host.KindInt:
		n, _ := rt.Int(v)
		return n, nil
	case host.KindFloat:
		f, _ := rt.Float(v)
		return f, nil
	case host.KindString:
		s, _ := rt.Str(v)
		return s, nil
	case host.KindSymbol:
		s, _ := rt.Symbol(v)
		return s, nil
	case host.KindArray:
		items, _ := rt.ArrayItems(v)
		out := make([]any, len(items))
		for i, it := range items {
			n, err := c.natural(it)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case host.KindHash:
		out := make(map[any]any, rt.HashLen(v))
		var ferr error
		err := rt.HashEach(v, func(k, val host.Value) bool {
			nk, err := c.natural(k)
			if err != nil {
				ferr = err
				return false
			}
			if nk != nil && !reflect.TypeOf(nk).Comparable() {
				ferr = &data.NotConvertibleError{Class: data.ClassName(rt, k), Target: reflect.TypeFor[map[any]any]()}
				return false
			}
			nv, err := c.natural(val)
			if err != nil {
				ferr = err
				return false
			}
			out[nk] = nv
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, ferr
	case host.KindData:
		if e, ok := c.entryOf(v); ok {
			p, err := c.carrier.Unwrap(v, e, reflect.PointerTo(e.Type))
			if err != nil {
				return nil, err
			}
			return p.Interface(), nil
		}
	}
	return v, nil
}

func (c *Converter) mapFromHost(v host.Value, t reflect.Type) (reflect.Value, error) {
	if v == host.Nil {
		return reflect.Zero(t), nil
	}
	if c.rt.KindOf(v) != host.KindHash {
		return reflect.Value{}, c.notConvertible(v, t)
	}
	out := reflect.MakeMapWithSize(t, c.rt.HashLen(v))
	var ferr error
	err := c.rt.HashEach(v, func(k, val host.Value) bool {
		gk, err := c.FromHost(k, t.Key())
		if err != nil {
			ferr = fmt.Errorf("key: %w", err)
			return false
		}
		gv, err := c.FromHost(val, t.Elem())
		if err != nil {
			ferr = fmt.Errorf("value: %w", err)
			return false
		}
		out.SetMapIndex(gk, gv)
		return true
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if ferr != nil {
		return reflect.Value{}, ferr
	}
	return out, nil
}

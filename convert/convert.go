// Package convert moves values across the boundary in both directions.
//
// Conversion rules registered for an exact Go type are consulted first, so
// they override the builtin conversions. Builtins cover booleans, numbers,
// strings, byte slices, slices and arrays (host Array), maps (host Hash),
// host.Value passthrough and the empty interface. Every other type must be
// registered: its values travel as wrapped objects through the carrier.
package convert

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"

	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/registry"
	"github.com/feather-lang/tether/rtti"
)

// RangeError reports a value that does not fit the target type.
type RangeError struct {
	Value string
	Type  reflect.Type
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s out of range of %s", e.Value, rtti.Name(e.Type))
}

// Rule converts one Go type. Either direction may be nil, in which case
// that direction falls back to the builtin conversion.
type Rule struct {
	ToHost   func(rv reflect.Value) (host.Value, error)
	FromHost func(v host.Value) (reflect.Value, error)
}

// Converter implements the conversion protocol over one runtime.
type Converter struct {
	rt      host.Runtime
	reg     *registry.Registry
	carrier *data.Carrier
	lossy   bool

	mu    sync.RWMutex
	rules map[reflect.Type]Rule
}

// Option configures a Converter.
type Option func(*Converter)

// WithLossyFloat lets host Floats with a fractional part convert to Go
// integers by truncation. By default only integral Floats convert.
func WithLossyFloat(lossy bool) Option {
	return func(c *Converter) {
		c.lossy = lossy
	}
}

// New returns a converter.
func New(rt host.Runtime, reg *registry.Registry, carrier *data.Carrier, opts ...Option) *Converter {
	c := &Converter{
		rt:      rt,
		reg:     reg,
		carrier: carrier,
		rules:   make(map[reflect.Type]Rule),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs a rule for exactly t, replacing any previous one.
func (c *Converter) Register(t reflect.Type, r Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules[t] = r
}

// Unregister removes the rule for t.
func (c *Converter) Unregister(t reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rules, t)
}

// HasRule reports whether a rule is registered for exactly t.
func (c *Converter) HasRule(t reflect.Type) bool {
	_, ok := c.rule(t)
	return ok
}

func (c *Converter) rule(t reflect.Type) (Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rules[t]
	return r, ok
}

// Verify reports whether values of t can be converted.
func (c *Converter) Verify(t reflect.Type) bool {
	return c.reg.Verify(t, c.HasRule)
}

// Runtime returns the runtime values are converted for.
func (c *Converter) Runtime() host.Runtime { return c.rt }

var (
	hostValueType = reflect.TypeFor[host.Value]()
	errorType     = reflect.TypeFor[error]()
)

// To converts a Go value to a host value, keeping the static type of v.
func To[T any](c *Converter, v T) (host.Value, error) {
	return c.ToHost(reflect.ValueOf(&v).Elem())
}

// From converts a host value to T.
func From[T any](c *Converter, v host.Value) (T, error) {
	var zero T
	rv, err := c.FromHost(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	// A nil interface result does not satisfy the assertion.
	out, _ := rv.Interface().(T)
	return out, nil
}

// -----------------------------------------------------------------------------
// Native to host
// -----------------------------------------------------------------------------

// ToHost converts rv. Pointers to registered types are wrapped borrowed;
// a pointer that is already wrapped yields its existing host object.
func (c *Converter) ToHost(rv reflect.Value) (host.Value, error) {
	return c.toHost(rv, data.Borrowed)
}

// ToHostOwned is ToHost, but newly wrapped pointers are owned by the host.
func (c *Converter) ToHostOwned(rv reflect.Value) (host.Value, error) {
	return c.toHost(rv, data.Owned)
}

func (c *Converter) toHost(rv reflect.Value, mode data.Mode) (host.Value, error) {
	if !rv.IsValid() {
		return host.Nil, nil
	}
	t := rv.Type()
	if r, ok := c.rule(t); ok && r.ToHost != nil {
		return r.ToHost(rv)
	}
	if t == hostValueType {
		return rv.Interface().(host.Value), nil
	}

	rt := c.rt
	switch t.Kind() {
	case reflect.Bool:
		return host.Bool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rt.NewInt(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return host.Nil, &RangeError{Value: fmt.Sprintf("integer %d", u), Type: reflect.TypeFor[int64]()}
		}
		return rt.NewInt(int64(u)), nil

	case reflect.Float32, reflect.Float64:
		return rt.NewFloat(rv.Float()), nil

	case reflect.String:
		return rt.NewString(rv.String()), nil

	case reflect.Interface:
		if rv.IsNil() {
			return host.Nil, nil
		}
		if t == errorType {
			return rt.NewString(rv.Interface().(error).Error()), nil
		}
		if e, ok := c.reg.Lookup(t); ok && !e.Placeholder() {
			if rv.Elem().Kind() != reflect.Pointer {
				return c.wrapCopy(rv.Elem(), t)
			}
			return c.wrapPointer(rv.Elem(), t, mode)
		}
		return c.toHost(rv.Elem(), mode)

	case reflect.Pointer:
		if rv.IsNil() {
			return host.Nil, nil
		}
		if v, ok := c.carrier.Existing(rtti.Outer(rv.Interface())); ok {
			return v, nil
		}
		if r, ok := c.rule(t.Elem()); ok && r.ToHost != nil {
			return r.ToHost(rv.Elem())
		}
		if _, err := c.reg.FigureType(t, rv.Interface()); err == nil {
			return c.wrapPointer(rv, t, mode)
		}
		if t.Implements(errorType) {
			return rt.NewString(rv.Interface().(error).Error()), nil
		}
		if rtti.Builtin(t.Elem()) {
			return c.toHost(rv.Elem(), mode)
		}
		return host.Nil, &registry.TypeNotRegisteredError{Type: t}

	case reflect.Struct:
		if !c.reg.IsDefined(t) {
			return host.Nil, &registry.TypeNotRegisteredError{Type: t}
		}
		return c.wrapCopy(rv, nil)

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return rt.NewString(string(rv.Bytes())), nil
		}
		fallthrough
	case reflect.Array:
		items := make([]host.Value, rv.Len())
		for i := range items {
			v, err := c.toHost(rv.Index(i), mode)
			if err != nil {
				return host.Nil, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = v
		}
		return rt.NewArray(items...), nil

	case reflect.Map:
		return c.mapToHost(rv, mode)
	}
	return host.Nil, &registry.TypeNotRegisteredError{Type: t}
}

// wrapPointer wraps a caller's pointer as the most-derived registered
// class.
func (c *Converter) wrapPointer(rv reflect.Value, static reflect.Type, mode data.Mode) (host.Value, error) {
	ptr := rtti.Outer(rv.Interface())
	if reflect.TypeOf(ptr).Kind() != reflect.Pointer {
		ptr = rv.Interface()
	}
	if v, ok := c.carrier.Existing(ptr); ok {
		return v, nil
	}
	entry, err := c.reg.FigureType(static, ptr)
	if err != nil {
		return host.Nil, err
	}
	return c.carrier.Wrap(ptr, entry, mode)
}

// wrapCopy wraps a copy of the struct value rv, owned by the host. The
// class comes from the copy's own type, falling back to static: a copied
// Dynamic value still reports the original as its outer value.
func (c *Converter) wrapCopy(rv reflect.Value, static reflect.Type) (host.Value, error) {
	entry, err := c.reg.FigureType(rv.Type(), nil)
	if err != nil && static != nil {
		entry, err = c.reg.FigureType(static, nil)
	}
	if err != nil {
		return host.Nil, err
	}
	cp := reflect.New(rv.Type())
	cp.Elem().Set(rv)
	return c.carrier.Wrap(cp.Interface(), entry, data.Owned)
}

func (c *Converter) mapToHost(rv reflect.Value, mode data.Mode) (host.Value, error) {
	h := c.rt.NewHash()
	keys := rv.MapKeys()
	sortKeys(keys)
	for _, k := range keys {
		hk, err := c.toHost(k, mode)
		if err != nil {
			return host.Nil, fmt.Errorf("key %v: %w", k, err)
		}
		hv, err := c.toHost(rv.MapIndex(k), mode)
		if err != nil {
			return host.Nil, fmt.Errorf("value for key %v: %w", k, err)
		}
		if err := c.rt.HashSet(h, hk, hv); err != nil {
			return host.Nil, err
		}
	}
	return h, nil
}

// sortKeys orders map keys of ordered kinds so hashes are built
// deterministically.
func sortKeys(keys []reflect.Value) {
	if len(keys) < 2 {
		return
	}
	switch keys[0].Kind() {
	case reflect.String:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) })
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) })
	case reflect.Float32, reflect.Float64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) })
	}
}

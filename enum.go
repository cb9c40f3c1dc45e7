package tether

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/feather-lang/tether/convert"
	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/dispatch"
	"github.com/feather-lang/tether/host"
)

// Integer is the set of types an Enum can be defined over.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// valuesIvar holds the ordered Array of enumerators on the enum class.
const valuesIvar = "__values__"

// InvalidEnumValueError is returned when an integer has no enumerator.
type InvalidEnumValueError struct {
	Enum  string
	Value int64
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %d", e.Enum, e.Value)
}

// HostErrorKind maps the error to ArgumentError.
func (e *InvalidEnumValueError) HostErrorKind() host.ErrorKind { return host.ArgumentError }

// CannotCompareError is returned by <=> for operands of different classes.
type CannotCompareError struct {
	Left, Right string
}

func (e *CannotCompareError) Error() string {
	return fmt.Sprintf("cannot compare %s with %s", e.Left, e.Right)
}

// HostErrorKind maps the error to ArgumentError.
func (e *CannotCompareError) HostErrorKind() host.ErrorKind { return host.ArgumentError }

type enumerator[E Integer] struct {
	name  string
	value E
	obj   host.Value
}

// Enum is a host class whose instances are the named values of E.
//
// The class cannot be instantiated from the host. Each value declared
// with DefineValue is a constant of the class and an element of the
// sequence iterated by each, in declaration order.
//
//	color, _ := tether.DefineEnum[Color](b, "Color")
//	color.DefineValue("RED", Red)
//	color.DefineValue("GREEN", Green)
type Enum[E Integer] struct {
	*Class[E]

	mu     sync.RWMutex
	values host.Value
	order  []enumerator[E]
}

// DefineEnum creates the top-level enum class name for E.
func DefineEnum[E Integer](b *Binder, name string) (*Enum[E], error) {
	return DefineEnumUnder[E](b.object, name)
}

// DefineEnumUnder creates the enum class name for E nested in m.
func DefineEnumUnder[E Integer](m *Module, name string) (*Enum[E], error) {
	c, err := DefineClassUnder[E](m, name)
	if err != nil {
		return nil, err
	}
	b, rt := m.b, m.b.rt
	err = rt.DefineAlloc(c.value, func(rt host.Runtime, class host.Value) (host.Value, error) {
		return host.Nil, rt.Raise(rt.ErrorClass(host.TypeError), "allocator undefined for %s", rt.ClassName(class))
	})
	if err != nil {
		return nil, err
	}
	if cmpMod, ok := rt.ConstGet(rt.ObjectClass(), "Comparable"); ok {
		if err := rt.IncludeModule(c.value, cmpMod); err != nil {
			return nil, err
		}
	}

	e := &Enum[E]{Class: c, values: rt.NewArray()}
	if err := rt.IvarSet(c.value, valuesIvar, e.values); err != nil {
		return nil, err
	}
	b.conv.Register(reflect.TypeFor[E](), e.rule())
	if err := e.defineMethods(); err != nil {
		return nil, err
	}
	b.log.Debug("defined enum", "enum", c.name)
	return e, nil
}

func (e *Enum[E]) defineMethods() error {
	rt := e.b.rt
	methods := []struct {
		name string
		fn   any
	}{
		{"to_s", func(v *E) string { return e.nameOf(*v) }},
		{"inspect", func(v *E) string { return "#<" + e.name + "::" + e.nameOf(*v) + ">" }},
		{"to_i", func(v *E) int64 { return int64(*v) }},
		{"hash", func(v *E) int64 { return int64(*v) }},
		{"<=>", func(self, other host.Value) (int, error) {
			a, b, err := e.operands(self, other)
			if err != nil {
				return 0, err
			}
			return cmp.Compare(a, b), nil
		}},
		{"==", e.equal},
		{"eql?", e.equal},
	}
	for _, m := range methods {
		if err := e.DefineMethod(m.name, m.fn); err != nil {
			return err
		}
	}

	singleton := []struct {
		name string
		fn   any
	}{
		{"each", func(blk dispatch.Block) (host.Value, error) {
			objs := e.objects()
			if !blk.Given() {
				return rt.NewArray(objs...), nil
			}
			for _, obj := range objs {
				if _, err := blk.Yield(obj); err != nil {
					return host.Nil, err
				}
			}
			return e.value, nil
		}},
		{"values", func() host.Value { return rt.NewArray(e.objects()...) }},
		{"from_int", func(n int64) (host.Value, error) {
			en, ok := e.find(func(en enumerator[E]) bool { return int64(en.value) == n })
			if !ok {
				return host.Nil, &InvalidEnumValueError{Enum: e.name, Value: n}
			}
			return en.obj, nil
		}},
	}
	for _, m := range singleton {
		if err := e.DefineSingletonFunction(m.name, m.fn); err != nil {
			return err
		}
	}
	return nil
}

// rule converts E to its enumerator object and back.
func (e *Enum[E]) rule() convert.Rule {
	return convert.Rule{
		ToHost: func(rv reflect.Value) (host.Value, error) {
			var v E
			if rv.CanInt() {
				v = E(rv.Int())
			} else {
				v = E(rv.Uint())
			}
			en, ok := e.find(func(en enumerator[E]) bool { return en.value == v })
			if !ok {
				return host.Nil, &InvalidEnumValueError{Enum: e.name, Value: int64(v)}
			}
			return en.obj, nil
		},
		FromHost: func(v host.Value) (reflect.Value, error) {
			p, err := e.unwrap(v)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(*p), nil
		},
	}
}

func (e *Enum[E]) unwrap(v host.Value) (*E, error) {
	obj, err := data.Unwrap[E](e.b.carrier, v, e.entry)
	if err != nil {
		return nil, err
	}
	return obj.Get()
}

func (e *Enum[E]) operands(self, other host.Value) (E, E, error) {
	rt := e.b.rt
	if rt.ClassOf(other) != rt.ClassOf(self) {
		return 0, 0, &CannotCompareError{
			Left:  rt.ClassName(rt.ClassOf(self)),
			Right: data.ClassName(rt, other),
		}
	}
	a, err := e.unwrap(self)
	if err != nil {
		return 0, 0, err
	}
	b, err := e.unwrap(other)
	if err != nil {
		return 0, 0, err
	}
	return *a, *b, nil
}

func (e *Enum[E]) equal(self, other host.Value) bool {
	a, b, err := e.operands(self, other)
	return err == nil && a == b
}

// DefineValue declares the enumerator name for v. It becomes a constant
// of the enum class and the last element of its sequence.
func (e *Enum[E]) DefineValue(name string, v E) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.ContainsFunc(e.order, func(en enumerator[E]) bool { return en.name == name }) {
		return fmt.Errorf("%w: %s::%s", ErrDuplicateName, e.name, name)
	}
	rt := e.b.rt
	p := new(E)
	*p = v
	obj, err := e.b.carrier.Wrap(p, e.entry, data.Owned)
	if err != nil {
		return err
	}
	if err := rt.ConstSet(e.value, name, obj); err != nil {
		return err
	}
	if err := rt.ArrayPush(e.values, obj); err != nil {
		return err
	}
	e.order = append(e.order, enumerator[E]{name: name, value: v, obj: obj})
	e.b.log.Debug("defined enum value", "enum", e.name, "name", name, "value", int64(v))
	return nil
}

// Values returns the declared values in declaration order.
func (e *Enum[E]) Values() []E {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]E, len(e.order))
	for i, en := range e.order {
		out[i] = en.value
	}
	return out
}

// Names returns the declared names in declaration order.
func (e *Enum[E]) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	for i, en := range e.order {
		out[i] = en.name
	}
	return out
}

// Len returns the number of declared values.
func (e *Enum[E]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

func (e *Enum[E]) objects() []host.Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]host.Value, len(e.order))
	for i, en := range e.order {
		out[i] = en.obj
	}
	return out
}

func (e *Enum[E]) find(match func(enumerator[E]) bool) (enumerator[E], bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := slices.IndexFunc(e.order, match)
	if i < 0 {
		return enumerator[E]{}, false
	}
	return e.order[i], true
}

// nameOf returns the first name declared for v.
func (e *Enum[E]) nameOf(v E) string {
	if en, ok := e.find(func(en enumerator[E]) bool { return en.value == v }); ok {
		return en.name
	}
	return fmt.Sprint(int64(v))
}

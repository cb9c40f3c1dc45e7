package tether

import (
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/dispatch"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/registry"
	"github.com/feather-lang/tether/rtti"
)

// Class is a host class bound to the Go type T. Its instances carry *T.
type Class[T any] struct {
	Module
	entry registry.Entry
}

type classConfig struct {
	parent reflect.Type
	hooks  data.Hooks
}

// ClassOption configures DefineClass.
type ClassOption func(*classConfig)

// WithParent makes the class a subclass of P's class. T must embed P,
// directly or through other embedded types.
func WithParent[P any]() ClassOption {
	return func(c *classConfig) {
		c.parent = reflect.TypeFor[P]()
	}
}

// WithDestroy sets the function run when the host collects an owned *T.
func WithDestroy[T any](fn func(*T)) ClassOption {
	return func(c *classConfig) {
		c.hooks.Destroy = func(ptr any) {
			if p, ok := upcast[T](ptr); ok {
				fn(p)
			}
		}
	}
}

// WithMark sets the function reporting host values held by a *T.
func WithMark[T any](fn func(*T, host.Marker)) ClassOption {
	return func(c *classConfig) {
		c.hooks.Mark = func(ptr any, m host.Marker) {
			if p, ok := upcast[T](ptr); ok {
				fn(p, m)
			}
		}
	}
}

func upcast[T any](ptr any) (*T, bool) {
	v, ok := rtti.Upcast(reflect.ValueOf(ptr), reflect.TypeFor[*T]())
	if !ok {
		return nil, false
	}
	return v.Interface().(*T), true
}

// DefineClass creates or reopens the top-level class name for T.
func DefineClass[T any](b *Binder, name string, opts ...ClassOption) (*Class[T], error) {
	return DefineClassUnder[T](b.object, name, opts...)
}

// DefineClassUnder creates or reopens the class name for T nested in m.
func DefineClassUnder[T any](m *Module, name string, opts ...ClassOption) (*Class[T], error) {
	b := m.b
	t := reflect.TypeFor[T]()
	if k := t.Kind(); k == reflect.Pointer || k == reflect.Interface {
		return nil, fmt.Errorf("DefineClass %s: %v is not a concrete type", name, t)
	}
	var cfg classConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	parent := host.Nil
	if cfg.parent != nil {
		pe, ok := b.reg.Lookup(cfg.parent)
		if !ok || pe.Placeholder() {
			return nil, fmt.Errorf("DefineClass %s: %w", name, &registry.TypeNotRegisteredError{Type: cfg.parent})
		}
		if !slices.Contains(rtti.Ancestors(t)[1:], rtti.Normalize(cfg.parent)) {
			return nil, fmt.Errorf("%w: %s does not embed %s", ErrNotDerived, rtti.Name(t), rtti.Name(cfg.parent))
		}
		parent = pe.Class
	}

	class, err := b.rt.DefineClass(name, parent, m.value)
	if err != nil {
		return nil, err
	}
	if err := b.reg.AddClass(t, class, b.carrier.DataTypeFor(t, cfg.hooks)); err != nil {
		return nil, err
	}
	entry, _ := b.reg.Lookup(t)
	err = b.rt.DefineAlloc(class, func(rt host.Runtime, class host.Value) (host.Value, error) {
		return b.carrier.Allocate(class, entry)
	})
	if err != nil {
		return nil, err
	}

	c := &Class[T]{Module: Module{b: b, value: class, name: m.qualify(name), handlers: m.handlers}, entry: entry}
	b.log.Debug("defined class", "class", c.name, "type", rtti.Name(t), "parent", b.rt.ClassName(b.rt.Superclass(class)))
	return c, nil
}

// Klass returns the host class.
func (c *Class[T]) Klass() host.Value { return c.value }

// Entry returns the registry entry of T.
func (c *Class[T]) Entry() registry.Entry { return c.entry }

// DefineMethod binds fn as an instance method. The first parameter of fn
// receives the receiver, typically as *T.
func (c *Class[T]) DefineMethod(name string, fn any, opts ...DefineOption) error {
	return c.defineOn(c.value, name, fn, dispatch.Method, opts)
}

// DefineFunction binds fn as an instance method that does not receive the
// receiver.
func (c *Class[T]) DefineFunction(name string, fn any, opts ...DefineOption) error {
	return c.defineOn(c.value, name, fn, dispatch.Function, opts)
}

// DefineConstructor binds fn as initialize. new allocates the object and
// attaches the *T that fn returns; the host owns it.
func (c *Class[T]) DefineConstructor(fn any, opts ...DefineOption) error {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func || t.NumOut() == 0 || rtti.IDOf(t.Out(0)) != rtti.Of[T]() {
		return fmt.Errorf("%s.initialize: %w: constructor must return *%s", c.name, dispatch.ErrBadSignature, rtti.Name(reflect.TypeFor[T]()))
	}
	return c.defineOn(c.value, "initialize", fn, dispatch.Constructor, opts)
}

// DefineIterator defines method name yielding every element of the
// sequence seq returns for the receiver. Without a block it returns the
// elements as an Array.
func DefineIterator[T, V any](c *Class[T], name string, seq func(*T) iter.Seq[V]) error {
	b := c.b
	each := func(self host.Value, blk dispatch.Block) (host.Value, error) {
		p, err := Unwrap[T](b, self)
		if err != nil {
			return host.Nil, err
		}
		if !blk.Given() {
			out := b.rt.NewArray()
			for v := range seq(p) {
				hv, err := b.ToHost(v)
				if err != nil {
					return host.Nil, err
				}
				if err := b.rt.ArrayPush(out, hv); err != nil {
					return host.Nil, err
				}
			}
			return out, nil
		}
		for v := range seq(p) {
			if _, err := blk.Yield(v); err != nil {
				return host.Nil, err
			}
		}
		return self, nil
	}
	if b.cfg.VerifyTypes && !b.conv.Verify(reflect.TypeFor[V]()) {
		return fmt.Errorf("%s#%s: %w", c.name, name, &registry.TypeNotRegisteredError{Type: reflect.TypeFor[V]()})
	}
	return c.defineOn(c.value, name, each, dispatch.Method, nil)
}

// Access selects the accessors DefineAttr installs.
type Access int

const (
	Reader Access = 1 << iota
	Writer
	Accessor = Reader | Writer
)

// DefineAttr exposes the exported struct field of T as the attribute
// name: a reader name and, for Writer access, a writer name=.
func (c *Class[T]) DefineAttr(name, field string, access Access) error {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s is not a struct", ErrNoField, rtti.Name(t))
	}
	f, ok := t.FieldByName(field)
	if !ok || !f.IsExported() {
		return fmt.Errorf("%w %s in %s", ErrNoField, field, rtti.Name(t))
	}
	b := c.b
	if b.cfg.VerifyTypes && !b.conv.Verify(f.Type) {
		return fmt.Errorf("%s#%s: %w", c.name, name, &registry.TypeNotRegisteredError{Type: f.Type})
	}

	fieldOf := func(self host.Value) (reflect.Value, error) {
		p, err := Unwrap[T](b, self)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(p).Elem().FieldByIndex(f.Index), nil
	}
	if access&Reader != 0 {
		get := func(self host.Value) (host.Value, error) {
			fv, err := fieldOf(self)
			if err != nil {
				return host.Nil, err
			}
			return b.conv.ToHost(fv)
		}
		if err := c.defineOn(c.value, name, get, dispatch.Method, nil); err != nil {
			return err
		}
	}
	if access&Writer != 0 {
		set := func(self, v host.Value) (host.Value, error) {
			fv, err := fieldOf(self)
			if err != nil {
				return host.Nil, err
			}
			gv, err := b.conv.FromHost(v, f.Type)
			if err != nil {
				return host.Nil, err
			}
			fv.Set(gv)
			return v, nil
		}
		if err := c.defineOn(c.value, name+"=", set, dispatch.Method, nil); err != nil {
			return err
		}
	}
	return nil
}

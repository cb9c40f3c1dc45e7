package tether

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/feather-lang/tether/convert"
	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/dispatch"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/methods"
	"github.com/feather-lang/tether/registry"
	"github.com/feather-lang/tether/rtti"
)

var (
	// ErrNotDerived is returned by DefineClass when the Go type does not
	// embed the type given to WithParent.
	ErrNotDerived = errors.New("tether: type does not embed its parent type")
	// ErrDuplicateName is returned when an enumerator name is reused.
	ErrDuplicateName = errors.New("tether: duplicate enumerator name")
	// ErrNoField is returned by DefineAttr for a missing or unexported field.
	ErrNoField = errors.New("tether: no exported field")
)

// Binder exposes Go types and functions to one host runtime.
//
// A Binder owns its type registry and method table. Create one with [New]
// and call [Binder.Close] when the host runtime is torn down.
//
//	b := tether.New(rt)
//	defer b.Close()
//	counter, _ := tether.DefineClass[Counter](b, "Counter")
//	counter.DefineMethod("incr", (*Counter).Incr)
type Binder struct {
	rt      host.Runtime
	cfg     Config
	log     *slog.Logger
	reg     *registry.Registry
	table   *methods.Table[*dispatch.Descriptor]
	carrier *data.Carrier
	conv    *convert.Converter
	disp    *dispatch.Dispatcher
	object  *Module

	closeOnce sync.Once
}

// New returns a binder for rt.
func New(rt host.Runtime, opts ...Option) *Binder {
	cfg := NewConfig(opts...)
	b := &Binder{
		rt:      rt,
		cfg:     cfg,
		log:     cfg.Logger,
		reg:     registry.New(),
		table:   methods.New[*dispatch.Descriptor](),
		carrier: data.New(rt),
	}
	b.conv = convert.New(rt, b.reg, b.carrier, convert.WithLossyFloat(cfg.LossyFloat))
	b.disp = dispatch.New(b.conv, b.carrier, b.table,
		dispatch.WithLogger(cfg.Logger),
		dispatch.WithVerify(cfg.VerifyTypes))
	b.object = &Module{b: b, value: rt.ObjectClass(), name: "Object"}
	return b
}

// Close forgets every registration. Host objects created through the
// binder stay valid but can no longer be converted.
func (b *Binder) Close() {
	b.closeOnce.Do(func() {
		b.log.Debug("closing binder", "types", b.reg.Count(), "methods", b.table.Len())
		b.reg.Reset()
		b.table.Reset()
		b.carrier.Reset()
	})
}

// Registry returns the type registry.
func (b *Binder) Registry() *registry.Registry { return b.reg }

// Methods returns the method-data table.
func (b *Binder) Methods() *methods.Table[*dispatch.Descriptor] { return b.table }

// Converter returns the converter.
func (b *Binder) Converter() *convert.Converter { return b.conv }

// Carrier returns the wrapped-object carrier.
func (b *Binder) Carrier() *data.Carrier { return b.carrier }

// Dispatcher returns the dispatcher serving bound methods.
func (b *Binder) Dispatcher() *dispatch.Dispatcher { return b.disp }

// Runtime returns the host runtime.
func (b *Binder) Runtime() host.Runtime { return b.rt }

// Logger returns the logger.
func (b *Binder) Logger() *slog.Logger { return b.log }

// Object returns the root class, which is also the top-level namespace.
func (b *Binder) Object() *Module { return b.object }

// DefineModule creates or reopens a top-level module.
func (b *Binder) DefineModule(name string) (*Module, error) {
	return b.object.DefineModule(name)
}

// DefineFunction binds fn as a function callable on any receiver.
func (b *Binder) DefineFunction(name string, fn any, opts ...DefineOption) error {
	return b.object.defineOn(b.object.value, name, fn, dispatch.Function, opts)
}

// DefineConstant sets a top-level constant.
func (b *Binder) DefineConstant(name string, v any) error {
	return b.object.DefineConstant(name, v)
}

// -----------------------------------------------------------------------------
// Conversion helpers
// -----------------------------------------------------------------------------

// ToHost converts v to a host value. Pointers to registered types are
// wrapped borrowed.
func (b *Binder) ToHost(v any) (host.Value, error) {
	return b.conv.ToHost(reflect.ValueOf(v))
}

// FromHost converts v to T.
func FromHost[T any](b *Binder, v host.Value) (T, error) {
	return convert.From[T](b.conv, v)
}

// Wrap wraps ptr as the most-derived registered class of its dynamic type.
// Wrapping a pointer that is already carried fails with
// data.ErrAlreadyWrapped.
func (b *Binder) Wrap(ptr any, mode data.Mode) (host.Value, error) {
	outer := rtti.Outer(ptr)
	if outer == nil {
		return host.Nil, data.ErrNilPointer
	}
	entry, err := b.reg.FigureType(reflect.TypeOf(ptr), outer)
	if err != nil {
		return host.Nil, err
	}
	return b.carrier.Wrap(outer, entry, mode)
}

// Unwrap returns the *T carried by v. The class of v must be T's class or
// a descendant.
func Unwrap[T any](b *Binder, v host.Value) (*T, error) {
	entry, ok := b.reg.Lookup(reflect.TypeFor[T]())
	if !ok || entry.Placeholder() {
		return nil, &registry.TypeNotRegisteredError{Type: reflect.TypeFor[T]()}
	}
	obj, err := data.Unwrap[T](b.carrier, v, entry)
	if err != nil {
		return nil, err
	}
	return obj.Get()
}

// Call converts args and calls method name on recv.
func (b *Binder) Call(recv host.Value, name string, args ...any) (host.Value, error) {
	vals := make([]host.Value, len(args))
	for i, a := range args {
		v, err := b.ToHost(a)
		if err != nil {
			return host.Nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return b.rt.Call(recv, name, vals, host.Nil)
}

// UndefineClass forgets the registration of T and every method bound on
// its class, so the type can be defined again.
func UndefineClass[T any](b *Binder) error {
	t := reflect.TypeFor[T]()
	entry, ok := b.reg.Lookup(t)
	if !ok {
		return &registry.TypeNotRegisteredError{Type: t}
	}
	n := 0
	if entry.Class != host.Nil {
		n += b.table.DeleteClass(entry.Class)
		if s, err := b.rt.SingletonClass(entry.Class); err == nil {
			n += b.table.DeleteClass(s)
		}
	}
	b.reg.Remove(t)
	b.conv.Unregister(rtti.Normalize(t))
	b.log.Debug("undefined class", "type", rtti.Name(t), "methods", n)
	return nil
}

// -----------------------------------------------------------------------------
// Definition options
// -----------------------------------------------------------------------------

// DefineOption adjusts one method definition.
type DefineOption interface {
	applyDefine(o *dispatch.Options)
}

type defineFunc func(o *dispatch.Options)

func (f defineFunc) applyDefine(o *dispatch.Options) { f(o) }

// ReturnOwned hands pointers returned by the function to the host
// collector.
func ReturnOwned() DefineOption {
	return defineFunc(func(o *dispatch.Options) { o.Return.Owned = true })
}

// WithArity sets the arity of a function with the raw host signature.
func WithArity(a host.Arity) DefineOption {
	return defineFunc(func(o *dispatch.Options) { o.Arity = &a })
}

// ArgDef describes one parameter. Create it with Arg.
type ArgDef struct {
	spec dispatch.ArgSpec
}

// Arg names the next host-visible parameter of a bound function.
//
//	m.DefineFunction("greet", greet, tether.Arg("name"), tether.Arg("greeting").Default("hello"))
func Arg(name string) ArgDef {
	return ArgDef{spec: dispatch.ArgSpec{Name: name}}
}

// Default sets the value used when the caller omits the argument.
func (a ArgDef) Default(v any) ArgDef {
	a.spec.Default, a.spec.HasDefault = v, true
	return a
}

// Keyword makes the parameter a keyword argument.
func (a ArgDef) Keyword() ArgDef {
	a.spec.Keyword = true
	return a
}

// Spec returns the dispatch hint.
func (a ArgDef) Spec() dispatch.ArgSpec { return a.spec }

func (a ArgDef) applyDefine(o *dispatch.Options) { o.Args = append(o.Args, a.spec) }

var rawType = reflect.TypeFor[dispatch.RawFunc]()

// shapeOf picks Raw for functions with the raw host signature.
func shapeOf(fn any, shape dispatch.Shape) dispatch.Shape {
	if t := reflect.TypeOf(fn); t != nil && t.Kind() == reflect.Func && t.ConvertibleTo(rawType) {
		return dispatch.Raw
	}
	return shape
}

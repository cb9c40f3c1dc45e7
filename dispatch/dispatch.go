// Package dispatch binds Go functions to host method names.
//
// The host call convention passes no state captured at definition time, so
// every bound method shares one trampoline, [Dispatcher.Invoke]. It
// recovers the (class, method) key from the current frame, looks up the
// [Descriptor] stored for it in the method table, converts the host
// arguments to the Go signature, makes the call and converts the result
// back. Go errors and panics are translated into host exceptions.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/feather-lang/tether/convert"
	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/methods"
	"github.com/feather-lang/tether/registry"
)

var (
	// ErrNotFunc is returned when defining something that is not a function.
	ErrNotFunc = errors.New("tether(dispatch): expected a function")
	// ErrBadSignature is returned for Go signatures that cannot be bound.
	ErrBadSignature = errors.New("tether(dispatch): unsupported signature")
)

// Shape is the calling shape of a bound function.
type Shape int

const (
	// Method functions take the receiver as their first parameter.
	Method Shape = iota
	// Function functions have no receiver.
	Function
	// Constructor functions return the native object attached to the
	// receiver allocated by new.
	Constructor
	// Raw functions have the RawFunc signature and see the host arguments
	// as they are.
	Raw
)

func (s Shape) String() string {
	switch s {
	case Method:
		return "method"
	case Function:
		return "function"
	case Constructor:
		return "constructor"
	case Raw:
		return "raw"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// RawFunc is the signature of Raw functions.
type RawFunc = func(rt host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error)

var rawType = reflect.TypeFor[RawFunc]()

// ArgSpec describes one host-visible parameter.
type ArgSpec struct {
	Name       string
	Default    any
	HasDefault bool
	// Keyword parameters are taken by name from a trailing host Hash.
	Keyword bool
}

// ReturnSpec describes the result conversion.
type ReturnSpec struct {
	// Owned hands returned pointers to the host collector.
	Owned bool
}

// Options are the per-definition hints.
type Options struct {
	// Args applies, in order, to the Go parameters the host supplies
	// (receiver, runtime and block parameters excluded).
	Args     []ArgSpec
	Return   ReturnSpec
	Handlers *Chain
	// Arity overrides the arity of Raw functions, which default to any
	// number of arguments.
	Arity *host.Arity
}

type slot uint8

const (
	slotReceiver slot = iota
	slotRuntime
	slotBlock
	slotArg
	slotKeyword
	slotRest
)

type param struct {
	slot slot
	typ  reflect.Type
	spec ArgSpec
	// pos is the host argument index of a positional parameter.
	pos int
	def reflect.Value
}

// Descriptor is the immutable call metadata of one bound method.
type Descriptor struct {
	Callable reflect.Value
	Shape    Shape
	Arity    host.Arity
	Args     []ArgSpec
	Handlers *Chain
	Return   ReturnSpec

	params     []param
	positional int
	keywords   int
	raw        RawFunc
}

// Describe inspects fn and builds its descriptor.
func Describe(fn any, shape Shape, opts Options) (*Descriptor, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("%w, got %T", ErrNotFunc, fn)
	}
	t := rv.Type()
	d := &Descriptor{
		Callable: rv,
		Shape:    shape,
		Args:     opts.Args,
		Handlers: opts.Handlers,
		Return:   opts.Return,
	}

	if shape == Raw {
		if !t.ConvertibleTo(rawType) {
			return nil, fmt.Errorf("%w: raw function must be %v, got %v", ErrBadSignature, rawType, t)
		}
		d.raw = rv.Convert(rawType).Interface().(RawFunc)
		d.Arity = host.Variadic(0)
		if opts.Arity != nil {
			d.Arity = *opts.Arity
		}
		return d, nil
	}

	if err := checkResults(t, shape); err != nil {
		return nil, err
	}
	start := 0
	if shape == Method {
		if t.NumIn() == 0 || t.IsVariadic() && t.NumIn() == 1 {
			return nil, fmt.Errorf("%w: method %v has no receiver parameter", ErrBadSignature, t)
		}
		d.params = append(d.params, param{slot: slotReceiver, typ: t.In(0)})
		start = 1
	}

	specs := opts.Args
	optional := false
	for i := start; i < t.NumIn(); i++ {
		pt := t.In(i)
		switch {
		case pt == runtimeType:
			d.params = append(d.params, param{slot: slotRuntime, typ: pt})
			continue
		case pt == blockType:
			d.params = append(d.params, param{slot: slotBlock, typ: pt})
			continue
		case t.IsVariadic() && i == t.NumIn()-1:
			d.params = append(d.params, param{slot: slotRest, typ: pt.Elem()})
			d.Arity.Rest = true
			continue
		}

		p := param{slot: slotArg, typ: pt}
		if len(specs) > 0 {
			p.spec, specs = specs[0], specs[1:]
		}
		if p.spec.HasDefault {
			def, err := defaultValue(p.spec.Default, pt)
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %d: %v", ErrBadSignature, i, err)
			}
			p.def = def
		}
		switch {
		case p.spec.Keyword:
			if p.spec.Name == "" {
				return nil, fmt.Errorf("%w: keyword parameter %d has no name", ErrBadSignature, i)
			}
			p.slot = slotKeyword
			d.keywords++
		case p.spec.HasDefault:
			p.pos = d.positional
			d.positional++
			d.Arity.Optional++
			optional = true
		default:
			if optional {
				return nil, fmt.Errorf("%w: required parameter %d follows an optional one", ErrBadSignature, i)
			}
			p.pos = d.positional
			d.positional++
			d.Arity.Required++
		}
		d.params = append(d.params, p)
	}
	if len(specs) > 0 {
		return nil, fmt.Errorf("%w: %d argument hints for %d parameters", ErrBadSignature, len(opts.Args), len(opts.Args)-len(specs))
	}
	if d.keywords > 0 {
		d.Arity.Optional++
	}
	return d, nil
}

func checkResults(t reflect.Type, shape Shape) error {
	n := t.NumOut()
	if n > 0 && t.Out(n-1) == errorType {
		n--
	}
	if n > 1 {
		return fmt.Errorf("%w: %v returns more than one value besides an error", ErrBadSignature, t)
	}
	if shape == Constructor {
		if n != 1 {
			return fmt.Errorf("%w: constructor %v returns no object", ErrBadSignature, t)
		}
		if k := t.Out(0).Kind(); k != reflect.Pointer && k != reflect.Struct {
			return fmt.Errorf("%w: constructor %v must return a pointer or struct", ErrBadSignature, t)
		}
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func defaultValue(v any, t reflect.Type) (reflect.Value, error) {
	dv := reflect.ValueOf(v)
	switch {
	case !dv.IsValid():
		return reflect.Zero(t), nil
	case dv.Type().AssignableTo(t):
		out := reflect.New(t).Elem()
		out.Set(dv)
		return out, nil
	case isNumber(dv.Kind()) && isNumber(t.Kind()),
		dv.Kind() == reflect.String && t.Kind() == reflect.String:
		return dv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("default %v is not a %v", v, t)
}

// types lists every Go type the descriptor converts.
func (d *Descriptor) types() []reflect.Type {
	var out []reflect.Type
	for _, p := range d.params {
		switch p.slot {
		case slotReceiver, slotArg, slotKeyword, slotRest:
			out = append(out, p.typ)
		}
	}
	if d.Shape != Raw {
		t := d.Callable.Type()
		for i := 0; i < t.NumOut(); i++ {
			if t.Out(i) != errorType {
				out = append(out, t.Out(i))
			}
		}
	}
	return out
}

// Dispatcher defines bound methods and serves their calls.
type Dispatcher struct {
	rt      host.Runtime
	conv    *convert.Converter
	carrier *data.Carrier
	table   *methods.Table[*Descriptor]
	log     *slog.Logger
	verify  bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for definitions and translated errors.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithVerify toggles checking at definition time that every parameter and
// result type can be converted.
func WithVerify(verify bool) Option {
	return func(d *Dispatcher) {
		d.verify = verify
	}
}

// New returns a dispatcher storing descriptors in table.
func New(conv *convert.Converter, carrier *data.Carrier, table *methods.Table[*Descriptor], opts ...Option) *Dispatcher {
	d := &Dispatcher{
		rt:      conv.Runtime(),
		conv:    conv,
		carrier: carrier,
		table:   table,
		log:     slog.New(slog.DiscardHandler),
		verify:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Define binds fn as method name of class.
func (d *Dispatcher) Define(class host.Value, name string, fn any, shape Shape, opts Options) (*Descriptor, error) {
	desc, err := Describe(fn, shape, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if d.verify {
		for _, t := range desc.types() {
			if !d.conv.Verify(t) {
				return nil, fmt.Errorf("%s: %w", name, &registry.TypeNotRegisteredError{Type: t})
			}
		}
	}
	d.table.Store(class, name, desc)
	if err := d.rt.DefineMethod(class, name, d.Invoke, desc.Arity); err != nil {
		d.table.Delete(class, name)
		return nil, err
	}
	d.log.Debug("defined method",
		"class", d.rt.ClassName(class),
		"method", name,
		"shape", shape.String(),
		"arity", desc.Arity.String())
	return desc, nil
}

// Lookup returns the descriptor bound to (class, name).
func (d *Dispatcher) Lookup(class host.Value, name string) (*Descriptor, bool) {
	return d.table.Lookup(class, name)
}

// Invoke is the trampoline installed for every bound method.
func (d *Dispatcher) Invoke(rt host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error) {
	f, ok := rt.CurrentFrame()
	if !ok {
		return host.Nil, rt.Raise(rt.ErrorClass(host.RuntimeError), "%s", "native method called outside a frame")
	}
	desc, ok := d.table.Lookup(f.Class, f.Method)
	if !ok {
		return host.Nil, rt.Raise(rt.ErrorClass(host.RuntimeError), "no native method %s#%s", rt.ClassName(f.Class), f.Method)
	}

	v, err := d.call(rt, desc, f.Method, self, args, block)
	if err != nil {
		return host.Nil, d.translate(rt, desc, f, err)
	}
	return v, nil
}

func (d *Dispatcher) translate(rt host.Runtime, desc *Descriptor, f host.Frame, err error) error {
	if _, ok := host.AsException(err); ok {
		return err
	}
	if out, ok := desc.Handlers.Translate(rt, err); ok {
		d.log.Debug("handled native error", "class", rt.ClassName(f.Class), "method", f.Method, "error", err)
		// Handlers may return plain Go errors; those are default-mapped.
		return Raise(rt, out)
	}
	out := Raise(rt, err)
	d.log.Debug("translated native error",
		"class", rt.ClassName(f.Class),
		"method", f.Method,
		"error", err,
		"raised", KindOf(err).String())
	return out
}

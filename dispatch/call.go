package dispatch

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/feather-lang/tether/host"
)

func (d *Dispatcher) call(rt host.Runtime, desc *Descriptor, name string, self host.Value, args []host.Value, block host.Value) (v host.Value, err error) {
	if desc.raw != nil {
		defer func() {
			if r := recover(); r != nil {
				v, err = host.Nil, &NativeCallError{Method: name, Value: r}
			}
		}()
		return desc.raw(rt, self, args, block)
	}

	in, err := d.bind(rt, desc, self, args, block)
	if err != nil {
		return host.Nil, err
	}
	out, err := callNative(desc.Callable, name, in)
	if err != nil {
		return host.Nil, err
	}
	if n := len(out); n > 0 && desc.Callable.Type().Out(n-1) == errorType {
		if e := out[n-1]; !e.IsNil() {
			return host.Nil, e.Interface().(error)
		}
		out = out[:n-1]
	}

	if desc.Shape == Constructor {
		return host.Nil, d.attach(self, out[0])
	}
	if len(out) == 0 {
		return host.Nil, nil
	}
	if desc.Return.Owned {
		return d.conv.ToHostOwned(out[0])
	}
	return d.conv.ToHost(out[0])
}

func callNative(fn reflect.Value, name string, in []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NativeCallError{Method: name, Value: r}
		}
	}()
	return fn.Call(in), nil
}

// attach stores the constructed object in the receiver allocated by new.
func (d *Dispatcher) attach(self host.Value, obj reflect.Value) error {
	if obj.Kind() == reflect.Struct {
		p := reflect.New(obj.Type())
		p.Elem().Set(obj)
		obj = p
	}
	if obj.IsNil() {
		return &NativeCallError{Method: "initialize", Value: "constructor returned nil"}
	}
	return d.carrier.Attach(self, obj.Interface())
}

// positionalArity is the arity without the keyword Hash slot.
func (desc *Descriptor) positionalArity() host.Arity {
	return host.Arity{
		Required: desc.Arity.Required,
		Optional: desc.positional - desc.Arity.Required,
		Rest:     desc.Arity.Rest,
	}
}

// bind converts the host call into Go arguments.
func (d *Dispatcher) bind(rt host.Runtime, desc *Descriptor, self host.Value, args []host.Value, block host.Value) ([]reflect.Value, error) {
	var kwargs map[string]host.Value
	if desc.keywords > 0 && len(args) > desc.Arity.Required && rt.KindOf(args[len(args)-1]) == host.KindHash {
		var err error
		if kwargs, err = keywords(rt, args[len(args)-1]); err != nil {
			return nil, err
		}
		args = args[:len(args)-1]
	}
	if len(args) < desc.Arity.Required || len(args) > desc.positional && !desc.Arity.Rest {
		return nil, argumentErrorf("wrong number of arguments (given %d, expected %s)", len(args), desc.positionalArity())
	}

	in := make([]reflect.Value, 0, len(desc.params)+len(args))
	for _, p := range desc.params {
		switch p.slot {
		case slotReceiver:
			rv, err := d.conv.FromHost(self, p.typ)
			if err != nil {
				return nil, err
			}
			in = append(in, rv)

		case slotRuntime:
			in = append(in, reflect.ValueOf(&rt).Elem())

		case slotBlock:
			in = append(in, reflect.ValueOf(Block{conv: d.conv, value: block}))

		case slotArg:
			if p.pos >= len(args) {
				in = append(in, p.def)
				continue
			}
			rv, err := d.conv.FromHost(args[p.pos], p.typ)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", p.pos+1, err)
			}
			in = append(in, rv)

		case slotKeyword:
			hv, ok := kwargs[p.spec.Name]
			if !ok {
				if !p.spec.HasDefault {
					return nil, argumentErrorf("missing keyword: :%s", p.spec.Name)
				}
				in = append(in, p.def)
				continue
			}
			delete(kwargs, p.spec.Name)
			rv, err := d.conv.FromHost(hv, p.typ)
			if err != nil {
				return nil, fmt.Errorf("keyword %s: %w", p.spec.Name, err)
			}
			in = append(in, rv)

		case slotRest:
			for i := desc.positional; i < len(args); i++ {
				rv, err := d.conv.FromHost(args[i], p.typ)
				if err != nil {
					return nil, fmt.Errorf("argument %d: %w", i+1, err)
				}
				in = append(in, rv)
			}
		}
	}
	if len(kwargs) > 0 {
		names := make([]string, 0, len(kwargs))
		for k := range kwargs {
			names = append(names, k)
		}
		slices.Sort(names)
		return nil, argumentErrorf("unknown keyword: :%s", names[0])
	}
	return in, nil
}

// keywords reads a trailing keyword Hash. Keys are Strings or Symbols.
func keywords(rt host.Runtime, h host.Value) (map[string]host.Value, error) {
	out := make(map[string]host.Value, rt.HashLen(h))
	bad := host.Nil
	err := rt.HashEach(h, func(k, v host.Value) bool {
		name, ok := rt.Symbol(k)
		if !ok {
			name, ok = rt.Str(k)
		}
		if !ok {
			bad = k
			return false
		}
		out[name] = v
		return true
	})
	if err != nil {
		return nil, err
	}
	if bad != host.Nil {
		return nil, argumentErrorf("wrong keyword type %s", rt.ClassName(rt.ClassOf(bad)))
	}
	return out, nil
}

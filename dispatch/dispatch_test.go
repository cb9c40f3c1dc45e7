package dispatch_test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/feather-lang/tether/convert"
	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/dispatch"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/methods"
	"github.com/feather-lang/tether/registry"
	"github.com/feather-lang/tether/vm"
)

type Counter struct {
	N int
}

func (c *Counter) Add(n int) int {
	c.N += n
	return c.N
}

type Unbound struct{}

type fixture struct {
	rt      *vm.VM
	carrier *data.Carrier
	table   *methods.Table[*dispatch.Descriptor]
	d       *dispatch.Dispatcher
	calc    host.Value
	counter host.Value
	entry   registry.Entry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rt := vm.New()
	t.Cleanup(rt.Close)
	reg := registry.New()
	carrier := data.New(rt)
	conv := convert.New(rt, reg, carrier)
	table := methods.New[*dispatch.Descriptor]()

	calc, err := rt.DefineModule("Calc", host.Nil)
	if err != nil {
		t.Fatal(err)
	}
	counter, err := rt.DefineClass("Counter", host.Nil, host.Nil)
	if err != nil {
		t.Fatal(err)
	}
	dt := carrier.DataTypeFor(reflect.TypeFor[Counter](), data.Hooks{})
	if err := registry.AddClass[Counter](reg, counter, dt); err != nil {
		t.Fatal(err)
	}
	entry, _ := reg.Lookup(reflect.TypeFor[Counter]())
	err = rt.DefineAlloc(counter, func(rt host.Runtime, class host.Value) (host.Value, error) {
		return carrier.Allocate(class, entry)
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		rt:      rt,
		carrier: carrier,
		table:   table,
		d:       dispatch.New(conv, carrier, table),
		calc:    calc,
		counter: counter,
		entry:   entry,
	}
}

// function binds fn as a singleton function of Calc.
func (f *fixture) function(t *testing.T, name string, fn any, opts dispatch.Options) *dispatch.Descriptor {
	t.Helper()
	return f.define(t, name, fn, dispatch.Function, opts)
}

func (f *fixture) define(t *testing.T, name string, fn any, shape dispatch.Shape, opts dispatch.Options) *dispatch.Descriptor {
	t.Helper()
	s, err := f.rt.SingletonClass(f.calc)
	if err != nil {
		t.Fatal(err)
	}
	desc, err := f.d.Define(s, name, fn, shape, opts)
	if err != nil {
		t.Fatalf("Define %s failed: %v", name, err)
	}
	return desc
}

func (f *fixture) call(name string, args ...host.Value) (host.Value, error) {
	return f.rt.Call(f.calc, name, args, host.Nil)
}

func (f *fixture) ints(ns ...int64) []host.Value {
	out := make([]host.Value, len(ns))
	for i, n := range ns {
		out[i] = f.rt.NewInt(n)
	}
	return out
}

func expectException(t *testing.T, err error, class, msg string) {
	t.Helper()
	exc, ok := host.AsException(err)
	if !ok {
		t.Fatalf("expected a host exception, got %v", err)
	}
	if exc.ClassName != class {
		t.Errorf("expected %s, got %s (%s)", class, exc.ClassName, exc.Message)
	}
	if msg != "" && exc.Message != msg {
		t.Errorf("expected message %q, got %q", msg, exc.Message)
	}
}

// =============================================================================
// Shapes
// =============================================================================

func TestFunctionRoundTrip(t *testing.T) {
	f := newFixture(t)
	desc := f.function(t, "mul", func(x, factor int) int { return x * factor }, dispatch.Options{})

	if desc.Arity != host.Fixed(2) {
		t.Errorf("expected arity 2, got %s", desc.Arity)
	}
	v, err := f.call("mul", f.ints(42, 2)...)
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := f.rt.Int(v); !ok || n != 84 {
		t.Errorf("expected 84, got %s", f.rt.Inspect(v))
	}

	_, err = f.call("mul", f.ints(42)...)
	expectException(t, err, "ArgumentError", "wrong number of arguments (given 1, expected 2)")
}

func TestMethod(t *testing.T) {
	f := newFixture(t)
	if _, err := f.d.Define(f.counter, "add", (*Counter).Add, dispatch.Method, dispatch.Options{}); err != nil {
		t.Fatal(err)
	}
	c := &Counter{N: 1}
	self, err := f.carrier.Wrap(c, f.entry, data.Borrowed)
	if err != nil {
		t.Fatal(err)
	}

	v, err := f.rt.Call(self, "add", f.ints(4), host.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := f.rt.Int(v); n != 5 || c.N != 5 {
		t.Errorf("expected 5, got %d (counter %d)", n, c.N)
	}
	if desc, ok := f.d.Lookup(f.counter, "add"); !ok || desc.Shape != dispatch.Method {
		t.Error("expected the descriptor in the method table")
	}
}

func TestConstructor(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.Define(f.counter, "initialize", func(start int) *Counter {
		return &Counter{N: start}
	}, dispatch.Constructor, dispatch.Options{})
	if err != nil {
		t.Fatal(err)
	}

	v, err := f.rt.Call(f.counter, "new", f.ints(9), host.Nil)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := data.Unwrap[Counter](f.carrier, v, f.entry)
	if err != nil {
		t.Fatal(err)
	}
	if obj.Must().N != 9 {
		t.Errorf("expected N 9, got %d", obj.Must().N)
	}
	if mode, _ := f.carrier.Mode(v); mode != data.Owned {
		t.Errorf("expected constructed object to be owned, got %s", mode)
	}
}

func TestUninitializedReceiver(t *testing.T) {
	f := newFixture(t)
	if _, err := f.d.Define(f.counter, "add", (*Counter).Add, dispatch.Method, dispatch.Options{}); err != nil {
		t.Fatal(err)
	}
	// new without a bound initialize leaves the payload empty.
	v, err := f.rt.Call(f.counter, "new", nil, host.Nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.rt.Call(v, "add", f.ints(1), host.Nil)
	expectException(t, err, "TypeError", data.ErrUninitialized.Error())
}

func TestRaw(t *testing.T) {
	f := newFixture(t)
	desc := f.define(t, "count", func(rt host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error) {
		return rt.NewInt(int64(len(args))), nil
	}, dispatch.Raw, dispatch.Options{})
	if desc.Arity != host.Variadic(0) {
		t.Errorf("expected arity 0+, got %s", desc.Arity)
	}

	v, err := f.call("count", f.ints(1, 2, 3)...)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := f.rt.Int(v); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

// =============================================================================
// Arguments
// =============================================================================

func TestDefaultsAndKeywords(t *testing.T) {
	f := newFixture(t)
	greet := func(name, greeting string, loud bool) string {
		s := greeting + " " + name
		if loud {
			s = strings.ToUpper(s)
		}
		return s
	}
	desc := f.function(t, "greet", greet, dispatch.Options{Args: []dispatch.ArgSpec{
		{Name: "name"},
		{Name: "greeting", Default: "hello", HasDefault: true},
		{Name: "loud", Keyword: true, Default: false, HasDefault: true},
	}})
	if want := (host.Arity{Required: 1, Optional: 2}); desc.Arity != want {
		t.Errorf("expected arity %s, got %s", want, desc.Arity)
	}

	rt := f.rt
	loud := rt.NewHash()
	_ = rt.HashSet(loud, rt.NewSymbol("loud"), host.True)
	unknown := rt.NewHash()
	_ = rt.HashSet(unknown, rt.NewString("quiet"), host.True)

	tests := []struct {
		name string
		args []host.Value
		want string
	}{
		{"Default", []host.Value{rt.NewString("bob")}, "hello bob"},
		{"Positional", []host.Value{rt.NewString("bob"), rt.NewString("hi")}, "hi bob"},
		{"Keyword", []host.Value{rt.NewString("bob"), loud}, "HELLO BOB"},
		{"Both", []host.Value{rt.NewString("bob"), rt.NewString("hey"), loud}, "HEY BOB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := f.call("greet", tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if s, _ := rt.Str(v); s != tt.want {
				t.Errorf("expected %q, got %q", tt.want, s)
			}
		})
	}

	t.Run("UnknownKeyword", func(t *testing.T) {
		_, err := f.call("greet", rt.NewString("bob"), unknown)
		expectException(t, err, "ArgumentError", "unknown keyword: :quiet")
	})
}

func TestRequiredKeyword(t *testing.T) {
	f := newFixture(t)
	f.function(t, "scale", func(n, by int) int { return n * by }, dispatch.Options{Args: []dispatch.ArgSpec{
		{Name: "n"},
		{Name: "by", Keyword: true},
	}})

	_, err := f.call("scale", f.ints(3)...)
	expectException(t, err, "ArgumentError", "missing keyword: :by")

	kw := f.rt.NewHash()
	_ = f.rt.HashSet(kw, f.rt.NewSymbol("by"), f.rt.NewInt(5))
	v, err := f.call("scale", f.rt.NewInt(3), kw)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := f.rt.Int(v); n != 15 {
		t.Errorf("expected 15, got %d", n)
	}

	_, err = f.call("scale", f.ints(3, 4)...)
	expectException(t, err, "ArgumentError", "wrong number of arguments (given 2, expected 1)")
}

func TestVariadic(t *testing.T) {
	f := newFixture(t)
	desc := f.function(t, "sum", func(first int, rest ...int) int {
		for _, n := range rest {
			first += n
		}
		return first
	}, dispatch.Options{})
	if desc.Arity != host.Variadic(1) {
		t.Errorf("expected arity 1+, got %s", desc.Arity)
	}

	v, err := f.call("sum", f.ints(1, 2, 3, 4)...)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := f.rt.Int(v); n != 10 {
		t.Errorf("expected 10, got %d", n)
	}
}

func TestInjectedParameters(t *testing.T) {
	f := newFixture(t)
	f.function(t, "each_upto", func(rt host.Runtime, b dispatch.Block, n int) (host.Value, error) {
		if !b.Given() {
			return rt.NewArray(), nil
		}
		for i := 1; i <= n; i++ {
			if _, err := b.Yield(i); err != nil {
				return host.Nil, err
			}
		}
		return rt.NewInt(int64(n)), nil
	}, dispatch.Options{})

	var seen []int64
	block := f.rt.NewProc(func(args []host.Value) (host.Value, error) {
		n, _ := f.rt.Int(args[0])
		seen = append(seen, n)
		return host.Nil, nil
	})
	if _, err := f.rt.Call(f.calc, "each_upto", f.ints(3), block); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(seen) != "[1 2 3]" {
		t.Errorf("expected [1 2 3], got %v", seen)
	}

	v, err := f.call("each_upto", f.ints(3)...)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.rt.Inspect(v); got != "[]" {
		t.Errorf("expected [] without a block, got %s", got)
	}
}

// =============================================================================
// Errors
// =============================================================================

var errBoom = errors.New("boom")

type quotaError struct{ limit int }

func (e *quotaError) Error() string { return fmt.Sprintf("quota %d exceeded", e.limit) }

func TestErrorTranslation(t *testing.T) {
	f := newFixture(t)
	f.function(t, "fail", func() error { return errBoom }, dispatch.Options{})
	f.function(t, "small", func(n int8) int8 { return n }, dispatch.Options{})
	f.function(t, "count", func(c *Counter) int { return c.N }, dispatch.Options{})
	f.function(t, "explode", func() int { panic("kaboom") }, dispatch.Options{})
	f.function(t, "index", func(rt host.Runtime) error {
		return rt.Raise(rt.ErrorClass(host.IndexError), "index 7 outside of array")
	}, dispatch.Options{})

	tests := []struct {
		method string
		args   []host.Value
		class  string
		msg    string
	}{
		{"fail", nil, "RuntimeError", "boom"},
		{"small", f.ints(300), "RangeError", "argument 1: integer 300 out of range of int8"},
		{"count", []host.Value{f.rt.NewString("x")}, "TypeError", "argument 1: no implicit conversion of String into dispatch_test.Counter"},
		{"explode", nil, "RuntimeError", "panic in explode: kaboom"},
		{"index", nil, "IndexError", "index 7 outside of array"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			_, err := f.call(tt.method, tt.args...)
			expectException(t, err, tt.class, tt.msg)
		})
	}

	t.Run("CauseKept", func(t *testing.T) {
		_, err := f.call("fail")
		if !errors.Is(err, errBoom) {
			t.Errorf("expected the exception to wrap the native error, got %v", err)
		}
	})
}

func TestHandlerChain(t *testing.T) {
	f := newFixture(t)
	var order []string
	var chain *dispatch.Chain
	chain = chain.Push(dispatch.HandlerFor(func(rt host.Runtime, e *quotaError) error {
		order = append(order, "old")
		return rt.Raise(rt.ErrorClass(host.RuntimeError), "old")
	}))
	newer := chain.Push(dispatch.HandlerFor(func(rt host.Runtime, e *quotaError) error {
		order = append(order, "new")
		return rt.Raise(rt.ErrorClass(host.IndexError), "limit %d", e.limit)
	}))
	if chain.Len() != 1 || newer.Len() != 2 {
		t.Fatalf("expected lengths 1 and 2, got %d and %d", chain.Len(), newer.Len())
	}

	f.function(t, "quota", func() error { return fmt.Errorf("upload: %w", &quotaError{limit: 3}) }, dispatch.Options{Handlers: newer})
	f.function(t, "other", func() error { return errBoom }, dispatch.Options{Handlers: newer})
	f.function(t, "swallow", func() (int, error) { return 0, errBoom }, dispatch.Options{
		Handlers: newer.Push(func(host.Runtime, error) (error, bool) { return nil, true }),
	})

	_, err := f.call("quota")
	expectException(t, err, "IndexError", "limit 3")
	if strings.Join(order, ",") != "new" {
		t.Errorf("expected only the newest handler to run, got %v", order)
	}

	_, err = f.call("other")
	expectException(t, err, "RuntimeError", "boom")

	v, err := f.call("swallow")
	if err != nil || v != host.Nil {
		t.Errorf("expected a handled error to return nil, got %v (%v)", v, err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want host.ErrorKind
	}{
		{&data.TypeMismatchError{}, host.TypeError},
		{fmt.Errorf("wrapped: %w", &registry.TypeNotRegisteredError{Type: reflect.TypeFor[int]()}), host.TypeError},
		{&convert.RangeError{Type: reflect.TypeFor[int8]()}, host.RangeError},
		{&dispatch.ArgumentError{}, host.ArgumentError},
		{&dispatch.NativeCallError{}, host.RuntimeError},
		{errBoom, host.RuntimeError},
	}
	for _, tt := range tests {
		if got := dispatch.KindOf(tt.err); got != tt.want {
			t.Errorf("expected %s for %T, got %s", tt.want, tt.err, got)
		}
	}
}

// =============================================================================
// Definition
// =============================================================================

func TestDescribeErrors(t *testing.T) {
	tests := []struct {
		name  string
		fn    any
		shape dispatch.Shape
		opts  dispatch.Options
		want  error
	}{
		{"NotFunc", 42, dispatch.Function, dispatch.Options{}, dispatch.ErrNotFunc},
		{"NoReceiver", func() {}, dispatch.Method, dispatch.Options{}, dispatch.ErrBadSignature},
		{"RequiredAfterOptional", func(a, b int) {}, dispatch.Function, dispatch.Options{Args: []dispatch.ArgSpec{
			{Name: "a", Default: 1, HasDefault: true}, {Name: "b"},
		}}, dispatch.ErrBadSignature},
		{"BadDefault", func(a int) {}, dispatch.Function, dispatch.Options{Args: []dispatch.ArgSpec{
			{Name: "a", Default: "one", HasDefault: true},
		}}, dispatch.ErrBadSignature},
		{"TooManyHints", func(a int) {}, dispatch.Function, dispatch.Options{Args: []dispatch.ArgSpec{{}, {}}}, dispatch.ErrBadSignature},
		{"ConstructorResult", func() int { return 0 }, dispatch.Constructor, dispatch.Options{}, dispatch.ErrBadSignature},
		{"TwoResults", func() (int, int) { return 0, 0 }, dispatch.Function, dispatch.Options{}, dispatch.ErrBadSignature},
		{"RawSignature", func() {}, dispatch.Raw, dispatch.Options{}, dispatch.ErrBadSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dispatch.Describe(tt.fn, tt.shape, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDefineVerifiesTypes(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.Define(f.counter, "bad", func(c *Counter, u *Unbound) {}, dispatch.Method, dispatch.Options{})
	var notReg *registry.TypeNotRegisteredError
	if !errors.As(err, &notReg) {
		t.Fatalf("expected TypeNotRegisteredError, got %v", err)
	}
	if f.table.Len() != 0 {
		t.Errorf("expected nothing stored, got %d descriptors", f.table.Len())
	}
}

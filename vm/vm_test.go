package vm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/vm"
)

func call(t *testing.T, rt *vm.VM, recv host.Value, name string, args ...host.Value) host.Value {
	t.Helper()
	v, err := rt.Call(recv, name, args, host.Nil)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return v
}

func exceptionClass(t *testing.T, err error) string {
	t.Helper()
	exc, ok := host.AsException(err)
	if !ok {
		t.Fatalf("expected host exception, got %v", err)
	}
	return exc.ClassName
}

// =============================================================================
// Values
// =============================================================================

func TestArithmetic(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	tests := []struct {
		name string
		recv host.Value
		op   string
		arg  host.Value
		want string
	}{
		{"IntAdd", rt.NewInt(20), "+", rt.NewInt(22), "42"},
		{"IntFloorDiv", rt.NewInt(-7), "/", rt.NewInt(2), "-4"},
		{"IntMod", rt.NewInt(-7), "%", rt.NewInt(3), "2"},
		{"IntPow", rt.NewInt(2), "**", rt.NewInt(10), "1024"},
		{"MixedPromotesToFloat", rt.NewInt(1), "+", rt.NewFloat(0.5), "1.5"},
		{"FloatWhole", rt.NewFloat(2), "*", rt.NewInt(3), "6.0"},
		{"StringConcat", rt.NewString("ab"), "+", rt.NewString("cd"), `"abcd"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rt.Inspect(call(t, rt, tt.recv, tt.op, tt.arg))
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("DivideByZero", func(t *testing.T) {
		_, err := rt.Call(rt.NewInt(1), "/", []host.Value{rt.NewInt(0)}, host.Nil)
		if got := exceptionClass(t, err); got != "ZeroDivisionError" {
			t.Errorf("expected ZeroDivisionError, got %s", got)
		}
	})

	t.Run("Coercion", func(t *testing.T) {
		_, err := rt.Call(rt.NewInt(1), "+", []host.Value{rt.NewString("x")}, host.Nil)
		if got := exceptionClass(t, err); got != "TypeError" {
			t.Errorf("expected TypeError, got %s", got)
		}
	})
}

func TestComparable(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	if !rt.Truthy(call(t, rt, rt.NewInt(1), "<", rt.NewInt(2))) {
		t.Error("expected 1 < 2")
	}
	if !rt.Truthy(call(t, rt, rt.NewInt(5), "between?", rt.NewInt(1), rt.NewInt(9))) {
		t.Error("expected 5.between?(1, 9)")
	}
	if !rt.Truthy(call(t, rt, rt.NewString("a"), "<", rt.NewString("b"))) {
		t.Error(`expected "a" < "b"`)
	}

	_, err := rt.Call(rt.NewInt(1), "<", []host.Value{rt.NewString("x")}, host.Nil)
	if err == nil {
		t.Fatal("expected comparison failure")
	}
	if !strings.Contains(err.Error(), "comparison of Integer with String failed") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestHash(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	h := rt.NewHash()
	if err := rt.HashSet(h, rt.NewString("a"), rt.NewInt(1)); err != nil {
		t.Fatal(err)
	}
	if err := rt.HashSet(h, rt.NewSymbol("b"), rt.NewInt(2)); err != nil {
		t.Fatal(err)
	}
	// Equal strings are the same key.
	if err := rt.HashSet(h, rt.NewString("a"), rt.NewInt(3)); err != nil {
		t.Fatal(err)
	}
	if n := rt.HashLen(h); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
	v, ok, err := rt.HashGet(h, rt.NewString("a"))
	if err != nil || !ok {
		t.Fatalf("HashGet failed: ok=%v err=%v", ok, err)
	}
	if n, _ := rt.Int(v); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if got := rt.Inspect(h); got != `{"a" => 3, :b => 2}` {
		t.Errorf("unexpected inspect: %s", got)
	}
}

func TestArray(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	a := rt.NewArray(rt.NewInt(1), rt.NewInt(2))
	call(t, rt, a, "push", rt.NewInt(3))
	if got := rt.Inspect(a); got != "[1, 2, 3]" {
		t.Errorf("expected [1, 2, 3], got %s", got)
	}
	if n, _ := rt.Int(call(t, rt, a, "[]", rt.NewInt(-1))); n != 3 {
		t.Errorf("expected last element 3, got %d", n)
	}

	var sum int64
	block := rt.NewProc(func(args []host.Value) (host.Value, error) {
		n, _ := rt.Int(args[0])
		sum += n
		return host.Nil, nil
	})
	if _, err := rt.Call(a, "each", nil, block); err != nil {
		t.Fatal(err)
	}
	if sum != 6 {
		t.Errorf("expected sum 6, got %d", sum)
	}
}

// =============================================================================
// Object model
// =============================================================================

func TestClasses(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	shape, err := rt.DefineClass("Shape", host.Nil, host.Nil)
	if err != nil {
		t.Fatal(err)
	}
	circle, err := rt.DefineClass("Circle", shape, host.Nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Reopen", func(t *testing.T) {
		again, err := rt.DefineClass("Circle", host.Nil, host.Nil)
		if err != nil || again != circle {
			t.Errorf("expected reopened class, got %v, %v", again, err)
		}
	})

	t.Run("SuperclassMismatch", func(t *testing.T) {
		_, err := rt.DefineClass("Circle", rt.ObjectClass(), host.Nil)
		if got := exceptionClass(t, err); got != "TypeError" {
			t.Errorf("expected TypeError, got %s", got)
		}
	})

	t.Run("Nested", func(t *testing.T) {
		geo, err := rt.DefineModule("Geo", host.Nil)
		if err != nil {
			t.Fatal(err)
		}
		pt, err := rt.DefineClass("Point", host.Nil, geo)
		if err != nil {
			t.Fatal(err)
		}
		if got := rt.ClassName(pt); got != "Geo::Point" {
			t.Errorf("expected Geo::Point, got %s", got)
		}
		if v, ok := rt.ConstGet(geo, "Point"); !ok || v != pt {
			t.Error("expected Point constant under Geo")
		}
	})

	t.Run("InheritedMethod", func(t *testing.T) {
		err := rt.DefineMethod(shape, "sides", func(rt host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error) {
			return rt.NewInt(0), nil
		}, host.Fixed(0))
		if err != nil {
			t.Fatal(err)
		}
		obj := call(t, rt, circle, "new")
		if !rt.IsKindOf(obj, shape) {
			t.Error("expected circle to be a kind of Shape")
		}
		if n, _ := rt.Int(call(t, rt, obj, "sides")); n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
	})

	t.Run("SingletonMethodsInherit", func(t *testing.T) {
		meta, err := rt.SingletonClass(shape)
		if err != nil {
			t.Fatal(err)
		}
		err = rt.DefineMethod(meta, "kind", func(rt host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error) {
			return rt.NewString(rt.ClassName(self)), nil
		}, host.Fixed(0))
		if err != nil {
			t.Fatal(err)
		}
		s, _ := rt.Str(call(t, rt, circle, "kind"))
		if s != "Circle" {
			t.Errorf("expected Circle, got %s", s)
		}
	})

	t.Run("IncludedModule", func(t *testing.T) {
		if !rt.IsKindOf(rt.NewInt(1), mustClass(t, rt, "Comparable")) {
			t.Error("expected Integer to include Comparable")
		}
	})
}

func mustClass(t *testing.T, rt *vm.VM, name string) host.Value {
	t.Helper()
	c, ok := rt.Class(name)
	if !ok {
		t.Fatalf("class %s not defined", name)
	}
	return c
}

func TestCallErrors(t *testing.T) {
	rt := vm.New(vm.WithMaxDepth(8))
	defer rt.Close()

	t.Run("NoMethod", func(t *testing.T) {
		_, err := rt.Call(rt.NewInt(1), "frobnicate", nil, host.Nil)
		if got := exceptionClass(t, err); got != "NoMethodError" {
			t.Errorf("expected NoMethodError, got %s", got)
		}
		if !strings.Contains(err.Error(), "undefined method 'frobnicate' for an instance of Integer") {
			t.Errorf("unexpected message: %v", err)
		}
	})

	t.Run("Arity", func(t *testing.T) {
		_, err := rt.Call(rt.NewInt(1), "+", nil, host.Nil)
		if !strings.Contains(err.Error(), "wrong number of arguments (given 0, expected 1)") {
			t.Errorf("unexpected message: %v", err)
		}
	})

	t.Run("NoBlock", func(t *testing.T) {
		_, err := rt.Call(rt.NewInt(2), "times", nil, host.Nil)
		if got := exceptionClass(t, err); got != "LocalJumpError" {
			t.Errorf("expected LocalJumpError, got %s", got)
		}
	})

	t.Run("StackDepth", func(t *testing.T) {
		c, _ := rt.DefineClass("Recur", host.Nil, host.Nil)
		_ = rt.DefineMethod(c, "go", func(rt host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error) {
			return rt.Call(self, "go", nil, host.Nil)
		}, host.Fixed(0))
		_, err := rt.Call(call(t, rt, c, "new"), "go", nil, host.Nil)
		if err == nil || !strings.Contains(err.Error(), "stack level too deep") {
			t.Errorf("expected stack depth error, got %v", err)
		}
		if rt.Depth() != 0 {
			t.Errorf("expected frames to unwind, got depth %d", rt.Depth())
		}
	})

	t.Run("NativeErrorPassesThrough", func(t *testing.T) {
		sentinel := errors.New("boom")
		c, _ := rt.DefineClass("Failing", host.Nil, host.Nil)
		_ = rt.DefineMethod(c, "fail", func(host.Runtime, host.Value, []host.Value, host.Value) (host.Value, error) {
			return host.Nil, sentinel
		}, host.Fixed(0))
		_, err := rt.Call(call(t, rt, c, "new"), "fail", nil, host.Nil)
		if !errors.Is(err, sentinel) {
			t.Errorf("expected sentinel, got %v", err)
		}
	})
}

func TestCurrentFrame(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	base, _ := rt.DefineClass("Base", host.Nil, host.Nil)
	derived, _ := rt.DefineClass("Derived", base, host.Nil)

	var got host.Frame
	_ = rt.DefineMethod(base, "where", func(rt host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error) {
		got, _ = rt.CurrentFrame()
		return host.Nil, nil
	}, host.Fixed(0))

	obj := call(t, rt, derived, "new")
	call(t, rt, obj, "where")
	if got.Class != base {
		t.Errorf("expected frame owner to be Base, got %s", rt.ClassName(got.Class))
	}
	if got.Method != "where" || got.Self != obj {
		t.Errorf("unexpected frame: %+v", got)
	}
	if _, ok := rt.CurrentFrame(); ok {
		t.Error("expected no frame outside a call")
	}
}

// =============================================================================
// Collector
// =============================================================================

func TestCollectRunsFree(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	c, _ := rt.DefineClass("Resource", host.Nil, host.Nil)
	freed := 0
	dt := &host.DataType{Name: "Resource", Free: func(any) { freed++ }}

	kept, err := rt.WrapData(c, new(int), dt)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.WrapData(c, new(int), dt); err != nil {
		t.Fatal(err)
	}
	rt.Pin(kept)

	rt.Collect()
	if freed != 1 {
		t.Fatalf("expected 1 free, got %d", freed)
	}
	if _, _, ok := rt.DataPayload(kept); !ok {
		t.Error("expected pinned object to survive")
	}

	rt.Unpin(kept)
	rt.Collect()
	if freed != 2 {
		t.Errorf("expected 2 frees, got %d", freed)
	}
}

func TestCollectFollowsMark(t *testing.T) {
	rt := vm.New()
	defer rt.Close()

	c, _ := rt.DefineClass("Holder", host.Nil, host.Nil)
	held := rt.NewString("child")
	dt := &host.DataType{
		Name: "Holder",
		Mark: func(payload any, m host.Marker) { m.Mark(*payload.(*host.Value)) },
	}
	holder, _ := rt.WrapData(c, &held, dt)
	rt.Pin(holder)
	defer rt.Unpin(holder)

	rt.Collect()
	if s, ok := rt.Str(held); !ok || s != "child" {
		t.Errorf("expected marked child to survive, got %q", s)
	}
}

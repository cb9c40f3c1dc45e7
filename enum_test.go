package tether_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/feather-lang/tether"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/vm"
)

type Color int

const (
	Red Color = iota + 1
	Green
	Blue
)

type Size uint8

const (
	Small Size = iota
	Large
)

func defineColor(t *testing.T, b *tether.Binder) *tether.Enum[Color] {
	t.Helper()
	e, err := tether.DefineEnum[Color](b, "Color")
	must(t, err)
	must(t, e.DefineValue("RED", Red))
	must(t, e.DefineValue("GREEN", Green))
	must(t, e.DefineValue("BLUE", Blue))
	return e
}

func constant(t *testing.T, m host.Runtime, under host.Value, name string) host.Value {
	t.Helper()
	v, ok := m.ConstGet(under, name)
	if !ok {
		t.Fatalf("expected constant %s", name)
	}
	return v
}

func names(t *testing.T, rt *vm.VM, arr host.Value) []string {
	t.Helper()
	items, ok := rt.ArrayItems(arr)
	if !ok {
		t.Fatalf("expected an Array, got %s", rt.Inspect(arr))
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = rt.ToS(it)
	}
	return out
}

// =============================================================================
// Sequence
// =============================================================================

func TestEnumSequence(t *testing.T) {
	b, rt := newBinder(t)
	e := defineColor(t, b)
	want := []string{"RED", "GREEN", "BLUE"}

	if e.Len() != 3 {
		t.Fatalf("expected 3 values, got %d", e.Len())
	}
	if !slices.Equal(e.Names(), want) {
		t.Errorf("expected %v, got %v", want, e.Names())
	}
	if !slices.Equal(e.Values(), []Color{Red, Green, Blue}) {
		t.Errorf("expected [1 2 3], got %v", e.Values())
	}

	t.Run("Each", func(t *testing.T) {
		for range 2 {
			var got []string
			blk := rt.NewProc(func(args []host.Value) (host.Value, error) {
				got = append(got, rt.ToS(args[0]))
				return host.Nil, nil
			})
			v, err := rt.Call(e.Klass(), "each", nil, blk)
			must(t, err)
			if v != e.Klass() {
				t.Errorf("expected each to return the class, got %s", rt.Inspect(v))
			}
			if !slices.Equal(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("EachWithoutBlock", func(t *testing.T) {
		if got := names(t, rt, call(t, b, e.Klass(), "each")); !slices.Equal(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("Values", func(t *testing.T) {
		if got := names(t, rt, call(t, b, e.Klass(), "values")); !slices.Equal(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
		stored := rt.IvarGet(e.Klass(), "__values__")
		if got := names(t, rt, stored); !slices.Equal(got, want) {
			t.Errorf("expected the class to hold %v, got %v", want, got)
		}
	})

	t.Run("Constants", func(t *testing.T) {
		green := constant(t, rt, e.Klass(), "GREEN")
		expectInt(t, rt, call(t, b, green, "to_i"), 2)
		expectString(t, rt, call(t, b, green, "inspect"), "#<Color::GREEN>")
		expectInt(t, rt, call(t, b, green, "hash"), 2)
	})

	t.Run("Duplicate", func(t *testing.T) {
		if err := e.DefineValue("RED", 9); !errors.Is(err, tether.ErrDuplicateName) {
			t.Errorf("expected ErrDuplicateName, got %v", err)
		}
		if e.Len() != 3 {
			t.Errorf("expected 3 values after a rejected duplicate, got %d", e.Len())
		}
	})

	t.Run("NoAllocation", func(t *testing.T) {
		_, err := b.Call(e.Klass(), "new")
		expectException(t, err, "TypeError", "allocator undefined for Color")
	})
}

// =============================================================================
// Comparison
// =============================================================================

func TestEnumCompare(t *testing.T) {
	b, rt := newBinder(t)
	e := defineColor(t, b)
	size, err := tether.DefineEnum[Size](b, "Size")
	must(t, err)
	must(t, size.DefineValue("SMALL", Small))
	must(t, size.DefineValue("LARGE", Large))

	red := constant(t, rt, e.Klass(), "RED")
	blue := constant(t, rt, e.Klass(), "BLUE")
	small := constant(t, rt, size.Klass(), "SMALL")

	expectInt(t, rt, call(t, b, red, "<=>", blue), -1)
	expectInt(t, rt, call(t, b, blue, "<=>", red), 1)
	expectInt(t, rt, call(t, b, red, "<=>", red), 0)

	tests := []struct {
		recv  host.Value
		op    string
		arg   host.Value
		truth bool
	}{
		{red, "<", blue, true},
		{blue, "<=", red, false},
		{red, "==", red, true},
		{red, "==", blue, false},
		{red, "eql?", red, true},
		{red, "==", small, false},
		{red, "eql?", small, false},
	}
	for _, tt := range tests {
		t.Run(rt.ToS(tt.recv)+tt.op+rt.ToS(tt.arg), func(t *testing.T) {
			v := call(t, b, tt.recv, tt.op, tt.arg)
			if rt.Truthy(v) != tt.truth {
				t.Errorf("expected %v, got %s", tt.truth, rt.Inspect(v))
			}
		})
	}

	t.Run("CannotCompare", func(t *testing.T) {
		_, err := b.Call(red, "<=>", small)
		expectException(t, err, "ArgumentError", "cannot compare Color with Size")
		var cc *tether.CannotCompareError
		if !errors.As(err, &cc) {
			t.Fatalf("expected CannotCompareError, got %v", err)
		}
		if cc.Left != "Color" || cc.Right != "Size" {
			t.Errorf("expected Color/Size, got %s/%s", cc.Left, cc.Right)
		}

		_, err = b.Call(red, "<", 1)
		expectException(t, err, "ArgumentError", "cannot compare Color with Integer")
	})
}

// =============================================================================
// Conversion
// =============================================================================

func TestEnumConversion(t *testing.T) {
	b, rt := newBinder(t)
	e := defineColor(t, b)
	m, err := b.DefineModule("Palette")
	must(t, err)
	must(t, m.DefineFunction("next", func(c Color) Color {
		if c == Blue {
			return Red
		}
		return c + 1
	}))
	must(t, m.DefineFunction("bad", func() Color { return 7 }))

	red := constant(t, rt, e.Klass(), "RED")
	green := constant(t, rt, e.Klass(), "GREEN")
	if v := call(t, b, m.Value(), "next", red); v != green {
		t.Errorf("expected GREEN, got %s", rt.Inspect(v))
	}

	v, err := b.ToHost(Blue)
	must(t, err)
	if v != constant(t, rt, e.Klass(), "BLUE") {
		t.Errorf("expected BLUE, got %s", rt.Inspect(v))
	}
	c, err := tether.FromHost[Color](b, green)
	must(t, err)
	if c != Green {
		t.Errorf("expected Green, got %d", c)
	}

	t.Run("FromInt", func(t *testing.T) {
		if v := call(t, b, e.Klass(), "from_int", 3); v != constant(t, rt, e.Klass(), "BLUE") {
			t.Errorf("expected BLUE, got %s", rt.Inspect(v))
		}
		_, err := b.Call(e.Klass(), "from_int", 9)
		expectException(t, err, "ArgumentError", "invalid value for Color: 9")
		var inv *tether.InvalidEnumValueError
		if !errors.As(err, &inv) || inv.Value != 9 {
			t.Errorf("expected InvalidEnumValueError naming 9, got %v", err)
		}
	})

	t.Run("Completeness", func(t *testing.T) {
		for _, c := range e.Values() {
			obj, err := b.ToHost(c)
			must(t, err)
			n := call(t, b, obj, "to_i")
			if v := call(t, b, e.Klass(), "from_int", n); v != obj {
				t.Errorf("expected from_int(%s) to return %s, got %s", rt.Inspect(n), rt.Inspect(obj), rt.Inspect(v))
			}
		}
	})

	t.Run("PointerParameter", func(t *testing.T) {
		must(t, m.DefineFunction("repaint", func(c *Color) Color {
			*c = Blue
			return *c
		}))
		must(t, m.DefineFunction("fresh", func() *Color {
			c := Green
			return &c
		}))
		blue := constant(t, rt, e.Klass(), "BLUE")
		if v := call(t, b, m.Value(), "repaint", red); v != blue {
			t.Errorf("expected BLUE, got %s", rt.Inspect(v))
		}
		expectInt(t, rt, call(t, b, red, "to_i"), 1)
		expectString(t, rt, call(t, b, red, "to_s"), "RED")
		if rt.Truthy(call(t, b, red, "==", blue)) {
			t.Error("expected RED to stay distinct from BLUE")
		}
		if !slices.Equal(e.Values(), []Color{Red, Green, Blue}) {
			t.Errorf("expected [1 2 3], got %v", e.Values())
		}
		if v := call(t, b, m.Value(), "fresh"); v != green {
			t.Errorf("expected GREEN, got %s", rt.Inspect(v))
		}
	})

	t.Run("AliasesAsHashKeys", func(t *testing.T) {
		b, rt := newBinder(t)
		e := defineColor(t, b)
		must(t, e.DefineValue("CRIMSON", Red))
		red := constant(t, rt, e.Klass(), "RED")
		crimson := constant(t, rt, e.Klass(), "CRIMSON")
		if red == crimson {
			t.Fatal("expected distinct enumerator objects")
		}
		if !rt.Truthy(call(t, b, red, "eql?", crimson)) {
			t.Error("expected RED eql? CRIMSON")
		}

		h := rt.NewHash()
		must(t, rt.HashSet(h, red, rt.NewString("first")))
		must(t, rt.HashSet(h, crimson, rt.NewString("second")))
		if n := rt.HashLen(h); n != 1 {
			t.Errorf("expected 1 key, got %d", n)
		}
		v, ok, err := rt.HashGet(h, red)
		must(t, err)
		if !ok {
			t.Fatal("expected RED to find the entry")
		}
		expectString(t, rt, v, "second")

		if v := call(t, b, e.Klass(), "from_int", 1); v != red {
			t.Errorf("expected from_int(1) to return the first declared name, got %s", rt.Inspect(v))
		}
	})

	t.Run("Undeclared", func(t *testing.T) {
		_, err := b.Call(m.Value(), "bad")
		expectException(t, err, "ArgumentError", "invalid value for Color: 7")
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		_, err := b.Call(m.Value(), "next", 1)
		expectException(t, err, "TypeError", "argument 1: no implicit conversion of Integer into tether_test.Color")
	})

	t.Run("Nested", func(t *testing.T) {
		paint, err := b.DefineModule("Paint")
		must(t, err)
		shade, err := tether.DefineEnumUnder[Size](paint, "Shade")
		must(t, err)
		must(t, shade.DefineValue("DARK", Large))
		dark := constant(t, rt, shade.Klass(), "DARK")
		expectString(t, rt, call(t, b, dark, "inspect"), "#<Paint::Shade::DARK>")
	})
}

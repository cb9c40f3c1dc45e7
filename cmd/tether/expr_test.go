package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/feather-lang/tether"
	"github.com/feather-lang/tether/vm"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	rt := vm.New()
	b := tether.New(rt)
	t.Cleanup(func() {
		b.Close()
		rt.Close()
	})
	if err := bind(b); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	return &app{rt: rt, b: b}
}

func TestEval(t *testing.T) {
	a := newTestApp(t)
	s := newSession(a.rt)

	tests := []struct {
		src  string
		want string
	}{
		{`42`, "42"},
		{`-7`, "-7"},
		{`2.5`, "2.5"},
		{`"hi"`, `"hi"`},
		{`:sym`, ":sym"},
		{`nil`, "nil"},
		{`[1, "a", true]`, `[1, "a", true]`},
		{`Calc.mul(42, 2)`, "84"},
		{`Calc.sum(1, 2, 3, 4)`, "10"},
		{`Calc.sum`, "0"},
		{`Calc.greet("ada")`, `"hello, ada"`},
		{`Calc.greet("ada", greeting: "hi")`, `"hi, ada"`},
		{`Calc::VERSION`, `"1.0"`},
		{`Color::GREEN.to_i`, "1"},
		{`Color::RED`, "#<Color::RED>"},
		{`Color.from_int(2)`, "#<Color::BLUE>"},
		{`Color::RED.eql?(Color::RED)`, "true"},
		{`Counter.new(5).add(3)`, "8"},
		{`Circle.new(1.0).radius`, "1.0"},
		{`Geometry.largest(Square.new(3.0), Circle.new(1.0)).side`, "3.0"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := s.eval(tt.src)
			if err != nil {
				t.Fatalf("eval failed: %v", err)
			}
			if got := a.rt.Inspect(v); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestVariables(t *testing.T) {
	a := newTestApp(t)
	s := newSession(a.rt)

	if _, err := s.eval(`$c = Counter.new(1)`); err != nil {
		t.Fatal(err)
	}
	a.rt.Collect()
	for _, want := range []int64{2, 3} {
		v, err := s.eval(`$c.incr`)
		if err != nil {
			t.Fatal(err)
		}
		if n, _ := a.rt.Int(v); n != want {
			t.Errorf("expected %d, got %s", want, a.rt.Inspect(v))
		}
	}
	v, err := s.eval(`$c`)
	if err != nil {
		t.Fatal(err)
	}
	if a.rt.ClassName(a.rt.ClassOf(v)) != "Counter" {
		t.Errorf("expected a Counter, got %s", a.rt.Inspect(v))
	}
}

func TestEvalErrors(t *testing.T) {
	a := newTestApp(t)
	s := newSession(a.rt)

	tests := []struct {
		src  string
		want string
	}{
		{`$missing`, "undefined variable $missing"},
		{`Nope`, "uninitialized constant Nope"},
		{`Calc::Nope`, "uninitialized constant Calc::Nope"},
		{`foo`, "undefined name foo"},
		{`Calc.mul(1,`, "unexpected end of input"},
		{`Calc.mul(1) 2`, `unexpected "2"`},
		{`Calc.divide(1, 0)`, "RangeError: divided by 0"},
		{`Calc.mul(1)`, "ArgumentError: wrong number of arguments (given 1, expected 2)"},
		{`Color.new`, "TypeError: allocator undefined for Color"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := s.eval(tt.src)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := describeError(err); !strings.Contains(got, tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScript(t *testing.T) {
	a := newTestApp(t)
	in := strings.NewReader("$x = Calc.mul(6, 7)\n$x\ntypes\nCalc.divide(1, 0)\nquit\nCalc.mul(1, 1)\n")
	var out bytes.Buffer
	err := a.script(newSession(a.rt), in, &out)
	if err == nil {
		t.Error("expected the failed line to fail the script")
	}
	got := out.String()
	for _, want := range []string{"42\n42\n", "main.Counter", "Counter", "error: RangeError: divided by 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
	if strings.Count(got, "\n1\n") != 0 {
		t.Errorf("expected input after quit to be ignored, got:\n%s", got)
	}
}

func TestListTypes(t *testing.T) {
	a := newTestApp(t)
	var out bytes.Buffer
	if err := a.listTypes(&out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected a header and 5 types, got:\n%s", out.String())
	}
	for _, want := range []string{"main.Circle", "Circle", "Shape", "area"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in:\n%s", want, out.String())
		}
	}
}

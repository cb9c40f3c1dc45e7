package main

import (
	"errors"
	"slices"

	"github.com/feather-lang/tether"
	"github.com/feather-lang/tether/host"
)

// Counter is a plain bound type with a constructor and attributes.
type Counter struct {
	Value int
	Label string
}

func NewCounter(start int) *Counter { return &Counter{Value: start} }

func (c *Counter) Incr() int {
	c.Value++
	return c.Value
}

func (c *Counter) Add(n int) int {
	c.Value += n
	return c.Value
}

func (c *Counter) Reset() { c.Value = 0 }

// Shape is the base of the shape hierarchy. It records its outer value so
// a *Shape handed back to the host keeps its most-derived class.
type Shape struct {
	self any
}

func (s *Shape) DynamicValue() any { return s.self }

// Area dispatches to the outer shape.
func (s *Shape) Area() float64 {
	if a, ok := s.self.(interface{ Area() float64 }); ok {
		return a.Area()
	}
	return 0
}

type Circle struct {
	Shape
	Radius float64
}

func NewCircle(r float64) *Circle {
	c := &Circle{Radius: r}
	c.self = c
	return c
}

func (c *Circle) Area() float64 { return 3.141592653589793 * c.Radius * c.Radius }

type Square struct {
	Shape
	Side float64
}

func NewSquare(side float64) *Square {
	s := &Square{Side: side}
	s.self = s
	return s
}

func (s *Square) Area() float64 { return s.Side * s.Side }

// Largest returns the shape with the largest area, nil for none.
func Largest(shapes ...*Shape) *Shape {
	if len(shapes) == 0 {
		return nil
	}
	return slices.MaxFunc(shapes, func(a, b *Shape) int {
		switch {
		case a.Area() < b.Area():
			return -1
		case a.Area() > b.Area():
			return 1
		}
		return 0
	})
}

type Color int

const (
	Red Color = iota
	Green
	Blue
)

var errDivisionByZero = errors.New("divided by 0")

// bind installs the sample bindings the shell works with.
func bind(b *tether.Binder) error {
	steps := []func(*tether.Binder) error{bindCounter, bindShapes, bindColor, bindCalc}
	for _, step := range steps {
		if err := step(b); err != nil {
			return err
		}
	}
	return nil
}

func bindCounter(b *tether.Binder) error {
	c, err := tether.DefineClass[Counter](b, "Counter")
	if err != nil {
		return err
	}
	return errors.Join(
		c.DefineConstructor(NewCounter, tether.Arg("start").Default(0)),
		c.DefineMethod("incr", (*Counter).Incr),
		c.DefineMethod("add", (*Counter).Add, tether.Arg("n").Default(1)),
		c.DefineMethod("reset", (*Counter).Reset),
		c.DefineAttr("value", "Value", tether.Reader),
		c.DefineAttr("label", "Label", tether.Accessor),
	)
}

func bindShapes(b *tether.Binder) error {
	shape, err := tether.DefineClass[Shape](b, "Shape")
	if err != nil {
		return err
	}
	circle, err := tether.DefineClass[Circle](b, "Circle", tether.WithParent[Shape]())
	if err != nil {
		return err
	}
	square, err := tether.DefineClass[Square](b, "Square", tether.WithParent[Shape]())
	if err != nil {
		return err
	}
	geo, err := b.DefineModule("Geometry")
	if err != nil {
		return err
	}
	return errors.Join(
		shape.DefineMethod("area", (*Shape).Area),
		circle.DefineConstructor(NewCircle),
		circle.DefineAttr("radius", "Radius", tether.Reader),
		square.DefineConstructor(NewSquare),
		square.DefineAttr("side", "Side", tether.Reader),
		geo.DefineFunction("largest", Largest),
	)
}

func bindColor(b *tether.Binder) error {
	color, err := tether.DefineEnum[Color](b, "Color")
	if err != nil {
		return err
	}
	return errors.Join(
		color.DefineValue("RED", Red),
		color.DefineValue("GREEN", Green),
		color.DefineValue("BLUE", Blue),
	)
}

func bindCalc(b *tether.Binder) error {
	calc, err := b.DefineModule("Calc")
	if err != nil {
		return err
	}
	tether.Handle(calc, func(rt host.Runtime, err error) error {
		if errors.Is(err, errDivisionByZero) {
			return rt.Raise(rt.ErrorClass(host.RangeError), "%s", err.Error())
		}
		return err
	})
	return errors.Join(
		calc.DefineConstant("VERSION", "1.0"),
		calc.DefineFunction("mul", func(x, factor int) int { return x * factor }),
		calc.DefineFunction("sum", func(nums ...int) int {
			total := 0
			for _, n := range nums {
				total += n
			}
			return total
		}),
		calc.DefineFunction("divide", func(a, b int) (int, error) {
			if b == 0 {
				return 0, errDivisionByZero
			}
			return a / b, nil
		}),
		calc.DefineFunction("greet",
			func(name, greeting string) string { return greeting + ", " + name },
			tether.Arg("name"),
			tether.Arg("greeting").Keyword().Default("hello")),
	)
}

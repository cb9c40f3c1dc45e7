// Package tether exposes Go types, functions and enumerations to a
// dynamically-typed host runtime and unwraps host values back into typed Go
// values.
//
// # Overview
//
// The host is reached only through [host.Runtime]. A [Binder] owns the
// type registry and method table for one runtime:
//
//	rt := vm.New()
//	defer rt.Close()
//
//	b := tether.New(rt)
//	defer b.Close()
//
// # Functions
//
// Any Go function can be bound. Arguments and results are converted; a
// trailing error result is raised in the host:
//
//	calc, _ := b.DefineModule("Calc")
//	calc.DefineFunction("mul", func(x, factor int) int { return x * factor })
//
//	calc.DefineFunction("divide", func(a, b int) (int, error) {
//	    if b == 0 {
//	        return 0, errors.New("division by zero")
//	    }
//	    return a / b, nil
//	})
//
// Parameters can be named, given defaults, or made keyword arguments:
//
//	calc.DefineFunction("round", round,
//	    tether.Arg("value"),
//	    tether.Arg("digits").Keyword().Default(0))
//
// Parameters of type [host.Runtime], [host.Value] and [dispatch.Block] are
// injected or passed through unconverted. A variadic Go function accepts
// any number of trailing arguments.
//
// # Classes
//
// DefineClass binds a Go struct type to a host class. The host class wraps
// *T:
//
//	counter, _ := tether.DefineClass[Counter](b, "Counter")
//	counter.DefineConstructor(NewCounter)
//	counter.DefineMethod("incr", (*Counter).Incr)
//	counter.DefineAttr("value", "Value", tether.Reader)
//
// Objects created by new own their Go value; it is released when the host
// collects the object. Pointers returned by bound functions are borrowed
// unless the definition uses [ReturnOwned].
//
// Embedding models inheritance. With [WithParent] the host class of Circle
// is a subclass of Shape's, and methods bound on Shape receive the
// embedded *Shape:
//
//	tether.DefineClass[Circle](b, "Circle", tether.WithParent[Shape]())
//
// A *Shape returned to the host is wrapped as a Circle when Shape
// implements [rtti.Dynamic] and reports its outer *Circle.
//
// # Enumerations
//
// DefineEnum binds an integer type:
//
//	color, _ := tether.DefineEnum[Color](b, "Color")
//	color.DefineValue("RED", Red)
//	color.DefineValue("GREEN", Green)
//
// Each value is a constant of the class. The class iterates its values in
// declaration order with each and converts integers with from_int.
//
// # Errors
//
// Errors of bound functions become host exceptions. Handlers added to a
// module with [Handle] see the errors of functions defined on it
// afterwards, newest first; unhandled errors are mapped by [dispatch.KindOf].
package tether

package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/feather-lang/tether/host"
)

type builtin func(self host.Value, args []host.Value, block host.Value) (host.Value, error)

func (vm *VM) def(class host.Value, name string, arity host.Arity, fn builtin) {
	err := vm.DefineMethod(class, name, func(_ host.Runtime, self host.Value, args []host.Value, block host.Value) (host.Value, error) {
		return fn(self, args, block)
	}, arity)
	if err != nil {
		panic("vm: bootstrap method " + name + ": " + err.Error())
	}
}

func (vm *VM) defineBuiltins() {
	vm.defineObject()
	vm.defineModule()
	vm.defineComparable()
	vm.defineNumeric()
	vm.defineString()
	vm.defineArray()
	vm.defineHash()
	vm.defineSingletons()
}

// -----------------------------------------------------------------------------
// Object, Module, Class
// -----------------------------------------------------------------------------

func (vm *VM) defineObject() {
	c := vm.cObject
	vm.def(c, "initialize", host.Fixed(0), func(host.Value, []host.Value, host.Value) (host.Value, error) {
		return host.Nil, nil
	})
	vm.def(c, "class", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.ClassOf(self), nil
	})
	vm.def(c, "inspect", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(vm.defaultInspect(self)), nil
	})
	vm.def(c, "to_s", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(vm.defaultInspect(self)), nil
	})
	identity := func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(self == args[0]), nil
	}
	vm.def(c, "==", host.Fixed(1), identity)
	vm.def(c, "equal?", host.Fixed(1), identity)
	vm.def(c, "eql?", host.Fixed(1), identity)
	vm.def(c, "!=", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		r, err := vm.Call(self, "==", args, host.Nil)
		if err != nil {
			return host.Nil, err
		}
		return host.Bool(!vm.Truthy(r)), nil
	})
	vm.def(c, "!", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(!vm.Truthy(self)), nil
	})
	vm.def(c, "hash", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewInt(int64(self)), nil
	})
	vm.def(c, "nil?", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(self == host.Nil), nil
	})
	kindOf := func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		if k := vm.KindOf(args[0]); k != host.KindClass && k != host.KindModule {
			return host.Nil, vm.raise(host.TypeError, "class or module required")
		}
		return host.Bool(vm.IsKindOf(self, args[0])), nil
	}
	vm.def(c, "is_a?", host.Fixed(1), kindOf)
	vm.def(c, "kind_of?", host.Fixed(1), kindOf)
	vm.def(c, "instance_of?", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(vm.ClassOf(self) == args[0]), nil
	})
	vm.def(c, "respond_to?", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		name, err := vm.methodName(args[0])
		if err != nil {
			return host.Nil, err
		}
		return host.Bool(vm.RespondTo(self, name)), nil
	})
	vm.def(c, "send", host.Variadic(1), func(self host.Value, args []host.Value, block host.Value) (host.Value, error) {
		name, err := vm.methodName(args[0])
		if err != nil {
			return host.Nil, err
		}
		return vm.Call(self, name, args[1:], block)
	})
	vm.def(c, "instance_variable_get", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		name, err := vm.methodName(args[0])
		if err != nil {
			return host.Nil, err
		}
		return vm.IvarGet(self, name), nil
	})
	vm.def(c, "instance_variable_set", host.Fixed(2), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		name, err := vm.methodName(args[0])
		if err != nil {
			return host.Nil, err
		}
		return args[1], vm.IvarSet(self, name, args[1])
	})
}

func (vm *VM) methodName(v host.Value) (string, error) {
	if s, ok := vm.Symbol(v); ok {
		return s, nil
	}
	if s, ok := vm.Str(v); ok {
		return s, nil
	}
	return "", vm.raise(host.TypeError, "%s is not a symbol nor a string", vm.Inspect(v))
}

func (vm *VM) defineModule() {
	m := vm.cModule
	name := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(vm.ClassName(self)), nil
	}
	vm.def(m, "name", host.Fixed(0), name)
	vm.def(m, "to_s", host.Fixed(0), name)
	vm.def(m, "inspect", host.Fixed(0), name)
	vm.def(m, "===", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(vm.IsKindOf(args[0], self)), nil
	})
	vm.def(m, "const_get", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		name, err := vm.methodName(args[0])
		if err != nil {
			return host.Nil, err
		}
		v, ok := vm.ConstGet(self, name)
		if !ok {
			return host.Nil, vm.raise(host.NameError, "uninitialized constant %s::%s", vm.ClassName(self), name)
		}
		return v, nil
	})
	vm.def(m, "ancestors", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewArray(vm.ancestors(self)...), nil
	})
	vm.def(m, "include?", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		for _, a := range vm.ancestors(self) {
			if a == args[0] && a != self && vm.KindOf(a) == host.KindModule {
				return host.True, nil
			}
		}
		return host.False, nil
	})

	c := vm.cClass
	vm.def(c, "allocate", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.allocatorFor(self)(vm, self)
	})
	vm.def(c, "new", host.Variadic(0), func(self host.Value, args []host.Value, block host.Value) (host.Value, error) {
		obj, err := vm.allocatorFor(self)(vm, self)
		if err != nil {
			return host.Nil, err
		}
		if _, err := vm.Call(obj, "initialize", args, block); err != nil {
			return host.Nil, err
		}
		return obj, nil
	})
	vm.def(c, "superclass", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.Superclass(self), nil
	})

	noAlloc := func(_ host.Runtime, class host.Value) (host.Value, error) {
		return host.Nil, vm.raise(host.TypeError, "allocator undefined for %s", vm.ClassName(class))
	}
	for _, bc := range []host.Value{vm.cNilClass, vm.cTrueClass, vm.cFalseClass, vm.cNumeric, vm.cSymbol, vm.cProc} {
		vm.mod(bc).alloc = noAlloc
	}
	vm.mod(vm.cString).alloc = func(host.Runtime, host.Value) (host.Value, error) { return vm.NewString(""), nil }
	vm.mod(vm.cArray).alloc = func(host.Runtime, host.Value) (host.Value, error) { return vm.NewArray(), nil }
	vm.mod(vm.cHash).alloc = func(host.Runtime, host.Value) (host.Value, error) { return vm.NewHash(), nil }
}

// -----------------------------------------------------------------------------
// Comparable
// -----------------------------------------------------------------------------

// compare calls <=> and fails when the operands are not comparable.
func (vm *VM) compare(a, b host.Value) (int64, error) {
	r, err := vm.Call(a, "<=>", []host.Value{b}, host.Nil)
	if err != nil {
		return 0, err
	}
	n, ok := vm.Int(r)
	if !ok {
		return 0, vm.raise(host.ArgumentError, "comparison of %s with %s failed",
			vm.ClassName(vm.ClassOf(a)), vm.compareOperand(b))
	}
	return n, nil
}

func (vm *VM) compareOperand(v host.Value) string {
	switch vm.KindOf(v) {
	case host.KindNil, host.KindBool, host.KindInt, host.KindFloat:
		return vm.Inspect(v)
	}
	return vm.ClassName(vm.ClassOf(v))
}

func (vm *VM) defineComparable() {
	m := vm.cComparable
	rel := func(name string, ok func(int64) bool) {
		vm.def(m, name, host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
			n, err := vm.compare(self, args[0])
			if err != nil {
				return host.Nil, err
			}
			return host.Bool(ok(n)), nil
		})
	}
	rel("<", func(n int64) bool { return n < 0 })
	rel("<=", func(n int64) bool { return n <= 0 })
	rel(">", func(n int64) bool { return n > 0 })
	rel(">=", func(n int64) bool { return n >= 0 })
	vm.def(m, "==", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		if self == args[0] {
			return host.True, nil
		}
		r, err := vm.Call(self, "<=>", args, host.Nil)
		if err != nil {
			return host.Nil, err
		}
		n, ok := vm.Int(r)
		return host.Bool(ok && n == 0), nil
	})
	vm.def(m, "between?", host.Fixed(2), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		lo, err := vm.compare(self, args[0])
		if err != nil {
			return host.Nil, err
		}
		hi, err := vm.compare(self, args[1])
		if err != nil {
			return host.Nil, err
		}
		return host.Bool(lo >= 0 && hi <= 0), nil
	})
	vm.def(m, "clamp", host.Fixed(2), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		if lo, err := vm.compare(self, args[0]); err != nil {
			return host.Nil, err
		} else if lo < 0 {
			return args[0], nil
		}
		if hi, err := vm.compare(self, args[1]); err != nil {
			return host.Nil, err
		} else if hi > 0 {
			return args[1], nil
		}
		return self, nil
	})
}

// -----------------------------------------------------------------------------
// Numbers
// -----------------------------------------------------------------------------

// numeric returns v as a float and, when v is an Integer, as an int.
func (vm *VM) numeric(v host.Value) (f float64, n int64, isInt, ok bool) {
	if n, ok := vm.Int(v); ok {
		return float64(n), n, true, true
	}
	if f, ok := vm.Float(v); ok {
		return f, 0, false, true
	}
	return 0, 0, false, false
}

// FormatFloat renders f the way the host prints floats.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e16:
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func (vm *VM) defineNumeric() {
	zeroDiv := vm.mustClass("ZeroDivisionError", vm.errClasses[host.StandardError])

	coerceErr := func(self, other host.Value) error {
		return vm.raise(host.TypeError, "%s can't be coerced into %s",
			vm.compareOperand(other), vm.ClassName(vm.ClassOf(self)))
	}

	arith := func(name string, ints func(a, b int64) (int64, error), floats func(a, b float64) float64) {
		fn := func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
			af, ai, aInt, _ := vm.numeric(self)
			bf, bi, bInt, ok := vm.numeric(args[0])
			if !ok {
				return host.Nil, coerceErr(self, args[0])
			}
			if aInt && bInt && ints != nil {
				n, err := ints(ai, bi)
				if err != nil {
					return host.Nil, err
				}
				return vm.NewInt(n), nil
			}
			return vm.NewFloat(floats(af, bf)), nil
		}
		vm.def(vm.cInteger, name, host.Fixed(1), fn)
		vm.def(vm.cFloat, name, host.Fixed(1), fn)
	}
	arith("+", func(a, b int64) (int64, error) { return a + b, nil }, func(a, b float64) float64 { return a + b })
	arith("-", func(a, b int64) (int64, error) { return a - b, nil }, func(a, b float64) float64 { return a - b })
	arith("*", func(a, b int64) (int64, error) { return a * b, nil }, func(a, b float64) float64 { return a * b })
	arith("/", func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, vm.Raise(zeroDiv, "divided by 0")
		}
		return floorDiv(a, b), nil
	}, func(a, b float64) float64 { return a / b })
	arith("%", func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, vm.Raise(zeroDiv, "divided by 0")
		}
		return floorMod(a, b), nil
	}, func(a, b float64) float64 {
		m := math.Mod(a, b)
		if m != 0 && ((m < 0) != (b < 0)) {
			m += b
		}
		return m
	})
	arith("**", func(a, b int64) (int64, error) {
		if b < 0 {
			return 0, vm.raise(host.RangeError, "negative exponent")
		}
		r := int64(1)
		for ; b > 0; b-- {
			r *= a
		}
		return r, nil
	}, math.Pow)

	for _, c := range []host.Value{vm.cInteger, vm.cFloat} {
		vm.def(c, "<=>", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
			af, ai, aInt, _ := vm.numeric(self)
			bf, bi, bInt, ok := vm.numeric(args[0])
			if !ok {
				return host.Nil, nil
			}
			if aInt && bInt {
				switch {
				case ai < bi:
					return vm.NewInt(-1), nil
				case ai > bi:
					return vm.NewInt(1), nil
				}
				return vm.NewInt(0), nil
			}
			switch {
			case math.IsNaN(af) || math.IsNaN(bf):
				return host.Nil, nil
			case af < bf:
				return vm.NewInt(-1), nil
			case af > bf:
				return vm.NewInt(1), nil
			}
			return vm.NewInt(0), nil
		})
		vm.def(c, "==", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
			af, ai, aInt, _ := vm.numeric(self)
			bf, bi, bInt, ok := vm.numeric(args[0])
			if !ok {
				return host.False, nil
			}
			if aInt && bInt {
				return host.Bool(ai == bi), nil
			}
			return host.Bool(af == bf), nil
		})
		vm.def(c, "eql?", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
			if vm.KindOf(self) != vm.KindOf(args[0]) {
				return host.False, nil
			}
			af, ai, _, _ := vm.numeric(self)
			bf, bi, _, _ := vm.numeric(args[0])
			return host.Bool(ai == bi && af == bf), nil
		})
		vm.def(c, "-@", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
			if n, ok := vm.Int(self); ok {
				return vm.NewInt(-n), nil
			}
			f, _ := vm.Float(self)
			return vm.NewFloat(-f), nil
		})
		vm.def(c, "zero?", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
			f, _, _, _ := vm.numeric(self)
			return host.Bool(f == 0), nil
		})
		vm.def(c, "to_f", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
			f, _, _, _ := vm.numeric(self)
			return vm.NewFloat(f), nil
		})
	}

	ic := vm.cInteger
	intToS := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		n, _ := vm.Int(self)
		return vm.NewString(strconv.FormatInt(n, 10)), nil
	}
	vm.def(ic, "to_s", host.Fixed(0), intToS)
	vm.def(ic, "inspect", host.Fixed(0), intToS)
	vm.def(ic, "to_i", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return self, nil
	})
	vm.def(ic, "hash", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return self, nil
	})
	vm.def(ic, "succ", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		n, _ := vm.Int(self)
		return vm.NewInt(n + 1), nil
	})
	vm.def(ic, "times", host.Fixed(0), func(self host.Value, _ []host.Value, block host.Value) (host.Value, error) {
		n, _ := vm.Int(self)
		for i := int64(0); i < n; i++ {
			if _, err := vm.Yield(block, vm.NewInt(i)); err != nil {
				return host.Nil, err
			}
		}
		return self, nil
	})

	fc := vm.cFloat
	floatToS := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		f, _ := vm.Float(self)
		return vm.NewString(FormatFloat(f)), nil
	}
	vm.def(fc, "to_s", host.Fixed(0), floatToS)
	vm.def(fc, "inspect", host.Fixed(0), floatToS)
	vm.def(fc, "hash", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		f, _ := vm.Float(self)
		return vm.NewInt(int64(math.Float64bits(f))), nil
	})
	rounding := func(name string, fn func(float64) float64) {
		vm.def(fc, name, host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
			f, _ := vm.Float(self)
			r := fn(f)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return host.Nil, vm.raise(host.RangeError, "%s out of range of integer", FormatFloat(f))
			}
			return vm.NewInt(int64(r)), nil
		})
	}
	rounding("to_i", math.Trunc)
	rounding("floor", math.Floor)
	rounding("ceil", math.Ceil)
	rounding("round", math.Round)
}

// -----------------------------------------------------------------------------
// String and Symbol
// -----------------------------------------------------------------------------

func (vm *VM) defineString() {
	c := vm.cString
	str := func(v host.Value) string { s, _ := vm.Str(v); return s }
	vm.def(c, "initialize", host.Arity{Optional: 1}, func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		if len(args) == 1 {
			s, ok := vm.Str(args[0])
			if !ok {
				return host.Nil, vm.raise(host.TypeError, "no implicit conversion of %s into String", vm.ClassName(vm.ClassOf(args[0])))
			}
			vm.get(self).s = s
		}
		return host.Nil, nil
	})
	vm.def(c, "to_s", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return self, nil
	})
	vm.def(c, "inspect", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(strconv.Quote(str(self))), nil
	})
	vm.def(c, "to_sym", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewSymbol(str(self)), nil
	})
	vm.def(c, "to_i", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		n, _ := strconv.ParseInt(strings.TrimSpace(str(self)), 10, 64)
		return vm.NewInt(n), nil
	})
	length := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewInt(int64(len([]rune(str(self))))), nil
	}
	vm.def(c, "size", host.Fixed(0), length)
	vm.def(c, "length", host.Fixed(0), length)
	vm.def(c, "empty?", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(str(self) == ""), nil
	})
	vm.def(c, "upcase", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(strings.ToUpper(str(self))), nil
	})
	vm.def(c, "downcase", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(strings.ToLower(str(self))), nil
	})
	vm.def(c, "+", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		o, ok := vm.Str(args[0])
		if !ok {
			return host.Nil, vm.raise(host.TypeError, "no implicit conversion of %s into String", vm.ClassName(vm.ClassOf(args[0])))
		}
		return vm.NewString(str(self) + o), nil
	})
	vm.def(c, "*", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		n, ok := vm.Int(args[0])
		if !ok {
			return host.Nil, vm.raise(host.TypeError, "no implicit conversion of %s into Integer", vm.ClassName(vm.ClassOf(args[0])))
		}
		if n < 0 {
			return host.Nil, vm.raise(host.ArgumentError, "negative argument")
		}
		return vm.NewString(strings.Repeat(str(self), int(n))), nil
	})
	vm.def(c, "<=>", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		o, ok := vm.Str(args[0])
		if !ok {
			return host.Nil, nil
		}
		return vm.NewInt(int64(strings.Compare(str(self), o))), nil
	})
	eq := func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		o, ok := vm.Str(args[0])
		return host.Bool(ok && o == str(self)), nil
	}
	vm.def(c, "==", host.Fixed(1), eq)
	vm.def(c, "eql?", host.Fixed(1), eq)
	vm.def(c, "hash", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewInt(stringHash(str(self))), nil
	})

	s := vm.cSymbol
	sym := func(v host.Value) string { n, _ := vm.Symbol(v); return n }
	vm.def(s, "to_s", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(sym(self)), nil
	})
	vm.def(s, "to_sym", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return self, nil
	})
	vm.def(s, "inspect", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString(":" + sym(self)), nil
	})
	vm.def(s, "<=>", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		o, ok := vm.Symbol(args[0])
		if !ok {
			return host.Nil, nil
		}
		return vm.NewInt(int64(strings.Compare(sym(self), o))), nil
	})
}

// stringHash is FNV-1a.
func stringHash(s string) int64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return int64(h)
}

// -----------------------------------------------------------------------------
// Array and Hash
// -----------------------------------------------------------------------------

func (vm *VM) defineArray() {
	c := vm.cArray
	items := func(v host.Value) []host.Value { return vm.get(v).items }
	length := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewInt(int64(len(items(self)))), nil
	}
	vm.def(c, "size", host.Fixed(0), length)
	vm.def(c, "length", host.Fixed(0), length)
	vm.def(c, "empty?", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(len(items(self)) == 0), nil
	})
	vm.def(c, "[]", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		i, ok := vm.Int(args[0])
		if !ok {
			return host.Nil, vm.raise(host.TypeError, "no implicit conversion of %s into Integer", vm.ClassName(vm.ClassOf(args[0])))
		}
		its := items(self)
		if i < 0 {
			i += int64(len(its))
		}
		if i < 0 || i >= int64(len(its)) {
			return host.Nil, nil
		}
		return its[i], nil
	})
	vm.def(c, "first", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		if its := items(self); len(its) > 0 {
			return its[0], nil
		}
		return host.Nil, nil
	})
	vm.def(c, "last", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		if its := items(self); len(its) > 0 {
			return its[len(its)-1], nil
		}
		return host.Nil, nil
	})
	vm.def(c, "each", host.Fixed(0), func(self host.Value, _ []host.Value, block host.Value) (host.Value, error) {
		for _, it := range vm.get(self).items {
			if _, err := vm.Yield(block, it); err != nil {
				return host.Nil, err
			}
		}
		return self, nil
	})
	vm.def(c, "map", host.Fixed(0), func(self host.Value, _ []host.Value, block host.Value) (host.Value, error) {
		src := items(self)
		out := make([]host.Value, 0, len(src))
		for _, it := range src {
			r, err := vm.Yield(block, it)
			if err != nil {
				return host.Nil, err
			}
			out = append(out, r)
		}
		return vm.NewArray(out...), nil
	})
	vm.def(c, "push", host.Variadic(0), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		o := vm.get(self)
		o.items = append(o.items, args...)
		return self, nil
	})
	vm.def(c, "<<", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return self, vm.ArrayPush(self, args[0])
	})
	vm.def(c, "to_a", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return self, nil
	})
	inspect := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewString("[" + vm.inspectAll(items(self)) + "]"), nil
	}
	vm.def(c, "inspect", host.Fixed(0), inspect)
	vm.def(c, "to_s", host.Fixed(0), inspect)
	vm.def(c, "join", host.Arity{Optional: 1}, func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		sep := ""
		if len(args) == 1 {
			sep, _ = vm.Str(args[0])
		}
		its := items(self)
		parts := make([]string, len(its))
		for i, it := range its {
			parts[i] = vm.ToS(it)
		}
		return vm.NewString(strings.Join(parts, sep)), nil
	})
	vm.def(c, "==", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		other, ok := vm.ArrayItems(args[0])
		its := items(self)
		if !ok || len(other) != len(its) {
			return host.False, nil
		}
		for i := range its {
			r, err := vm.Call(its[i], "==", []host.Value{other[i]}, host.Nil)
			if err != nil {
				return host.Nil, err
			}
			if !vm.Truthy(r) {
				return host.False, nil
			}
		}
		return host.True, nil
	})
	vm.def(c, "include?", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		for _, it := range items(self) {
			r, err := vm.Call(it, "==", args, host.Nil)
			if err != nil {
				return host.Nil, err
			}
			if vm.Truthy(r) {
				return host.True, nil
			}
		}
		return host.False, nil
	})
}

func (vm *VM) defineHash() {
	c := vm.cHash
	tbl := func(v host.Value) *hashTable { return vm.get(v).hash }
	vm.def(c, "[]", host.Fixed(1), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		v, _, err := vm.HashGet(self, args[0])
		return v, err
	})
	vm.def(c, "[]=", host.Fixed(2), func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return args[1], vm.HashSet(self, args[0], args[1])
	})
	length := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewInt(int64(vm.HashLen(self))), nil
	}
	vm.def(c, "size", host.Fixed(0), length)
	vm.def(c, "length", host.Fixed(0), length)
	vm.def(c, "keys", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewArray(tbl(self).keys...), nil
	})
	vm.def(c, "values", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return vm.NewArray(tbl(self).vals...), nil
	})
	vm.def(c, "each", host.Fixed(0), func(self host.Value, _ []host.Value, block host.Value) (host.Value, error) {
		t := tbl(self)
		keys := append([]host.Value(nil), t.keys...)
		vals := append([]host.Value(nil), t.vals...)
		for i := range keys {
			if _, err := vm.Yield(block, keys[i], vals[i]); err != nil {
				return host.Nil, err
			}
		}
		return self, nil
	})
	hasKey := func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		_, ok, err := vm.HashGet(self, args[0])
		return host.Bool(ok), err
	}
	vm.def(c, "key?", host.Fixed(1), hasKey)
	vm.def(c, "has_key?", host.Fixed(1), hasKey)
	vm.def(c, "include?", host.Fixed(1), hasKey)
	inspect := func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		t := tbl(self)
		if len(t.keys) == 0 {
			return vm.NewString("{}"), nil
		}
		parts := make([]string, len(t.keys))
		for i := range t.keys {
			parts[i] = vm.Inspect(t.keys[i]) + " => " + vm.Inspect(t.vals[i])
		}
		return vm.NewString("{" + strings.Join(parts, ", ") + "}"), nil
	}
	vm.def(c, "inspect", host.Fixed(0), inspect)
	vm.def(c, "to_s", host.Fixed(0), inspect)
}

// -----------------------------------------------------------------------------
// nil, true, false, Proc
// -----------------------------------------------------------------------------

func (vm *VM) defineSingletons() {
	constant := func(class host.Value, name string, v func() host.Value) {
		vm.def(class, name, host.Fixed(0), func(host.Value, []host.Value, host.Value) (host.Value, error) {
			return v(), nil
		})
	}
	n := vm.cNilClass
	constant(n, "to_s", func() host.Value { return vm.NewString("") })
	constant(n, "inspect", func() host.Value { return vm.NewString("nil") })
	constant(n, "to_a", func() host.Value { return vm.NewArray() })
	constant(n, "hash", func() host.Value { return vm.NewInt(0) })

	for _, b := range []struct {
		class host.Value
		name  string
	}{{vm.cTrueClass, "true"}, {vm.cFalseClass, "false"}} {
		name := b.name
		constant(b.class, "to_s", func() host.Value { return vm.NewString(name) })
		constant(b.class, "inspect", func() host.Value { return vm.NewString(name) })
	}
	vm.def(vm.cTrueClass, "&", host.Fixed(1), func(_ host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(vm.Truthy(args[0])), nil
	})
	vm.def(vm.cFalseClass, "|", host.Fixed(1), func(_ host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return host.Bool(vm.Truthy(args[0])), nil
	})

	p := vm.cProc
	call := func(self host.Value, args []host.Value, _ host.Value) (host.Value, error) {
		return vm.Yield(self, args...)
	}
	vm.def(p, "call", host.Variadic(0), call)
	vm.def(p, "yield", host.Variadic(0), call)
	vm.def(p, "to_proc", host.Fixed(0), func(self host.Value, _ []host.Value, _ host.Value) (host.Value, error) {
		return self, nil
	})
}

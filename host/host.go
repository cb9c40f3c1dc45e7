// Package host defines the boundary between native Go code and a
// dynamically-typed host runtime.
//
// Everything the binding core needs from the host, and nothing more, is
// expressed by the [Runtime] interface: creating classes and modules,
// installing methods, reading and writing constants, raising errors,
// yielding to blocks, and storing Go payloads inside host objects. Host
// values are opaque [Value] handles owned by the runtime.
//
// The vm package provides an in-process implementation used by tests and
// by the tether command.
package host

import (
	"fmt"
	"strconv"
)

// Value is an opaque handle to a host-runtime value.
//
// Handles are only meaningful to the runtime that produced them. The three
// immediates below are shared by every runtime.
type Value uintptr

const (
	// Nil is the host's null value.
	Nil Value = 0
	// False is the host's false value.
	False Value = 1
	// True is the host's true value.
	True Value = 2
)

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Kind classifies a host value without calling into user-defined methods.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSymbol
	KindArray
	KindHash
	KindProc
	KindClass
	KindModule
	KindObject
	KindData
)

var kindNames = [...]string{
	KindNil:    "nil",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindSymbol: "symbol",
	KindArray:  "array",
	KindHash:   "hash",
	KindProc:   "proc",
	KindClass:  "class",
	KindModule: "module",
	KindObject: "object",
	KindData:   "data",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Func is the host calling convention for installed methods.
//
// The host passes the receiver, the positional arguments and the block (or
// Nil). It does not pass any state captured at definition time, which is
// why the dispatch layer keeps its own side table keyed by the current
// frame.
type Func func(rt Runtime, self Value, args []Value, block Value) (Value, error)

// Arity describes how many positional arguments a method accepts.
//
// A method accepts between Required and Required+Optional arguments, or
// any number at least Required when Rest is set.
type Arity struct {
	Required int
	Optional int
	Rest     bool
}

// Fixed returns an arity accepting exactly n arguments.
func Fixed(n int) Arity { return Arity{Required: n} }

// Variadic returns an arity accepting required or more arguments.
func Variadic(required int) Arity { return Arity{Required: required, Rest: true} }

// Accepts reports whether n positional arguments satisfy a.
func (a Arity) Accepts(n int) bool {
	if n < a.Required {
		return false
	}
	return a.Rest || n <= a.Required+a.Optional
}

// String renders the arity the way host error messages show it:
// "2", "1..3" or "1+".
func (a Arity) String() string {
	switch {
	case a.Rest:
		return strconv.Itoa(a.Required) + "+"
	case a.Optional > 0:
		return fmt.Sprintf("%d..%d", a.Required, a.Required+a.Optional)
	default:
		return strconv.Itoa(a.Required)
	}
}

// Frame identifies the method currently executing.
//
// Class is the class or module that owns the method definition (for
// singleton methods, the singleton class), not the receiver's class.
type Frame struct {
	Class  Value
	Method string
	Self   Value
	Block  Value
}

// Marker is handed to DataType.Mark during a collection so native payloads
// can report the host values they hold.
type Marker interface {
	Mark(v Value)
}

// DataType describes how the host collector treats a native payload.
type DataType struct {
	// Name is used in diagnostics.
	Name string
	// Free is called once when the collector reclaims an object whose
	// payload is non-nil.
	Free func(payload any)
	// Mark is called during the mark phase.
	Mark func(payload any, m Marker)
}

// Runtime is the complete set of host primitives the binding core uses.
type Runtime interface {
	ObjectModel
	Values
	Data
}

// ObjectModel covers classes, modules, constants, calls and errors.
type ObjectModel interface {
	// ObjectClass returns the root class, also the top-level namespace.
	ObjectClass() Value
	// DefineClass creates (or reopens) the class name under the module
	// under. A Nil parent means the root class; a Nil under means the
	// top level.
	DefineClass(name string, parent, under Value) (Value, error)
	// DefineModule creates (or reopens) a module.
	DefineModule(name string, under Value) (Value, error)
	IncludeModule(class, module Value) error
	// SingletonClass returns the singleton class of v, creating it.
	SingletonClass(v Value) (Value, error)
	DefineMethod(class Value, name string, fn Func, arity Arity) error
	// DefineAlloc sets the allocator used by new for class and its
	// subclasses.
	DefineAlloc(class Value, alloc func(rt Runtime, class Value) (Value, error)) error

	ConstGet(module Value, name string) (Value, bool)
	ConstSet(module Value, name string, v Value) error
	IvarGet(obj Value, name string) Value
	IvarSet(obj Value, name string, v Value) error

	ClassOf(v Value) Value
	Superclass(class Value) Value
	IsKindOf(v, class Value) bool
	ClassName(class Value) string
	RespondTo(v Value, name string) bool

	Call(recv Value, name string, args []Value, block Value) (Value, error)
	CurrentFrame() (Frame, bool)
	// Yield invokes block with args. A Nil block is an error.
	Yield(block Value, args ...Value) (Value, error)

	// ErrorClass returns the host class used for kind.
	ErrorClass(kind ErrorKind) Value
	// Raise builds the host error signal. Callers return it.
	Raise(class Value, format string, args ...any) error

	// Pin keeps v alive across collections until a matching Unpin.
	Pin(v Value)
	Unpin(v Value)
}

// Values covers builtin value construction and inspection.
type Values interface {
	KindOf(v Value) Kind
	Truthy(v Value) bool

	NewInt(n int64) Value
	NewFloat(f float64) Value
	NewString(s string) Value
	NewSymbol(name string) Value
	NewArray(items ...Value) Value
	NewHash() Value
	// NewProc builds a block backed by a Go function.
	NewProc(fn func(args []Value) (Value, error)) Value

	Int(v Value) (int64, bool)
	Float(v Value) (float64, bool)
	Str(v Value) (string, bool)
	Symbol(v Value) (string, bool)
	ArrayItems(v Value) ([]Value, bool)
	ArrayPush(array, v Value) error
	HashSet(hash, key, v Value) error
	HashGet(hash, key Value) (Value, bool, error)
	HashEach(hash Value, fn func(key, v Value) bool) error
	HashLen(hash Value) int
}

// Data covers host objects carrying native payloads.
type Data interface {
	WrapData(class Value, payload any, dt *DataType) (Value, error)
	// DataPayload reports the payload and data type of a data object.
	// ok is false when v is not a data object.
	DataPayload(v Value) (payload any, dt *DataType, ok bool)
	SetDataPayload(v Value, payload any) error
}

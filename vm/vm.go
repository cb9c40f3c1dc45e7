// Package vm is an in-process host runtime implementing [host.Runtime].
//
// It provides just enough of a dynamic object model to drive the binding
// layer end to end: classes with single inheritance and included modules,
// singleton classes, constants, instance variables, method tables, call
// frames, blocks, and a mark/sweep collector that honours
// [host.DataType] callbacks. It has no parser. Values are built and
// methods are called from Go.
//
//	rt := vm.New()
//	defer rt.Close()
//	v, err := rt.Call(rt.NewInt(20), "+", []host.Value{rt.NewInt(22)}, host.Nil)
//
// A VM is not safe for concurrent use from multiple goroutines.
package vm

import (
	"fmt"
	"strings"

	"github.com/feather-lang/tether/host"
)

// DefaultMaxDepth is the call depth at which Call fails with
// "stack level too deep".
const DefaultMaxDepth = 1024

// firstHandle is the first handle handed out for heap objects. Handles
// below it are reserved for immediates.
const firstHandle host.Value = 16

// VM is a host runtime instance.
type VM struct {
	objects map[host.Value]*object
	nextID  host.Value
	symbols map[string]host.Value
	frames  []host.Frame
	pinned  map[host.Value]int

	maxDepth int

	cObject     host.Value
	cModule     host.Value
	cClass      host.Value
	cComparable host.Value
	cNilClass   host.Value
	cTrueClass  host.Value
	cFalseClass host.Value
	cNumeric    host.Value
	cInteger    host.Value
	cFloat      host.Value
	cString     host.Value
	cSymbol     host.Value
	cArray      host.Value
	cHash       host.Value
	cProc       host.Value
	cException  host.Value
	errClasses  map[host.ErrorKind]host.Value
}

// Ensure VM implements host.Runtime.
var _ host.Runtime = (*VM)(nil)

// Option configures a VM.
type Option func(*VM)

// WithMaxDepth sets the maximum call depth. Values <= 0 keep the default.
func WithMaxDepth(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.maxDepth = n
		}
	}
}

// New creates a runtime with the core classes bootstrapped.
func New(opts ...Option) *VM {
	vm := &VM{
		objects:    make(map[host.Value]*object),
		nextID:     firstHandle,
		symbols:    make(map[string]host.Value),
		pinned:     make(map[host.Value]int),
		maxDepth:   DefaultMaxDepth,
		errClasses: make(map[host.ErrorKind]host.Value),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.bootstrap()
	return vm
}

// Close reclaims every object, running the Free callback of each live
// native payload. The VM must not be used afterwards.
func (vm *VM) Close() {
	var frees []func()
	for id, o := range vm.objects {
		if f := o.freeFunc(); f != nil {
			frees = append(frees, f)
		}
		delete(vm.objects, id)
	}
	for _, f := range frees {
		f()
	}
	vm.frames = nil
}

// Live returns the number of heap objects currently allocated.
func (vm *VM) Live() int { return len(vm.objects) }

// -----------------------------------------------------------------------------
// Allocation
// -----------------------------------------------------------------------------

func (vm *VM) alloc(o *object) host.Value {
	id := vm.nextID
	vm.nextID++
	vm.objects[id] = o
	return id
}

func (vm *VM) get(v host.Value) *object {
	return vm.objects[v]
}

// mod returns the class/module record for v, or nil.
func (vm *VM) mod(v host.Value) *module {
	if o := vm.get(v); o != nil {
		return o.mod
	}
	return nil
}

func (vm *VM) newModule(name string, kind host.Kind, super, under host.Value) host.Value {
	m := &module{
		name:    name,
		isClass: kind == host.KindClass,
		super:   super,
		methods: make(map[string]*method),
		consts:  make(map[string]host.Value),
	}
	if under != host.Nil && under != vm.cObject {
		if um := vm.mod(under); um != nil {
			m.name = um.name + "::" + name
		}
	}
	return vm.alloc(&object{kind: kind, permanent: true, mod: m})
}

// -----------------------------------------------------------------------------
// Bootstrap
// -----------------------------------------------------------------------------

func (vm *VM) bootstrap() {
	vm.cObject = vm.newModule("Object", host.KindClass, host.Nil, host.Nil)
	vm.cModule = vm.newModule("Module", host.KindClass, vm.cObject, host.Nil)
	vm.cClass = vm.newModule("Class", host.KindClass, vm.cModule, host.Nil)
	for name, c := range map[string]host.Value{"Object": vm.cObject, "Module": vm.cModule, "Class": vm.cClass} {
		vm.setConst(vm.cObject, name, c)
	}

	vm.cComparable = vm.mustModule("Comparable")
	vm.cNilClass = vm.mustClass("NilClass", vm.cObject)
	vm.cTrueClass = vm.mustClass("TrueClass", vm.cObject)
	vm.cFalseClass = vm.mustClass("FalseClass", vm.cObject)
	vm.cNumeric = vm.mustClass("Numeric", vm.cObject)
	vm.cInteger = vm.mustClass("Integer", vm.cNumeric)
	vm.cFloat = vm.mustClass("Float", vm.cNumeric)
	vm.cString = vm.mustClass("String", vm.cObject)
	vm.cSymbol = vm.mustClass("Symbol", vm.cObject)
	vm.cArray = vm.mustClass("Array", vm.cObject)
	vm.cHash = vm.mustClass("Hash", vm.cObject)
	vm.cProc = vm.mustClass("Proc", vm.cObject)
	vm.cException = vm.mustClass("Exception", vm.cObject)

	for _, kind := range host.ErrorKinds {
		parent := vm.cException
		if p, ok := kind.Parent(); ok {
			parent = vm.errClasses[p]
		}
		vm.errClasses[kind] = vm.mustClass(kind.String(), parent)
	}

	for _, c := range []host.Value{vm.cNumeric, vm.cString} {
		vm.mod(c).includes = append(vm.mod(c).includes, vm.cComparable)
	}

	vm.defineBuiltins()
}

func (vm *VM) mustClass(name string, parent host.Value) host.Value {
	c, err := vm.DefineClass(name, parent, host.Nil)
	if err != nil {
		panic(fmt.Sprintf("vm: bootstrap class %s: %v", name, err))
	}
	return c
}

func (vm *VM) mustModule(name string) host.Value {
	m, err := vm.DefineModule(name, host.Nil)
	if err != nil {
		panic(fmt.Sprintf("vm: bootstrap module %s: %v", name, err))
	}
	return m
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrorClass implements host.ObjectModel.
func (vm *VM) ErrorClass(kind host.ErrorKind) host.Value {
	if c, ok := vm.errClasses[kind]; ok {
		return c
	}
	return vm.errClasses[host.RuntimeError]
}

// Raise implements host.ObjectModel.
func (vm *VM) Raise(class host.Value, format string, args ...any) error {
	if vm.KindOf(class) != host.KindClass {
		class = vm.ErrorClass(host.RuntimeError)
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &host.Exception{Class: class, ClassName: vm.ClassName(class), Message: msg}
}

func (vm *VM) raise(kind host.ErrorKind, format string, args ...any) error {
	return vm.Raise(vm.ErrorClass(kind), format, args...)
}

// -----------------------------------------------------------------------------
// Inspection
// -----------------------------------------------------------------------------

// Inspect returns the host's inspect string for v. Errors raised by a
// user-defined inspect fall back to a generic rendering.
func (vm *VM) Inspect(v host.Value) string {
	r, err := vm.Call(v, "inspect", nil, host.Nil)
	if err == nil {
		if s, ok := vm.Str(r); ok {
			return s
		}
	}
	return vm.defaultInspect(v)
}

func (vm *VM) defaultInspect(v host.Value) string {
	switch vm.KindOf(v) {
	case host.KindClass, host.KindModule:
		return vm.ClassName(v)
	default:
		return "#<" + vm.ClassName(vm.ClassOf(v)) + ">"
	}
}

// ToS returns the host's to_s string for v.
func (vm *VM) ToS(v host.Value) string {
	r, err := vm.Call(v, "to_s", nil, host.Nil)
	if err == nil {
		if s, ok := vm.Str(r); ok {
			return s
		}
	}
	return vm.defaultInspect(v)
}

func (vm *VM) inspectAll(items []host.Value) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = vm.Inspect(it)
	}
	return strings.Join(parts, ", ")
}

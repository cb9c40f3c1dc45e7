package vm

import (
	"unicode"

	"github.com/feather-lang/tether/host"
)

// ObjectClass implements host.ObjectModel.
func (vm *VM) ObjectClass() host.Value { return vm.cObject }

// Class returns a builtin class by name, e.g. "Integer" or "Comparable".
func (vm *VM) Class(name string) (host.Value, bool) {
	return vm.ConstGet(vm.cObject, name)
}

func (vm *VM) namespace(under host.Value) (host.Value, error) {
	if under == host.Nil {
		return vm.cObject, nil
	}
	switch vm.KindOf(under) {
	case host.KindClass, host.KindModule:
		return under, nil
	}
	return host.Nil, vm.raise(host.TypeError, "%s is not a class/module", vm.defaultInspect(under))
}

// DefineClass implements host.ObjectModel. Defining an existing class
// reopens it; a different explicit parent is a superclass mismatch.
func (vm *VM) DefineClass(name string, parent, under host.Value) (host.Value, error) {
	ns, err := vm.namespace(under)
	if err != nil {
		return host.Nil, err
	}
	if !validConstName(name) {
		return host.Nil, vm.raise(host.NameError, "wrong constant name %s", name)
	}
	if parent != host.Nil && vm.KindOf(parent) != host.KindClass {
		return host.Nil, vm.raise(host.TypeError, "superclass must be a Class (%s given)", vm.defaultInspect(parent))
	}
	if existing, ok := vm.mod(ns).consts[name]; ok {
		if vm.KindOf(existing) != host.KindClass {
			return host.Nil, vm.raise(host.TypeError, "%s is not a class", name)
		}
		if parent != host.Nil && vm.mod(existing).super != parent {
			return host.Nil, vm.raise(host.TypeError, "superclass mismatch for class %s", name)
		}
		return existing, nil
	}
	if parent == host.Nil {
		parent = vm.cObject
	}
	c := vm.newModule(name, host.KindClass, parent, ns)
	vm.setConst(ns, name, c)
	return c, nil
}

// DefineModule implements host.ObjectModel.
func (vm *VM) DefineModule(name string, under host.Value) (host.Value, error) {
	ns, err := vm.namespace(under)
	if err != nil {
		return host.Nil, err
	}
	if !validConstName(name) {
		return host.Nil, vm.raise(host.NameError, "wrong constant name %s", name)
	}
	if existing, ok := vm.mod(ns).consts[name]; ok {
		if vm.KindOf(existing) != host.KindModule {
			return host.Nil, vm.raise(host.TypeError, "%s is not a module", name)
		}
		return existing, nil
	}
	m := vm.newModule(name, host.KindModule, host.Nil, ns)
	vm.setConst(ns, name, m)
	return m, nil
}

// IncludeModule implements host.ObjectModel.
func (vm *VM) IncludeModule(class, module host.Value) error {
	cm := vm.mod(class)
	if cm == nil {
		return vm.raise(host.TypeError, "%s is not a class/module", vm.defaultInspect(class))
	}
	if vm.KindOf(module) != host.KindModule {
		return vm.raise(host.TypeError, "wrong argument type %s (expected Module)", vm.defaultInspect(module))
	}
	for _, m := range cm.includes {
		if m == module {
			return nil
		}
	}
	cm.includes = append(cm.includes, module)
	return nil
}

// SingletonClass implements host.ObjectModel.
func (vm *VM) SingletonClass(v host.Value) (host.Value, error) {
	o := vm.get(v)
	if o == nil {
		return host.Nil, vm.raise(host.TypeError, "can't define singleton for %s", vm.defaultInspect(v))
	}
	switch o.kind {
	case host.KindInt, host.KindFloat, host.KindSymbol:
		return host.Nil, vm.raise(host.TypeError, "can't define singleton")
	}
	if o.singleton != host.Nil {
		return o.singleton, nil
	}
	var super host.Value
	var name string
	switch o.kind {
	case host.KindClass:
		name = "#<Class:" + o.mod.name + ">"
		if o.mod.attached != host.Nil {
			super = vm.cClass
		} else if o.mod.super != host.Nil {
			s, err := vm.SingletonClass(o.mod.super)
			if err != nil {
				return host.Nil, err
			}
			super = s
		} else {
			super = vm.cClass
		}
	case host.KindModule:
		name = "#<Class:" + o.mod.name + ">"
		super = vm.cModule
	default:
		name = "#<Class:" + vm.defaultInspect(v) + ">"
		super = o.class
	}
	sc := vm.newModule(name, host.KindClass, super, host.Nil)
	vm.mod(sc).attached = v
	o.singleton = sc
	return sc, nil
}

// DefineMethod implements host.ObjectModel.
func (vm *VM) DefineMethod(class host.Value, name string, fn host.Func, arity host.Arity) error {
	m := vm.mod(class)
	if m == nil {
		return vm.raise(host.TypeError, "%s is not a class/module", vm.defaultInspect(class))
	}
	if name == "" {
		return vm.raise(host.NameError, "empty method name")
	}
	m.methods[name] = &method{name: name, fn: fn, arity: arity}
	return nil
}

// DefineAlloc implements host.ObjectModel.
func (vm *VM) DefineAlloc(class host.Value, alloc func(rt host.Runtime, class host.Value) (host.Value, error)) error {
	if vm.KindOf(class) != host.KindClass {
		return vm.raise(host.TypeError, "%s is not a class", vm.defaultInspect(class))
	}
	vm.mod(class).alloc = alloc
	return nil
}

func (vm *VM) allocatorFor(class host.Value) func(rt host.Runtime, class host.Value) (host.Value, error) {
	for c := class; c != host.Nil; c = vm.mod(c).super {
		if a := vm.mod(c).alloc; a != nil {
			return a
		}
	}
	return func(_ host.Runtime, class host.Value) (host.Value, error) {
		return vm.newObject(class), nil
	}
}

// -----------------------------------------------------------------------------
// Constants and instance variables
// -----------------------------------------------------------------------------

func validConstName(name string) bool {
	for i, r := range name {
		if i == 0 && !unicode.IsUpper(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return name != ""
}

func (vm *VM) setConst(ns host.Value, name string, v host.Value) {
	m := vm.mod(ns)
	if _, exists := m.consts[name]; !exists {
		m.constOrder = append(m.constOrder, name)
	}
	m.consts[name] = v
}

// ConstGet implements host.ObjectModel. Lookup searches module, then its
// ancestors, then the top level.
func (vm *VM) ConstGet(module host.Value, name string) (host.Value, bool) {
	if module == host.Nil {
		module = vm.cObject
	}
	if vm.mod(module) == nil {
		return host.Nil, false
	}
	for _, a := range vm.ancestors(module) {
		if v, ok := vm.mod(a).consts[name]; ok {
			return v, true
		}
	}
	v, ok := vm.mod(vm.cObject).consts[name]
	return v, ok
}

// ConstSet implements host.ObjectModel.
func (vm *VM) ConstSet(module host.Value, name string, v host.Value) error {
	ns, err := vm.namespace(module)
	if err != nil {
		return err
	}
	if !validConstName(name) {
		return vm.raise(host.NameError, "wrong constant name %s", name)
	}
	vm.setConst(ns, name, v)
	return nil
}

// Constants returns the constant names of module in definition order.
func (vm *VM) Constants(module host.Value) []string {
	m := vm.mod(module)
	if m == nil {
		return nil
	}
	out := make([]string, len(m.constOrder))
	copy(out, m.constOrder)
	return out
}

// IvarGet implements host.ObjectModel.
func (vm *VM) IvarGet(obj host.Value, name string) host.Value {
	if o := vm.get(obj); o != nil && o.ivars != nil {
		return o.ivars[name]
	}
	return host.Nil
}

// IvarSet implements host.ObjectModel.
func (vm *VM) IvarSet(obj host.Value, name string, v host.Value) error {
	o := vm.get(obj)
	if o == nil {
		return vm.raise(host.RuntimeError, "can't modify frozen %s", vm.ClassName(vm.ClassOf(obj)))
	}
	switch o.kind {
	case host.KindInt, host.KindFloat, host.KindSymbol:
		return vm.raise(host.RuntimeError, "can't modify frozen %s", vm.ClassName(o.class))
	}
	if o.ivars == nil {
		o.ivars = make(map[string]host.Value)
	}
	o.ivars[name] = v
	return nil
}

// -----------------------------------------------------------------------------
// Class queries
// -----------------------------------------------------------------------------

// ClassOf implements host.ObjectModel. Singleton classes are skipped.
func (vm *VM) ClassOf(v host.Value) host.Value {
	switch v {
	case host.Nil:
		return vm.cNilClass
	case host.True:
		return vm.cTrueClass
	case host.False:
		return vm.cFalseClass
	}
	o := vm.get(v)
	switch {
	case o == nil:
		return vm.cNilClass
	case o.kind == host.KindClass:
		return vm.cClass
	case o.kind == host.KindModule:
		return vm.cModule
	}
	return o.class
}

// Superclass implements host.ObjectModel.
func (vm *VM) Superclass(class host.Value) host.Value {
	if m := vm.mod(class); m != nil {
		return m.super
	}
	return host.Nil
}

// ClassName implements host.ObjectModel.
func (vm *VM) ClassName(class host.Value) string {
	if m := vm.mod(class); m != nil {
		return m.name
	}
	return ""
}

// IsKindOf implements host.ObjectModel.
func (vm *VM) IsKindOf(v, class host.Value) bool {
	for _, a := range vm.ancestors(vm.lookupStart(v)) {
		if a == class {
			return true
		}
	}
	return false
}

// RespondTo implements host.ObjectModel.
func (vm *VM) RespondTo(v host.Value, name string) bool {
	m, _ := vm.findMethod(v, name)
	return m != nil
}

// lookupStart returns the first class consulted for method lookup on v.
func (vm *VM) lookupStart(v host.Value) host.Value {
	o := vm.get(v)
	if o == nil {
		return vm.ClassOf(v)
	}
	if o.singleton != host.Nil {
		return o.singleton
	}
	if o.kind == host.KindClass {
		// Class methods are inherited through the singleton chain.
		if sc, err := vm.SingletonClass(v); err == nil {
			return sc
		}
	}
	return vm.ClassOf(v)
}

// ancestors returns the method resolution order starting at class:
// each class, then its included modules (last included first), then the
// superclass.
func (vm *VM) ancestors(class host.Value) []host.Value {
	var out []host.Value
	for c := class; c != host.Nil; {
		m := vm.mod(c)
		if m == nil {
			break
		}
		out = append(out, c)
		for i := len(m.includes) - 1; i >= 0; i-- {
			out = append(out, m.includes[i])
		}
		c = m.super
	}
	return out
}

// Ancestors returns the method resolution order of class.
func (vm *VM) Ancestors(class host.Value) []host.Value {
	return vm.ancestors(class)
}

func (vm *VM) findMethod(recv host.Value, name string) (*method, host.Value) {
	for _, a := range vm.ancestors(vm.lookupStart(recv)) {
		if m, ok := vm.mod(a).methods[name]; ok {
			return m, a
		}
	}
	return nil, host.Nil
}

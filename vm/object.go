package vm

import "github.com/feather-lang/tether/host"

// object is the heap representation of every non-immediate value.
type object struct {
	kind      host.Kind
	class     host.Value // real class; unused for classes and modules
	singleton host.Value // lazily created singleton class
	permanent bool       // never collected (classes, modules, symbols)

	i     int64
	f     float64
	s     string
	items []host.Value
	hash  *hashTable
	ivars map[string]host.Value
	mod   *module
	proc  func(args []host.Value) (host.Value, error)

	payload any
	dt      *host.DataType
}

// freeFunc returns the pending Free callback for a data object, or nil.
func (o *object) freeFunc() func() {
	if o.kind != host.KindData || o.payload == nil || o.dt == nil || o.dt.Free == nil {
		return nil
	}
	free, payload := o.dt.Free, o.payload
	return func() { free(payload) }
}

// module is the record shared by classes, modules and singleton classes.
type module struct {
	name       string
	isClass    bool
	super      host.Value
	includes   []host.Value
	methods    map[string]*method
	consts     map[string]host.Value
	constOrder []string
	attached   host.Value // for singleton classes, the owning object
	alloc      func(rt host.Runtime, class host.Value) (host.Value, error)
}

type method struct {
	name  string
	fn    host.Func
	arity host.Arity
}

// -----------------------------------------------------------------------------
// Values
// -----------------------------------------------------------------------------

// KindOf implements host.Values.
func (vm *VM) KindOf(v host.Value) host.Kind {
	switch v {
	case host.Nil:
		return host.KindNil
	case host.True, host.False:
		return host.KindBool
	}
	if o := vm.get(v); o != nil {
		return o.kind
	}
	return host.KindNil
}

// Truthy implements host.Values.
func (vm *VM) Truthy(v host.Value) bool {
	return v != host.Nil && v != host.False
}

// NewInt implements host.Values.
func (vm *VM) NewInt(n int64) host.Value {
	return vm.alloc(&object{kind: host.KindInt, class: vm.cInteger, i: n})
}

// NewFloat implements host.Values.
func (vm *VM) NewFloat(f float64) host.Value {
	return vm.alloc(&object{kind: host.KindFloat, class: vm.cFloat, f: f})
}

// NewString implements host.Values.
func (vm *VM) NewString(s string) host.Value {
	return vm.alloc(&object{kind: host.KindString, class: vm.cString, s: s})
}

// NewSymbol implements host.Values. Symbols are interned and permanent.
func (vm *VM) NewSymbol(name string) host.Value {
	if v, ok := vm.symbols[name]; ok {
		return v
	}
	v := vm.alloc(&object{kind: host.KindSymbol, class: vm.cSymbol, s: name, permanent: true})
	vm.symbols[name] = v
	return v
}

// NewArray implements host.Values.
func (vm *VM) NewArray(items ...host.Value) host.Value {
	cp := make([]host.Value, len(items))
	copy(cp, items)
	return vm.alloc(&object{kind: host.KindArray, class: vm.cArray, items: cp})
}

// NewHash implements host.Values.
func (vm *VM) NewHash() host.Value {
	return vm.alloc(&object{kind: host.KindHash, class: vm.cHash, hash: newHashTable()})
}

// NewProc implements host.Values.
func (vm *VM) NewProc(fn func(args []host.Value) (host.Value, error)) host.Value {
	return vm.alloc(&object{kind: host.KindProc, class: vm.cProc, proc: fn})
}

func (vm *VM) newObject(class host.Value) host.Value {
	return vm.alloc(&object{kind: host.KindObject, class: class})
}

// Int implements host.Values.
func (vm *VM) Int(v host.Value) (int64, bool) {
	if o := vm.get(v); o != nil && o.kind == host.KindInt {
		return o.i, true
	}
	return 0, false
}

// Float implements host.Values.
func (vm *VM) Float(v host.Value) (float64, bool) {
	if o := vm.get(v); o != nil && o.kind == host.KindFloat {
		return o.f, true
	}
	return 0, false
}

// Str implements host.Values.
func (vm *VM) Str(v host.Value) (string, bool) {
	if o := vm.get(v); o != nil && o.kind == host.KindString {
		return o.s, true
	}
	return "", false
}

// Symbol implements host.Values.
func (vm *VM) Symbol(v host.Value) (string, bool) {
	if o := vm.get(v); o != nil && o.kind == host.KindSymbol {
		return o.s, true
	}
	return "", false
}

// ArrayItems implements host.Values. The returned slice is a copy.
func (vm *VM) ArrayItems(v host.Value) ([]host.Value, bool) {
	o := vm.get(v)
	if o == nil || o.kind != host.KindArray {
		return nil, false
	}
	cp := make([]host.Value, len(o.items))
	copy(cp, o.items)
	return cp, true
}

// ArrayPush implements host.Values.
func (vm *VM) ArrayPush(array, v host.Value) error {
	o := vm.get(array)
	if o == nil || o.kind != host.KindArray {
		return vm.raise(host.TypeError, "not an array: %s", vm.defaultInspect(array))
	}
	o.items = append(o.items, v)
	return nil
}

func (vm *VM) hashOf(h host.Value) (*hashTable, error) {
	o := vm.get(h)
	if o == nil || o.kind != host.KindHash {
		return nil, vm.raise(host.TypeError, "not a hash: %s", vm.defaultInspect(h))
	}
	return o.hash, nil
}

// HashSet implements host.Values.
func (vm *VM) HashSet(h, key, v host.Value) error {
	t, err := vm.hashOf(h)
	if err != nil {
		return err
	}
	return t.set(vm, key, v)
}

// HashGet implements host.Values.
func (vm *VM) HashGet(h, key host.Value) (host.Value, bool, error) {
	t, err := vm.hashOf(h)
	if err != nil {
		return host.Nil, false, err
	}
	return t.get(vm, key)
}

// HashEach implements host.Values. Iteration follows insertion order.
func (vm *VM) HashEach(h host.Value, fn func(key, v host.Value) bool) error {
	t, err := vm.hashOf(h)
	if err != nil {
		return err
	}
	for i := range t.keys {
		if !fn(t.keys[i], t.vals[i]) {
			break
		}
	}
	return nil
}

// HashLen implements host.Values.
func (vm *VM) HashLen(h host.Value) int {
	if t, err := vm.hashOf(h); err == nil {
		return len(t.keys)
	}
	return 0
}

// -----------------------------------------------------------------------------
// Data objects
// -----------------------------------------------------------------------------

// WrapData implements host.Data.
func (vm *VM) WrapData(class host.Value, payload any, dt *host.DataType) (host.Value, error) {
	if vm.KindOf(class) != host.KindClass {
		return host.Nil, vm.raise(host.TypeError, "wrap target is not a class: %s", vm.defaultInspect(class))
	}
	return vm.alloc(&object{kind: host.KindData, class: class, payload: payload, dt: dt}), nil
}

// DataPayload implements host.Data.
func (vm *VM) DataPayload(v host.Value) (any, *host.DataType, bool) {
	o := vm.get(v)
	if o == nil || o.kind != host.KindData {
		return nil, nil, false
	}
	return o.payload, o.dt, true
}

// SetDataPayload implements host.Data.
func (vm *VM) SetDataPayload(v host.Value, payload any) error {
	o := vm.get(v)
	if o == nil || o.kind != host.KindData {
		return vm.raise(host.TypeError, "not a data object: %s", vm.defaultInspect(v))
	}
	o.payload = payload
	return nil
}

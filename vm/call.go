package vm

import "github.com/feather-lang/tether/host"

// Call implements host.ObjectModel.
func (vm *VM) Call(recv host.Value, name string, args []host.Value, block host.Value) (host.Value, error) {
	m, owner := vm.findMethod(recv, name)
	if m == nil {
		return host.Nil, vm.raise(host.NoMethodError, "undefined method '%s' for %s", name, vm.describe(recv))
	}
	if !m.arity.Accepts(len(args)) {
		return host.Nil, vm.raise(host.ArgumentError, "wrong number of arguments (given %d, expected %s)", len(args), m.arity)
	}
	if len(vm.frames) >= vm.maxDepth {
		return host.Nil, vm.raise(host.RuntimeError, "stack level too deep")
	}
	vm.frames = append(vm.frames, host.Frame{Class: owner, Method: name, Self: recv, Block: block})
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()
	return m.fn(vm, recv, args, block)
}

// describe renders a receiver for NoMethodError messages.
func (vm *VM) describe(v host.Value) string {
	switch vm.KindOf(v) {
	case host.KindNil:
		return "nil"
	case host.KindBool:
		if v == host.True {
			return "true"
		}
		return "false"
	case host.KindClass:
		return "class " + vm.ClassName(v)
	case host.KindModule:
		return "module " + vm.ClassName(v)
	default:
		return "an instance of " + vm.ClassName(vm.ClassOf(v))
	}
}

// CurrentFrame implements host.ObjectModel.
func (vm *VM) CurrentFrame() (host.Frame, bool) {
	if len(vm.frames) == 0 {
		return host.Frame{}, false
	}
	return vm.frames[len(vm.frames)-1], true
}

// Depth returns the number of active frames.
func (vm *VM) Depth() int { return len(vm.frames) }

// Yield implements host.ObjectModel.
func (vm *VM) Yield(block host.Value, args ...host.Value) (host.Value, error) {
	if block == host.Nil {
		return host.Nil, vm.raise(host.LocalJumpError, "no block given (yield)")
	}
	o := vm.get(block)
	if o == nil || o.kind != host.KindProc {
		return host.Nil, vm.raise(host.TypeError, "wrong argument type %s (expected Proc)", vm.ClassName(vm.ClassOf(block)))
	}
	return o.proc(args)
}

// Pin implements host.ObjectModel.
func (vm *VM) Pin(v host.Value) {
	if vm.get(v) != nil {
		vm.pinned[v]++
	}
}

// Unpin implements host.ObjectModel.
func (vm *VM) Unpin(v host.Value) {
	if n, ok := vm.pinned[v]; ok {
		if n <= 1 {
			delete(vm.pinned, v)
		} else {
			vm.pinned[v] = n - 1
		}
	}
}

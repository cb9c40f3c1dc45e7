package vm

import "github.com/feather-lang/tether/host"

type marker struct {
	vm      *VM
	marked  map[host.Value]bool
	pending []host.Value
}

func (m *marker) Mark(v host.Value) {
	if v < firstHandle || m.marked[v] {
		return
	}
	if m.vm.get(v) == nil {
		return
	}
	m.marked[v] = true
	m.pending = append(m.pending, v)
}

// Collect runs a full mark/sweep collection and returns the number of
// objects reclaimed. Roots are permanent objects, pinned values and the
// receivers, owners and blocks of active frames. Free callbacks run after
// the sweep.
func (vm *VM) Collect() int {
	m := &marker{vm: vm, marked: make(map[host.Value]bool)}
	for id, o := range vm.objects {
		if o.permanent {
			m.Mark(id)
		}
	}
	for v := range vm.pinned {
		m.Mark(v)
	}
	for _, f := range vm.frames {
		m.Mark(f.Class)
		m.Mark(f.Self)
		m.Mark(f.Block)
	}

	for len(m.pending) > 0 {
		v := m.pending[len(m.pending)-1]
		m.pending = m.pending[:len(m.pending)-1]
		vm.traverse(vm.get(v), m)
	}

	var frees []func()
	swept := 0
	for id, o := range vm.objects {
		if m.marked[id] {
			continue
		}
		if f := o.freeFunc(); f != nil {
			frees = append(frees, f)
		}
		delete(vm.objects, id)
		swept++
	}
	for _, f := range frees {
		f()
	}
	return swept
}

func (vm *VM) traverse(o *object, m *marker) {
	m.Mark(o.class)
	m.Mark(o.singleton)
	for _, it := range o.items {
		m.Mark(it)
	}
	if o.hash != nil {
		for i := range o.hash.keys {
			m.Mark(o.hash.keys[i])
			m.Mark(o.hash.vals[i])
		}
	}
	for _, v := range o.ivars {
		m.Mark(v)
	}
	if md := o.mod; md != nil {
		m.Mark(md.super)
		m.Mark(md.attached)
		for _, inc := range md.includes {
			m.Mark(inc)
		}
		for _, c := range md.consts {
			m.Mark(c)
		}
	}
	if o.kind == host.KindData && o.dt != nil && o.dt.Mark != nil && o.payload != nil {
		o.dt.Mark(o.payload, m)
	}
}

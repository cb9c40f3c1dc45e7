package vm

import (
	"math"

	"github.com/feather-lang/tether/host"
)

// hashKey buckets entries. Primitive keys bucket by content; objects
// bucket by the result of their hash method.
type hashKey struct {
	kind host.Kind
	n    int64
	s    string
}

// hashTable is an insertion-ordered hash honouring the hash/eql? protocol.
type hashTable struct {
	keys  []host.Value
	vals  []host.Value
	index map[hashKey][]int
}

func newHashTable() *hashTable {
	return &hashTable{index: make(map[hashKey][]int)}
}

func (vm *VM) keyOf(k host.Value) (hashKey, error) {
	switch kind := vm.KindOf(k); kind {
	case host.KindNil, host.KindBool:
		return hashKey{kind: kind, n: int64(k)}, nil
	case host.KindInt:
		n, _ := vm.Int(k)
		return hashKey{kind: kind, n: n}, nil
	case host.KindFloat:
		f, _ := vm.Float(k)
		return hashKey{kind: kind, n: int64(math.Float64bits(f))}, nil
	case host.KindString, host.KindSymbol:
		return hashKey{kind: kind, s: vm.get(k).s}, nil
	case host.KindClass, host.KindModule:
		return hashKey{kind: kind, n: int64(k)}, nil
	default:
		h, err := vm.Call(k, "hash", nil, host.Nil)
		if err != nil {
			return hashKey{}, err
		}
		n, ok := vm.Int(h)
		if !ok {
			return hashKey{}, vm.raise(host.TypeError, "hash must return an Integer")
		}
		return hashKey{kind: host.KindObject, n: n}, nil
	}
}

// keysEql compares two keys sharing a bucket.
func (vm *VM) keysEql(a, b host.Value) (bool, error) {
	if a == b {
		return true, nil
	}
	switch vm.KindOf(a) {
	case host.KindObject, host.KindData, host.KindArray, host.KindHash, host.KindProc:
		r, err := vm.Call(a, "eql?", []host.Value{b}, host.Nil)
		if err != nil {
			return false, err
		}
		return vm.Truthy(r), nil
	}
	// Primitive keys sharing a bucket are equal by construction.
	return vm.KindOf(a) == vm.KindOf(b), nil
}

func (t *hashTable) find(vm *VM, k host.Value) (hashKey, int, error) {
	hk, err := vm.keyOf(k)
	if err != nil {
		return hk, -1, err
	}
	for _, i := range t.index[hk] {
		eq, err := vm.keysEql(t.keys[i], k)
		if err != nil {
			return hk, -1, err
		}
		if eq {
			return hk, i, nil
		}
	}
	return hk, -1, nil
}

func (t *hashTable) set(vm *VM, k, v host.Value) error {
	hk, i, err := t.find(vm, k)
	if err != nil {
		return err
	}
	if i >= 0 {
		t.vals[i] = v
		return nil
	}
	t.index[hk] = append(t.index[hk], len(t.keys))
	t.keys = append(t.keys, k)
	t.vals = append(t.vals, v)
	return nil
}

func (t *hashTable) get(vm *VM, k host.Value) (host.Value, bool, error) {
	_, i, err := t.find(vm, k)
	if err != nil || i < 0 {
		return host.Nil, false, err
	}
	return t.vals[i], true, nil
}

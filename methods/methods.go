// Package methods stores per-method call metadata keyed by class and
// method name.
//
// The host calls every bound method through one shared entry point and
// passes no captured state, so the entry point recovers (class, name) from
// the current frame and looks its descriptor up here.
package methods

import (
	"sort"
	"sync"

	"github.com/feather-lang/tether/host"
)

// Key identifies a method definition.
type Key struct {
	Class  host.Value
	Method string
}

// Table maps keys to descriptors of type D. It is safe for concurrent use.
type Table[D any] struct {
	mu sync.RWMutex
	m  map[Key]D
}

// New returns an empty table.
func New[D any]() *Table[D] {
	return &Table[D]{m: make(map[Key]D)}
}

// Store records d for (class, method), replacing any previous descriptor.
func (t *Table[D]) Store(class host.Value, method string, d D) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[Key{Class: class, Method: method}] = d
}

// Lookup returns the descriptor for (class, method).
func (t *Table[D]) Lookup(class host.Value, method string) (D, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.m[Key{Class: class, Method: method}]
	return d, ok
}

// Delete removes one descriptor.
func (t *Table[D]) Delete(class host.Value, method string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, Key{Class: class, Method: method})
}

// DeleteClass removes every descriptor of class and returns how many were
// removed.
func (t *Table[D]) DeleteClass(class host.Value) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.m {
		if k.Class == class {
			delete(t.m, k)
			n++
		}
	}
	return n
}

// Methods returns the method names stored for class, sorted.
func (t *Table[D]) Methods(class host.Value) []string {
	t.mu.RLock()
	var names []string
	for k := range t.m {
		if k.Class == class {
			names = append(names, k.Method)
		}
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of descriptors.
func (t *Table[D]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Reset removes every descriptor.
func (t *Table[D]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = make(map[Key]D)
}

// Package registry maps Go types to the host classes that represent them.
//
// A Registry is owned by a tether.Binder. It is populated when classes are
// bound and consulted by every conversion that crosses the boundary with
// a user-defined type.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/rtti"
)

var (
	// ErrNilType is returned when a nil reflect.Type is provided.
	ErrNilType = errors.New("tether(registry): nil reflect.Type provided")
	// ErrConflictingRegistration indicates an attempt to bind a type that
	// is already bound to a different class.
	ErrConflictingRegistration = errors.New("tether(registry): conflicting type registration")
)

// TypeNotRegisteredError reports a lookup on a type with no entry and no
// usable fallback.
type TypeNotRegisteredError struct {
	Type reflect.Type
}

func (e *TypeNotRegisteredError) Error() string {
	return "type is not registered: " + rtti.Name(e.Type)
}

// Entry is a single registration.
type Entry struct {
	// Type is the normalized Go type.
	Type reflect.Type
	// Class is the host class, or host.Nil for a placeholder.
	Class host.Value
	// Data describes how the host collector treats wrapped values.
	Data *host.DataType
}

// Placeholder reports whether e was added without a class.
func (e Entry) Placeholder() bool { return e.Class == host.Nil }

// Registry is a table from type identity to Entry. It is safe for
// concurrent use: registration takes the write lock, lookups share it.
type Registry struct {
	mu      sync.RWMutex
	entries map[rtti.ID]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[rtti.ID]Entry)}
}

// Add registers t without a host class. Adding an already registered type
// is a no-op.
func (r *Registry) Add(t reflect.Type) error {
	return r.AddClass(t, host.Nil, nil)
}

// AddClass registers t as represented by class. Re-registering the same
// class is a no-op and a placeholder is upgraded in place; binding a
// different class fails with ErrConflictingRegistration until the entry
// is removed.
func (r *Registry) AddClass(t reflect.Type, class host.Value, dt *host.DataType) error {
	if t == nil {
		return ErrNilType
	}
	id := rtti.IDOf(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[id]; ok {
		switch {
		case class == host.Nil || old.Class == class:
			if old.Data == nil && dt != nil {
				old.Data = dt
				r.entries[id] = old
			}
			return nil
		case old.Placeholder():
			// upgrade
		default:
			return fmt.Errorf("%w: %s", ErrConflictingRegistration, id)
		}
	}
	r.entries[id] = Entry{Type: id.Type(), Class: class, Data: dt}
	return nil
}

// Add registers T without a host class.
func Add[T any](r *Registry) error {
	return r.Add(reflect.TypeFor[T]())
}

// AddClass registers T as represented by class.
func AddClass[T any](r *Registry, class host.Value, dt *host.DataType) error {
	return r.AddClass(reflect.TypeFor[T](), class, dt)
}

// Remove erases the entry for t. Removing an absent type is a no-op.
func (r *Registry) Remove(t reflect.Type) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, rtti.IDOf(t))
}

// IsDefined reports whether t has an entry, placeholder or not.
func (r *Registry) IsDefined(t reflect.Type) bool {
	_, ok := r.Lookup(t)
	return ok
}

// IsDefinedType reports whether T has an entry.
func IsDefinedType[T any](r *Registry) bool {
	return r.IsDefined(reflect.TypeFor[T]())
}

// VerifyDefined returns a *TypeNotRegisteredError when t has no entry.
func (r *Registry) VerifyDefined(t reflect.Type) error {
	if !r.IsDefined(t) {
		return &TypeNotRegisteredError{Type: t}
	}
	return nil
}

// Lookup returns the entry for t.
func (r *Registry) Lookup(t reflect.Type) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[rtti.IDOf(t)]
	return e, ok
}

// ByClass returns the entry bound to class.
func (r *Registry) ByClass(class host.Value) (Entry, bool) {
	if class == host.Nil {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Class == class {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns a snapshot of every entry ordered by type name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return rtti.Name(out[i].Type) < rtti.Name(out[j].Type)
	})
	return out
}

// Count returns the number of entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset removes every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[rtti.ID]Entry)
}

// FigureType selects the class a native value is wrapped as.
//
// The dynamic type of v (see rtti.TypeOf) is looked up first. When it has
// no class, its embedding chain is walked to the nearest ancestor that
// has one, and finally the static type's entry is used. Placeholders never
// satisfy the search.
func (r *Registry) FigureType(static reflect.Type, v any) (Entry, error) {
	dyn := rtti.TypeOf(v)
	if dyn == nil {
		dyn = static
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range rtti.Ancestors(dyn) {
		if e, ok := r.entries[rtti.IDOf(t)]; ok && !e.Placeholder() {
			return e, nil
		}
	}
	if static != nil {
		if e, ok := r.entries[rtti.IDOf(static)]; ok && !e.Placeholder() {
			return e, nil
		}
	}
	return Entry{}, &TypeNotRegisteredError{Type: dyn}
}

var hostValueType = reflect.TypeFor[host.Value]()

// Verify reports whether values of t can cross the boundary: t is
// builtin, known to the caller (typically a conversion rule), registered,
// or a container whose element types verify.
func (r *Registry) Verify(t reflect.Type, known func(reflect.Type) bool) bool {
	if t == nil {
		return false
	}
	if t == hostValueType || rtti.Builtin(t) {
		return true
	}
	if known != nil && known(t) {
		return true
	}
	if r.IsDefined(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer:
		return r.Verify(t.Elem(), known)
	case reflect.Slice, reflect.Array, reflect.Map:
		for _, et := range rtti.Elems(t) {
			if !r.Verify(et, known) {
				return false
			}
		}
		return true
	}
	return false
}

// Package data carries native Go pointers inside host objects.
//
// A wrapped object is a host data object whose payload records the Go
// pointer and whether the host owns it. Owned payloads are destroyed when
// the host collector reclaims the object; borrowed payloads are only
// forgotten. A Carrier tracks every live pointer so the same pointer is
// never wrapped twice.
package data

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/registry"
	"github.com/feather-lang/tether/rtti"
)

var (
	// ErrUninitialized is returned when a wrapped object has no payload,
	// e.g. it was allocated by the host without running a constructor.
	ErrUninitialized = errors.New("tether(data): uninitialized native data")
	// ErrAlreadyWrapped is returned when a pointer is already carried by a
	// live host object.
	ErrAlreadyWrapped = errors.New("tether(data): pointer is already wrapped")
	// ErrAlreadyInitialized is returned by Attach on an object that
	// already carries a payload.
	ErrAlreadyInitialized = errors.New("tether(data): object is already initialized")
	// ErrNilPointer is returned when wrapping a nil or non-pointer value.
	ErrNilPointer = errors.New("tether(data): can only wrap a non-nil pointer")
)

// TypeMismatchError reports a host value whose class is not the expected
// class or one of its descendants.
type TypeMismatchError struct {
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("wrong argument type %s (expected %s)", e.Actual, e.Expected)
}

// NotConvertibleError reports a host value that cannot become the target
// Go type at all, e.g. an Integer where a wrapped object is expected.
type NotConvertibleError struct {
	Class  string
	Target reflect.Type
}

func (e *NotConvertibleError) Error() string {
	return fmt.Sprintf("no implicit conversion of %s into %s", e.Class, rtti.Name(e.Target))
}

// Mode is the ownership mode of a wrapped pointer.
type Mode int

const (
	// Borrowed objects reference a pointer owned elsewhere.
	Borrowed Mode = iota
	// Owned objects destroy their pointer when collected.
	Owned
)

func (m Mode) String() string {
	if m == Owned {
		return "owned"
	}
	return "borrowed"
}

// Destroyer is implemented by payloads that release resources when the
// host collects an owned object.
type Destroyer interface {
	Destroy()
}

// Marker is implemented by payloads that hold host values and must keep
// them alive across collections.
type Marker interface {
	MarkHostValues(m host.Marker)
}

// Hooks override the lifecycle behaviour of a bound type.
type Hooks struct {
	// Destroy replaces Destroyer and io.Closer for owned payloads.
	Destroy func(ptr any)
	// Mark replaces the Marker interface.
	Mark func(ptr any, m host.Marker)
}

// box is the payload stored in every host data object.
type box struct {
	ptr  any
	mode Mode
}

// Carrier wraps and unwraps native pointers.
type Carrier struct {
	rt host.Runtime

	mu   sync.Mutex
	live map[any]host.Value
}

// New returns a carrier for rt.
func New(rt host.Runtime) *Carrier {
	return &Carrier{rt: rt, live: make(map[any]host.Value)}
}

// DataTypeFor builds the collector descriptor for t.
func (c *Carrier) DataTypeFor(t reflect.Type, h Hooks) *host.DataType {
	return &host.DataType{
		Name: rtti.Name(t),
		Free: func(payload any) {
			b, ok := payload.(*box)
			if !ok || b.ptr == nil {
				return
			}
			c.forget(b.ptr)
			if b.mode == Owned {
				destroy(b.ptr, h.Destroy)
			}
		},
		Mark: func(payload any, m host.Marker) {
			b, ok := payload.(*box)
			if !ok || b.ptr == nil {
				return
			}
			if h.Mark != nil {
				h.Mark(b.ptr, m)
			} else if mk, ok := b.ptr.(Marker); ok {
				mk.MarkHostValues(m)
			}
		},
	}
}

func destroy(ptr any, hook func(any)) {
	switch p := ptr.(type) {
	case Destroyer:
		if hook == nil {
			p.Destroy()
			return
		}
	case io.Closer:
		if hook == nil {
			_ = p.Close()
			return
		}
	}
	if hook != nil {
		hook(ptr)
	}
}

func (c *Carrier) forget(ptr any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.live, ptr)
}

func checkPointer(ptr any) error {
	rv := reflect.ValueOf(ptr)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNilPointer
	}
	return nil
}

// Wrap embeds ptr in a new host object of entry's class.
func (c *Carrier) Wrap(ptr any, entry registry.Entry, mode Mode) (host.Value, error) {
	return c.WrapAs(ptr, entry.Class, entry, mode)
}

// WrapAs embeds ptr in a new host object of class, which may be a
// subclass of entry's class.
func (c *Carrier) WrapAs(ptr any, class host.Value, entry registry.Entry, mode Mode) (host.Value, error) {
	if err := checkPointer(ptr); err != nil {
		return host.Nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[ptr]; ok {
		return host.Nil, fmt.Errorf("%w: %s", ErrAlreadyWrapped, rtti.Name(reflect.TypeOf(ptr)))
	}
	v, err := c.rt.WrapData(class, &box{ptr: ptr, mode: mode}, entry.Data)
	if err != nil {
		return host.Nil, err
	}
	c.live[ptr] = v
	return v, nil
}

// Existing returns the live host object carrying ptr.
func (c *Carrier) Existing(ptr any) (host.Value, bool) {
	if checkPointer(ptr) != nil {
		return host.Nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.live[ptr]
	return v, ok
}

// Live returns the number of pointers currently carried.
func (c *Carrier) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Allocate creates an object of class with no payload. A constructor
// attaches one later.
func (c *Carrier) Allocate(class host.Value, entry registry.Entry) (host.Value, error) {
	return c.rt.WrapData(class, &box{}, entry.Data)
}

// Attach stores ptr in an object created by Allocate. The host owns it.
func (c *Carrier) Attach(v host.Value, ptr any) error {
	if err := checkPointer(ptr); err != nil {
		return err
	}
	payload, _, ok := c.rt.DataPayload(v)
	b, isBox := payload.(*box)
	if !ok || !isBox {
		return &NotConvertibleError{Class: c.className(v), Target: reflect.TypeOf(ptr)}
	}
	if b.ptr != nil {
		return ErrAlreadyInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[ptr]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyWrapped, rtti.Name(reflect.TypeOf(ptr)))
	}
	b.ptr, b.mode = ptr, Owned
	c.live[ptr] = v
	return nil
}

// Mode reports the ownership mode of v.
func (c *Carrier) Mode(v host.Value) (Mode, bool) {
	payload, _, ok := c.rt.DataPayload(v)
	b, isBox := payload.(*box)
	if !ok || !isBox {
		return Borrowed, false
	}
	return b.mode, true
}

// Reset forgets every live pointer without destroying them.
func (c *Carrier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = make(map[any]host.Value)
}

// payload validates v against entry and returns its box.
func (c *Carrier) payload(v host.Value, entry registry.Entry) (*box, error) {
	payload, _, ok := c.rt.DataPayload(v)
	b, isBox := payload.(*box)
	if !ok || !isBox {
		return nil, &NotConvertibleError{Class: c.className(v), Target: entry.Type}
	}
	if entry.Class != host.Nil && !c.rt.IsKindOf(v, entry.Class) {
		return nil, &TypeMismatchError{Expected: c.rt.ClassName(entry.Class), Actual: c.className(v)}
	}
	return b, nil
}

func (c *Carrier) className(v host.Value) string { return ClassName(c.rt, v) }

// ClassName names the class of v for error messages. The immediates are
// spelled as literals.
func ClassName(rt host.Runtime, v host.Value) string {
	switch v {
	case host.Nil:
		return "nil"
	case host.True:
		return "true"
	case host.False:
		return "false"
	}
	return rt.ClassName(rt.ClassOf(v))
}

// Unwrap returns the pointer carried by v as a value of target, which is
// a pointer to entry's type or an interface it implements. The class of
// v must be entry's class or a descendant.
func (c *Carrier) Unwrap(v host.Value, entry registry.Entry, target reflect.Type) (reflect.Value, error) {
	b, err := c.payload(v, entry)
	if err != nil {
		return reflect.Value{}, err
	}
	if b.ptr == nil {
		return reflect.Value{}, ErrUninitialized
	}
	out, ok := rtti.Upcast(reflect.ValueOf(b.ptr), target)
	if !ok {
		return reflect.Value{}, &TypeMismatchError{Expected: rtti.Name(target), Actual: rtti.Name(reflect.TypeOf(b.ptr))}
	}
	return out, nil
}

// Object is a non-owning view of a wrapped *T.
type Object[T any] struct {
	value host.Value
	ptr   *T
}

// Unwrap returns a view of v, which must be an instance of entry's class.
// The view may be uninitialized; see Object.Get.
func Unwrap[T any](c *Carrier, v host.Value, entry registry.Entry) (Object[T], error) {
	b, err := c.payload(v, entry)
	if err != nil {
		return Object[T]{}, err
	}
	obj := Object[T]{value: v}
	if b.ptr == nil {
		return obj, nil
	}
	out, ok := rtti.Upcast(reflect.ValueOf(b.ptr), reflect.TypeFor[*T]())
	if !ok {
		return Object[T]{}, &TypeMismatchError{Expected: rtti.Name(reflect.TypeFor[*T]()), Actual: rtti.Name(reflect.TypeOf(b.ptr))}
	}
	obj.ptr = out.Interface().(*T)
	return obj, nil
}

// Get returns the carried pointer.
func (o Object[T]) Get() (*T, error) {
	if o.ptr == nil {
		return nil, ErrUninitialized
	}
	return o.ptr, nil
}

// Must returns the carried pointer and panics when there is none.
func (o Object[T]) Must() *T {
	p, err := o.Get()
	if err != nil {
		panic(err)
	}
	return p
}

// Value returns the host object.
func (o Object[T]) Value() host.Value { return o.value }

package dispatch

import (
	"errors"
	"fmt"

	"github.com/feather-lang/tether/convert"
	"github.com/feather-lang/tether/data"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/registry"
)

// ArgumentError reports host arguments that do not bind to the native
// signature: a missing or unknown keyword, too many arguments.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return e.Message }

// HostErrorKind implements Kinded.
func (e *ArgumentError) HostErrorKind() host.ErrorKind { return host.ArgumentError }

func argumentErrorf(format string, args ...any) error {
	return &ArgumentError{Message: fmt.Sprintf(format, args...)}
}

// NativeCallError reports a panic raised by a bound Go function.
type NativeCallError struct {
	Method string
	Value  any
}

func (e *NativeCallError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Method, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *NativeCallError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Kinded is implemented by errors that name the host error class they are
// raised as.
type Kinded interface {
	HostErrorKind() host.ErrorKind
}

// Handler translates a native error into a host exception. It reports
// false when it does not recognize err. A handled error may translate to
// nil, in which case the call returns nil to the host.
type Handler func(rt host.Runtime, err error) (error, bool)

// HandlerFor builds a handler for errors matching E by errors.As.
func HandlerFor[E error](fn func(rt host.Runtime, e E) error) Handler {
	return func(rt host.Runtime, err error) (error, bool) {
		var target E
		if !errors.As(err, &target) {
			return nil, false
		}
		return fn(rt, target), true
	}
}

// Chain is an immutable list of handlers, newest first. The nil *Chain is
// the empty chain.
type Chain struct {
	handler Handler
	next    *Chain
}

// Push returns a chain with h in front of c. c is unchanged.
func (c *Chain) Push(h Handler) *Chain {
	return &Chain{handler: h, next: c}
}

// Len returns the number of handlers.
func (c *Chain) Len() int {
	n := 0
	for ; c != nil; c = c.next {
		n++
	}
	return n
}

// Translate walks the chain newest first and returns the translation of the
// first handler that recognizes err.
func (c *Chain) Translate(rt host.Runtime, err error) (error, bool) {
	for ; c != nil; c = c.next {
		if out, ok := c.handler(rt, err); ok {
			return out, true
		}
	}
	return nil, false
}

// Raise converts err to a host exception without consulting a chain.
// Host exceptions pass through untouched.
func Raise(rt host.Runtime, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := host.AsException(err); ok {
		return err
	}
	out := rt.Raise(rt.ErrorClass(KindOf(err)), "%s", err.Error())
	if exc, ok := out.(*host.Exception); ok {
		exc.Cause = err
	}
	return out
}

// KindOf returns the host error class err is raised as when no handler
// recognizes it.
func KindOf(err error) host.ErrorKind {
	var (
		kinded   Kinded
		mismatch *data.TypeMismatchError
		notConv  *data.NotConvertibleError
		notReg   *registry.TypeNotRegisteredError
		rangeErr *convert.RangeError
	)
	switch {
	case errors.As(err, &kinded):
		return kinded.HostErrorKind()
	case errors.As(err, &mismatch), errors.As(err, &notConv), errors.As(err, &notReg):
		return host.TypeError
	case errors.As(err, &rangeErr):
		return host.RangeError
	case errors.Is(err, data.ErrUninitialized):
		return host.TypeError
	}
	return host.RuntimeError
}

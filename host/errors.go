package host

import (
	"errors"
	"strconv"
)

// ErrorKind names the builtin host error classes the binding core raises.
type ErrorKind int

const (
	StandardError ErrorKind = iota
	RuntimeError
	TypeError
	ArgumentError
	RangeError
	NameError
	NoMethodError
	IndexError
	LocalJumpError
)

var errorKindNames = [...]string{
	StandardError:  "StandardError",
	RuntimeError:   "RuntimeError",
	TypeError:      "TypeError",
	ArgumentError:  "ArgumentError",
	RangeError:     "RangeError",
	NameError:      "NameError",
	NoMethodError:  "NoMethodError",
	IndexError:     "IndexError",
	LocalJumpError: "LocalJumpError",
}

// ErrorKinds lists every kind, parents before children.
var ErrorKinds = []ErrorKind{
	StandardError, RuntimeError, TypeError, ArgumentError, RangeError,
	NameError, NoMethodError, IndexError, LocalJumpError,
}

// String returns the host class name for k.
func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// Parent returns the kind k inherits from in the host hierarchy.
func (k ErrorKind) Parent() (ErrorKind, bool) {
	switch k {
	case StandardError:
		return 0, false
	case NoMethodError:
		return NameError, true
	default:
		return StandardError, true
	}
}

// Exception is the error signal produced by Runtime.Raise. It travels as a
// plain Go error until the host-level caller receives it.
type Exception struct {
	Class     Value
	ClassName string
	Message   string
	// Cause is the native error the exception was translated from, if any.
	Cause error
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.ClassName
	}
	return e.ClassName + ": " + e.Message
}

func (e *Exception) Unwrap() error { return e.Cause }

// AsException reports whether err is, or wraps, a host exception.
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}

package dispatch

import (
	"reflect"

	"github.com/feather-lang/tether/convert"
	"github.com/feather-lang/tether/host"
)

// Block is the block passed to a bound call. A Go parameter of this type
// receives it instead of a positional argument.
type Block struct {
	conv  *convert.Converter
	value host.Value
}

// Given reports whether the caller passed a block.
func (b Block) Given() bool { return b.value != host.Nil }

// Value returns the host block, or host.Nil.
func (b Block) Value() host.Value { return b.value }

// Yield converts args and yields them to the block.
func (b Block) Yield(args ...any) (host.Value, error) {
	if b.conv == nil {
		return host.Nil, argumentErrorf("no block given (yield)")
	}
	vals := make([]host.Value, len(args))
	for i, a := range args {
		v, err := b.conv.ToHost(reflect.ValueOf(a))
		if err != nil {
			return host.Nil, err
		}
		vals[i] = v
	}
	return b.conv.Runtime().Yield(b.value, vals...)
}

var (
	blockType   = reflect.TypeFor[Block]()
	runtimeType = reflect.TypeFor[host.Runtime]()
	errorType   = reflect.TypeFor[error]()
)

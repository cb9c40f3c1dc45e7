// Package rtti derives stable identities and display names from Go types.
//
// An [ID] is the key every other tether table is indexed by. It strips one
// level of pointer so that *Counter and Counter share an identity: a class
// is bound once and values of either form find it.
package rtti

import (
	"reflect"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ID is a comparable type identity.
type ID struct {
	t reflect.Type
}

// Of returns the identity of T.
func Of[T any]() ID {
	return IDOf(reflect.TypeFor[T]())
}

// IDOf returns the identity of t. A nil type yields the zero ID.
func IDOf(t reflect.Type) ID {
	return ID{t: Normalize(t)}
}

// Type returns the normalized type behind id.
func (id ID) Type() reflect.Type { return id.t }

// IsZero reports whether id identifies no type.
func (id ID) IsZero() bool { return id.t == nil }

// String returns the display name of the identified type.
func (id ID) String() string { return Name(id.t) }

// Normalize strips a single pointer level from t.
func Normalize(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// -----------------------------------------------------------------------------
// Names
// -----------------------------------------------------------------------------

var (
	names      sync.Map // map[reflect.Type]string
	classNames sync.Map // map[reflect.Type]string
)

// Name returns the canonical display name of t: Go syntax with every
// package path shortened to its last element, generic arguments included.
//
//	Name(reflect.TypeFor[*shapes.Circle]())          // "*shapes.Circle"
//	Name(reflect.TypeFor[tether.Box[shapes.Circle]]()) // "tether.Box[shapes.Circle]"
//
// Results are memoized, so the same type always yields the same string.
func Name(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if v, ok := names.Load(t); ok {
		return v.(string)
	}
	n := shortenPaths(t.String())
	v, _ := names.LoadOrStore(t, n)
	return v.(string)
}

// shortenPaths rewrites every import path qualifier in s to its last
// element ("github.com/a/b.T" becomes "b.T").
func shortenPaths(s string) string {
	var b strings.Builder
	start := 0
	flush := func(end int) {
		tok := s[start:end]
		if i := strings.LastIndexByte(tok, '/'); i >= 0 {
			tok = tok[i+1:]
		}
		b.WriteString(tok)
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', ']', ',', ' ', '*', '(', ')', '{', '}', ';':
			flush(i)
			b.WriteByte(s[i])
			start = i + 1
		}
	}
	flush(len(s))
	return b.String()
}

// ClassName returns the host-visible class name for t: the package
// qualifier dropped, each segment title-cased, generic arguments appended
// with "__" and separated by "_".
//
//	ClassName(reflect.TypeFor[Pair[string, int]]()) // "Pair__String_Int"
func ClassName(t reflect.Type) string {
	t = Normalize(t)
	if t == nil {
		return ""
	}
	if v, ok := classNames.Load(t); ok {
		return v.(string)
	}
	n := classSegment(Name(t))
	v, _ := classNames.LoadOrStore(t, n)
	return v.(string)
}

func classSegment(s string) string {
	s = strings.TrimLeft(s, "*")
	switch {
	case strings.HasPrefix(s, "[]"):
		return "Array_" + classSegment(s[2:])
	case strings.HasPrefix(s, "map["):
		return "Hash"
	case strings.HasPrefix(s, "["):
		if i := strings.IndexByte(s, ']'); i > 0 {
			return "Array_" + classSegment(s[i+1:])
		}
	}

	base, args := s, ""
	if i := strings.IndexByte(s, '['); i >= 0 && strings.HasSuffix(s, "]") {
		base, args = s[:i], s[i+1:len(s)-1]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	// A Caser is stateful, so each segment gets its own.
	out := cases.Title(language.Und, cases.NoLower).String(identifier(base))
	if args == "" {
		return out
	}
	parts := splitArgs(args)
	for i, p := range parts {
		parts[i] = classSegment(strings.TrimSpace(p))
	}
	return out + "__" + strings.Join(parts, "_")
}

// splitArgs splits a generic argument list on top-level commas.
func splitArgs(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// identifier drops every rune that cannot appear in a host constant name.
func identifier(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '_', r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return r
		}
		return -1
	}, s)
}

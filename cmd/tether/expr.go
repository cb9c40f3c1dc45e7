package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"
	"unicode"

	"github.com/feather-lang/tether/host"
)

// session evaluates shell input against one runtime. Input is a call
// chain over literals, constants and variables:
//
//	stmt    = [ "$" ident "=" ] expr
//	expr    = primary { "." method [ "(" [ args ] ")" ] }
//	primary = int | float | string | ":" ident | "nil" | "true" | "false"
//	        | "$" ident | Const { "::" Const } | "[" [ args ] "]"
//	args    = arg { "," arg }
//	arg     = ident ":" expr | expr
type session struct {
	rt   host.Runtime
	vars map[string]host.Value
}

func newSession(rt host.Runtime) *session {
	return &session{rt: rt, vars: make(map[string]host.Value)}
}

// set binds a variable, keeping its value alive across collections.
func (s *session) set(name string, v host.Value) {
	if old, ok := s.vars[name]; ok {
		s.rt.Unpin(old)
	}
	s.rt.Pin(v)
	s.vars[name] = v
}

func (s *session) eval(src string) (host.Value, error) {
	p := &parser{s: s}
	p.sc.Init(strings.NewReader(src))
	p.sc.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings
	p.sc.Error = func(sc *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = fmt.Errorf("%s: %s", sc.Position, msg)
		}
	}
	p.next()
	if p.tok == scanner.EOF {
		return host.Nil, nil
	}

	v, err := p.statement()
	if err == nil && p.tok != scanner.EOF {
		err = p.errorf("unexpected %s", p.describe())
	}
	if p.err != nil {
		return host.Nil, p.err
	}
	return v, err
}

type parser struct {
	s   *session
	sc  scanner.Scanner
	tok rune
	err error
}

func (p *parser) next() { p.tok = p.sc.Scan() }

func (p *parser) text() string { return p.sc.TokenText() }

func (p *parser) describe() string {
	if p.tok == scanner.EOF {
		return "end of input"
	}
	return strconv.Quote(p.text())
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%s: %s", p.sc.Position, fmt.Sprintf(format, args...))
}

func (p *parser) expect(r rune) error {
	if p.tok != r {
		return p.errorf("expected %s, got %s", scanner.TokenString(r), p.describe())
	}
	p.next()
	return nil
}

func (p *parser) ident() (string, error) {
	if p.tok != scanner.Ident {
		return "", p.errorf("expected identifier, got %s", p.describe())
	}
	name := p.text()
	p.next()
	return name, nil
}

func (p *parser) statement() (host.Value, error) {
	if p.tok != '$' {
		return p.expr()
	}
	p.next()
	name, err := p.ident()
	if err != nil {
		return host.Nil, err
	}
	if p.tok != '=' {
		v, ok := p.s.vars[name]
		if !ok {
			return host.Nil, p.errorf("undefined variable $%s", name)
		}
		return p.postfix(v)
	}
	p.next()
	v, err := p.expr()
	if err != nil {
		return host.Nil, err
	}
	p.s.set(name, v)
	return v, nil
}

func (p *parser) expr() (host.Value, error) {
	v, err := p.primary()
	if err != nil {
		return host.Nil, err
	}
	return p.postfix(v)
}

func (p *parser) postfix(recv host.Value) (host.Value, error) {
	for p.tok == '.' {
		p.next()
		if p.tok != scanner.Ident {
			return host.Nil, p.errorf("expected method name, got %s", p.describe())
		}
		name := p.text()
		if r := p.sc.Peek(); r == '?' || r == '!' {
			name += string(p.sc.Next())
		}
		p.next()

		var args []host.Value
		kw := host.Nil
		if p.tok == '(' {
			p.next()
			var err error
			if args, kw, err = p.args(')'); err != nil {
				return host.Nil, err
			}
		}
		if kw != host.Nil {
			args = append(args, kw)
		}
		v, err := p.s.rt.Call(recv, name, args, host.Nil)
		if err != nil {
			return host.Nil, err
		}
		recv = v
	}
	return recv, nil
}

// args parses arguments up to and including end. Keyword arguments are
// collected into a Hash with Symbol keys.
func (p *parser) args(end rune) ([]host.Value, host.Value, error) {
	rt := p.s.rt
	var out []host.Value
	kw := host.Nil
	for p.tok != end {
		if len(out) > 0 || kw != host.Nil {
			if err := p.expect(','); err != nil {
				return nil, host.Nil, err
			}
		}
		if p.tok == scanner.Ident && p.sc.Peek() == ':' && !unicode.IsUpper(rune(p.text()[0])) {
			key := p.text()
			p.next()
			p.next()
			v, err := p.expr()
			if err != nil {
				return nil, host.Nil, err
			}
			if kw == host.Nil {
				kw = rt.NewHash()
			}
			if err := rt.HashSet(kw, rt.NewSymbol(key), v); err != nil {
				return nil, host.Nil, err
			}
			continue
		}
		if kw != host.Nil {
			return nil, host.Nil, p.errorf("positional argument after keyword arguments")
		}
		v, err := p.expr()
		if err != nil {
			return nil, host.Nil, err
		}
		out = append(out, v)
	}
	p.next()
	return out, kw, nil
}

func (p *parser) primary() (host.Value, error) {
	rt := p.s.rt
	switch p.tok {
	case scanner.Int, scanner.Float:
		return p.number(false)
	case '-':
		p.next()
		return p.number(true)
	case scanner.String:
		s, err := strconv.Unquote(p.text())
		if err != nil {
			return host.Nil, p.errorf("%v", err)
		}
		p.next()
		return rt.NewString(s), nil
	case ':':
		p.next()
		name, err := p.ident()
		if err != nil {
			return host.Nil, err
		}
		return rt.NewSymbol(name), nil
	case '$':
		p.next()
		name, err := p.ident()
		if err != nil {
			return host.Nil, err
		}
		v, ok := p.s.vars[name]
		if !ok {
			return host.Nil, p.errorf("undefined variable $%s", name)
		}
		return v, nil
	case '[':
		p.next()
		items, kw, err := p.args(']')
		if err != nil {
			return host.Nil, err
		}
		if kw != host.Nil {
			return host.Nil, p.errorf("keyword arguments in an Array literal")
		}
		return rt.NewArray(items...), nil
	case scanner.Ident:
		switch name := p.text(); name {
		case "nil":
			p.next()
			return host.Nil, nil
		case "true":
			p.next()
			return host.True, nil
		case "false":
			p.next()
			return host.False, nil
		default:
			if !unicode.IsUpper(rune(name[0])) {
				return host.Nil, p.errorf("undefined name %s", name)
			}
			return p.constant()
		}
	}
	return host.Nil, p.errorf("unexpected %s", p.describe())
}

func (p *parser) number(negative bool) (host.Value, error) {
	rt := p.s.rt
	text := p.text()
	if negative {
		text = "-" + text
	}
	switch p.tok {
	case scanner.Int:
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return host.Nil, p.errorf("%v", err)
		}
		p.next()
		return rt.NewInt(n), nil
	case scanner.Float:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return host.Nil, p.errorf("%v", err)
		}
		p.next()
		return rt.NewFloat(f), nil
	}
	return host.Nil, p.errorf("expected number, got %s", p.describe())
}

// constant resolves Name or Outer::Inner from the top level.
func (p *parser) constant() (host.Value, error) {
	rt := p.s.rt
	ns := rt.ObjectClass()
	path := ""
	for {
		name := p.text()
		path += name
		v, ok := rt.ConstGet(ns, name)
		if !ok {
			return host.Nil, p.errorf("uninitialized constant %s", path)
		}
		p.next()
		if p.tok != ':' || p.sc.Peek() != ':' {
			return v, nil
		}
		p.sc.Next()
		p.next()
		if p.tok != scanner.Ident {
			return host.Nil, p.errorf("expected constant name, got %s", p.describe())
		}
		ns, path = v, path+"::"
	}
}

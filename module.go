package tether

import (
	"github.com/feather-lang/tether/dispatch"
	"github.com/feather-lang/tether/host"
)

// Module is a host module or class with its exception-handler chain.
//
// Handlers added with AddHandler translate errors of the functions defined
// on the module afterwards; each definition keeps the chain it saw.
type Module struct {
	b        *Binder
	value    host.Value
	name     string
	handlers *dispatch.Chain
}

// Value returns the host module.
func (m *Module) Value() host.Value { return m.value }

// Name returns the qualified host name.
func (m *Module) Name() string { return m.name }

// Binder returns the binder the module belongs to.
func (m *Module) Binder() *Binder { return m.b }

// Handlers returns the current handler chain.
func (m *Module) Handlers() *dispatch.Chain { return m.handlers }

func (m *Module) qualify(name string) string {
	if m.value == m.b.rt.ObjectClass() {
		return name
	}
	return m.name + "::" + name
}

// DefineModule creates or reopens the module name nested in m.
func (m *Module) DefineModule(name string) (*Module, error) {
	v, err := m.b.rt.DefineModule(name, m.value)
	if err != nil {
		return nil, err
	}
	m.b.log.Debug("defined module", "module", m.qualify(name))
	return &Module{b: m.b, value: v, name: m.qualify(name)}, nil
}

// DefineFunction binds fn as a module function, called on the module
// itself.
func (m *Module) DefineFunction(name string, fn any, opts ...DefineOption) error {
	return m.DefineSingletonFunction(name, fn, opts...)
}

// DefineSingletonFunction binds fn on the singleton class of m. fn does
// not receive the receiver.
func (m *Module) DefineSingletonFunction(name string, fn any, opts ...DefineOption) error {
	s, err := m.b.rt.SingletonClass(m.value)
	if err != nil {
		return err
	}
	return m.defineOn(s, name, fn, dispatch.Function, opts)
}

// DefineMethod binds fn as an instance method. The first parameter of fn
// receives the receiver.
func (m *Module) DefineMethod(name string, fn any, opts ...DefineOption) error {
	return m.defineOn(m.value, name, fn, dispatch.Method, opts)
}

func (m *Module) defineOn(target host.Value, name string, fn any, shape dispatch.Shape, opts []DefineOption) error {
	o := dispatch.Options{Handlers: m.handlers}
	for _, opt := range opts {
		opt.applyDefine(&o)
	}
	_, err := m.b.disp.Define(target, name, fn, shapeOf(fn, shape), o)
	return err
}

// DefineConstant converts v and stores it as constant name of m.
func (m *Module) DefineConstant(name string, v any) error {
	hv, err := m.b.ToHost(v)
	if err != nil {
		return err
	}
	return m.b.rt.ConstSet(m.value, name, hv)
}

// Const returns constant name of m.
func (m *Module) Const(name string) (host.Value, bool) {
	return m.b.rt.ConstGet(m.value, name)
}

// Include mixes other into m.
func (m *Module) Include(other *Module) error {
	return m.b.rt.IncludeModule(m.value, other.value)
}

// AddHandler pushes h onto the handler chain and returns m.
func (m *Module) AddHandler(h dispatch.Handler) *Module {
	m.handlers = m.handlers.Push(h)
	return m
}

// Handle adds a handler for errors matching E.
//
//	tether.Handle(m, func(rt host.Runtime, e *QuotaError) error {
//	    return rt.Raise(rt.ErrorClass(host.RangeError), "quota %d exceeded", e.Limit)
//	})
func Handle[E error](m *Module, fn func(rt host.Runtime, e E) error) *Module {
	return m.AddHandler(dispatch.HandlerFor(fn))
}

// Package mapper converts Go values to and from hessian values.
//
// Structs become objects whose fields come from `hessian:"name,omitempty"`
// tags, slices and arrays become lists, maps become maps, time.Time becomes
// a date and []byte a binary. Pointers keep their identity: the same pointer
// reached twice maps to the same composite, so shared and cyclic Go
// structures are written once and then referenced.
package mapper

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/dadrian/hessian"
	"github.com/dadrian/hessian/internal"
)

// Marshaler is implemented by types that build their own value.
type Marshaler interface {
	ToValue(c *Context) (hessian.Value, error)
}

// Unmarshaler is implemented by types that fill themselves from a value.
type Unmarshaler interface {
	FromValue(c *Context, v hessian.Value) error
}

// Typed is implemented by types that choose their object type name.
type Typed interface {
	HessianType() string
}

// Replacer is implemented by types that are written as a stand-in. Later
// references to the original resolve to the stand-in.
type Replacer interface {
	HessianReplace() (any, error)
}

// Mapper holds the registry, policy and field layout cache. It is safe for
// concurrent use; each conversion gets its own Context.
type Mapper struct {
	registry *Registry
	policy   *Policy
	logger   *slog.Logger
	fields   sync.Map // reflect.Type -> []fieldInfo
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithRegistry sets the registry used to name struct types and to build
// registered types when decoding into an interface.
func WithRegistry(r *Registry) Option { return func(m *Mapper) { m.registry = r } }

// WithPolicy sets the type name allow/deny policy.
func WithPolicy(p *Policy) Option { return func(m *Mapper) { m.policy = p } }

// WithLogger sets the logger for denied types and layout caching.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mapper) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a Mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		registry: NewRegistry(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var defaultMapper = New()

// ToValue converts v with a default Mapper.
func ToValue(v any) (hessian.Value, error) { return defaultMapper.ToValue(v) }

// FromValue fills target, a non-nil pointer, from v with a default Mapper.
func FromValue(v hessian.Value, target any) error { return defaultMapper.FromValue(v, target) }

// Context carries the identity tables of one conversion. Marshaler and
// Unmarshaler implementations use it to convert nested values.
type Context struct {
	m *Mapper

	// encode side: Go reference identity -> value built for it
	built map[refKey]hessian.Value
	// decode side: composite and target type -> Go value built for it
	made map[madeKey]reflect.Value
	// streamed composites whose children are still being read
	open  map[hessian.Value]bool
	depth int
}

type refKey struct {
	t reflect.Type
	p uintptr
}

type madeKey struct {
	v hessian.Value
	t reflect.Type
}

func (m *Mapper) newContext() *Context {
	return &Context{
		m:     m,
		built: make(map[refKey]hessian.Value),
		made:  make(map[madeKey]reflect.Value),
		open:  make(map[hessian.Value]bool),
	}
}

// ToValue converts a nested Go value within the same conversion.
func (c *Context) ToValue(v any) (hessian.Value, error) {
	return c.toValue(reflect.ValueOf(v))
}

// FromValue fills target from a nested value within the same conversion.
func (c *Context) FromValue(v hessian.Value, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errNotPointer(rv)
	}
	return c.fromValue(v, rv.Elem())
}

type fieldInfo struct {
	index []int
	name  string
	omit  bool
}

// layout returns the serialized fields of struct type t in declaration
// order.
func (m *Mapper) layout(t reflect.Type) []fieldInfo {
	if f, ok := m.fields.Load(t); ok {
		return f.([]fieldInfo)
	}
	var fields []fieldInfo
	for i := range t.NumField() {
		sf := t.Field(i)
		tag, ok := internal.ParseFieldTag(sf)
		if !ok {
			continue
		}
		fields = append(fields, fieldInfo{index: sf.Index, name: tag.Name, omit: tag.OmitEmpty})
	}
	f, _ := m.fields.LoadOrStore(t, fields)
	m.logger.Debug("mapper: struct layout cached",
		slog.String("go_type", t.String()),
		slog.Int("fields", len(fields)))
	return f.([]fieldInfo)
}

// definition returns the class definition for struct type t.
func (m *Mapper) definition(t reflect.Type, name string) hessian.ClassDefinition {
	fields := m.layout(t)
	def := hessian.ClassDefinition{Type: name, Fields: make([]string, len(fields))}
	for i, f := range fields {
		def.Fields[i] = f.name
	}
	return def
}

var typedType = reflect.TypeFor[Typed]()

// typeName names struct type t: its HessianType method, its registered
// name, or its Go name.
func (m *Mapper) typeName(rv reflect.Value) string {
	t := rv.Type()
	if t.Implements(typedType) {
		return rv.Interface().(Typed).HessianType()
	}
	if reflect.PointerTo(t).Implements(typedType) {
		if rv.CanAddr() {
			return rv.Addr().Interface().(Typed).HessianType()
		}
		return reflect.New(t).Interface().(Typed).HessianType()
	}
	if name, ok := m.registry.nameOf(t); ok {
		return name
	}
	return t.String()
}

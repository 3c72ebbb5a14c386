package mapper

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
	"github.com/dadrian/hessian/internal"
)

var (
	marshalerType = reflect.TypeFor[Marshaler]()
	replacerType  = reflect.TypeFor[Replacer]()
	timeType      = reflect.TypeFor[time.Time]()
)

// ToValue converts v to a value tree.
func (m *Mapper) ToValue(v any) (hessian.Value, error) {
	return m.newContext().toValue(reflect.ValueOf(v))
}

// Marshal converts v and encodes it in a fresh session.
func (m *Mapper) Marshal(v any, opts ...hessian.Option) ([]byte, error) {
	hv, err := m.ToValue(v)
	if err != nil {
		return nil, err
	}
	return hessian.Marshal(hv, opts...)
}

// hook returns the Marshaler or Replacer behind rv, checking the pointer
// receiver when rv is addressable.
func hook[T any](rv reflect.Value, t reflect.Type) (T, bool) {
	var zero T
	if rv.Type().Implements(t) {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return zero, false
		}
		return rv.Interface().(T), true
	}
	if rv.CanAddr() && reflect.PointerTo(rv.Type()).Implements(t) {
		return rv.Addr().Interface().(T), true
	}
	return zero, false
}

func identity(rv reflect.Value) refKey {
	return refKey{t: rv.Type(), p: rv.Pointer()}
}

func (c *Context) toValue(rv reflect.Value) (hessian.Value, error) {
	if !rv.IsValid() {
		return hessian.Null{}, nil
	}
	if mv, ok := hook[Marshaler](rv, marshalerType); ok {
		return mv.ToValue(c)
	}
	if r, ok := hook[Replacer](rv, replacerType); ok {
		return c.replace(rv, r)
	}
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return hessian.Null{}, nil
		}
		if rv.Elem().Kind() != reflect.Struct || rv.Elem().Type() == timeType {
			return c.toValue(rv.Elem())
		}
		key := identity(rv)
		if v, ok := c.built[key]; ok {
			return v, nil
		}
		o := &hessian.Object{}
		c.built[key] = o
		if err := c.fillObject(o, rv.Elem()); err != nil {
			return nil, err
		}
		return o, nil
	case reflect.Interface:
		if rv.IsNil() {
			return hessian.Null{}, nil
		}
		return c.toValue(rv.Elem())
	case reflect.Struct:
		if rv.Type() == timeType {
			return hessian.DateOf(rv.Interface().(time.Time)), nil
		}
		o := &hessian.Object{}
		if err := c.fillObject(o, rv); err != nil {
			return nil, err
		}
		return o, nil
	case reflect.Map:
		if rv.IsNil() {
			return hessian.Null{}, nil
		}
		key := identity(rv)
		if v, ok := c.built[key]; ok {
			return v, nil
		}
		hm := &hessian.Map{}
		c.built[key] = hm
		for _, k := range sortedKeys(rv) {
			kv, err := c.toValue(k)
			if err != nil {
				return nil, err
			}
			vv, err := c.toValue(rv.MapIndex(k))
			if err != nil {
				return nil, err
			}
			hm.Put(kv, vv)
		}
		return hm, nil
	case reflect.Slice:
		if rv.IsNil() {
			return hessian.Null{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return hessian.Binary(rv.Bytes()), nil
		}
		fallthrough
	case reflect.Array:
		l := &hessian.List{Elems: make([]hessian.Value, rv.Len())}
		for i := range rv.Len() {
			v, err := c.toValue(rv.Index(i))
			if err != nil {
				return nil, err
			}
			l.Elems[i] = v
		}
		return l, nil
	default:
		return scalar(rv)
	}
}

// replace converts the stand-in for rv. When rv is a pointer, later visits
// of it resolve to the stand-in's value.
func (c *Context) replace(rv reflect.Value, r Replacer) (hessian.Value, error) {
	var key refKey
	shared := rv.Kind() == reflect.Pointer
	if shared {
		key = identity(rv)
		if v, ok := c.built[key]; ok {
			return v, nil
		}
	}
	sub, err := r.HessianReplace()
	if err != nil {
		return nil, errors.Wrapf(err, "mapper: replacing %s", rv.Type())
	}
	sv := reflect.ValueOf(sub)
	if sv.IsValid() && sv.Type() == rv.Type() {
		return nil, errors.Newf("mapper: %s replaces itself with its own type", rv.Type())
	}
	v, err := c.toValue(sv)
	if err != nil {
		return nil, err
	}
	if shared {
		c.built[key] = v
	}
	return v, nil
}

func (c *Context) fillObject(o *hessian.Object, rv reflect.Value) error {
	o.Type = c.m.typeName(rv)
	if err := c.m.policy.Check(o.Type); err != nil {
		c.m.logger.Warn("mapper: type denied", slog.String("type", o.Type))
		return err
	}
	fields := c.m.layout(rv.Type())
	o.Fields = make([]hessian.Field, len(fields))
	for i, f := range fields {
		fv := rv.FieldByIndex(f.index)
		o.Fields[i].Name = f.name
		if f.omit && internal.IsZero(fv) {
			o.Fields[i].Value = hessian.Null{}
			continue
		}
		v, err := c.toValue(fv)
		if err != nil {
			return errors.Wrapf(err, "field %s.%s", o.Type, f.name)
		}
		o.Fields[i].Value = v
	}
	return nil
}

// scalar converts booleans, numbers and strings. Integers that fit 32 bits
// become Int32 except for int64 and uint64, which are always Int64.
func scalar(rv reflect.Value) (hessian.Value, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return hessian.Bool(rv.Bool()), nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return hessian.Int32(rv.Int()), nil
	case reflect.Int:
		if n := rv.Int(); n >= math.MinInt32 && n <= math.MaxInt32 {
			return hessian.Int32(n), nil
		}
		return hessian.Int64(rv.Int()), nil
	case reflect.Int64:
		return hessian.Int64(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16:
		return hessian.Int32(rv.Uint()), nil
	case reflect.Uint32, reflect.Uint, reflect.Uintptr:
		if n := rv.Uint(); n <= math.MaxInt32 && rv.Kind() == reflect.Uint32 {
			return hessian.Int32(n), nil
		}
		fallthrough
	case reflect.Uint64:
		n := rv.Uint()
		if n > math.MaxInt64 {
			return nil, errors.Newf("mapper: %d overflows a long", n)
		}
		return hessian.Int64(n), nil
	case reflect.Float32, reflect.Float64:
		return hessian.Double(rv.Float()), nil
	case reflect.String:
		return hessian.String(rv.String()), nil
	default:
		return nil, errors.Newf("mapper: cannot convert %s", rv.Type())
	}
}

// sortedKeys orders map keys so output does not depend on map iteration.
func sortedKeys(rv reflect.Value) []reflect.Value {
	keys := rv.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch a.Kind() {
		case reflect.String:
			return cmp.Compare(a.String(), b.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return cmp.Compare(a.Int(), b.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return cmp.Compare(a.Uint(), b.Uint())
		case reflect.Float32, reflect.Float64:
			return cmp.Compare(a.Float(), b.Float())
		default:
			return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		}
	})
	return keys
}

package mapper

import (
	"log/slog"
	"math"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
)

var unmarshalerType = reflect.TypeFor[Unmarshaler]()

// ErrMismatch marks values that cannot be stored in the requested Go type.
var ErrMismatch = errors.New("mapper: value does not fit target")

func errNotPointer(rv reflect.Value) error {
	if !rv.IsValid() {
		return errors.New("mapper: target is nil")
	}
	return errors.Newf("mapper: target must be a non-nil pointer, got %s", rv.Type())
}

func mismatch(v hessian.Value, t reflect.Type) error {
	return errors.Mark(errors.Newf("mapper: cannot store %s in %s", v.Kind(), t), ErrMismatch)
}

// FromValue fills target, a non-nil pointer, from v.
func (m *Mapper) FromValue(v hessian.Value, target any) error {
	return m.newContext().FromValue(v, target)
}

// Unmarshal decodes data in a fresh session and fills target from it.
func (m *Mapper) Unmarshal(data []byte, target any, opts ...hessian.Option) error {
	v, err := hessian.Unmarshal(data, opts...)
	if err != nil {
		return err
	}
	return m.FromValue(v, target)
}

func (c *Context) fromValue(v hessian.Value, rv reflect.Value) error {
	if v == nil {
		v = hessian.Null{}
	}
	if rv.CanAddr() && reflect.PointerTo(rv.Type()).Implements(unmarshalerType) {
		return rv.Addr().Interface().(Unmarshaler).FromValue(c, v)
	}
	if _, ok := v.(hessian.Null); ok {
		rv.SetZero()
		return nil
	}
	switch rv.Kind() {
	case reflect.Pointer:
		if hessian.IsComposite(v) {
			key := madeKey{v: v, t: rv.Type()}
			if p, ok := c.made[key]; ok {
				rv.Set(p)
				return nil
			}
			p := reflect.New(rv.Type().Elem())
			// Registered before filling so cycles back to v find it.
			c.made[key] = p
			rv.Set(p)
			return c.fromValue(v, p.Elem())
		}
		p := reflect.New(rv.Type().Elem())
		if err := c.fromValue(v, p.Elem()); err != nil {
			return err
		}
		rv.Set(p)
		return nil
	case reflect.Interface:
		if rv.NumMethod() != 0 {
			return c.fromValueInterface(v, rv)
		}
		x, err := c.native(v)
		if err != nil {
			return err
		}
		if x == nil {
			rv.SetZero()
			return nil
		}
		rv.Set(reflect.ValueOf(x))
		return nil
	case reflect.Struct:
		if rv.Type() == timeType {
			d, ok := v.(hessian.Date)
			if !ok {
				return mismatch(v, rv.Type())
			}
			rv.Set(reflect.ValueOf(d.Time()))
			return nil
		}
		return c.fillStruct(v, rv)
	case reflect.Map:
		hm, ok := v.(*hessian.Map)
		if !ok {
			return mismatch(v, rv.Type())
		}
		if rv.IsNil() {
			rv.Set(reflect.MakeMapWithSize(rv.Type(), len(hm.Entries)))
		}
		kt, vt := rv.Type().Key(), rv.Type().Elem()
		for _, en := range hm.Entries {
			k := reflect.New(kt).Elem()
			if err := c.fromValue(en.Key, k); err != nil {
				return err
			}
			val := reflect.New(vt).Elem()
			if err := c.fromValue(en.Value, val); err != nil {
				return err
			}
			rv.SetMapIndex(k, val)
		}
		return nil
	case reflect.Slice:
		if b, ok := v.(hessian.Binary); ok && rv.Type().Elem().Kind() == reflect.Uint8 {
			rv.SetBytes(append([]byte(nil), b...))
			return nil
		}
		l, ok := v.(*hessian.List)
		if !ok {
			return mismatch(v, rv.Type())
		}
		s := reflect.MakeSlice(rv.Type(), len(l.Elems), len(l.Elems))
		for i, el := range l.Elems {
			if err := c.fromValue(el, s.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(s)
		return nil
	case reflect.Array:
		l, ok := v.(*hessian.List)
		if !ok || len(l.Elems) > rv.Len() {
			return mismatch(v, rv.Type())
		}
		for i, el := range l.Elems {
			if err := c.fromValue(el, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return setScalar(v, rv)
	}
}

// fromValueInterface stores v in a non-empty interface, which only works
// for registered types that implement it.
func (c *Context) fromValueInterface(v hessian.Value, rv reflect.Value) error {
	o, ok := v.(*hessian.Object)
	if !ok {
		return mismatch(v, rv.Type())
	}
	t, ok := c.m.registry.Lookup(o.Type)
	if !ok || !reflect.PointerTo(t).Implements(rv.Type()) {
		return mismatch(v, rv.Type())
	}
	p := reflect.New(reflect.PointerTo(t)).Elem()
	if err := c.fromValue(v, p); err != nil {
		return err
	}
	rv.Set(p)
	return nil
}

// fillStruct sets the fields of rv by name from an object, or from a map
// with string keys.
func (c *Context) fillStruct(v hessian.Value, rv reflect.Value) error {
	var get func(name string) (hessian.Value, bool)
	switch x := v.(type) {
	case *hessian.Object:
		if err := c.m.policy.Check(x.Type); err != nil {
			c.m.logger.Warn("mapper: type denied", slog.String("type", x.Type))
			return err
		}
		get = x.Get
	case *hessian.Map:
		get = func(name string) (hessian.Value, bool) { return x.Get(hessian.String(name)) }
	default:
		return mismatch(v, rv.Type())
	}
	for _, f := range c.m.layout(rv.Type()) {
		fv, ok := get(f.name)
		if !ok {
			continue
		}
		if err := c.fromValue(fv, rv.FieldByIndex(f.index)); err != nil {
			return errors.Wrapf(err, "field %s", f.name)
		}
	}
	return nil
}

func setScalar(v hessian.Value, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Bool:
		b, ok := v.(hessian.Bool)
		if !ok {
			return mismatch(v, rv.Type())
		}
		rv.SetBool(bool(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := integer(v)
		if !ok || rv.OverflowInt(n) {
			return mismatch(v, rv.Type())
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := integer(v)
		if !ok || n < 0 || rv.OverflowUint(uint64(n)) {
			return mismatch(v, rv.Type())
		}
		rv.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		var f float64
		switch x := v.(type) {
		case hessian.Double:
			f = float64(x)
		case hessian.Int32:
			f = float64(x)
		case hessian.Int64:
			f = float64(x)
		default:
			return mismatch(v, rv.Type())
		}
		if rv.OverflowFloat(f) {
			return mismatch(v, rv.Type())
		}
		rv.SetFloat(f)
	case reflect.String:
		s, ok := v.(hessian.String)
		if !ok {
			return mismatch(v, rv.Type())
		}
		rv.SetString(string(s))
	default:
		return errors.Newf("mapper: cannot decode into %s", rv.Type())
	}
	return nil
}

func integer(v hessian.Value) (int64, bool) {
	switch x := v.(type) {
	case hessian.Int32:
		return int64(x), true
	case hessian.Int64:
		return int64(x), true
	case hessian.Double:
		if f := float64(x); f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), true
		}
	}
	return 0, false
}

// native converts v to plain Go values: nil, bool, int32, int64, float64,
// time.Time, string, []byte, []any, map[any]any, and registered structs or
// map[string]any for objects. Shared composites stay shared.
func (c *Context) native(v hessian.Value) (any, error) {
	switch x := v.(type) {
	case nil, hessian.Null:
		return nil, nil
	case hessian.Bool:
		return bool(x), nil
	case hessian.Int32:
		return int32(x), nil
	case hessian.Int64:
		return int64(x), nil
	case hessian.Double:
		return float64(x), nil
	case hessian.Date:
		return x.Time(), nil
	case hessian.String:
		return string(x), nil
	case hessian.Binary:
		return []byte(x), nil
	}

	key := madeKey{v: v, t: nil}
	if p, ok := c.made[key]; ok {
		return p.Interface(), nil
	}
	switch x := v.(type) {
	case *hessian.List:
		out := make([]any, len(x.Elems))
		c.made[key] = reflect.ValueOf(out)
		for i, el := range x.Elems {
			n, err := c.native(el)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case *hessian.Map:
		out := make(map[any]any, len(x.Entries))
		c.made[key] = reflect.ValueOf(out)
		for _, en := range x.Entries {
			if en.Key != nil && (hessian.IsComposite(en.Key) || en.Key.Kind() == hessian.KindBinary) {
				return nil, errors.Newf("mapper: %s map key has no Go equivalent", en.Key.Kind())
			}
			k, err := c.native(en.Key)
			if err != nil {
				return nil, err
			}
			val, err := c.native(en.Value)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	case *hessian.Object:
		if err := c.m.policy.Check(x.Type); err != nil {
			return nil, err
		}
		if t, ok := c.m.registry.Lookup(x.Type); ok {
			p := reflect.New(t)
			c.made[key] = p
			c.made[madeKey{v: x, t: p.Type()}] = p
			if err := c.fromValue(x, p.Elem()); err != nil {
				return nil, err
			}
			return p.Interface(), nil
		}
		out := make(map[string]any, len(x.Fields))
		c.made[key] = reflect.ValueOf(out)
		for _, f := range x.Fields {
			n, err := c.native(f.Value)
			if err != nil {
				return nil, err
			}
			out[f.Name] = n
		}
		return out, nil
	default:
		return nil, errors.Newf("mapper: unknown value %T", v)
	}
}

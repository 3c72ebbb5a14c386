// Package convert translates value graphs to and from other data formats.
// Objects become maps with a "$type" entry holding the class name. The
// other formats have no references, so shared composites are written once
// per use and cycles are rejected.
package convert

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
)

// TypeKey is the map key that carries an object's class name.
const TypeKey = "$type"

// ErrCycle is returned when a graph refers back into itself.
var ErrCycle = errors.New("convert: value graph is cyclic")

// path tracks the composites on the current descent.
type path map[hessian.Value]bool

func (p path) enter(v hessian.Value) error {
	if p[v] {
		return errors.Wrapf(ErrCycle, "%s revisited", v.Kind())
	}
	p[v] = true
	return nil
}

func (p path) leave(v hessian.Value) { delete(p, v) }

// ToNative converts v to nil, bool, int32, int64, float64, time.Time,
// string, []byte, []any and map[any]any.
func ToNative(v hessian.Value) (any, error) {
	return toNative(v, path{})
}

func toNative(v hessian.Value, p path) (any, error) {
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
	if err := p.enter(v); err != nil {
		return nil, err
	}
	defer p.leave(v)
	switch x := v.(type) {
	case *hessian.List:
		out := make([]any, len(x.Elems))
		for i, el := range x.Elems {
			n, err := toNative(el, p)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case *hessian.Map:
		out := make(map[any]any, len(x.Entries))
		for _, en := range x.Entries {
			k, err := toNative(en.Key, p)
			if err != nil {
				return nil, err
			}
			switch k.(type) {
			case []byte, []any, map[any]any:
				return nil, errors.Newf("convert: %s map key is not comparable", en.Key.Kind())
			}
			val, err := toNative(en.Value, p)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	case *hessian.Object:
		out := make(map[any]any, len(x.Fields)+1)
		out[TypeKey] = x.Type
		for _, f := range x.Fields {
			val, err := toNative(f.Value, p)
			if err != nil {
				return nil, err
			}
			out[f.Name] = val
		}
		return out, nil
	default:
		return nil, errors.Newf("convert: unknown value %T", v)
	}
}

// FromNative converts plain Go values back. Integers that fit 32 bits
// become Int32. Go maps carry no order, so entries and object fields are
// sorted by key.
func FromNative(x any) (hessian.Value, error) {
	switch n := x.(type) {
	case nil:
		return hessian.Null{}, nil
	case bool:
		return hessian.Bool(n), nil
	case int:
		return integer(int64(n)), nil
	case int8:
		return hessian.Int32(n), nil
	case int16:
		return hessian.Int32(n), nil
	case int32:
		return hessian.Int32(n), nil
	case int64:
		return integer(n), nil
	case uint8:
		return hessian.Int32(n), nil
	case uint16:
		return hessian.Int32(n), nil
	case uint32:
		return integer(int64(n)), nil
	case uint:
		return unsigned(uint64(n))
	case uint64:
		return unsigned(n)
	case float32:
		return hessian.Double(n), nil
	case float64:
		return hessian.Double(n), nil
	case string:
		return hessian.String(n), nil
	case []byte:
		return hessian.Binary(n), nil
	case time.Time:
		return hessian.DateOf(n), nil
	case []any:
		l := &hessian.List{Elems: make([]hessian.Value, len(n))}
		for i, el := range n {
			v, err := FromNative(el)
			if err != nil {
				return nil, err
			}
			l.Elems[i] = v
		}
		return l, nil
	case map[string]any:
		m := make(map[any]any, len(n))
		for k, v := range n {
			m[k] = v
		}
		return fromMap(m)
	case map[any]any:
		return fromMap(n)
	default:
		return nil, errors.Newf("convert: cannot convert %T", x)
	}
}

func integer(n int64) hessian.Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return hessian.Int32(n)
	}
	return hessian.Int64(n)
}

func unsigned(n uint64) (hessian.Value, error) {
	if n > math.MaxInt64 {
		return nil, errors.Newf("convert: %d overflows a long", n)
	}
	return integer(int64(n)), nil
}

func fromMap(n map[any]any) (hessian.Value, error) {
	keys := make([]any, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b any) int {
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	})

	if typ, ok := n[TypeKey].(string); ok {
		o := &hessian.Object{Type: typ}
		for _, k := range keys {
			if k == TypeKey {
				continue
			}
			name, ok := k.(string)
			if !ok {
				return nil, errors.Newf("convert: object %s has %T field name", typ, k)
			}
			v, err := FromNative(n[k])
			if err != nil {
				return nil, err
			}
			o.Fields = append(o.Fields, hessian.Field{Name: name, Value: v})
		}
		return o, nil
	}

	m := &hessian.Map{}
	for _, k := range keys {
		kv, err := FromNative(k)
		if err != nil {
			return nil, err
		}
		v, err := FromNative(n[k])
		if err != nil {
			return nil, err
		}
		m.Put(kv, v)
	}
	return m, nil
}

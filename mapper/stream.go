package mapper

import (
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
	"github.com/dadrian/hessian/internal"
)

// Encode writes v straight to e, field by field, without building a value
// tree. Pointer and map identity is tracked in e's reference table, so it
// spans every Encode call until e is reset.
func (m *Mapper) Encode(e *hessian.Encoder, v any) error {
	c := m.newContext()
	if err := c.encode(e, reflect.ValueOf(v)); err != nil {
		return err
	}
	return e.Flush()
}

func (c *Context) encode(e *hessian.Encoder, rv reflect.Value) error {
	if !rv.IsValid() {
		return e.WriteNull()
	}
	if mv, ok := hook[Marshaler](rv, marshalerType); ok {
		v, err := mv.ToValue(c)
		if err != nil {
			return err
		}
		return e.Encode(v)
	}
	if r, ok := hook[Replacer](rv, replacerType); ok {
		return c.encodeReplacement(e, rv, r)
	}
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return e.WriteNull()
		}
		if rv.Elem().Kind() != reflect.Struct || rv.Elem().Type() == timeType {
			return c.encode(e, rv.Elem())
		}
		if i, ok := e.AddRef(identity(rv)); ok {
			return e.WriteRef(i)
		}
		return c.encodeStruct(e, rv.Elem())
	case reflect.Interface:
		if rv.IsNil() {
			return e.WriteNull()
		}
		return c.encode(e, rv.Elem())
	case reflect.Struct:
		if rv.Type() == timeType {
			return e.WriteDate(hessian.DateOf(rv.Interface().(time.Time)))
		}
		return c.encodeStruct(e, rv)
	case reflect.Map:
		if rv.IsNil() {
			return e.WriteNull()
		}
		if i, ok := e.AddRef(identity(rv)); ok {
			return e.WriteRef(i)
		}
		if err := e.WriteMapBegin(""); err != nil {
			return err
		}
		for _, k := range sortedKeys(rv) {
			if err := c.encode(e, k); err != nil {
				return err
			}
			if err := c.encode(e, rv.MapIndex(k)); err != nil {
				return err
			}
		}
		return e.WriteMapEnd()
	case reflect.Slice:
		if rv.IsNil() {
			return e.WriteNull()
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return e.WriteBytes(rv.Bytes())
		}
		fallthrough
	case reflect.Array:
		if _, err := e.WriteListBegin(rv.Len(), ""); err != nil {
			return err
		}
		for i := range rv.Len() {
			if err := c.encode(e, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		v, err := scalar(rv)
		if err != nil {
			return err
		}
		return writeScalar(e, v)
	}
}

func writeScalar(e *hessian.Encoder, v hessian.Value) error {
	switch x := v.(type) {
	case hessian.Bool:
		return e.WriteBool(bool(x))
	case hessian.Int32:
		return e.WriteInt(int32(x))
	case hessian.Int64:
		return e.WriteLong(int64(x))
	case hessian.Double:
		return e.WriteDouble(float64(x))
	case hessian.String:
		return e.WriteString(string(x))
	default:
		return e.Encode(v)
	}
}

func (c *Context) encodeStruct(e *hessian.Encoder, rv reflect.Value) error {
	name := c.m.typeName(rv)
	if err := c.m.policy.Check(name); err != nil {
		return err
	}
	w, err := e.BeginInstance(c.m.definition(rv.Type(), name))
	if err != nil {
		return err
	}
	// A definition registered earlier under the same name governs the
	// layout; fields it names that this struct lacks are written as null.
	fields := c.m.layout(rv.Type())
	for {
		field, ok := w.NextField()
		if !ok {
			break
		}
		var fv reflect.Value
		for _, f := range fields {
			if f.name == field {
				fv = rv.FieldByIndex(f.index)
				if f.omit && internal.IsZero(fv) {
					fv = reflect.Value{}
				}
				break
			}
		}
		err := w.WriteFieldFunc(field, func(e *hessian.Encoder) error { return c.encode(e, fv) })
		if err != nil {
			return errors.Wrapf(err, "field %s.%s", name, field)
		}
	}
	return w.End()
}

func (c *Context) encodeReplacement(e *hessian.Encoder, rv reflect.Value, r Replacer) error {
	shared := rv.Kind() == reflect.Pointer
	if shared {
		if i, ok := e.LookupRef(identity(rv)); ok {
			return e.WriteRef(i)
		}
	}
	sub, err := r.HessianReplace()
	if err != nil {
		return errors.Wrapf(err, "mapper: replacing %s", rv.Type())
	}
	sv := reflect.ValueOf(sub)
	if sv.IsValid() && sv.Type() == rv.Type() {
		return errors.Newf("mapper: %s replaces itself with its own type", rv.Type())
	}
	if err := c.encode(e, sv); err != nil {
		return err
	}
	if shared && (sv.Kind() == reflect.Pointer || sv.Kind() == reflect.Map) {
		e.ReplaceRef(identity(rv), identity(sv))
	}
	return nil
}

// Decode reads the next value from d straight into target, a non-nil
// pointer. Lists, maps and objects bound for slices, arrays, maps and
// structs are walked through the decoder's token calls; anything else,
// including interface and Unmarshaler targets, is read whole and converted
// as FromValue does. At a clean end of input it returns io.EOF.
func (m *Mapper) Decode(d *hessian.Decoder, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errNotPointer(rv)
	}
	c := m.newContext()
	_, err := c.decode(d, rv.Elem(), reflect.Value{})
	return err
}

// decode fills rv from the next value and returns that value. ptr, when
// valid, is the freshly allocated pointer whose element rv is; a
// back-reference to the composite being read resolves to it.
func (c *Context) decode(d *hessian.Decoder, rv, ptr reflect.Value) (hessian.Value, error) {
	tag, err := d.PeekByte()
	if err != nil {
		return nil, err
	}
	if c.depth >= hessian.DefaultMaxDepth {
		return nil, errors.Newf("mapper: values nested deeper than %d", hessian.DefaultMaxDepth)
	}
	c.depth++
	defer func() { c.depth-- }()

	switch k := rv.Kind(); {
	case tag == internal.TagRef:
		return c.decodeRef(d, rv)
	case rv.CanAddr() && reflect.PointerTo(rv.Type()).Implements(unmarshalerType):
	case k == reflect.Pointer && streamable(rv.Type().Elem()) && opensComposite(tag):
		p := reflect.New(rv.Type().Elem())
		rv.Set(p)
		return c.decode(d, p.Elem(), p)
	case k == reflect.Struct && rv.Type() != timeType && opensObject(tag):
		return c.decodeStruct(d, rv, ptr)
	case (k == reflect.Slice || k == reflect.Array) && internal.IsListTag(tag):
		return c.decodeList(d, rv, ptr)
	case k == reflect.Map && (tag == internal.TagMap || tag == internal.TagMapUntyped):
		return c.decodeMap(d, rv, ptr)
	}
	v, err := d.Decode()
	if err != nil {
		return nil, err
	}
	return v, c.fromValue(v, rv)
}

func streamable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct:
		return t != timeType
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

func opensObject(tag byte) bool {
	return tag == internal.TagClassDef || tag == internal.TagObject ||
		tag >= internal.TagObjectDirectMin && tag <= internal.TagObjectDirectMax
}

func opensComposite(tag byte) bool {
	return opensObject(tag) || internal.IsListTag(tag) ||
		tag == internal.TagMap || tag == internal.TagMapUntyped
}

// truncated turns an end of input inside a composite into
// io.ErrUnexpectedEOF.
func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// bind marks shell as being read and, for pointer targets, records the
// pointer that back-references to it resolve to.
func (c *Context) bind(shell hessian.Value, ptr reflect.Value) {
	c.open[shell] = true
	if ptr.IsValid() {
		c.made[madeKey{v: shell, t: ptr.Type()}] = ptr
	}
}

func (c *Context) decodeRef(d *hessian.Decoder, rv reflect.Value) (hessian.Value, error) {
	v, err := d.Decode()
	if err != nil {
		return nil, err
	}
	if !c.open[v] {
		return v, c.fromValue(v, rv)
	}
	key := madeKey{v: v, t: rv.Type()}
	if rv.Kind() == reflect.Interface {
		key.t = nil
	}
	if p, ok := c.made[key]; ok && p.Type().AssignableTo(rv.Type()) {
		rv.Set(p)
		return v, nil
	}
	return nil, errors.Mark(
		errors.Newf("mapper: back-reference to an unfinished %s cannot fill %s", v.Kind(), rv.Type()),
		ErrMismatch)
}

func (c *Context) decodeStruct(d *hessian.Decoder, rv, ptr reflect.Value) (hessian.Value, error) {
	r, err := d.BeginInstance()
	if err != nil {
		return nil, err
	}
	o := r.Object()
	if err := c.m.policy.Check(o.Type); err != nil {
		c.m.logger.Warn("mapper: type denied", slog.String("type", o.Type))
		return nil, err
	}
	c.bind(o, ptr)
	defer delete(c.open, o)

	fields := c.m.layout(rv.Type())
	for {
		name, ok := r.NextField()
		if !ok {
			return o, nil
		}
		var fv reflect.Value
		for _, f := range fields {
			if f.name == name {
				fv = rv.FieldByIndex(f.index)
				break
			}
		}
		var v hessian.Value
		if fv.IsValid() {
			v, err = c.decode(d, fv, reflect.Value{})
		} else {
			v, err = d.Decode()
		}
		if err != nil {
			return nil, errors.Wrapf(truncated(err), "field %s", name)
		}
		r.SetField(v)
	}
}

func (c *Context) decodeList(d *hessian.Decoder, rv, ptr reflect.Value) (hessian.Value, error) {
	h, err := d.ReadListStart()
	if err != nil {
		return nil, err
	}
	l := h.List
	c.bind(l, ptr)
	defer delete(c.open, l)

	t := rv.Type()
	isSlice := rv.Kind() == reflect.Slice
	var s reflect.Value
	if isSlice {
		s = reflect.MakeSlice(t, 0, min(max(h.Length, 0), 1024))
	}
	for i := 0; h.Length < 0 || i < h.Length; i++ {
		if h.Length < 0 {
			end, err := d.IsEnd()
			if err != nil {
				return nil, err
			}
			if end {
				if err := d.ReadEnd(); err != nil {
					return nil, err
				}
				break
			}
		}
		var el reflect.Value
		if isSlice {
			s = reflect.Append(s, reflect.Zero(t.Elem()))
			el = s.Index(i)
		} else {
			if i >= rv.Len() {
				return nil, mismatch(l, t)
			}
			el = rv.Index(i)
		}
		v, err := c.decode(d, el, reflect.Value{})
		if err != nil {
			return nil, truncated(err)
		}
		l.Elems = append(l.Elems, v)
	}
	if isSlice {
		rv.Set(s)
	}
	return l, nil
}

var anyMapType = reflect.TypeFor[map[any]any]()

func (c *Context) decodeMap(d *hessian.Decoder, rv, ptr reflect.Value) (hessian.Value, error) {
	h, err := d.ReadMapStart()
	if err != nil {
		return nil, err
	}
	m := h.Map
	c.bind(m, ptr)
	defer delete(c.open, m)

	if rv.IsNil() {
		rv.Set(reflect.MakeMap(rv.Type()))
	}
	if rv.Type() == anyMapType {
		// Interface values reaching back to m get the map itself, as
		// FromValue gives them.
		c.made[madeKey{v: m, t: nil}] = rv
	}
	kt, vt := rv.Type().Key(), rv.Type().Elem()
	for {
		end, err := d.IsEnd()
		if err != nil {
			return nil, err
		}
		if end {
			break
		}
		k := reflect.New(kt).Elem()
		kv, err := c.decode(d, k, reflect.Value{})
		if err != nil {
			return nil, truncated(err)
		}
		val := reflect.New(vt).Elem()
		vv, err := c.decode(d, val, reflect.Value{})
		if err != nil {
			return nil, truncated(err)
		}
		rv.SetMapIndex(k, val)
		m.Put(kv, vv)
	}
	if err := d.ReadEnd(); err != nil {
		return nil, err
	}
	return m, nil
}

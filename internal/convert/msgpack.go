package convert

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/dadrian/hessian"
)

// ToMsgpack writes v as MessagePack, keeping map entry and field order.
// Dates use the timestamp extension.
func ToMsgpack(v hessian.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeMsgpack(enc, v, path{}); err != nil {
		return nil, errors.Wrap(err, "convert: msgpack")
	}
	return buf.Bytes(), nil
}

func encodeMsgpack(enc *msgpack.Encoder, v hessian.Value, p path) error {
	switch x := v.(type) {
	case nil, hessian.Null:
		return enc.EncodeNil()
	case hessian.Bool:
		return enc.EncodeBool(bool(x))
	case hessian.Int32:
		return enc.EncodeInt(int64(x))
	case hessian.Int64:
		return enc.EncodeInt(int64(x))
	case hessian.Double:
		return enc.EncodeFloat64(float64(x))
	case hessian.Date:
		return enc.EncodeTime(x.Time())
	case hessian.String:
		return enc.EncodeString(string(x))
	case hessian.Binary:
		return enc.EncodeBytes(x)
	}
	if err := p.enter(v); err != nil {
		return err
	}
	defer p.leave(v)
	switch x := v.(type) {
	case *hessian.List:
		if err := enc.EncodeArrayLen(len(x.Elems)); err != nil {
			return err
		}
		for _, el := range x.Elems {
			if err := encodeMsgpack(enc, el, p); err != nil {
				return err
			}
		}
	case *hessian.Map:
		if err := enc.EncodeMapLen(len(x.Entries)); err != nil {
			return err
		}
		for _, en := range x.Entries {
			if err := encodeMsgpack(enc, en.Key, p); err != nil {
				return err
			}
			if err := encodeMsgpack(enc, en.Value, p); err != nil {
				return err
			}
		}
	case *hessian.Object:
		if err := enc.EncodeMapLen(len(x.Fields) + 1); err != nil {
			return err
		}
		if err := enc.EncodeString(TypeKey); err != nil {
			return err
		}
		if err := enc.EncodeString(x.Type); err != nil {
			return err
		}
		for _, f := range x.Fields {
			if err := enc.EncodeString(f.Name); err != nil {
				return err
			}
			if err := encodeMsgpack(enc, f.Value, p); err != nil {
				return err
			}
		}
	default:
		return errors.Newf("unknown value %T", v)
	}
	return nil
}

// FromMsgpack parses one MessagePack value, keeping map order. A map whose
// first key is "$type" with a string value becomes an Object.
func FromMsgpack(data []byte) (hessian.Value, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	v, err := decodeMsgpack(dec)
	if err != nil {
		return nil, errors.Wrap(err, "convert: msgpack")
	}
	return v, nil
}

func decodeMsgpack(dec *msgpack.Decoder) (hessian.Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		l := &hessian.List{Elems: make([]hessian.Value, 0, max(n, 0))}
		for range n {
			el, err := decodeMsgpack(dec)
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, el)
		}
		return l, nil
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		return decodeMsgpackMap(dec, n)
	default:
		x, err := dec.DecodeInterface()
		if err != nil {
			return nil, err
		}
		return FromNative(x)
	}
}

func decodeMsgpackMap(dec *msgpack.Decoder, n int) (hessian.Value, error) {
	m := &hessian.Map{}
	var o *hessian.Object
	for i := range n {
		k, err := decodeMsgpack(dec)
		if err != nil {
			return nil, err
		}
		v, err := decodeMsgpack(dec)
		if err != nil {
			return nil, err
		}
		if i == 0 && k == hessian.String(TypeKey) {
			if typ, ok := v.(hessian.String); ok {
				o = &hessian.Object{Type: string(typ)}
				continue
			}
		}
		if o == nil {
			m.Put(k, v)
			continue
		}
		name, ok := k.(hessian.String)
		if !ok {
			return nil, errors.Newf("object %s has %s field name", o.Type, k.Kind())
		}
		o.Fields = append(o.Fields, hessian.Field{Name: string(name), Value: v})
	}
	if o != nil {
		return o, nil
	}
	return m, nil
}

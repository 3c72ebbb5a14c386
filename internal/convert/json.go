package convert

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/buger/jsonparser"
	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
)

// ToJSON writes v as JSON, keeping map entry and field order. Dates become
// RFC 3339 strings and binary becomes base64. Map keys must be strings or
// numbers.
func ToJSON(v hessian.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, path{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeJSON(buf *bytes.Buffer, v hessian.Value, p path) error {
	switch x := v.(type) {
	case nil, hessian.Null:
		buf.WriteString("null")
	case hessian.Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case hessian.Int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case hessian.Int64:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case hessian.Double:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Newf("convert: %v has no JSON form", f)
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case hessian.Date:
		writeJSONString(buf, x.Time().Format(time.RFC3339Nano))
	case hessian.String:
		writeJSONString(buf, string(x))
	case hessian.Binary:
		writeJSONString(buf, base64.StdEncoding.EncodeToString(x))
	case *hessian.List:
		if err := p.enter(v); err != nil {
			return err
		}
		defer p.leave(v)
		buf.WriteByte('[')
		for i, el := range x.Elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, el, p); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *hessian.Map:
		if err := p.enter(v); err != nil {
			return err
		}
		defer p.leave(v)
		buf.WriteByte('{')
		for i, en := range x.Entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := jsonKey(en.Key)
			if err != nil {
				return err
			}
			writeJSONString(buf, key)
			buf.WriteByte(':')
			if err := writeJSON(buf, en.Value, p); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case *hessian.Object:
		if err := p.enter(v); err != nil {
			return err
		}
		defer p.leave(v)
		buf.WriteByte('{')
		writeJSONString(buf, TypeKey)
		buf.WriteByte(':')
		writeJSONString(buf, x.Type)
		for _, f := range x.Fields {
			buf.WriteByte(',')
			writeJSONString(buf, f.Name)
			buf.WriteByte(':')
			if err := writeJSON(buf, f.Value, p); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errors.Newf("convert: unknown value %T", v)
	}
	return nil
}

func jsonKey(k hessian.Value) (string, error) {
	switch x := k.(type) {
	case hessian.String:
		return string(x), nil
	case hessian.Int32:
		return strconv.FormatInt(int64(x), 10), nil
	case hessian.Int64:
		return strconv.FormatInt(int64(x), 10), nil
	case hessian.Double:
		return strconv.FormatFloat(float64(x), 'g', -1, 64), nil
	case hessian.Bool:
		return strconv.FormatBool(bool(x)), nil
	default:
		return "", errors.Newf("convert: %s map key has no JSON form", k.Kind())
	}
}

// FromJSON parses JSON into an untyped value, keeping object key order.
// Whole numbers that fit 32 bits become Int32, larger ones Int64, and all
// others Double. An object whose first key is "$type" with a string value
// becomes an Object.
func FromJSON(data []byte) (hessian.Value, error) {
	value, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, errors.Wrap(err, "convert: json")
	}
	return fromJSON(dataType, value)
}

func fromJSON(dataType jsonparser.ValueType, data []byte) (hessian.Value, error) {
	switch dataType {
	case jsonparser.Null:
		return hessian.Null{}, nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(data)
		if err != nil {
			return nil, errors.Wrap(err, "convert: json")
		}
		return hessian.Bool(b), nil
	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(data); err == nil {
			return integer(i), nil
		}
		f, err := jsonparser.ParseFloat(data)
		if err != nil {
			return nil, errors.Wrap(err, "convert: json")
		}
		return hessian.Double(f), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(data)
		if err != nil {
			return nil, errors.Wrap(err, "convert: json")
		}
		return hessian.String(s), nil
	case jsonparser.Array:
		l := &hessian.List{Elems: []hessian.Value{}}
		var inner error
		_, err := jsonparser.ArrayEach(data, func(value []byte, dt jsonparser.ValueType, _ int, err error) {
			if inner != nil {
				return
			}
			if err != nil {
				inner = err
				return
			}
			v, err := fromJSON(dt, value)
			if err != nil {
				inner = err
				return
			}
			l.Elems = append(l.Elems, v)
		})
		if err = errors.CombineErrors(inner, err); err != nil {
			return nil, errors.Wrap(err, "convert: json")
		}
		return l, nil
	case jsonparser.Object:
		return fromJSONObject(data)
	default:
		return nil, errors.Newf("convert: unexpected json %s", dataType)
	}
}

func fromJSONObject(data []byte) (hessian.Value, error) {
	m := &hessian.Map{}
	var o *hessian.Object
	first := true
	err := jsonparser.ObjectEach(data, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		if first && name == TypeKey && dt == jsonparser.String {
			typ, err := jsonparser.ParseString(value)
			if err != nil {
				return err
			}
			o = &hessian.Object{Type: typ}
			first = false
			return nil
		}
		first = false
		v, err := fromJSON(dt, value)
		if err != nil {
			return err
		}
		if o != nil {
			o.Fields = append(o.Fields, hessian.Field{Name: name, Value: v})
		} else {
			m.Put(hessian.String(name), v)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "convert: json")
	}
	if o != nil {
		return o, nil
	}
	return m, nil
}

package hessian

import (
	"strconv"

	"github.com/dadrian/hessian/internal"
)

// number is a decoded int, long or double before coercion.
type number struct {
	kind Kind
	i    int64
	f    float64
}

func (n number) value() Value {
	switch n.kind {
	case KindInt32:
		return Int32(n.i)
	case KindInt64:
		return Int64(n.i)
	default:
		return Double(n.f)
	}
}

// int32 narrows longs by truncation and doubles toward zero, saturating.
func (n number) int32() int32 {
	if n.kind == KindDouble {
		return internal.DoubleToInt32(n.f)
	}
	return int32(n.i)
}

func (n number) int64() int64 {
	if n.kind == KindDouble {
		return internal.DoubleToInt64(n.f)
	}
	return n.i
}

func (n number) float64() float64 {
	if n.kind == KindDouble {
		return n.f
	}
	return float64(n.i)
}

func (n number) String() string {
	if n.kind == KindDouble {
		return internal.FormatDouble(n.f)
	}
	return strconv.FormatInt(n.i, 10)
}

// numeric reads the operand of an int, long or double tag. ok is false when
// tag is none of those, in which case nothing is consumed.
func (d *Decoder) numeric(tag byte) (number, bool, error) {
	if k := internal.IntOperand(tag); k >= 0 {
		b, err := d.next(k)
		if err != nil {
			return number{}, true, err
		}
		return number{kind: KindInt32, i: int64(internal.DecodeInt(tag, b))}, true, nil
	}
	if k := internal.LongOperand(tag); k >= 0 {
		b, err := d.next(k)
		if err != nil {
			return number{}, true, err
		}
		return number{kind: KindInt64, i: internal.DecodeLong(tag, b)}, true, nil
	}
	if k := internal.DoubleOperand(tag); k >= 0 {
		b, err := d.next(k)
		if err != nil {
			return number{}, true, err
		}
		return number{kind: KindDouble, f: internal.DecodeDouble(tag, b)}, true, nil
	}
	return number{}, false, nil
}

// coerced reads a scalar that may be null, a bool or any number. ok is
// false for any other tag.
func (d *Decoder) coerced() (n number, tag byte, off int64, ok bool, err error) {
	off = d.Offset()
	if tag, err = d.readTag(); err != nil {
		return n, tag, off, true, err
	}
	switch tag {
	case internal.TagNull, internal.TagFalse:
		return number{kind: KindInt32}, tag, off, true, nil
	case internal.TagTrue:
		return number{kind: KindInt32, i: 1}, tag, off, true, nil
	}
	n, ok, err = d.numeric(tag)
	return n, tag, off, ok, err
}

func (d *Decoder) coercionErr(tag byte, off int64, want string) error {
	kind := KindUnsupportedCoercion
	if internal.TagName(tag) == "reserved" {
		kind = KindMalformedTag
	}
	return d.errAt(kind, tag, off, "cannot read %s as %s", internal.TagName(tag), want)
}

func (d *Decoder) readInt() (int32, error) {
	n, tag, off, ok, err := d.coerced()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, d.coercionErr(tag, off, "int")
	}
	return n.int32(), nil
}

// ReadInt reads a 32-bit integer. Null and false read as 0, true as 1,
// longs are truncated to their low 32 bits and doubles are truncated toward
// zero, saturating at the int32 bounds.
func (d *Decoder) ReadInt() (int32, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	v, err := d.readInt()
	if err != nil {
		return 0, d.fail(err)
	}
	return v, nil
}

// ReadLong reads a 64-bit integer with the same coercions as ReadInt.
func (d *Decoder) ReadLong() (int64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	n, tag, off, ok, err := d.coerced()
	if err == nil && !ok {
		err = d.coercionErr(tag, off, "long")
	}
	if err != nil {
		return 0, d.fail(err)
	}
	return n.int64(), nil
}

// ReadDouble reads a double. Integers widen; null and false read as 0.
func (d *Decoder) ReadDouble() (float64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	n, tag, off, ok, err := d.coerced()
	if err == nil && !ok {
		err = d.coercionErr(tag, off, "double")
	}
	if err != nil {
		return 0, d.fail(err)
	}
	return n.float64(), nil
}

// ReadBool reads a boolean. Null reads as false and numbers as true unless
// zero.
func (d *Decoder) ReadBool() (bool, error) {
	if err := d.ready(); err != nil {
		return false, err
	}
	n, tag, off, ok, err := d.coerced()
	if err == nil && !ok {
		err = d.coercionErr(tag, off, "bool")
	}
	if err != nil {
		return false, d.fail(err)
	}
	if n.kind == KindDouble {
		return n.f != 0, nil
	}
	return n.i != 0, nil
}

// ReadDate reads a date as milliseconds since the epoch.
func (d *Decoder) ReadDate() (Date, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	off := d.Offset()
	tag, err := d.readTag()
	if err == nil && tag != internal.TagDate && tag != internal.TagDateMinute {
		err = d.coercionErr(tag, off, "date")
	}
	var b []byte
	if err == nil {
		b, err = d.next(dateOperand(tag))
	}
	if err != nil {
		return 0, d.fail(err)
	}
	return Date(internal.DecodeDate(tag, b)), nil
}

// ReadNull consumes a null.
func (d *Decoder) ReadNull() error {
	if err := d.ready(); err != nil {
		return err
	}
	off := d.Offset()
	tag, err := d.readTag()
	if err == nil && tag != internal.TagNull {
		err = d.coercionErr(tag, off, "null")
	}
	if err != nil {
		return d.fail(err)
	}
	return nil
}

// readString reads a string, accepting null as "" and booleans and numbers
// as their decimal text.
func (d *Decoder) readString() (string, error) {
	off := d.Offset()
	tag, err := d.readTag()
	if err != nil {
		return "", err
	}
	switch {
	case isStringTag(tag):
		return d.readStringFrom(tag)
	case tag == internal.TagNull:
		return "", nil
	case tag == internal.TagTrue:
		return "true", nil
	case tag == internal.TagFalse:
		return "false", nil
	}
	n, ok, err := d.numeric(tag)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", d.coercionErr(tag, off, "string")
	}
	return n.String(), nil
}

// ReadString reads a string, reassembling chunks. Null reads as "", and
// booleans and numbers as their text.
func (d *Decoder) ReadString() (string, error) {
	if err := d.ready(); err != nil {
		return "", err
	}
	s, err := d.readString()
	if err != nil {
		return "", d.fail(err)
	}
	return s, nil
}

// ReadBytes reads a binary value, reassembling chunks. Null reads as nil.
func (d *Decoder) ReadBytes() ([]byte, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	off := d.Offset()
	tag, err := d.readTag()
	if err != nil {
		return nil, d.fail(err)
	}
	if tag == internal.TagNull {
		return nil, nil
	}
	if !isBinaryTag(tag) {
		return nil, d.fail(d.coercionErr(tag, off, "binary"))
	}
	b, err := d.readBinaryFrom(tag)
	if err != nil {
		return nil, d.fail(err)
	}
	return b, nil
}

package hessian

import (
	"io"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/dadrian/hessian/internal"
)

// openChunk sets the chunk state from a string or binary tag. The caller
// has already checked the tag family.
func (d *Decoder) openChunk(tag byte) error {
	var n int
	final := true
	switch {
	case tag <= internal.TagStringDirectMax:
		n = int(tag)
	case tag >= internal.TagBinaryDirectMin && tag <= internal.TagBinaryDirectMax:
		n = int(tag - internal.TagBinaryDirectMin)
	case tag >= internal.TagStringShortMin && tag <= internal.TagStringShortMax,
		tag >= internal.TagBinaryShortMin && tag <= internal.TagBinaryShortMax:
		b, err := d.next(1)
		if err != nil {
			return err
		}
		n = int(tag&0x03)<<8 | int(b[0])
	default:
		b, err := d.next(2)
		if err != nil {
			return err
		}
		n = int(b[0])<<8 | int(b[1])
		final = tag == internal.TagString || tag == internal.TagBinary
	}
	d.chunkLen, d.lastChunk = n, final
	d.chunkBinary = isBinaryTag(tag)
	return nil
}

// advance moves past exhausted chunks. It returns false once the final
// chunk is used up, closing the value.
func (d *Decoder) advance() (bool, error) {
	for d.chunkLen == 0 {
		if d.lastChunk {
			d.chunkLen = -1
			return false, nil
		}
		off := d.Offset()
		tag, err := d.readTag()
		if err != nil {
			return false, err
		}
		if d.chunkBinary && !isBinaryTag(tag) || !d.chunkBinary && !isStringTag(tag) {
			return false, d.errAt(KindMalformedTag, tag, off, "expected a continuation chunk")
		}
		if err := d.openChunk(tag); err != nil {
			return false, err
		}
	}
	return d.chunkLen > 0, nil
}

// readUnit reads one UTF-16 unit of the open string.
func (d *Decoder) readUnit() (uint16, error) {
	off := d.Offset()
	lead, err := d.readTag()
	if err != nil {
		return 0, err
	}
	size := internal.UnitSize(lead)
	if size < 0 {
		return 0, d.errAt(KindMalformedTag, lead, off, "invalid string byte")
	}
	d.chunkLen--
	if size == 1 {
		return uint16(lead), nil
	}
	rest, err := d.next(size - 1)
	if err != nil {
		return 0, err
	}
	seq := [3]byte{lead}
	copy(seq[1:], rest)
	u, ok := internal.DecodeUnit(seq[:size])
	if !ok {
		return 0, d.errAt(KindMalformedTag, lead, off, "invalid string continuation byte")
	}
	return u, nil
}

func (d *Decoder) readStringFrom(tag byte) (string, error) {
	if err := d.openChunk(tag); err != nil {
		return "", err
	}
	units := make([]uint16, 0, d.chunkLen)
	for {
		more, err := d.advance()
		if err != nil {
			return "", err
		}
		if !more {
			return internal.UnitsString(units), nil
		}
		u, err := d.readUnit()
		if err != nil {
			return "", err
		}
		units = append(units, u)
	}
}

// readChunkBytes reads up to len(p) bytes of the open binary.
func (d *Decoder) readChunkBytes(p []byte) (int, error) {
	more, err := d.advance()
	if err != nil {
		return 0, err
	}
	if !more {
		return 0, io.EOF
	}
	b, err := d.next(min(len(p), d.chunkLen, readAhead))
	if err != nil {
		return 0, err
	}
	d.chunkLen -= len(b)
	return copy(p, b), nil
}

func (d *Decoder) readBinaryFrom(tag byte) ([]byte, error) {
	if err := d.openChunk(tag); err != nil {
		return nil, err
	}
	out := make([]byte, 0, d.chunkLen)
	for {
		more, err := d.advance()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		b, err := d.next(d.chunkLen)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		d.chunkLen = 0
	}
}

// skipChunks discards the rest of an open string or binary.
func (d *Decoder) skipChunks() error {
	for {
		more, err := d.advance()
		if err != nil || !more {
			return err
		}
		if d.chunkBinary {
			if _, err := d.next(d.chunkLen); err != nil {
				return err
			}
			d.chunkLen = 0
			continue
		}
		if _, err := d.readUnit(); err != nil {
			return err
		}
	}
}

// ReadStringStream starts reading a string and returns a reader over its
// runes that pulls one chunk at a time. The string must be read to io.EOF
// before the next read on d, or its rest is skipped. Null reads as an
// empty stream.
func (d *Decoder) ReadStringStream() (io.RuneReader, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	off := d.Offset()
	tag, err := d.readTag()
	if err != nil {
		return nil, d.fail(err)
	}
	if tag == internal.TagNull {
		return strings.NewReader(""), nil
	}
	if !isStringTag(tag) {
		return nil, d.fail(d.coercionErr(tag, off, "string"))
	}
	if err := d.openChunk(tag); err != nil {
		return nil, d.fail(err)
	}
	return &stringStream{d: d}, nil
}

type stringStream struct {
	d       *Decoder
	pending uint16 // read past an unpaired high surrogate
	held    bool
}

func (s *stringStream) unit() (uint16, bool, error) {
	if s.held {
		s.held = false
		return s.pending, true, nil
	}
	if s.d.err != nil {
		return 0, false, s.d.err
	}
	more, err := s.d.advance()
	if err != nil {
		return 0, false, s.d.fail(err)
	}
	if !more {
		return 0, false, nil
	}
	u, err := s.d.readUnit()
	if err != nil {
		return 0, false, s.d.fail(err)
	}
	return u, true, nil
}

func (s *stringStream) ReadRune() (rune, int, error) {
	u, ok, err := s.unit()
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, io.EOF
	}
	r := rune(u)
	if utf16.IsSurrogate(r) && u < 0xdc00 {
		lo, ok, err := s.unit()
		if err != nil {
			return 0, 0, err
		}
		if ok {
			if pair := utf16.DecodeRune(r, rune(lo)); pair != utf8.RuneError {
				return pair, utf8.RuneLen(pair), nil
			}
			s.pending, s.held = lo, true
		}
		r = utf8.RuneError
	} else if utf16.IsSurrogate(r) {
		r = utf8.RuneError
	}
	return r, utf8.RuneLen(r), nil
}

// ReadBytesStream starts reading a binary value and returns a reader over
// its bytes; see ReadStringStream.
func (d *Decoder) ReadBytesStream() (io.Reader, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	off := d.Offset()
	tag, err := d.readTag()
	if err != nil {
		return nil, d.fail(err)
	}
	if tag == internal.TagNull {
		return strings.NewReader(""), nil
	}
	if !isBinaryTag(tag) {
		return nil, d.fail(d.coercionErr(tag, off, "binary"))
	}
	if err := d.openChunk(tag); err != nil {
		return nil, d.fail(err)
	}
	return binaryStream{d}, nil
}

type binaryStream struct{ d *Decoder }

func (s binaryStream) Read(p []byte) (int, error) {
	if s.d.err != nil {
		return 0, s.d.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.d.readChunkBytes(p)
	if err != nil && err != io.EOF {
		return n, s.d.fail(err)
	}
	return n, err
}

// ListHeader describes a list started with ReadListStart.
type ListHeader struct {
	Type string
	// Length is -1 for a variable-length list, which ends at ReadEnd.
	Length int
	// Ref is the reference index reserved for the list.
	Ref int
	// List is the composite a back-reference to Ref resolves to. Callers
	// append the elements they read to it, or replace it with SetRef.
	List *List
}

// ReadListStart reads a list header and reserves its reference index for
// an empty list of the header's type.
func (d *Decoder) ReadListStart() (ListHeader, error) {
	if err := d.ready(); err != nil {
		return ListHeader{}, err
	}
	off := d.Offset()
	tag, err := d.readTag()
	if err == nil && !isListTag(tag) {
		err = d.coercionErr(tag, off, "list")
	}
	var h ListHeader
	if err == nil {
		h, err = d.listHeader(tag)
	}
	if err != nil {
		return ListHeader{}, d.fail(err)
	}
	h.List = &List{Type: h.Type}
	h.Ref = d.refs.reserve(h.List)
	return h, nil
}

// MapHeader describes a map started with ReadMapStart. Map is what a
// back-reference to Ref resolves to; see ListHeader.
type MapHeader struct {
	Type string
	Ref  int
	Map  *Map
}

// ReadMapStart reads a map header and reserves its reference index for an
// empty map of the header's type. The entries end at ReadEnd.
func (d *Decoder) ReadMapStart() (MapHeader, error) {
	if err := d.ready(); err != nil {
		return MapHeader{}, err
	}
	off := d.Offset()
	tag, err := d.readTag()
	var h MapHeader
	switch {
	case err != nil:
	case tag == internal.TagMap:
		h.Type, err = d.readType()
	case tag != internal.TagMapUntyped:
		err = d.coercionErr(tag, off, "map")
	}
	if err != nil {
		return MapHeader{}, d.fail(err)
	}
	h.Map = &Map{Type: h.Type}
	h.Ref = d.refs.reserve(h.Map)
	return h, nil
}

// IsEnd reports whether the next byte ends a list or map, without
// consuming it. End of input also counts as the end.
func (d *Decoder) IsEnd() (bool, error) {
	c, err := d.PeekByte()
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return c == internal.TagEnd, nil
}

// ReadEnd consumes the terminator of a variable-length list or a map.
func (d *Decoder) ReadEnd() error {
	if err := d.ready(); err != nil {
		return err
	}
	off := d.Offset()
	tag, err := d.readTag()
	if err == nil && tag != internal.TagEnd {
		err = d.errAt(KindMalformedTag, tag, off, "expected end of list or map")
	}
	if err != nil {
		return d.fail(err)
	}
	return nil
}

// InstanceReader walks the fields of an object started with BeginInstance.
// After each NextField the caller reads exactly one value.
type InstanceReader struct {
	def  ClassDefinition
	obj  *Object
	ref  int
	next int
}

// BeginInstance reads any class definitions that precede an object, then
// its instance header, and reserves the object's reference index.
func (d *Decoder) BeginInstance() (*InstanceReader, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	for {
		off := d.Offset()
		tag, err := d.readTag()
		if err != nil {
			return nil, d.fail(err)
		}
		if tag == internal.TagClassDef {
			if err := d.readClassDef(); err != nil {
				return nil, d.fail(err)
			}
			continue
		}
		if tag != internal.TagObject && !isObjectDirect(tag) {
			return nil, d.fail(d.coercionErr(tag, off, "object"))
		}
		idx, err := d.instanceIndex(tag, off)
		if err != nil {
			return nil, d.fail(err)
		}
		def := d.classes[idx]
		o := &Object{Type: def.Type, Fields: make([]Field, len(def.Fields))}
		for i, name := range def.Fields {
			o.Fields[i] = Field{Name: name, Value: Null{}}
		}
		return &InstanceReader{def: def, obj: o, ref: d.refs.reserve(o)}, nil
	}
}

// Definition returns the class definition of the object.
func (r *InstanceReader) Definition() ClassDefinition { return r.def }

// Ref returns the object's reserved reference index.
func (r *InstanceReader) Ref() int { return r.ref }

// Object returns the object a back-reference to Ref resolves to. Its
// fields are named from the definition and start as Null; SetField fills
// them in place.
func (r *InstanceReader) Object() *Object { return r.obj }

// SetField stores the value of the field last returned by NextField.
func (r *InstanceReader) SetField(v Value) {
	if r.next > 0 {
		r.obj.Fields[r.next-1].Value = v
	}
}

// NextField returns the name of the next field, or false when all fields
// have been read.
func (r *InstanceReader) NextField() (string, bool) {
	if r.next >= len(r.def.Fields) {
		return "", false
	}
	r.next++
	return r.def.Fields[r.next-1], true
}

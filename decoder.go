package hessian

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian/internal"
)

const readAhead = 4096

// Decoder reads values from an io.Reader. It is not safe for concurrent use.
// It buffers input, so bytes past the last value read may already have been
// consumed from the underlying reader.
type Decoder struct {
	r    io.Reader
	buf  []byte
	pos  int
	base int64 // stream offset of buf[0]
	opts options

	refs    refList
	classes []ClassDefinition
	types   []string
	depth   int

	// State of an open string or binary. chunkLen counts units or bytes
	// left in the current chunk and is -1 when nothing is open.
	chunkLen    int
	lastChunk   bool
	chunkBinary bool

	err error
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	return &Decoder{r: r, opts: buildOptions(opts), chunkLen: -1}
}

// Decode reads the next value. At a clean end of input it returns io.EOF.
func (d *Decoder) Decode() (Value, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if err := d.fill(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, d.fail(err)
	}
	v, err := d.readValue()
	if err != nil {
		return nil, d.fail(err)
	}
	return v, nil
}

// Offset returns the stream offset of the next unread byte.
func (d *Decoder) Offset() int64 { return d.base + int64(d.pos) }

// Reset clears all session tables, any open chunk, and any sticky error.
// Buffered input is kept.
func (d *Decoder) Reset() {
	d.opts.logger.Debug("hessian: decoder session reset",
		slog.Int("refs", len(d.refs)),
		slog.Int("classes", len(d.classes)),
		slog.Int("types", len(d.types)))
	d.refs = d.refs[:0]
	d.classes = d.classes[:0]
	d.types = d.types[:0]
	d.chunkLen, d.lastChunk = -1, false
	d.err = nil
}

// ResetReferences clears only the reference table.
func (d *Decoder) ResetReferences() {
	d.refs = d.refs[:0]
}

// PeekByte returns the next raw byte without consuming it.
func (d *Decoder) PeekByte() (byte, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	if err := d.fill(1); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, d.fail(err)
	}
	return d.buf[d.pos], nil
}

// ReadByte consumes one raw byte outside the value grammar.
func (d *Decoder) ReadByte() (byte, error) {
	c, err := d.PeekByte()
	if err != nil {
		return 0, err
	}
	d.pos++
	return c, nil
}

// AddRef reserves the next reference index for v. A back-reference that
// reaches the slot while v is still nil is an error, so callers building
// a composite in place should reserve it with its empty shell.
func (d *Decoder) AddRef(v Value) int { return d.refs.reserve(v) }

// SetRef replaces the value at index i.
func (d *Decoder) SetRef(i int, v Value) error {
	if !d.refs.set(i, v) {
		return errorf(KindUnknownReference, d.Offset(), "ref %d set with %d refs", i, len(d.refs))
	}
	return nil
}

// Ref returns the value at index i.
func (d *Decoder) Ref(i int) (Value, error) {
	v, ok := d.refs.get(i)
	if !ok {
		return nil, errorf(KindUnknownReference, d.Offset(), "ref %d of %d", i, len(d.refs))
	}
	return v, nil
}

// readValue reads one complete value, dispatching on its tag.
func (d *Decoder) readValue() (Value, error) {
	off := d.Offset()
	tag, err := d.readTag()
	if err != nil {
		return nil, err
	}
	if isCompositeTag(tag) {
		if d.depth >= d.opts.maxDepth {
			return nil, d.errAt(KindMalformedTag, tag, off, "composites nested deeper than %d", d.opts.maxDepth)
		}
		d.depth++
		defer func() { d.depth-- }()
	}
	switch {
	case tag == internal.TagNull:
		return Null{}, nil
	case tag == internal.TagTrue:
		return Bool(true), nil
	case tag == internal.TagFalse:
		return Bool(false), nil
	case tag == internal.TagDate || tag == internal.TagDateMinute:
		b, err := d.next(dateOperand(tag))
		if err != nil {
			return nil, err
		}
		return Date(internal.DecodeDate(tag, b)), nil
	case isStringTag(tag):
		s, err := d.readStringFrom(tag)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case isBinaryTag(tag):
		b, err := d.readBinaryFrom(tag)
		if err != nil {
			return nil, err
		}
		return Binary(b), nil
	case isListTag(tag):
		return d.readList(tag)
	case tag == internal.TagMap || tag == internal.TagMapUntyped:
		return d.readMap(tag)
	case tag == internal.TagClassDef:
		if err := d.readClassDef(); err != nil {
			return nil, err
		}
		return d.readValue()
	case tag == internal.TagObject || isObjectDirect(tag):
		idx, err := d.instanceIndex(tag, off)
		if err != nil {
			return nil, err
		}
		return d.readObject(idx)
	case tag == internal.TagRef:
		i, err := d.readInt()
		if err != nil {
			return nil, err
		}
		v, ok := d.refs.get(int(i))
		if !ok {
			return nil, d.errAt(KindUnknownReference, tag, off, "ref %d with %d refs", i, len(d.refs))
		}
		if v == nil {
			return nil, d.errAt(KindUnknownReference, tag, off, "ref %d is reserved but not set", i)
		}
		return v, nil
	}
	n, ok, err := d.numeric(tag)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, d.errAt(KindMalformedTag, tag, off, "unexpected tag")
	}
	return n.value(), nil
}

func (d *Decoder) readList(tag byte) (Value, error) {
	h, err := d.listHeader(tag)
	if err != nil {
		return nil, err
	}
	l := &List{Type: h.Type}
	i := d.refs.reserve(l)
	if h.Length >= 0 {
		l.Elems = make([]Value, 0, min(h.Length, 1024))
		for range h.Length {
			v, err := d.readValue()
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, v)
		}
	} else {
		for {
			end, err := d.atEnd()
			if err != nil {
				return nil, err
			}
			if end {
				break
			}
			v, err := d.readValue()
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, v)
		}
	}
	d.refs.set(i, l)
	return l, nil
}

// listHeader reads what follows a list tag.
func (d *Decoder) listHeader(tag byte) (ListHeader, error) {
	h := ListHeader{Length: -1}
	var err error
	switch {
	case tag == internal.TagListVariable:
		h.Type, err = d.readType()
	case tag == internal.TagListVariableUntyped:
	case tag == internal.TagListFixed:
		if h.Type, err = d.readType(); err == nil {
			h.Length, err = d.readLength()
		}
	case tag == internal.TagListFixedUntyped:
		h.Length, err = d.readLength()
	case tag >= internal.TagListDirectMin && tag <= internal.TagListDirectMax:
		h.Length = int(tag - internal.TagListDirectMin)
		h.Type, err = d.readType()
	default:
		h.Length = int(tag - internal.TagListDirectUntyped)
	}
	return h, err
}

func (d *Decoder) readLength() (int, error) {
	off := d.Offset()
	n, err := d.readInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errorf(KindMalformedTag, off, "negative length %d", n)
	}
	return int(n), nil
}

func (d *Decoder) readMap(tag byte) (Value, error) {
	m := &Map{}
	if tag == internal.TagMap {
		typ, err := d.readType()
		if err != nil {
			return nil, err
		}
		m.Type = typ
	}
	i := d.refs.reserve(m)
	for {
		end, err := d.atEnd()
		if err != nil {
			return nil, err
		}
		if end {
			break
		}
		k, err := d.readValue()
		if err != nil {
			return nil, err
		}
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, Entry{Key: k, Value: v})
	}
	d.refs.set(i, m)
	return m, nil
}

// readType reads the type of a typed list or map header: a string on first
// use, an index into the type table afterwards.
func (d *Decoder) readType() (string, error) {
	off := d.Offset()
	tag, err := d.readTag()
	if err != nil {
		return "", err
	}
	if isStringTag(tag) {
		typ, err := d.readStringFrom(tag)
		if err != nil {
			return "", err
		}
		d.types = append(d.types, typ)
		d.opts.logger.Debug("hessian: type name registered",
			slog.String("type", typ),
			slog.Int("index", len(d.types)-1))
		return typ, nil
	}
	if internal.IntOperand(tag) < 0 {
		return "", d.errAt(KindMalformedTag, tag, off, "expected type name or index")
	}
	b, err := d.next(internal.IntOperand(tag))
	if err != nil {
		return "", err
	}
	i := internal.DecodeInt(tag, b)
	if i < 0 || int(i) >= len(d.types) {
		return "", d.errAt(KindUnknownClassDefinition, tag, off, "type %d of %d", i, len(d.types))
	}
	return d.types[i], nil
}

// readClassDef reads a class definition after its tag and registers it.
func (d *Decoder) readClassDef() error {
	typ, err := d.readString()
	if err != nil {
		return err
	}
	n, err := d.readLength()
	if err != nil {
		return err
	}
	def := ClassDefinition{Type: typ, Fields: make([]string, 0, min(n, 256))}
	for range n {
		name, err := d.readString()
		if err != nil {
			return err
		}
		def.Fields = append(def.Fields, name)
	}
	d.classes = append(d.classes, def)
	d.opts.logger.Debug("hessian: class defined",
		slog.String("type", typ),
		slog.Int("index", len(d.classes)-1),
		slog.Int("fields", n))
	return nil
}

// instanceIndex resolves the class index of an instance tag.
func (d *Decoder) instanceIndex(tag byte, off int64) (int, error) {
	idx := int(tag - internal.TagObjectDirectMin)
	if tag == internal.TagObject {
		i, err := d.readInt()
		if err != nil {
			return 0, err
		}
		idx = int(i)
	}
	if idx < 0 || idx >= len(d.classes) {
		return 0, d.errAt(KindUnknownClassDefinition, tag, off, "class %d of %d", idx, len(d.classes))
	}
	return idx, nil
}

func (d *Decoder) readObject(idx int) (Value, error) {
	def := d.classes[idx]
	o := &Object{Type: def.Type, Fields: make([]Field, len(def.Fields))}
	i := d.refs.reserve(o)
	for j, name := range def.Fields {
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		o.Fields[j] = Field{Name: name, Value: v}
	}
	d.refs.set(i, o)
	return o, nil
}

// atEnd consumes a 'Z' if it is next. End of input is a truncation here.
func (d *Decoder) atEnd() (bool, error) {
	if err := d.fill(1); err != nil {
		return false, d.ioErr(err)
	}
	if d.buf[d.pos] == internal.TagEnd {
		d.pos++
		return true, nil
	}
	return false, nil
}

func (d *Decoder) ready() error {
	if d.err != nil {
		return d.err
	}
	if d.chunkLen >= 0 {
		// The unread rest of an open string or binary is skipped.
		if err := d.skipChunks(); err != nil {
			return d.fail(err)
		}
	}
	return nil
}

func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

// fill makes at least n unread bytes available in buf.
func (d *Decoder) fill(n int) error {
	if len(d.buf)-d.pos >= n {
		return nil
	}
	if d.pos > 0 {
		m := copy(d.buf, d.buf[d.pos:])
		d.base += int64(d.pos)
		d.buf = d.buf[:m]
		d.pos = 0
	}
	if cap(d.buf) < n {
		grown := make([]byte, len(d.buf), max(n, readAhead))
		copy(grown, d.buf)
		d.buf = grown
	}
	for len(d.buf) < n {
		k, err := d.r.Read(d.buf[len(d.buf):cap(d.buf)])
		d.buf = d.buf[:len(d.buf)+k]
		if err != nil {
			if len(d.buf) >= n {
				return nil
			}
			return err
		}
	}
	return nil
}

// next consumes n bytes. The result is only valid until the next read.
func (d *Decoder) next(n int) ([]byte, error) {
	if err := d.fill(n); err != nil {
		return nil, d.ioErr(err)
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// readTag consumes the tag byte of a value that must be present.
func (d *Decoder) readTag() (byte, error) {
	b, err := d.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ioErr turns end of input inside a token into a truncation error.
func (d *Decoder) ioErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{
			Kind:    KindTruncatedStream,
			Offset:  d.base + int64(len(d.buf)),
			Context: d.context(d.base + int64(len(d.buf))),
			Detail:  "input ended inside a value",
		}
	}
	return err
}

func (d *Decoder) errAt(kind ErrorKind, tag byte, off int64, format string, args ...any) *Error {
	e := errorf(kind, off, format, args...)
	e.Tag, e.HasTag = tag, true
	e.Context = d.context(off)
	return e
}

// context copies up to 8 buffered bytes either side of off.
func (d *Decoder) context(off int64) []byte {
	lo := max(off-8, d.base)
	hi := min(off+8, d.base+int64(len(d.buf)))
	if lo >= hi {
		return nil
	}
	return append([]byte(nil), d.buf[lo-d.base:hi-d.base]...)
}

func dateOperand(tag byte) int {
	if tag == internal.TagDateMinute {
		return 4
	}
	return 8
}

func isStringTag(t byte) bool {
	return t <= internal.TagStringDirectMax ||
		t >= internal.TagStringShortMin && t <= internal.TagStringShortMax ||
		t == internal.TagString || t == internal.TagStringChunk
}

func isBinaryTag(t byte) bool {
	return t >= internal.TagBinaryDirectMin && t <= internal.TagBinaryDirectMax ||
		t >= internal.TagBinaryShortMin && t <= internal.TagBinaryShortMax ||
		t == internal.TagBinary || t == internal.TagBinaryChunk
}

func isListTag(t byte) bool { return internal.IsListTag(t) }

// isCompositeTag reports whether t opens a list, map or object, or the
// class definition that precedes one.
func isCompositeTag(t byte) bool {
	return isListTag(t) || t == internal.TagMap || t == internal.TagMapUntyped ||
		t == internal.TagClassDef || t == internal.TagObject || isObjectDirect(t)
}

func isObjectDirect(t byte) bool {
	return t >= internal.TagObjectDirectMin && t <= internal.TagObjectDirectMax
}

package hessian

import (
	"io"
	"log/slog"

	"github.com/dadrian/hessian/internal"
)

const flushThreshold = 4096

// Encoder writes values to an io.Writer. It is not safe for concurrent use.
// Its reference, class and type-name tables live until Reset, so everything
// written between resets is one session.
type Encoder struct {
	w    io.Writer
	buf  []byte
	opts options

	refs    refMap
	claimed bool // the next composite header already has a ref index

	classes     nameMap
	classFields [][]string
	pending     int // class index whose definition is being written, or -1
	pendingN    int // field names still expected; -1 until the count is written

	types nameMap

	substituting map[Value]bool
	err          error
}

// NewEncoder creates an encoder that writes to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	return &Encoder{w: w, opts: buildOptions(opts), pending: -1}
}

// Encode writes v and flushes.
func (e *Encoder) Encode(v Value) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.writeValue(v); err != nil {
		return e.fail(err)
	}
	return e.Flush()
}

// Flush writes any buffered bytes to the underlying writer.
func (e *Encoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	if len(e.buf) == 0 {
		return nil
	}
	_, err := e.w.Write(e.buf)
	e.buf = e.buf[:0]
	if err != nil {
		return e.fail(err)
	}
	return nil
}

// Reset clears all session tables and any sticky error. Buffered bytes are
// discarded.
func (e *Encoder) Reset() {
	e.opts.logger.Debug("hessian: encoder session reset",
		slog.Int("refs", e.refs.next),
		slog.Int("classes", e.classes.len()),
		slog.Int("types", e.types.len()))
	e.refs.reset()
	e.classes.reset()
	e.classFields = e.classFields[:0]
	e.types.reset()
	e.claimed = false
	e.pending, e.pendingN = -1, 0
	e.buf = e.buf[:0]
	e.err = nil
}

// ResetReferences clears only the reference table, keeping class and
// type-name definitions for the next message.
func (e *Encoder) ResetReferences() {
	e.refs.reset()
	e.claimed = false
}

// WriteByte appends a raw byte outside the value grammar. It exists for
// envelope layers that frame values with their own tags.
func (e *Encoder) WriteByte(c byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.buf = append(e.buf, c)
	return e.maybeFlush()
}

func (e *Encoder) WriteNull() error {
	return e.emit(func() { e.buf = append(e.buf, internal.TagNull) })
}

func (e *Encoder) WriteBool(v bool) error {
	return e.emit(func() { e.appendBool(v) })
}

func (e *Encoder) WriteInt(v int32) error {
	return e.emit(func() { e.buf = internal.AppendInt(e.buf, v) })
}

func (e *Encoder) WriteLong(v int64) error {
	return e.emit(func() { e.buf = internal.AppendLong(e.buf, v) })
}

func (e *Encoder) WriteDouble(v float64) error {
	return e.emit(func() { e.buf = internal.AppendDouble(e.buf, v) })
}

func (e *Encoder) WriteDate(v Date) error {
	return e.emit(func() { e.buf = internal.AppendDate(e.buf, int64(v)) })
}

// WriteString writes s, chunking it when it exceeds the chunk size. While
// a class definition is open, WriteString supplies its field names.
func (e *Encoder) WriteString(s string) error {
	if e.err != nil {
		return e.err
	}
	if e.pending >= 0 {
		if e.pendingN <= 0 {
			return e.fail(e.orderingf("string written before the field count of class %q", e.classes.names[e.pending]))
		}
		e.classFields[e.pending] = append(e.classFields[e.pending], s)
		e.pendingN--
		e.appendString(s)
		if e.pendingN == 0 {
			e.finishDefinition()
		}
		return e.maybeFlush()
	}
	return e.emit(func() { e.appendString(s) })
}

// WriteStringChunk writes part of a string whose total length is not known
// up front. The last part must be written with final set.
func (e *Encoder) WriteStringChunk(s string, final bool) error {
	return e.emit(func() { e.appendUnits(internal.Units(s), final) })
}

// WriteBytes writes b as a binary value.
func (e *Encoder) WriteBytes(b []byte) error {
	return e.WriteBytesChunk(b, true)
}

// WriteBytesChunk writes part of a binary value; see WriteStringChunk.
func (e *Encoder) WriteBytesChunk(b []byte, final bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.appendBinary(b, final); err != nil {
		return err
	}
	return e.maybeFlush()
}

// WriteListBegin writes a list header. A negative length starts a
// variable-length list, which must be closed with WriteListEnd; the
// return value reports whether that is required. An empty typ writes an
// untyped list.
func (e *Encoder) WriteListBegin(length int, typ string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	e.claimRef()
	variable := e.appendListHeader(length, typ)
	return variable, e.maybeFlush()
}

// WriteListEnd terminates a variable-length list.
func (e *Encoder) WriteListEnd() error {
	return e.emit(func() { e.buf = append(e.buf, internal.TagEnd) })
}

// WriteMapBegin writes a map header; close it with WriteMapEnd.
func (e *Encoder) WriteMapBegin(typ string) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.claimRef()
	e.appendMapHeader(typ)
	return e.maybeFlush()
}

// WriteMapEnd terminates a map.
func (e *Encoder) WriteMapEnd() error {
	return e.emit(func() { e.buf = append(e.buf, internal.TagEnd) })
}

// AddRef looks up key in the reference table. If present it returns the
// index and true, and the caller should write WriteRef instead of the
// value. Otherwise key gets the next index, which the next composite header
// written uses. key must be comparable.
func (e *Encoder) AddRef(key any) (int, bool) {
	i, ok := e.refs.add(key)
	if !ok {
		e.claimed = true
	}
	return i, ok
}

// LookupRef returns the index of key without assigning one.
func (e *Encoder) LookupRef(key any) (int, bool) { return e.refs.lookup(key) }

// ReplaceRef makes later references to orig resolve to the index held by
// subst. It reports whether subst had an index.
func (e *Encoder) ReplaceRef(orig, subst any) bool { return e.refs.alias(orig, subst) }

// RemoveRef forgets key. Its index stays allocated.
func (e *Encoder) RemoveRef(key any) bool { return e.refs.remove(key) }

// WriteRef writes a back-reference to an already written composite.
func (e *Encoder) WriteRef(index int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if index < 0 || index >= e.refs.next {
		return e.fail(errorf(KindUnknownReference, -1, "ref %d written with %d refs assigned", index, e.refs.next))
	}
	e.appendRef(index)
	return e.maybeFlush()
}

func (e *Encoder) emit(f func()) error {
	if err := e.ready(); err != nil {
		return err
	}
	f()
	if e.err != nil {
		return e.err
	}
	return e.maybeFlush()
}

func (e *Encoder) ready() error {
	if e.err != nil {
		return e.err
	}
	if e.pending >= 0 {
		return e.fail(e.orderingf("class %q definition is incomplete", e.classes.names[e.pending]))
	}
	return nil
}

func (e *Encoder) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	return e.err
}

func (e *Encoder) maybeFlush() error {
	if len(e.buf) < flushThreshold {
		return nil
	}
	return e.Flush()
}

func (e *Encoder) orderingf(format string, args ...any) *Error {
	return errorf(KindEncodingOrderingViolation, -1, format, args...)
}

func (e *Encoder) claimRef() {
	if e.claimed {
		e.claimed = false
		return
	}
	e.refs.next++
}

// writeValue walks v depth first.
func (e *Encoder) writeValue(v Value) error {
	switch x := v.(type) {
	case nil, Null:
		e.buf = append(e.buf, internal.TagNull)
	case Bool:
		e.appendBool(bool(x))
	case Int32:
		e.buf = internal.AppendInt(e.buf, int32(x))
	case Int64:
		e.buf = internal.AppendLong(e.buf, int64(x))
	case Double:
		e.buf = internal.AppendDouble(e.buf, float64(x))
	case Date:
		e.buf = internal.AppendDate(e.buf, int64(x))
	case String:
		e.appendString(string(x))
	case Binary:
		return e.appendBinary(x, true)
	case *List:
		if x == nil {
			e.buf = append(e.buf, internal.TagNull)
			break
		}
		return e.writeComposite(x, func() error {
			e.appendListHeader(len(x.Elems), x.Type)
			for _, el := range x.Elems {
				if err := e.writeValue(el); err != nil {
					return err
				}
			}
			return nil
		})
	case *Map:
		if x == nil {
			e.buf = append(e.buf, internal.TagNull)
			break
		}
		return e.writeComposite(x, func() error {
			e.appendMapHeader(x.Type)
			for _, en := range x.Entries {
				if err := e.writeValue(en.Key); err != nil {
					return err
				}
				if err := e.writeValue(en.Value); err != nil {
					return err
				}
			}
			e.buf = append(e.buf, internal.TagEnd)
			return nil
		})
	case *Object:
		if x == nil {
			e.buf = append(e.buf, internal.TagNull)
			break
		}
		return e.writeComposite(x, func() error { return e.writeObject(x) })
	default:
		return errorf(KindUnsupportedCoercion, -1, "cannot encode %T", v)
	}
	return e.maybeFlush()
}

// writeComposite handles sharing and substitution before body writes the
// header and children.
func (e *Encoder) writeComposite(v Value, body func() error) error {
	if i, ok := e.refs.lookup(v); ok {
		e.appendRef(i)
		return e.maybeFlush()
	}
	if e.opts.substitute != nil && !e.substituting[v] {
		if sub, ok := e.opts.substitute(v); ok && sub != v {
			if e.substituting == nil {
				e.substituting = make(map[Value]bool)
			}
			e.substituting[v] = true
			err := e.writeValue(sub)
			delete(e.substituting, v)
			if err != nil {
				return err
			}
			if IsComposite(sub) {
				e.refs.alias(v, sub)
			}
			return nil
		}
	}
	if e.claimed {
		// A caller's AddRef already reserved this composite's index.
		e.claimed = false
		e.refs.bindLast(v)
	} else {
		e.refs.add(v)
	}
	if err := body(); err != nil {
		return err
	}
	return e.maybeFlush()
}

// writeObject writes a definition on first use of the type, then an
// instance whose fields follow the session's definition for that type.
func (e *Encoder) writeObject(o *Object) error {
	idx, ok := e.classes.lookup(o.Type)
	if !ok {
		idx = e.defineClass(ClassDefinition{Type: o.Type, Fields: o.FieldNames()})
	}
	e.appendInstance(idx)
	fields := e.classFields[idx]
	if len(fields) == len(o.Fields) {
		same := true
		for i, f := range o.Fields {
			if f.Name != fields[i] {
				same = false
				break
			}
		}
		if same {
			for _, f := range o.Fields {
				if err := e.writeValue(f.Value); err != nil {
					return err
				}
			}
			return nil
		}
	}
	for _, name := range fields {
		v, _ := o.Get(name)
		if err := e.writeValue(v); err != nil {
			return err
		}
	}
	return nil
}

// defineClass writes a complete class definition and registers it.
func (e *Encoder) defineClass(def ClassDefinition) int {
	e.buf = append(e.buf, internal.TagClassDef)
	e.appendString(def.Type)
	idx := e.classes.add(def.Type)
	e.buf = internal.AppendInt(e.buf, int32(len(def.Fields)))
	for _, f := range def.Fields {
		e.appendString(f)
	}
	e.classFields = append(e.classFields, append([]string(nil), def.Fields...))
	e.opts.logger.Debug("hessian: class defined",
		slog.String("type", def.Type),
		slog.Int("index", idx),
		slog.Int("fields", len(def.Fields)))
	return idx
}

func (e *Encoder) finishDefinition() {
	idx := e.pending
	e.pending, e.pendingN = -1, 0
	e.opts.logger.Debug("hessian: class defined",
		slog.String("type", e.classes.names[idx]),
		slog.Int("index", idx),
		slog.Int("fields", len(e.classFields[idx])))
}

func (e *Encoder) appendBool(v bool) {
	if v {
		e.buf = append(e.buf, internal.TagTrue)
	} else {
		e.buf = append(e.buf, internal.TagFalse)
	}
}

func (e *Encoder) appendRef(i int) {
	e.buf = append(e.buf, internal.TagRef)
	e.buf = internal.AppendInt(e.buf, int32(i))
}

func (e *Encoder) appendInstance(idx int) {
	if idx <= internal.ObjectDirectMax {
		e.buf = append(e.buf, internal.TagObjectDirectMin+byte(idx))
		return
	}
	e.buf = append(e.buf, internal.TagObject)
	e.buf = internal.AppendInt(e.buf, int32(idx))
}

func (e *Encoder) appendListHeader(length int, typ string) bool {
	switch {
	case length < 0:
		if typ != "" {
			e.buf = append(e.buf, internal.TagListVariable)
			e.appendType(typ)
		} else {
			e.buf = append(e.buf, internal.TagListVariableUntyped)
		}
		return true
	case length <= internal.ListDirectMax:
		if typ != "" {
			e.buf = append(e.buf, internal.TagListDirectMin+byte(length))
			e.appendType(typ)
		} else {
			e.buf = append(e.buf, internal.TagListDirectUntyped+byte(length))
		}
	default:
		if typ != "" {
			e.buf = append(e.buf, internal.TagListFixed)
			e.appendType(typ)
		} else {
			e.buf = append(e.buf, internal.TagListFixedUntyped)
		}
		e.buf = internal.AppendInt(e.buf, int32(length))
	}
	return false
}

func (e *Encoder) appendMapHeader(typ string) {
	if typ == "" {
		e.buf = append(e.buf, internal.TagMapUntyped)
		return
	}
	e.buf = append(e.buf, internal.TagMap)
	e.appendType(typ)
}

// appendType writes a type name on first use and its index afterwards.
func (e *Encoder) appendType(typ string) {
	if i, ok := e.types.lookup(typ); ok {
		e.buf = internal.AppendInt(e.buf, int32(i))
		return
	}
	i := e.types.add(typ)
	e.opts.logger.Debug("hessian: type name registered", slog.String("type", typ), slog.Int("index", i))
	e.appendString(typ)
}

func (e *Encoder) appendString(s string) {
	e.appendUnits(internal.Units(s), true)
}

func (e *Encoder) appendUnits(units []uint16, final bool) {
	for len(units) > e.opts.chunkSize || !final && len(units) > 0 {
		n := internal.ChunkLen(units, e.opts.chunkSize)
		e.buf = append(e.buf, internal.TagStringChunk, byte(n>>8), byte(n))
		e.buf = internal.AppendUnits(e.buf, units[:n])
		units = units[n:]
	}
	if final {
		e.buf = internal.AppendStringHeader(e.buf, len(units))
		e.buf = internal.AppendUnits(e.buf, units)
	}
}

func (e *Encoder) appendBinary(b []byte, final bool) error {
	size := e.opts.chunkSize
	for len(b) > size || !final && len(b) > 0 {
		n := min(len(b), size)
		e.buf = append(e.buf, internal.TagBinaryChunk, byte(n>>8), byte(n))
		e.buf = append(e.buf, b[:n]...)
		b = b[n:]
		if len(e.buf) >= flushThreshold {
			// Large binaries go out as they are chunked.
			if err := e.Flush(); err != nil {
				return err
			}
		}
	}
	if final {
		e.buf = internal.AppendBinaryHeader(e.buf, len(b))
		e.buf = append(e.buf, b...)
	}
	return nil
}

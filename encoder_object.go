package hessian

import (
	"github.com/dadrian/hessian/internal"
)

// WriteObjectBegin starts an object of type typ. If the session already
// holds a definition for typ it writes the instance header and returns the
// class index. Otherwise it opens a new definition, writing its header, and
// returns -1: the caller must then write WriteClassFieldLength, one
// WriteString per field name, and call WriteObjectBegin again.
func (e *Encoder) WriteObjectBegin(typ string) (int, error) {
	if err := e.ready(); err != nil {
		return -1, err
	}
	if idx, ok := e.classes.lookup(typ); ok {
		e.claimRef()
		e.appendInstance(idx)
		return idx, e.maybeFlush()
	}
	e.buf = append(e.buf, internal.TagClassDef)
	e.appendString(typ)
	e.pending = e.classes.add(typ)
	e.pendingN = -1
	e.classFields = append(e.classFields, nil)
	return -1, e.maybeFlush()
}

// WriteClassFieldLength writes the field count of the definition opened by
// WriteObjectBegin.
func (e *Encoder) WriteClassFieldLength(n int) error {
	if e.err != nil {
		return e.err
	}
	if e.pending < 0 || e.pendingN >= 0 {
		return e.fail(e.orderingf("field count written outside a class definition header"))
	}
	e.buf = internal.AppendInt(e.buf, int32(n))
	e.classFields[e.pending] = make([]string, 0, n)
	e.pendingN = n
	if n == 0 {
		e.finishDefinition()
	}
	return e.maybeFlush()
}

// WriteClassDefinition writes def unless its type is already defined in
// this session, and returns the class index either way. An existing
// definition wins even if its fields differ.
func (e *Encoder) WriteClassDefinition(def ClassDefinition) (int, error) {
	if err := e.ready(); err != nil {
		return -1, err
	}
	if idx, ok := e.classes.lookup(def.Type); ok {
		return idx, nil
	}
	idx := e.defineClass(def)
	return idx, e.maybeFlush()
}

// WriteInstance writes the header of an instance of class index idx. The
// definition must already have been written in this session.
func (e *Encoder) WriteInstance(idx int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if idx < 0 || idx >= e.classes.len() {
		return e.fail(e.orderingf("instance of class %d written before its definition", idx))
	}
	e.claimRef()
	e.appendInstance(idx)
	return e.maybeFlush()
}

// InstanceWriter writes the fields of one object in definition order.
type InstanceWriter struct {
	e      *Encoder
	def    ClassDefinition
	next   int
	closed bool
}

// BeginInstance writes def if needed and the instance header, and returns
// a writer for its fields. The fields expected are those of the session's
// definition for def.Type, which is def itself unless the type was defined
// earlier with a different layout.
func (e *Encoder) BeginInstance(def ClassDefinition) (*InstanceWriter, error) {
	idx, err := e.WriteClassDefinition(def)
	if err != nil {
		return nil, err
	}
	if err := e.WriteInstance(idx); err != nil {
		return nil, err
	}
	return &InstanceWriter{
		e:   e,
		def: ClassDefinition{Type: def.Type, Fields: e.classFields[idx]},
	}, nil
}

// Definition returns the definition the instance is written against.
func (w *InstanceWriter) Definition() ClassDefinition { return w.def }

// NextField returns the name of the field expected next, or false when all
// fields have been written.
func (w *InstanceWriter) NextField() (string, bool) {
	if w.next >= len(w.def.Fields) {
		return "", false
	}
	return w.def.Fields[w.next], true
}

// WriteField writes the value of the next field. name must match it.
func (w *InstanceWriter) WriteField(name string, v Value) error {
	want, ok := w.NextField()
	if !ok || want != name || w.closed {
		return w.e.fail(w.e.orderingf("field %q written for class %q, expected %q", name, w.def.Type, want))
	}
	w.next++
	if err := w.e.ready(); err != nil {
		return err
	}
	if err := w.e.writeValue(v); err != nil {
		return w.e.fail(err)
	}
	return w.e.maybeFlush()
}

// WriteFieldFunc is WriteField for values written through the encoder's
// own streaming calls rather than as a Value.
func (w *InstanceWriter) WriteFieldFunc(name string, write func(*Encoder) error) error {
	want, ok := w.NextField()
	if !ok || want != name || w.closed {
		return w.e.fail(w.e.orderingf("field %q written for class %q, expected %q", name, w.def.Type, want))
	}
	w.next++
	return write(w.e)
}

// End checks that every field was written.
func (w *InstanceWriter) End() error {
	w.closed = true
	if w.next != len(w.def.Fields) {
		return w.e.fail(w.e.orderingf("class %q instance ended after %d of %d fields", w.def.Type, w.next, len(w.def.Fields)))
	}
	return w.e.err
}

package hessian

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamingObject(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)

	idx, err := e.WriteObjectBegin("T")
	require.NoError(t, err)
	require.Equal(t, -1, idx)
	require.NoError(t, e.WriteClassFieldLength(1))
	require.NoError(t, e.WriteString("x"))
	idx, err = e.WriteObjectBegin("T")
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.NoError(t, e.WriteInt(5))

	idx, err = e.WriteObjectBegin("T")
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.NoError(t, e.WriteInt(6))
	require.NoError(t, e.Flush())

	require.Equal(t, []byte{'C', 0x01, 'T', 0x91, 0x01, 'x', 0x60, 0x95, 0x60, 0x96}, buf.Bytes())

	d := NewDecoder(&buf)
	for _, want := range []int32{5, 6} {
		v, err := d.Decode()
		require.NoError(t, err)
		require.True(t, Equal(&Object{Type: "T", Fields: []Field{{Name: "x", Value: Int32(want)}}}, v))
	}
}

func TestInstanceWriter(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	def := ClassDefinition{Type: "Pt", Fields: []string{"x", "y"}}

	w, err := e.BeginInstance(def)
	require.NoError(t, err)
	name, ok := w.NextField()
	require.True(t, ok)
	require.Equal(t, "x", name)
	require.NoError(t, w.WriteField("x", Int32(1)))
	require.NoError(t, w.WriteFieldFunc("y", func(e *Encoder) error { return e.WriteInt(2) }))
	_, ok = w.NextField()
	require.False(t, ok)
	require.NoError(t, w.End())
	require.NoError(t, e.Flush())

	got, err := Unmarshal(buf.Bytes())
	require.NoError(t, err)
	require.True(t, Equal(&Object{Type: "Pt", Fields: []Field{{Name: "x", Value: Int32(1)}, {Name: "y", Value: Int32(2)}}}, got))
}

func TestOrderingViolations(t *testing.T) {
	tests := []struct {
		name string
		run  func(e *Encoder) error
	}{
		{"instance before definition", func(e *Encoder) error {
			return e.WriteInstance(0)
		}},
		{"value inside definition", func(e *Encoder) error {
			if _, err := e.WriteObjectBegin("T"); err != nil {
				return err
			}
			return e.WriteInt(1)
		}},
		{"name before field count", func(e *Encoder) error {
			if _, err := e.WriteObjectBegin("T"); err != nil {
				return err
			}
			return e.WriteString("x")
		}},
		{"field count outside definition", func(e *Encoder) error {
			return e.WriteClassFieldLength(1)
		}},
		{"field out of order", func(e *Encoder) error {
			w, err := e.BeginInstance(ClassDefinition{Type: "T", Fields: []string{"a", "b"}})
			if err != nil {
				return err
			}
			return w.WriteField("b", Null{})
		}},
		{"missing field", func(e *Encoder) error {
			w, err := e.BeginInstance(ClassDefinition{Type: "T", Fields: []string{"a"}})
			if err != nil {
				return err
			}
			return w.End()
		}},
		{"unknown ref", func(e *Encoder) error {
			return e.WriteRef(0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := NewEncoder(&buf)
			err := tt.run(e)
			require.Error(t, err)
			var herr *Error
			require.ErrorAs(t, err, &herr)
			if tt.name == "unknown ref" {
				require.ErrorIs(t, err, ErrUnknownReference)
			} else {
				require.ErrorIs(t, err, ErrEncodingOrderingViolation)
			}

			// The encoder stays failed until Reset.
			require.Equal(t, err, e.WriteNull())
			e.Reset()
			require.NoError(t, e.Encode(Int32(1)))
		})
	}
}

func TestSessionResetIdempotent(t *testing.T) {
	shared := &List{Type: "[string", Elems: []Value{String("s")}}
	graph := &Map{Type: "m", Entries: []Entry{
		{Key: String("a"), Value: &Object{Type: "O", Fields: []Field{{Name: "l", Value: shared}}}},
		{Key: String("b"), Value: shared},
	}}

	var buf bytes.Buffer
	e := NewEncoder(&buf)
	require.NoError(t, e.Encode(graph))
	first := bytes.Clone(buf.Bytes())

	buf.Reset()
	e.Reset()
	require.NoError(t, e.Encode(graph))
	require.Equal(t, first, buf.Bytes())

	fresh, err := Marshal(graph)
	require.NoError(t, err)
	require.Equal(t, first, fresh)
}

func TestSessionSpansEncodes(t *testing.T) {
	o := &Object{Type: "T"}
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	require.NoError(t, e.Encode(o))
	require.NoError(t, e.Encode(o))
	require.Equal(t, []byte{'C', 0x01, 'T', 0x90, 0x60, 0x51, 0x90}, buf.Bytes())

	buf.Reset()
	e.ResetReferences()
	require.NoError(t, e.Encode(o))
	require.Equal(t, []byte{0x60}, buf.Bytes(), "class definitions outlive ResetReferences")
}

func TestSubstitute(t *testing.T) {
	secret := &Object{Type: "Secret", Fields: []Field{{Name: "key", Value: String("k")}}}
	redact := func(v Value) (Value, bool) {
		if o, ok := v.(*Object); ok && o.Type == "Secret" {
			return &Object{Type: "Redacted"}, true
		}
		return nil, false
	}

	b, err := Marshal(&List{Elems: []Value{secret, secret}}, WithSubstitute(redact))
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x7a,
		'C', 0x08, 'R', 'e', 'd', 'a', 'c', 't', 'e', 'd', 0x90, 0x60,
		0x51, 0x91,
	}, b)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	l := got.(*List)
	require.Equal(t, "Redacted", l.Elems[0].(*Object).Type)
	require.Same(t, l.Elems[0], l.Elems[1])
}

func TestSubstituteWithScalar(t *testing.T) {
	gone := &Map{}
	b, err := Marshal(&List{Elems: []Value{gone}}, WithSubstitute(func(v Value) (Value, bool) {
		if v == gone {
			return Null{}, true
		}
		return nil, false
	}))
	require.NoError(t, err)
	require.Equal(t, []byte{0x79, 'N'}, b)
}

func TestStreamingRefs(t *testing.T) {
	type node struct{ name string }
	n := &node{"n"}

	var buf bytes.Buffer
	e := NewEncoder(&buf)
	_, err := e.WriteListBegin(2, "")
	require.NoError(t, err)
	for range 2 {
		if i, ok := e.AddRef(n); ok {
			require.NoError(t, e.WriteRef(i))
			continue
		}
		variable, err := e.WriteListBegin(-1, "")
		require.NoError(t, err)
		require.True(t, variable)
		require.NoError(t, e.WriteString(n.name))
		require.NoError(t, e.WriteListEnd())
	}
	require.NoError(t, e.Flush())

	// The AddRef index and the inner list header share index 1.
	require.Equal(t, []byte{0x7a, 0x57, 0x01, 'n', 'Z', 0x51, 0x91}, buf.Bytes())

	got, err := Unmarshal(buf.Bytes())
	require.NoError(t, err)
	l := got.(*List)
	require.Same(t, l.Elems[0], l.Elems[1])
}

func TestChunkedWrites(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	require.NoError(t, e.WriteStringChunk("ab", false))
	require.NoError(t, e.WriteStringChunk("c", true))
	require.NoError(t, e.WriteBytesChunk([]byte{1}, false))
	require.NoError(t, e.WriteBytesChunk(nil, true))
	require.NoError(t, e.Flush())
	require.Equal(t, []byte{'R', 0x00, 0x02, 'a', 'b', 0x01, 'c', 'A', 0x00, 0x01, 0x01, 0x20}, buf.Bytes())

	d := NewDecoder(&buf)
	s, err := d.ReadString()
	require.NoError(t, err)
	require.Equal(t, "abc", s)
	b, err := d.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1}, b)
}

func TestWithChunkSize(t *testing.T) {
	b, err := Marshal(String("abcde"), WithChunkSize(2))
	require.NoError(t, err)
	require.Equal(t, []byte{'R', 0, 2, 'a', 'b', 'R', 0, 2, 'c', 'd', 0x01, 'e'}, b)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, String("abcde"), got)
}

func TestDebugLogging(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var buf bytes.Buffer
	e := NewEncoder(&buf, WithLogger(logger))
	require.NoError(t, e.Encode(&List{Type: "t", Elems: []Value{&Object{Type: "O"}}}))
	e.Reset()

	out := logs.String()
	require.Contains(t, out, "hessian: class defined")
	require.Contains(t, out, "type=O")
	require.Contains(t, out, "hessian: type name registered")
	require.Contains(t, out, "hessian: encoder session reset")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errBroken }

func TestWriteErrorsSurfaceMidValue(t *testing.T) {
	e := NewEncoder(failingWriter{}, WithChunkSize(1024))
	require.ErrorIs(t, e.WriteBytes(make([]byte, 10000)), errBroken)
	require.ErrorIs(t, e.WriteNull(), errBroken, "error is sticky")

	e = NewEncoder(failingWriter{}, WithChunkSize(1024))
	require.ErrorIs(t, e.WriteBytesChunk(make([]byte, 10000), false), errBroken)

	e = NewEncoder(failingWriter{}, WithChunkSize(1024))
	require.ErrorIs(t, e.Encode(Binary(make([]byte, 10000))), errBroken)
}

package hessian

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleGraph() Value {
	shared := &List{Type: "[int", Elems: []Value{Int32(1), Int64(1 << 40)}}
	o := &Object{Type: "Rec", Fields: []Field{
		{Name: "s", Value: String(strings.Repeat("é", 40))},
		{Name: "b", Value: Binary(bytes.Repeat([]byte{7}, 20))},
		{Name: "d", Value: Double(3.14159)},
		{Name: "t", Value: Date(1700000000123)},
		{Name: "l", Value: shared},
	}}
	o.Fields = append(o.Fields, Field{Name: "self", Value: o})
	return &Map{Entries: []Entry{
		{Key: String("o"), Value: o},
		{Key: Int32(2), Value: shared},
		{Key: Bool(true), Value: &List{Elems: []Value{Null{}, Double(-129)}}},
	}}
}

func TestTruncationAtEveryOffset(t *testing.T) {
	b, err := Marshal(sampleGraph())
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.True(t, Equal(sampleGraph(), got))

	for i := range len(b) {
		_, err := Unmarshal(b[:i])
		require.ErrorIs(t, err, ErrTruncatedStream, "prefix of %d bytes", i)
	}
}

func TestUnknownReference(t *testing.T) {
	_, err := Unmarshal([]byte{0x51, 0x90})
	require.ErrorIs(t, err, ErrUnknownReference)

	_, err = Unmarshal([]byte{0x7a, 0x78, 0x51, 0x92})
	require.ErrorIs(t, err, ErrUnknownReference)

	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, int64(2), herr.Offset)
	require.True(t, herr.HasTag)
	require.Equal(t, byte(0x51), herr.Tag)
	require.Contains(t, err.Error(), "unknown reference 0x51 (ref) at 2")
}

func TestUnknownClassDefinition(t *testing.T) {
	for _, b := range [][]byte{
		{0x60},
		{'O', 0x90},
		{0x71, 0x90},
	} {
		_, err := Unmarshal(b)
		require.ErrorIs(t, err, ErrUnknownClassDefinition, "% x", b)
	}
}

func TestMalformedTags(t *testing.T) {
	for _, b := range [][]byte{
		{'Z'},
		{0x40},
		{'E'},
		{0x7a, 0x90, 'Z'},
		{0x01, 0x80},
		{0x01, 0xc3, 0x41},
		{'R', 0x00, 0x01, 'a', 0x90},
		{0x58, 0x8f},
	} {
		_, err := Unmarshal(b)
		require.ErrorIs(t, err, ErrMalformedTag, "% x", b)
	}
}

func TestTrailingBytes(t *testing.T) {
	_, err := Unmarshal([]byte{0x90, 0x90})
	require.ErrorIs(t, err, ErrMalformedTag)
}

func decoderFor(t *testing.T, vals ...Value) *Decoder {
	t.Helper()
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	for _, v := range vals {
		e.ResetReferences()
		require.NoError(t, e.Encode(v))
	}
	return NewDecoder(&buf)
}

func TestReadIntCoercion(t *testing.T) {
	tests := []struct {
		v    Value
		want int32
	}{
		{Null{}, 0},
		{Bool(true), 1},
		{Bool(false), 0},
		{Int32(-300), -300},
		{Int64(-5), -5},
		{Int64(0x1_0000_0005), 5},
		{Double(2.7), 2},
		{Double(-2.7), -2},
		{Double(1e20), math.MaxInt32},
		{Double(-1e20), math.MinInt32},
		{Double(math.NaN()), 0},
		{Double(127), 127},
		{Double(-32768), -32768},
	}
	for _, tt := range tests {
		got, err := decoderFor(t, tt.v).ReadInt()
		require.NoError(t, err, "%#v", tt.v)
		require.Equal(t, tt.want, got, "%#v", tt.v)
	}
}

func TestReadLongCoercion(t *testing.T) {
	tests := []struct {
		v    Value
		want int64
	}{
		{Null{}, 0},
		{Bool(true), 1},
		{Int32(-17), -17},
		{Int64(math.MinInt64), math.MinInt64},
		{Double(-9.99), -9},
		{Double(1e300), math.MaxInt64},
	}
	for _, tt := range tests {
		got, err := decoderFor(t, tt.v).ReadLong()
		require.NoError(t, err, "%#v", tt.v)
		require.Equal(t, tt.want, got, "%#v", tt.v)
	}
}

func TestReadDoubleAndBoolCoercion(t *testing.T) {
	d := decoderFor(t, Int32(7), Int64(-8), Bool(true), Null{}, Double(0.5))
	for _, want := range []float64{7, -8, 1, 0, 0.5} {
		got, err := d.ReadDouble()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	d = decoderFor(t, Int32(0), Int32(3), Double(0), Double(0.5), Null{}, Bool(true), Int64(0))
	for _, want := range []bool{false, true, false, true, false, true, false} {
		got, err := d.ReadBool()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReadStringCoercion(t *testing.T) {
	d := decoderFor(t, String("s"), Null{}, Bool(true), Int32(42), Int64(-7), Double(1.5), Double(1), Double(1e21))
	for _, want := range []string{"s", "", "true", "42", "-7", "1.5", "1.0", "1.0E21"} {
		got, err := d.ReadString()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestUnsupportedCoercion(t *testing.T) {
	tests := []struct {
		name string
		read func(d *Decoder) error
	}{
		{"int from list", func(d *Decoder) error { _, err := d.ReadInt(); return err }},
		{"double from list", func(d *Decoder) error { _, err := d.ReadDouble(); return err }},
		{"string from list", func(d *Decoder) error { _, err := d.ReadString(); return err }},
		{"bytes from list", func(d *Decoder) error { _, err := d.ReadBytes(); return err }},
		{"date from list", func(d *Decoder) error { _, err := d.ReadDate(); return err }},
		{"null from list", func(d *Decoder) error { return d.ReadNull() }},
		{"map from list", func(d *Decoder) error { _, err := d.ReadMapStart(); return err }},
		{"object from list", func(d *Decoder) error { _, err := d.BeginInstance(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decoderFor(t, &List{})
			err := tt.read(d)
			require.ErrorIs(t, err, ErrUnsupportedCoercion)

			// Sticky until Reset.
			_, again := d.Decode()
			require.Equal(t, err, again)
			d.Reset()
			_, err = d.Decode()
			require.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestStreamingComposites(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	require.NoError(t, e.WriteMapBegin(""))
	require.NoError(t, e.WriteString("k"))
	_, err := e.WriteListBegin(-1, "[int")
	require.NoError(t, err)
	require.NoError(t, e.WriteInt(1))
	require.NoError(t, e.WriteListEnd())
	require.NoError(t, e.WriteMapEnd())
	require.NoError(t, e.Flush())

	d := NewDecoder(&buf)
	mh, err := d.ReadMapStart()
	require.NoError(t, err)
	require.Equal(t, MapHeader{Type: "", Ref: 0, Map: &Map{}}, mh)

	end, err := d.IsEnd()
	require.NoError(t, err)
	require.False(t, end)
	k, err := d.ReadString()
	require.NoError(t, err)
	require.Equal(t, "k", k)

	lh, err := d.ReadListStart()
	require.NoError(t, err)
	require.Equal(t, ListHeader{Type: "[int", Length: -1, Ref: 1, List: &List{Type: "[int"}}, lh)
	n, err := d.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int32(1), n)

	for range 2 {
		end, err = d.IsEnd()
		require.NoError(t, err)
		require.True(t, end)
		require.NoError(t, d.ReadEnd())
	}
	end, err = d.IsEnd()
	require.NoError(t, err)
	require.True(t, end, "end of input")
}

func TestInstanceReader(t *testing.T) {
	o := &Object{Type: "Pt", Fields: []Field{{Name: "x", Value: Int32(1)}, {Name: "y", Value: String("two")}}}
	d := decoderFor(t, o, o)

	for range 2 {
		r, err := d.BeginInstance()
		require.NoError(t, err)
		require.Equal(t, ClassDefinition{Type: "Pt", Fields: []string{"x", "y"}}, r.Definition())

		built := &Object{Type: r.Definition().Type}
		for {
			name, ok := r.NextField()
			if !ok {
				break
			}
			v, err := d.Decode()
			require.NoError(t, err)
			built.Set(name, v)
		}
		require.NoError(t, d.SetRef(r.Ref(), built))
		got, err := d.Ref(r.Ref())
		require.NoError(t, err)
		require.True(t, Equal(o, got))
	}
}

func TestStreamedCompositesResolveSelfReferences(t *testing.T) {
	node := &Object{Type: "Node", Fields: []Field{{Name: "name", Value: String("a")}, {Name: "next"}}}
	node.Fields[1].Value = node
	b, err := Marshal(node)
	require.NoError(t, err)

	d := NewDecoder(bytes.NewReader(b))
	r, err := d.BeginInstance()
	require.NoError(t, err)
	require.Equal(t, []Field{{Name: "name", Value: Null{}}, {Name: "next", Value: Null{}}}, r.Object().Fields)
	for {
		if _, ok := r.NextField(); !ok {
			break
		}
		v, err := d.Decode()
		require.NoError(t, err)
		r.SetField(v)
	}
	next, _ := r.Object().Get("next")
	require.Same(t, r.Object(), next)
	require.True(t, Equal(node, r.Object()))

	l := &List{Type: "[object"}
	l.Elems = []Value{l, Int32(1)}
	b, err = Marshal(l)
	require.NoError(t, err)

	d = NewDecoder(bytes.NewReader(b))
	h, err := d.ReadListStart()
	require.NoError(t, err)
	require.Equal(t, 2, h.Length)
	for range h.Length {
		v, err := d.Decode()
		require.NoError(t, err)
		h.List.Elems = append(h.List.Elems, v)
	}
	require.Same(t, h.List, h.List.Elems[0])
	require.True(t, Equal(l, h.List))

	m := &Map{}
	m.Put(String("self"), m)
	b, err = Marshal(m)
	require.NoError(t, err)

	d = NewDecoder(bytes.NewReader(b))
	mh, err := d.ReadMapStart()
	require.NoError(t, err)
	k, err := d.Decode()
	require.NoError(t, err)
	v, err := d.Decode()
	require.NoError(t, err)
	require.Same(t, mh.Map, v)
	mh.Map.Put(k, v)
	require.NoError(t, d.ReadEnd())
	require.True(t, Equal(m, mh.Map))
}

func TestUnsetReferenceIsAnError(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{0x51, 0x90}))
	require.Equal(t, 0, d.AddRef(nil))
	_, err := d.Decode()
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestStringStream(t *testing.T) {
	want := strings.Repeat("héllo wörld \U0001F600 ", 50)
	var buf bytes.Buffer
	e := NewEncoder(&buf, WithChunkSize(7))
	require.NoError(t, e.WriteString(want))
	require.NoError(t, e.WriteInt(9))
	require.NoError(t, e.Flush())

	d := NewDecoder(&buf)
	rr, err := d.ReadStringStream()
	require.NoError(t, err)
	var sb strings.Builder
	for {
		r, size, err := rr.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, len(string(r)), size)
		sb.WriteRune(r)
	}
	require.Equal(t, want, sb.String())

	n, err := d.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int32(9), n)
}

func TestBytesStream(t *testing.T) {
	want := bytes.Repeat([]byte("0123456789"), 1000)
	var buf bytes.Buffer
	e := NewEncoder(&buf, WithChunkSize(333))
	require.NoError(t, e.WriteBytes(want))
	require.NoError(t, e.WriteString("after"))
	require.NoError(t, e.Flush())

	d := NewDecoder(&buf)
	r, err := d.ReadBytesStream()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, want, got)

	s, err := d.ReadString()
	require.NoError(t, err)
	require.Equal(t, "after", s)
}

func TestUnreadStreamIsSkipped(t *testing.T) {
	d := decoderFor(t, String(strings.Repeat("z", 5000)), Int32(3))
	rr, err := d.ReadStringStream()
	require.NoError(t, err)
	r, _, err := rr.ReadRune()
	require.NoError(t, err)
	require.Equal(t, 'z', r)

	n, err := d.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int32(3), n)
}

func TestRawBytesAndOffset(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{'H', 0x02, 0x00, 0x91}))
	c, err := d.PeekByte()
	require.NoError(t, err)
	require.Equal(t, byte('H'), c)
	for _, want := range []byte{'H', 0x02, 0x00} {
		c, err := d.ReadByte()
		require.NoError(t, err)
		require.Equal(t, want, c)
	}
	require.Equal(t, int64(3), d.Offset())
	v, err := d.Decode()
	require.NoError(t, err)
	require.Equal(t, Int32(1), v)

	_, err = d.Decode()
	require.ErrorIs(t, err, io.EOF)
}

type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestSlowReader(t *testing.T) {
	b, err := Marshal(sampleGraph())
	require.NoError(t, err)
	got, err := NewDecoder(oneByteReader{bytes.NewReader(b)}).Decode()
	require.NoError(t, err)
	require.True(t, Equal(sampleGraph(), got))
}

type failingReader struct{}

var errBroken = errors.New("broken pipe")

func (failingReader) Read([]byte) (int, error) { return 0, errBroken }

func TestIOErrorsPassThrough(t *testing.T) {
	_, err := NewDecoder(failingReader{}).Decode()
	require.ErrorIs(t, err, errBroken)
	require.NotErrorIs(t, err, ErrTruncatedStream)
}

func TestNestingDepthLimit(t *testing.T) {
	// 0x79 is a one-element untyped list.
	deep := append(bytes.Repeat([]byte{0x79}, 100000), 0x90)
	_, err := Unmarshal(deep)
	require.ErrorIs(t, err, ErrMalformedTag)

	three := []byte{0x79, 0x79, 0x79, 0x90}
	v, err := Unmarshal(three, WithMaxDepth(3))
	require.NoError(t, err)
	require.True(t, Equal(&List{Elems: []Value{&List{Elems: []Value{&List{Elems: []Value{Int32(0)}}}}}}, v))

	_, err = Unmarshal(append([]byte{0x79}, three...), WithMaxDepth(3))
	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, KindMalformedTag, herr.Kind)
	require.Equal(t, int64(3), herr.Offset)
}

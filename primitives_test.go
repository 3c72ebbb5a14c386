package hessian

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarBytes(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want []byte
	}{
		{"null", Null{}, []byte{'N'}},
		{"true", Bool(true), []byte{'T'}},
		{"false", Bool(false), []byte{'F'}},
		{"int 0", Int32(0), []byte{0x90}},
		{"int 1", Int32(1), []byte{0x91}},
		{"int 47", Int32(47), []byte{0xbf}},
		{"int -16", Int32(-16), []byte{0x80}},
		{"int -17", Int32(-17), []byte{0xc7, 0xef}},
		{"int 0x40000", Int32(0x40000), []byte{'I', 0x00, 0x04, 0x00, 0x00}},
		{"long 0", Int64(0), []byte{0xe0}},
		{"long 0x80000000", Int64(0x80000000), []byte{'L', 0, 0, 0, 0, 0x80, 0, 0, 0}},
		{"long max int32", Int64(math.MaxInt32), []byte{0x59, 0x7f, 0xff, 0xff, 0xff}},
		{"double 0", Double(0), []byte{0x5b}},
		{"double 1", Double(1), []byte{0x5c}},
		{"double -128", Double(-128), []byte{0x5d, 0x80}},
		{"double 128", Double(128), []byte{0x5e, 0x00, 0x80}},
		{"double 0.001", Double(0.001), []byte{0x5f, 0, 0, 0, 1}},
		{"double pi", Double(3.14159), []byte{'D', 0x40, 0x09, 0x21, 0xf9, 0xf0, 0x1b, 0x86, 0x6e}},
		{"date minutes", Date(60000 * 5), []byte{0x4b, 0, 0, 0, 5}},
		{"date ms", Date(1), []byte{0x4a, 0, 0, 0, 0, 0, 0, 0, 1}},
		{"empty string", String(""), []byte{0x00}},
		{"string", String("hi"), []byte{0x02, 'h', 'i'}},
		{"empty binary", Binary{}, []byte{0x20}},
		{"binary", Binary{0xde, 0xad}, []byte{0x22, 0xde, 0xad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRoundtrip(t, tt.v, tt.want)
		})
	}
}

func TestIntBoundaries(t *testing.T) {
	for _, v := range []int32{
		-16, 47, -17, 48, -0x800, 0x7ff, -0x801, 0x800,
		-0x40000, 0x3ffff, -0x40001, 0x40000, math.MinInt32, math.MaxInt32,
	} {
		requireRoundtrip(t, Int32(v))
	}
}

func TestLongBoundaries(t *testing.T) {
	for _, v := range []int64{
		-8, 15, -9, 16, -0x800, 0x7ff, -0x801, 0x800,
		-0x40000, 0x3ffff, -0x40001, 0x40000, math.MinInt32, math.MaxInt32,
		0x80000000, -0x80000001, math.MinInt64, math.MaxInt64,
	} {
		requireRoundtrip(t, Int64(v))
	}
}

func TestDoubleBoundaries(t *testing.T) {
	for _, v := range []float64{
		0, 1, 2, 127, -128, 128, -129, 32767, -32768, 0.001, -0.001, 65.536, 3.14159,
		math.Inf(1), math.Inf(-1), math.MaxFloat64, math.SmallestNonzeroFloat64, math.NaN(),
	} {
		requireRoundtrip(t, Double(v))
	}
}

func TestStringLengths(t *testing.T) {
	tests := []struct {
		n    int
		head []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{31, []byte{0x1f}},
		{32, []byte{0x30, 0x20}},
		{1023, []byte{0x33, 0xff}},
		{1024, []byte{'S', 0x04, 0x00}},
		{65536, []byte{'R', 0x80, 0x00}},
	}
	for _, tt := range tests {
		b, err := Marshal(String(strings.Repeat("x", tt.n)))
		require.NoError(t, err)
		require.Equal(t, tt.head, b[:len(tt.head)], "length %d", tt.n)
		requireRoundtrip(t, String(strings.Repeat("x", tt.n)))
	}
}

func TestBinaryLengths(t *testing.T) {
	tests := []struct {
		n    int
		head []byte
	}{
		{0, []byte{0x20}},
		{1, []byte{0x21}},
		{15, []byte{0x2f}},
		{16, []byte{0x34, 0x10}},
		{1023, []byte{0x37, 0xff}},
		{1024, []byte{'B', 0x04, 0x00}},
		{65536, []byte{'A', 0x80, 0x00}},
	}
	for _, tt := range tests {
		v := make(Binary, tt.n)
		for i := range v {
			v[i] = byte(i)
		}
		b, err := Marshal(v)
		require.NoError(t, err)
		require.Equal(t, tt.head, b[:len(tt.head)], "length %d", tt.n)
		requireRoundtrip(t, v)
	}
}

func TestStringChunkBoundary(t *testing.T) {
	s := strings.Repeat("a", 0x8001)
	b, err := Marshal(String(s))
	require.NoError(t, err)
	require.Equal(t, []byte{'R', 0x80, 0x00}, b[:3])
	require.Equal(t, []byte{0x01, 'a'}, b[3+0x8000:])
	requireRoundtrip(t, String(s))

	// A chunk never ends between the halves of a surrogate pair.
	s = strings.Repeat("a", 0x7fff) + "\U0001F600"
	b, err = Marshal(String(s))
	require.NoError(t, err)
	require.Equal(t, []byte{'R', 0x7f, 0xff}, b[:3])
	require.Equal(t, byte(0x02), b[3+0x7fff])
	requireRoundtrip(t, String(s))
}

func TestSupplementaryCharacters(t *testing.T) {
	// U+1F600 is two units, each a three byte sequence.
	assertRoundtrip(t, String("\U0001F600"), []byte{0x02, 0xed, 0xa0, 0xbd, 0xed, 0xb8, 0x80})

	_, err := Unmarshal([]byte{0x01, 0xf0, 0x9f, 0x98, 0x80})
	require.ErrorIs(t, err, ErrMalformedTag)
}

func TestDateTime(t *testing.T) {
	d := Date(1700000000123)
	require.Equal(t, d, DateOf(d.Time()))
	requireRoundtrip(t, d)
}

func requireRoundtrip(t *testing.T, v Value) {
	t.Helper()
	b, err := Marshal(v)
	require.NoError(t, err)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.True(t, Equal(v, got), "round trip of %#v gave %#v", v, got)
	require.Equal(t, v.Kind(), got.Kind())
}

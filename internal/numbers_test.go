package internal

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendIntSizeClasses(t *testing.T) {
	tests := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x90}},
		{1, []byte{0x91}},
		{47, []byte{0xbf}},
		{-16, []byte{0x80}},
		{-17, []byte{0xc7, 0xef}},
		{48, []byte{0xc8, 0x30}},
		{-0x800, []byte{0xc0, 0x00}},
		{0x7ff, []byte{0xcf, 0xff}},
		{-0x801, []byte{0xd3, 0xf7, 0xff}},
		{0x800, []byte{0xd4, 0x08, 0x00}},
		{-0x40000, []byte{0xd0, 0x00, 0x00}},
		{0x3ffff, []byte{0xd7, 0xff, 0xff}},
		{-0x40001, []byte{'I', 0xff, 0xfb, 0xff, 0xff}},
		{0x40000, []byte{'I', 0x00, 0x04, 0x00, 0x00}},
		{math.MinInt32, []byte{'I', 0x80, 0x00, 0x00, 0x00}},
		{math.MaxInt32, []byte{'I', 0x7f, 0xff, 0xff, 0xff}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.v), func(t *testing.T) {
			got := AppendInt(nil, test.v)
			require.Equal(t, test.want, got)

			n := IntOperand(got[0])
			require.Equal(t, len(got)-1, n)
			require.Equal(t, test.v, DecodeInt(got[0], got[1:]))
		})
	}
}

func TestAppendLongSizeClasses(t *testing.T) {
	tests := []struct {
		v    int64
		size int
	}{
		{0, 1}, {-8, 1}, {15, 1},
		{-9, 2}, {16, 2}, {-0x800, 2}, {0x7ff, 2},
		{-0x801, 3}, {0x800, 3}, {-0x40000, 3}, {0x3ffff, 3},
		{-0x40001, 5}, {0x40000, 5}, {math.MinInt32, 5}, {math.MaxInt32, 5},
		{0x80000000, 9}, {-0x80000001, 9}, {math.MinInt64, 9}, {math.MaxInt64, 9},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.v), func(t *testing.T) {
			got := AppendLong(nil, test.v)
			require.Len(t, got, test.size)
			require.Equal(t, test.size-1, LongOperand(got[0]))
			require.Equal(t, test.v, DecodeLong(got[0], got[1:]))
		})
	}
	require.Equal(t, []byte{0xe0}, AppendLong(nil, 0))
	require.Equal(t, []byte{0x59, 0x80, 0x00, 0x00, 0x00}, AppendLong(nil, math.MinInt32))
}

func TestAppendDoubleForms(t *testing.T) {
	tests := []struct {
		v   float64
		tag byte
	}{
		{0.0, TagDoubleZero},
		{1.0, TagDoubleOne},
		{2.0, TagDoubleByte},
		{127.0, TagDoubleByte},
		{-128.0, TagDoubleByte},
		{128.0, TagDoubleShort},
		{-129.0, TagDoubleShort},
		{32767.0, TagDoubleShort},
		{-32768.0, TagDoubleShort},
		{0.001, TagDoubleMill},
		{-0.001, TagDoubleMill},
		{3.14159, TagDouble},
		{math.Inf(1), TagDouble},
		{1e300, TagDouble},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.v), func(t *testing.T) {
			got := AppendDouble(nil, test.v)
			require.Equal(t, test.tag, got[0])
			require.Equal(t, len(got)-1, DoubleOperand(got[0]))
			require.Equal(t, test.v, DecodeDouble(got[0], got[1:]))
		})
	}
	require.Equal(t, []byte{'D', 0x40, 0x09, 0x21, 0xf9, 0xf0, 0x1b, 0x86, 0x6e}, AppendDouble(nil, 3.14159))
}

func TestAppendDoubleNaN(t *testing.T) {
	got := AppendDouble(nil, math.NaN())
	require.Equal(t, TagDouble, got[0])
	require.True(t, math.IsNaN(DecodeDouble(got[0], got[1:])))
}

func TestDoubleMillsIsExact(t *testing.T) {
	for _, v := range []float64{0.001, -0.001, 12.5, 1000.25} {
		mills, ok := DoubleMills(v)
		require.True(t, ok, "%v", v)
		require.Equal(t, v, 0.001*float64(mills))
	}
	_, ok := DoubleMills(3.14159)
	require.False(t, ok)
}

func TestAppendDate(t *testing.T) {
	got := AppendDate(nil, 60000*5)
	require.Equal(t, []byte{TagDateMinute, 0, 0, 0, 5}, got)
	require.Equal(t, int64(300000), DecodeDate(got[0], got[1:]))

	got = AppendDate(nil, 1700000000123)
	require.Equal(t, TagDate, got[0])
	require.Len(t, got, 9)
	require.Equal(t, int64(1700000000123), DecodeDate(got[0], got[1:]))

	// Minute-aligned but too many minutes for 32 bits.
	big := int64(math.MaxInt32+1) * 60000
	got = AppendDate(nil, big)
	require.Equal(t, TagDate, got[0])
	require.Equal(t, big, DecodeDate(got[0], got[1:]))
}

func TestDoubleToIntSaturates(t *testing.T) {
	require.Equal(t, int32(3), DoubleToInt32(3.99))
	require.Equal(t, int32(-3), DoubleToInt32(-3.99))
	require.Equal(t, int32(math.MaxInt32), DoubleToInt32(1e20))
	require.Equal(t, int32(math.MinInt32), DoubleToInt32(-1e20))
	require.Equal(t, int32(0), DoubleToInt32(math.NaN()))
	require.Equal(t, int64(math.MaxInt64), DoubleToInt64(math.Inf(1)))
	require.Equal(t, int64(-7), DoubleToInt64(-7.5))
}

func TestFormatDouble(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{-2, "-2.0"},
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1.5, "1.5"},
		{0.001, "0.001"},
		{1234567, "1234567.0"},
		{1e7, "1.0E7"},
		{1e21, "1.0E21"},
		{1.25e-5, "1.25E-5"},
		{-3.5e100, "-3.5E100"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatDouble(tt.in), "%v", tt.in)
	}
}

func TestHeaders(t *testing.T) {
	require.Equal(t, []byte{0x00}, AppendStringHeader(nil, 0))
	require.Equal(t, []byte{0x1f}, AppendStringHeader(nil, 31))
	require.Equal(t, []byte{0x30, 0x20}, AppendStringHeader(nil, 32))
	require.Equal(t, []byte{0x33, 0xff}, AppendStringHeader(nil, 1023))
	require.Equal(t, []byte{'S', 0x04, 0x00}, AppendStringHeader(nil, 1024))

	require.Equal(t, []byte{0x20}, AppendBinaryHeader(nil, 0))
	require.Equal(t, []byte{0x2f}, AppendBinaryHeader(nil, 15))
	require.Equal(t, []byte{0x34, 0x10}, AppendBinaryHeader(nil, 16))
	require.Equal(t, []byte{0x37, 0xff}, AppendBinaryHeader(nil, 1023))
	require.Equal(t, []byte{'B', 0x80, 0x00}, AppendBinaryHeader(nil, 0x8000))
}

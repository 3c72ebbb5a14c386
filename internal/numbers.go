package internal

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

var be = binary.BigEndian

// AppendInt appends the narrowest encoding of a 32-bit integer.
func AppendInt(dst []byte, v int32) []byte {
	switch {
	case IntDirectMin <= v && v <= IntDirectMax:
		return append(dst, byte(int32(TagIntZero)+v))
	case IntByteMin <= v && v <= IntByteMax:
		return append(dst, byte(int32(TagIntByteZero)+(v>>8)), byte(v))
	case IntShortMin <= v && v <= IntShortMax:
		return append(dst, byte(int32(TagIntShortZero)+(v>>16)), byte(v>>8), byte(v))
	default:
		return be.AppendUint32(append(dst, TagInt), uint32(v))
	}
}

// AppendLong appends the narrowest encoding of a 64-bit integer.
func AppendLong(dst []byte, v int64) []byte {
	switch {
	case LongDirectMin <= v && v <= LongDirectMax:
		return append(dst, byte(int64(TagLongZero)+v))
	case LongByteMin <= v && v <= LongByteMax:
		return append(dst, byte(int64(TagLongByteZero)+(v>>8)), byte(v))
	case LongShortMin <= v && v <= LongShortMax:
		return append(dst, byte(int64(TagLongShortZero)+(v>>16)), byte(v>>8), byte(v))
	case math.MinInt32 <= v && v <= math.MaxInt32:
		return be.AppendUint32(append(dst, TagLongInt), uint32(int32(v)))
	default:
		return be.AppendUint64(append(dst, TagLong), uint64(v))
	}
}

// AppendDouble appends the narrowest encoding that reproduces v exactly.
func AppendDouble(dst []byte, v float64) []byte {
	if iv := DoubleToInt32(v); float64(iv) == v {
		switch {
		case iv == 0:
			return append(dst, TagDoubleZero)
		case iv == 1:
			return append(dst, TagDoubleOne)
		case -0x80 <= iv && iv < 0x80:
			return append(dst, TagDoubleByte, byte(iv))
		case -0x8000 <= iv && iv < 0x8000:
			return append(dst, TagDoubleShort, byte(iv>>8), byte(iv))
		}
	}
	if mills, ok := DoubleMills(v); ok {
		return be.AppendUint32(append(dst, TagDoubleMill), uint32(mills))
	}
	return be.AppendUint64(append(dst, TagDouble), math.Float64bits(v))
}

// DoubleMills reports whether v is exactly 0.001 times a 32-bit integer.
// The check is the truncated product, not a rounded one.
func DoubleMills(v float64) (int32, bool) {
	mills := DoubleToInt32(v * 1000)
	return mills, 0.001*float64(mills) == v
}

// AppendDate appends a timestamp in milliseconds since the epoch, using the
// minute form when no precision is lost.
func AppendDate(dst []byte, ms int64) []byte {
	if ms%60000 == 0 {
		if minutes := ms / 60000; math.MinInt32 <= minutes && minutes <= math.MaxInt32 {
			return be.AppendUint32(append(dst, TagDateMinute), uint32(int32(minutes)))
		}
	}
	return be.AppendUint64(append(dst, TagDate), uint64(ms))
}

// AppendStringHeader appends the tag for a final string chunk of n units.
func AppendStringHeader(dst []byte, n int) []byte {
	switch {
	case n <= StringDirectMax:
		return append(dst, TagStringDirectMin+byte(n))
	case n <= StringShortMax:
		return append(dst, TagStringShortMin+byte(n>>8), byte(n))
	default:
		return append(dst, TagString, byte(n>>8), byte(n))
	}
}

// AppendBinaryHeader appends the tag for a final binary chunk of n bytes.
func AppendBinaryHeader(dst []byte, n int) []byte {
	switch {
	case n <= BinaryDirectMax:
		return append(dst, TagBinaryDirectMin+byte(n))
	case n <= BinaryShortMax:
		return append(dst, TagBinaryShortMin+byte(n>>8), byte(n))
	default:
		return append(dst, TagBinary, byte(n>>8), byte(n))
	}
}

// IntOperand returns how many bytes follow an integer tag, or -1 if the tag
// does not start an int.
func IntOperand(tag byte) int {
	switch {
	case tag >= TagIntDirectMin && tag <= TagIntDirectMax:
		return 0
	case tag >= TagIntByteMin && tag <= TagIntByteMax:
		return 1
	case tag >= TagIntShortMin && tag <= TagIntShortMax:
		return 2
	case tag == TagInt:
		return 4
	default:
		return -1
	}
}

// DecodeInt reconstructs an int from its tag and operand bytes.
// len(b) must equal IntOperand(tag).
func DecodeInt(tag byte, b []byte) int32 {
	switch {
	case tag >= TagIntDirectMin && tag <= TagIntDirectMax:
		return int32(tag) - int32(TagIntZero)
	case tag >= TagIntByteMin && tag <= TagIntByteMax:
		return (int32(tag)-int32(TagIntByteZero))<<8 | int32(b[0])
	case tag >= TagIntShortMin && tag <= TagIntShortMax:
		return (int32(tag)-int32(TagIntShortZero))<<16 | int32(b[0])<<8 | int32(b[1])
	default:
		return int32(be.Uint32(b))
	}
}

// LongOperand returns how many bytes follow a long tag, or -1 if the tag
// does not start a long.
func LongOperand(tag byte) int {
	switch {
	case tag >= TagLongDirectMin && tag <= TagLongDirectMax:
		return 0
	case tag >= TagLongByteMin:
		return 1
	case tag >= TagLongShortMin && tag <= TagLongShortMax:
		return 2
	case tag == TagLongInt:
		return 4
	case tag == TagLong:
		return 8
	default:
		return -1
	}
}

// DecodeLong reconstructs a long from its tag and operand bytes.
func DecodeLong(tag byte, b []byte) int64 {
	switch {
	case tag >= TagLongDirectMin && tag <= TagLongDirectMax:
		return int64(tag) - int64(TagLongZero)
	case tag >= TagLongByteMin:
		return (int64(tag)-int64(TagLongByteZero))<<8 | int64(b[0])
	case tag >= TagLongShortMin && tag <= TagLongShortMax:
		return (int64(tag)-int64(TagLongShortZero))<<16 | int64(b[0])<<8 | int64(b[1])
	case tag == TagLongInt:
		return int64(int32(be.Uint32(b)))
	default:
		return int64(be.Uint64(b))
	}
}

// DoubleOperand returns how many bytes follow a double tag, or -1.
func DoubleOperand(tag byte) int {
	switch tag {
	case TagDoubleZero, TagDoubleOne:
		return 0
	case TagDoubleByte:
		return 1
	case TagDoubleShort:
		return 2
	case TagDoubleMill:
		return 4
	case TagDouble:
		return 8
	default:
		return -1
	}
}

// DecodeDouble reconstructs a double from its tag and operand bytes.
func DecodeDouble(tag byte, b []byte) float64 {
	switch tag {
	case TagDoubleZero:
		return 0
	case TagDoubleOne:
		return 1
	case TagDoubleByte:
		return float64(int8(b[0]))
	case TagDoubleShort:
		return float64(int16(be.Uint16(b)))
	case TagDoubleMill:
		return 0.001 * float64(int32(be.Uint32(b)))
	default:
		return math.Float64frombits(be.Uint64(b))
	}
}

// DecodeDate returns milliseconds since the epoch for a date tag.
func DecodeDate(tag byte, b []byte) int64 {
	if tag == TagDateMinute {
		return int64(int32(be.Uint32(b))) * 60000
	}
	return int64(be.Uint64(b))
}

// DoubleToInt32 truncates toward zero, saturating at the int32 bounds and
// mapping NaN to zero.
func DoubleToInt32(f float64) int32 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(f)
	}
}

// DoubleToInt64 is DoubleToInt32 for 64-bit targets.
func DoubleToInt64(f float64) int64 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

// FormatDouble renders v the way the reference text conversion does: plain
// decimals with at least one fractional digit for magnitudes in [1e-3, 1e7),
// otherwise a mantissa and an unpadded exponent such as 1.0E21 or 1.5E-5.
func FormatDouble(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	if a := math.Abs(v); a == 0 || a >= 1e-3 && a < 1e7 {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(v, 'E', -1, 64)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	n, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(n)
}

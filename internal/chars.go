package internal

import "unicode/utf16"

// Strings travel as UTF-16 code units, each unit written as a one to three
// byte UTF-8 style sequence. Code points above U+FFFF are therefore two
// separately encoded surrogate halves, never a four byte sequence.

// Units converts s to UTF-16 code units. Invalid UTF-8 becomes U+FFFD.
func Units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// UnitsString converts UTF-16 code units back to a Go string. Unpaired
// surrogates become U+FFFD.
func UnitsString(u []uint16) string {
	return string(utf16.Decode(u))
}

// AppendUnits appends the wire encoding of each unit.
func AppendUnits(dst []byte, units []uint16) []byte {
	for _, c := range units {
		switch {
		case c < 0x80:
			dst = append(dst, byte(c))
		case c < 0x800:
			dst = append(dst, byte(0xc0+(c>>6)&0x1f), byte(0x80+c&0x3f))
		default:
			dst = append(dst, byte(0xe0+(c>>12)&0x0f), byte(0x80+(c>>6)&0x3f), byte(0x80+c&0x3f))
		}
	}
	return dst
}

// UnitSize returns the byte length of the sequence started by lead, or -1
// when lead cannot start one. Four byte leads are rejected.
func UnitSize(lead byte) int {
	switch {
	case lead < 0x80:
		return 1
	case lead&0xe0 == 0xc0:
		return 2
	case lead&0xf0 == 0xe0:
		return 3
	default:
		return -1
	}
}

// DecodeUnit decodes one sequence of UnitSize(b[0]) bytes.
// ok is false when a continuation byte is malformed.
func DecodeUnit(b []byte) (uint16, bool) {
	switch len(b) {
	case 1:
		return uint16(b[0]), true
	case 2:
		if b[1]&0xc0 != 0x80 {
			return 0, false
		}
		return uint16(b[0]&0x1f)<<6 | uint16(b[1]&0x3f), true
	case 3:
		if b[1]&0xc0 != 0x80 || b[2]&0xc0 != 0x80 {
			return 0, false
		}
		return uint16(b[0]&0x0f)<<12 | uint16(b[1]&0x3f)<<6 | uint16(b[2]&0x3f), true
	default:
		return 0, false
	}
}

// ChunkLen returns how many of the n remaining units go in the next chunk of
// at most max units, so that a chunk never ends on a high surrogate.
func ChunkLen(units []uint16, max int) int {
	if len(units) <= max {
		return len(units)
	}
	n := max
	if utf16.IsSurrogate(rune(units[n-1])) && units[n-1] < 0xdc00 {
		n--
	}
	return n
}

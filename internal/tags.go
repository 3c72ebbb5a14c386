package internal

// Tag bytes of the wire grammar. Compact forms carry a value or length in
// the low bits of the tag; the *Zero constants are the tag that encodes 0.
const (
	TagNull  byte = 'N'
	TagTrue  byte = 'T'
	TagFalse byte = 'F'

	TagInt          byte = 'I'
	TagIntZero      byte = 0x90
	TagIntDirectMin byte = 0x80
	TagIntDirectMax byte = 0xbf
	TagIntByteZero  byte = 0xc8
	TagIntByteMin   byte = 0xc0
	TagIntByteMax   byte = 0xcf
	TagIntShortZero byte = 0xd4
	TagIntShortMin  byte = 0xd0
	TagIntShortMax  byte = 0xd7

	TagLong          byte = 'L'
	TagLongZero      byte = 0xe0
	TagLongDirectMin byte = 0xd8
	TagLongDirectMax byte = 0xef
	TagLongByteZero  byte = 0xf8
	TagLongByteMin   byte = 0xf0
	TagLongByteMax   byte = 0xff
	TagLongShortZero byte = 0x3c
	TagLongShortMin  byte = 0x38
	TagLongShortMax  byte = 0x3f
	TagLongInt       byte = 0x59

	TagDouble      byte = 'D'
	TagDoubleZero  byte = 0x5b
	TagDoubleOne   byte = 0x5c
	TagDoubleByte  byte = 0x5d
	TagDoubleShort byte = 0x5e
	TagDoubleMill  byte = 0x5f

	TagDate       byte = 0x4a
	TagDateMinute byte = 0x4b

	TagString          byte = 'S'
	TagStringChunk     byte = 'R'
	TagStringDirectMin byte = 0x00
	TagStringDirectMax byte = 0x1f
	TagStringShortMin  byte = 0x30
	TagStringShortMax  byte = 0x33

	TagBinary          byte = 'B'
	TagBinaryChunk     byte = 'A'
	TagBinaryDirectMin byte = 0x20
	TagBinaryDirectMax byte = 0x2f
	TagBinaryShortMin  byte = 0x34
	TagBinaryShortMax  byte = 0x37

	TagListVariable         byte = 0x55
	TagListFixed            byte = 'V'
	TagListVariableUntyped  byte = 0x57
	TagListFixedUntyped     byte = 0x58
	TagListDirectMin        byte = 0x70
	TagListDirectMax        byte = 0x77
	TagListDirectUntyped    byte = 0x78
	TagListDirectUntypedMax byte = 0x7f

	TagMap        byte = 'M'
	TagMapUntyped byte = 'H'
	TagEnd        byte = 'Z'

	TagClassDef        byte = 'C'
	TagObject          byte = 'O'
	TagObjectDirectMin byte = 0x60
	TagObjectDirectMax byte = 0x6f

	TagRef byte = 0x51
)

// Framing and envelope tags. They sit outside the value grammar and share
// byte values with it.
const (
	TagPacketChunk     byte = 0x4f
	TagPacketFinal     byte = 'P'
	TagPacketDirectMin byte = 0x70
	TagPacketDirectMax byte = 0x7f
	TagPacketShortMin  byte = 0x80
	TagPacketShortMax  byte = 0xff

	PacketDirectMax = 0x0f
	PacketShortMax  = 0x7fff
	PacketChunkMax  = 0xffff

	TagVersion byte = 'H'
	TagCall    byte = 'C'
	TagReply   byte = 'R'
	TagFault   byte = 'F'

	VersionMajor byte = 0x02
	VersionMinor byte = 0x00
)

// Range limits for the compact forms.
const (
	IntDirectMin    = -0x10
	IntDirectMax    = 0x2f
	IntByteMin      = -0x800
	IntByteMax      = 0x7ff
	IntShortMin     = -0x40000
	IntShortMax     = 0x3ffff
	LongDirectMin   = -0x08
	LongDirectMax   = 0x0f
	LongByteMin     = -0x800
	LongByteMax     = 0x7ff
	LongShortMin    = -0x40000
	LongShortMax    = 0x3ffff
	StringDirectMax = 0x1f
	StringShortMax  = 0x3ff
	BinaryDirectMax = 0x0f
	BinaryShortMax  = 0x3ff
	ListDirectMax   = 7
	ObjectDirectMax = 0x0f

	// MaxChunk is the largest chunk written by the encoder, in UTF-16
	// units for strings and bytes for binaries.
	MaxChunk = 0x8000
)

// TagName returns a short human name for a tag byte, used in diagnostics.
func TagName(t byte) string {
	switch {
	case t == TagNull:
		return "null"
	case t == TagTrue || t == TagFalse:
		return "bool"
	case t == TagInt, t >= TagIntDirectMin && t <= TagIntShortMax:
		return "int"
	case t == TagLong, t == TagLongInt, t >= TagLongDirectMin, t >= TagLongShortMin && t <= TagLongShortMax:
		return "long"
	case t == TagDouble, t >= TagDoubleZero && t <= TagDoubleMill:
		return "double"
	case t == TagDate || t == TagDateMinute:
		return "date"
	case t == TagString, t == TagStringChunk, t <= TagStringDirectMax, t >= TagStringShortMin && t <= TagStringShortMax:
		return "string"
	case t == TagBinary, t == TagBinaryChunk, t >= TagBinaryDirectMin && t <= TagBinaryDirectMax, t >= TagBinaryShortMin && t <= TagBinaryShortMax:
		return "binary"
	case t == TagListVariable, t == TagListFixed, t == TagListVariableUntyped, t == TagListFixedUntyped, t >= TagListDirectMin && t <= TagListDirectUntypedMax:
		return "list"
	case t == TagMap || t == TagMapUntyped:
		return "map"
	case t == TagClassDef:
		return "class definition"
	case t == TagObject, t >= TagObjectDirectMin && t <= TagObjectDirectMax:
		return "object"
	case t == TagRef:
		return "ref"
	case t == TagEnd:
		return "end"
	default:
		return "reserved"
	}
}

// IsListTag reports whether t opens a list.
func IsListTag(t byte) bool {
	return t == TagListVariable || t == TagListFixed ||
		t == TagListVariableUntyped || t == TagListFixedUntyped ||
		t >= TagListDirectMin && t <= TagListDirectUntypedMax
}

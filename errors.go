package hessian

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dadrian/hessian/internal"
)

// ErrorKind classifies protocol errors.
type ErrorKind int

const (
	// KindMalformedTag: a byte that is not valid at the current position.
	KindMalformedTag ErrorKind = iota + 1
	// KindTruncatedStream: input ended inside a token.
	KindTruncatedStream
	// KindUnknownReference: a ref index beyond the reference table.
	KindUnknownReference
	// KindUnknownClassDefinition: an instance index beyond the class table,
	// or a type-name index beyond the type table.
	KindUnknownClassDefinition
	// KindUnsupportedCoercion: the requested scalar cannot be read from the
	// value found.
	KindUnsupportedCoercion
	// KindEncodingOrderingViolation: an instance written before its class
	// definition, or fields written out of definition order.
	KindEncodingOrderingViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedTag:
		return "malformed tag"
	case KindTruncatedStream:
		return "truncated stream"
	case KindUnknownReference:
		return "unknown reference"
	case KindUnknownClassDefinition:
		return "unknown class definition"
	case KindUnsupportedCoercion:
		return "unsupported coercion"
	case KindEncodingOrderingViolation:
		return "encoding ordering violation"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a protocol error. After an Encoder or Decoder returns one, its
// tables are inconsistent and it keeps returning the same error until Reset.
type Error struct {
	Kind ErrorKind
	// Offset is the stream offset of the offending byte, or -1.
	Offset int64
	// Tag is the offending tag byte when HasTag is set.
	Tag    byte
	HasTag bool
	// Context holds a few bytes around Offset for diagnostics.
	Context []byte
	Detail  string
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrMalformedTag              = &Error{Kind: KindMalformedTag, Offset: -1}
	ErrTruncatedStream           = &Error{Kind: KindTruncatedStream, Offset: -1}
	ErrUnknownReference          = &Error{Kind: KindUnknownReference, Offset: -1}
	ErrUnknownClassDefinition    = &Error{Kind: KindUnknownClassDefinition, Offset: -1}
	ErrUnsupportedCoercion       = &Error{Kind: KindUnsupportedCoercion, Offset: -1}
	ErrEncodingOrderingViolation = &Error{Kind: KindEncodingOrderingViolation, Offset: -1}
)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("hessian: ")
	b.WriteString(e.Kind.String())
	if e.HasTag {
		fmt.Fprintf(&b, " 0x%02x (%s)", e.Tag, internal.TagName(e.Tag))
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at %d", e.Offset)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Context) > 0 {
		b.WriteString(" [")
		b.WriteString(hex.EncodeToString(e.Context))
		b.WriteString("]")
	}
	return b.String()
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func errorf(kind ErrorKind, offset int64, format string, args ...any) *Error {
	return &Error{Kind: kind, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

// Package rpc reads and writes the Hessian 2 call, reply and fault
// envelopes around encoded values.
//
//	call  ::= 'H' x02 x00 'C' string int value*
//	reply ::= 'H' x02 x00 'R' value
//	fault ::= 'H' x02 x00 'F' map
//
// Every envelope starts a fresh encoding session, so values in one
// envelope never refer to another.
package rpc

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
	"github.com/dadrian/hessian/internal"
)

// ErrProtocol marks envelopes that do not follow the grammar.
var ErrProtocol = errors.New("rpc: protocol error")

// FaultCode names the class of a fault.
type FaultCode string

const (
	ProtocolException      FaultCode = "ProtocolException"
	NoSuchObjectException  FaultCode = "NoSuchObjectException"
	NoSuchMethodException  FaultCode = "NoSuchMethodException"
	RequireHeaderException FaultCode = "RequireHeaderException"
	ServiceException       FaultCode = "ServiceException"
)

// Fault is a failed call as reported by the callee.
type Fault struct {
	Code    FaultCode
	Message string
	Detail  hessian.Value
}

func (f *Fault) Error() string {
	return fmt.Sprintf("rpc fault %s: %s", f.Code, f.Message)
}

// Call is a decoded call envelope.
type Call struct {
	Method string
	Args   []hessian.Value
}

func writeVersion(e *hessian.Encoder, tag byte) error {
	e.Reset()
	for _, c := range []byte{internal.TagVersion, internal.VersionMajor, internal.VersionMinor, tag} {
		if err := e.WriteByte(c); err != nil {
			return err
		}
	}
	return nil
}

// WriteCall writes a call to method with args and flushes.
func WriteCall(e *hessian.Encoder, method string, args ...hessian.Value) error {
	if err := writeVersion(e, internal.TagCall); err != nil {
		return err
	}
	if err := e.WriteString(method); err != nil {
		return err
	}
	if err := e.WriteInt(int32(len(args))); err != nil {
		return err
	}
	for _, a := range args {
		if err := e.Encode(a); err != nil {
			return err
		}
	}
	return e.Flush()
}

// WriteReply writes a successful reply holding v and flushes.
func WriteReply(e *hessian.Encoder, v hessian.Value) error {
	if err := writeVersion(e, internal.TagReply); err != nil {
		return err
	}
	return e.Encode(v)
}

// WriteFault writes f as a fault envelope and flushes.
func WriteFault(e *hessian.Encoder, f *Fault) error {
	if err := writeVersion(e, internal.TagFault); err != nil {
		return err
	}
	detail := f.Detail
	if detail == nil {
		detail = hessian.Null{}
	}
	m := &hessian.Map{}
	m.Put(hessian.String("code"), hessian.String(f.Code))
	m.Put(hessian.String("message"), hessian.String(f.Message))
	m.Put(hessian.String("detail"), detail)
	return e.Encode(m)
}

// readVersion consumes the version header and returns the envelope tag.
// It returns io.EOF when the stream ends before the header.
func readVersion(d *hessian.Decoder) (byte, error) {
	d.Reset()
	c, err := d.ReadByte()
	if err != nil {
		return 0, err
	}
	if c != internal.TagVersion {
		return 0, errors.Wrapf(ErrProtocol, "expected version header, got 0x%02x", c)
	}
	var hdr [3]byte
	for i := range hdr {
		if hdr[i], err = d.ReadByte(); err != nil {
			return 0, truncated(err)
		}
	}
	if hdr[0] != internal.VersionMajor || hdr[1] != internal.VersionMinor {
		return 0, errors.Wrapf(ErrProtocol, "unsupported version %d.%d", hdr[0], hdr[1])
	}
	return hdr[2], nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadCall reads a call envelope. It returns io.EOF at a clean end of
// input.
func ReadCall(d *hessian.Decoder) (*Call, error) {
	tag, err := readVersion(d)
	if err != nil {
		return nil, err
	}
	if tag != internal.TagCall {
		return nil, errors.Wrapf(ErrProtocol, "expected call, got 0x%02x", tag)
	}
	method, err := d.ReadString()
	if err != nil {
		return nil, truncated(err)
	}
	argc, err := d.ReadInt()
	if err != nil {
		return nil, truncated(err)
	}
	if argc < 0 {
		return nil, errors.Wrapf(ErrProtocol, "negative argument count %d", argc)
	}
	call := &Call{Method: method, Args: make([]hessian.Value, 0, min(int(argc), 64))}
	for range argc {
		v, err := d.Decode()
		if err != nil {
			return nil, truncated(err)
		}
		call.Args = append(call.Args, v)
	}
	return call, nil
}

// ReadReply reads a reply envelope. A fault envelope is returned as a
// *Fault error.
func ReadReply(d *hessian.Decoder) (hessian.Value, error) {
	tag, err := readVersion(d)
	if err != nil {
		return nil, truncated(err)
	}
	switch tag {
	case internal.TagReply:
		v, err := d.Decode()
		if err != nil {
			return nil, truncated(err)
		}
		return v, nil
	case internal.TagFault:
		v, err := d.Decode()
		if err != nil {
			return nil, truncated(err)
		}
		m, ok := v.(*hessian.Map)
		if !ok {
			return nil, errors.Wrapf(ErrProtocol, "fault body is %s, not a map", v.Kind())
		}
		return nil, faultFrom(m)
	default:
		return nil, errors.Wrapf(ErrProtocol, "expected reply, got 0x%02x", tag)
	}
}

func faultFrom(m *hessian.Map) *Fault {
	f := &Fault{Detail: hessian.Null{}}
	if v, ok := m.Get(hessian.String("code")); ok {
		if s, ok := v.(hessian.String); ok {
			f.Code = FaultCode(s)
		}
	}
	if v, ok := m.Get(hessian.String("message")); ok {
		if s, ok := v.(hessian.String); ok {
			f.Message = string(s)
		}
	}
	if v, ok := m.Get(hessian.String("detail")); ok && v != nil {
		f.Detail = v
	}
	return f
}

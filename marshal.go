package hessian

import (
	"bytes"
	"io"

	"github.com/dadrian/hessian/internal"
)

// Marshal encodes v in a fresh session.
func Marshal(v Value, opts ...Option) ([]byte, error) {
	buf := internal.GetBuffer()
	defer internal.PutBuffer(buf)
	if err := NewEncoder(buf, opts...).Encode(v); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Unmarshal decodes the single value in data in a fresh session. Trailing
// bytes are an error.
func Unmarshal(data []byte, opts ...Option) (Value, error) {
	d := NewDecoder(bytes.NewReader(data), opts...)
	v, err := d.Decode()
	if err != nil {
		if err == io.EOF {
			return nil, d.ioErr(io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	if d.Offset() != int64(len(data)) {
		return nil, errorf(KindMalformedTag, d.Offset(), "%d trailing bytes", int64(len(data))-d.Offset())
	}
	return v, nil
}

package framing

import (
	"github.com/dadrian/hessian"
)

// Encoder writes each value as its own message, encoded in a fresh session
// so a message never refers into an earlier one.
type Encoder struct {
	w    *Writer
	opts []hessian.Option
}

// NewEncoder returns an Encoder on w. Codec options come from the
// WithCodecOptions given to NewWriter.
func NewEncoder(w *Writer) *Encoder {
	return &Encoder{w: w, opts: w.opts.codec}
}

// Encode writes v as one message.
func (e *Encoder) Encode(v hessian.Value) error {
	b, err := hessian.Marshal(v, e.opts...)
	if err != nil {
		return err
	}
	return e.w.WriteMessage(b)
}

// Decoder reads one value per message.
type Decoder struct {
	r    *Reader
	opts []hessian.Option
}

// NewDecoder returns a Decoder on r.
func NewDecoder(r *Reader) *Decoder {
	return &Decoder{r: r, opts: r.opts.codec}
}

// Decode reads the next message and decodes it. A message holding more
// than one value is rejected. It returns io.EOF at the end of the stream.
func (d *Decoder) Decode() (hessian.Value, error) {
	msg, err := d.r.ReadMessage()
	if err != nil {
		return nil, err
	}
	return hessian.Unmarshal(msg, d.opts...)
}

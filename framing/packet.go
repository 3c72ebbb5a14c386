package framing

import (
	"bufio"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/dadrian/hessian/internal"
)

type flushCloser interface {
	io.Writer
	Flush() error
	Close() error
}

// Writer writes framed messages.
type Writer struct {
	w    io.Writer
	zw   flushCloser
	opts options
}

// NewWriter returns a Writer on w. With compression enabled, Close must be
// called to finish the compressed stream; it does not close w.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	o := buildOptions(opts)
	fw := &Writer{w: w, opts: o}
	switch o.compression {
	case CompressionNone:
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.Wrap(err, "framing: zstd writer")
		}
		fw.zw = zw
	case CompressionLZ4:
		fw.zw = lz4.NewWriter(w)
	default:
		return nil, errors.Newf("framing: unknown compression %d", int(o.compression))
	}
	if fw.zw != nil {
		fw.w = fw.zw
	}
	return fw, nil
}

// WriteMessage writes p as one message. Payloads larger than a chunk are
// split into non-final chunks of internal.MaxChunk bytes.
func (fw *Writer) WriteMessage(p []byte) error {
	buf := internal.GetBuffer()
	defer internal.PutBuffer(buf)

	size := len(p)
	for len(p) > internal.MaxChunk {
		buf.Write([]byte{internal.TagPacketChunk, internal.MaxChunk >> 8, internal.MaxChunk & 0xff})
		buf.Write(p[:internal.MaxChunk])
		p = p[internal.MaxChunk:]
	}
	switch n := len(p); {
	case n <= internal.PacketDirectMax:
		buf.WriteByte(internal.TagPacketDirectMin + byte(n))
	case n <= internal.PacketShortMax:
		buf.WriteByte(internal.TagPacketShortMin + byte(n>>8))
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(internal.TagPacketFinal)
		buf.WriteByte(byte(n >> 8))
		buf.WriteByte(byte(n))
	}
	buf.Write(p)
	if _, err := fw.w.Write(buf.Bytes()); err != nil {
		return err
	}
	fw.opts.logger.Debug("framing: message written",
		slog.Int("size", size), slog.Int("wire", buf.Len()))
	return nil
}

// Flush pushes buffered compressed data to the underlying writer.
func (fw *Writer) Flush() error {
	if fw.zw == nil {
		return nil
	}
	return fw.zw.Flush()
}

// Close finishes the compressed stream. It is a no-op without compression.
func (fw *Writer) Close() error {
	if fw.zw == nil {
		return nil
	}
	return fw.zw.Close()
}

// Reader reads framed messages.
type Reader struct {
	r     *bufio.Reader
	close func()
	opts  options
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	fr := &Reader{opts: o, close: func() {}}
	switch o.compression {
	case CompressionNone:
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "framing: zstd reader")
		}
		r, fr.close = zr, zr.Close
	case CompressionLZ4:
		r = lz4.NewReader(r)
	default:
		return nil, errors.Newf("framing: unknown compression %d", int(o.compression))
	}
	fr.r = bufio.NewReader(r)
	return fr, nil
}

// ReadMessage returns the next message. It returns io.EOF when the stream
// ends between messages and io.ErrUnexpectedEOF when it ends inside one.
func (fr *Reader) ReadMessage() ([]byte, error) {
	var msg []byte
	for first := true; ; first = false {
		tag, err := fr.r.ReadByte()
		if err != nil {
			if err == io.EOF && !first {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		final := true
		var n int
		switch {
		case tag == internal.TagPacketChunk || tag == internal.TagPacketFinal:
			final = tag == internal.TagPacketFinal
			var hdr [2]byte
			if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
				return nil, unexpected(err)
			}
			n = int(hdr[0])<<8 | int(hdr[1])
		case tag >= internal.TagPacketDirectMin && tag <= internal.TagPacketDirectMax:
			n = int(tag - internal.TagPacketDirectMin)
		case tag >= internal.TagPacketShortMin:
			b0, err := fr.r.ReadByte()
			if err != nil {
				return nil, unexpected(err)
			}
			n = int(tag-internal.TagPacketShortMin)<<8 | int(b0)
		default:
			return nil, errors.Wrapf(ErrMalformedPacket, "tag 0x%02x", tag)
		}
		if len(msg)+n > fr.opts.maxMessage {
			return nil, errors.Wrapf(ErrMessageTooLarge, "%d bytes", len(msg)+n)
		}
		start := len(msg)
		msg = append(msg, make([]byte, n)...)
		if _, err := io.ReadFull(fr.r, msg[start:]); err != nil {
			return nil, unexpected(err)
		}
		if final {
			fr.opts.logger.Debug("framing: message read", slog.Int("size", len(msg)))
			if msg == nil {
				msg = []byte{}
			}
			return msg, nil
		}
	}
}

// Close releases decompressor resources. It does not close the source.
func (fr *Reader) Close() error {
	fr.close()
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

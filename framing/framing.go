// Package framing splits a byte stream into messages using the Hessian
// packet grammar, with optional stream compression underneath.
//
// A message is a run of non-final chunks followed by one final packet:
//
//	x4f b1 b0 <data>        non-final chunk
//	'P' b1 b0 <data>        final packet
//	[x70-x7f] <data>        final packet of 0-15 bytes
//	[x80-xff] b0 <data>     final packet of up to 0x7fff bytes
package framing

import (
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
)

// Compression selects the stream codec wrapped around the packets.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

var compressionNames = [...]string{"none", "zstd", "lz4"}

func (c Compression) String() string {
	if c >= 0 && int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return "unknown"
}

// ParseCompression maps "none", "zstd" and "lz4" to a Compression.
func ParseCompression(s string) (Compression, error) {
	for i, name := range compressionNames {
		if strings.EqualFold(s, name) {
			return Compression(i), nil
		}
	}
	return 0, errors.Newf("framing: unknown compression %q", s)
}

var (
	// ErrMalformedPacket is returned for a byte that starts no packet form.
	ErrMalformedPacket = errors.New("framing: malformed packet")
	// ErrMessageTooLarge is returned when a message exceeds the reader limit.
	ErrMessageTooLarge = errors.New("framing: message too large")
)

// DefaultMaxMessage bounds the size of a reassembled message.
const DefaultMaxMessage = 64 << 20

type options struct {
	compression Compression
	maxMessage  int
	logger      *slog.Logger
	codec       []hessian.Option
}

// Option configures readers, writers and the value helpers.
type Option func(*options)

// WithCompression wraps the stream in the given codec. Both ends must agree.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithMaxMessage bounds reassembled message size on the read side.
func WithMaxMessage(n int) Option {
	return func(o *options) { o.maxMessage = n }
}

// WithLogger sets the logger for per-message debug records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCodecOptions passes options to the per-message encoder and decoder
// sessions of Encoder and Decoder.
func WithCodecOptions(opts ...hessian.Option) Option {
	return func(o *options) { o.codec = append(o.codec, opts...) }
}

func buildOptions(opts []Option) options {
	o := options{
		maxMessage: DefaultMaxMessage,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

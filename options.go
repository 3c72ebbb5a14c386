package hessian

import (
	"log/slog"

	"github.com/dadrian/hessian/internal"
)

// SubstituteFunc returns a stand-in to encode in place of v, or false to
// encode v itself. Later references to v resolve to the stand-in.
type SubstituteFunc func(v Value) (Value, bool)

// DefaultMaxDepth is how deeply lists, maps and objects may nest in decoded
// input unless WithMaxDepth says otherwise.
const DefaultMaxDepth = 4096

type options struct {
	logger     *slog.Logger
	substitute SubstituteFunc
	chunkSize  int
	maxDepth   int
}

// Option configures an Encoder or Decoder.
type Option func(*options)

// WithLogger sets the logger for debug records about session tables.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSubstitute installs an encode-side substitute hook for composites.
func WithSubstitute(f SubstituteFunc) Option {
	return func(o *options) { o.substitute = f }
}

// WithChunkSize caps string and binary chunks at n units. Values outside
// 2..0x8000 are ignored.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 1 && n <= internal.MaxChunk {
			o.chunkSize = n
		}
	}
}

// WithMaxDepth limits how deeply composites may nest when decoding. Deeper
// input fails with KindMalformedTag. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDepth = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    slog.New(slog.DiscardHandler),
		chunkSize: internal.MaxChunk,
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

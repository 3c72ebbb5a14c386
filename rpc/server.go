package rpc

import (
	"io"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
)

// HandlerFunc serves one method. Returning a *Fault sends it unchanged;
// any other error becomes a ServiceException.
type HandlerFunc func(args []hessian.Value) (hessian.Value, error)

// Mux dispatches calls by method name.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewMux returns an empty Mux. A nil logger discards records.
func NewMux(logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mux{handlers: map[string]HandlerFunc{}, logger: logger}
}

// Handle registers h for method, replacing any earlier handler.
func (m *Mux) Handle(method string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
}

// ServeOne reads one call from d and writes its reply or fault to e. It
// returns io.EOF when no call is left. Malformed calls are answered with a
// ProtocolException fault before the error is returned.
func (m *Mux) ServeOne(d *hessian.Decoder, e *hessian.Encoder) error {
	call, err := ReadCall(d)
	if err != nil {
		if err == io.EOF {
			return err
		}
		m.logger.Warn("rpc: bad call", slog.String("error", err.Error()))
		if ferr := WriteFault(e, &Fault{Code: ProtocolException, Message: err.Error()}); ferr != nil {
			return errors.CombineErrors(err, ferr)
		}
		return err
	}

	m.mu.RLock()
	h, ok := m.handlers[call.Method]
	m.mu.RUnlock()
	if !ok {
		m.logger.Debug("rpc: no such method", slog.String("method", call.Method))
		return WriteFault(e, &Fault{Code: NoSuchMethodException, Message: "no method " + call.Method})
	}

	v, err := h(call.Args)
	if err != nil {
		var f *Fault
		if !errors.As(err, &f) {
			f = &Fault{Code: ServiceException, Message: err.Error()}
		}
		m.logger.Debug("rpc: call failed",
			slog.String("method", call.Method), slog.String("code", string(f.Code)))
		return WriteFault(e, f)
	}
	m.logger.Debug("rpc: call served", slog.String("method", call.Method), slog.Int("args", len(call.Args)))
	return WriteReply(e, v)
}

// Serve answers calls until the input ends or a call fails. After a
// malformed call the stream position is unknown, so Serve stops there.
func (m *Mux) Serve(d *hessian.Decoder, e *hessian.Encoder) error {
	for {
		if err := m.ServeOne(d, e); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Client issues calls over a connection, one at a time.
type Client struct {
	mu sync.Mutex
	e  *hessian.Encoder
	d  *hessian.Decoder
}

// NewClient returns a Client writing calls to w and reading replies from r.
func NewClient(r io.Reader, w io.Writer, opts ...hessian.Option) *Client {
	return &Client{e: hessian.NewEncoder(w, opts...), d: hessian.NewDecoder(r, opts...)}
}

// Invoke calls method and waits for its reply. A fault is returned as a
// *Fault error.
func (c *Client) Invoke(method string, args ...hessian.Value) (hessian.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteCall(c.e, method, args...); err != nil {
		return nil, err
	}
	return ReadReply(c.d)
}

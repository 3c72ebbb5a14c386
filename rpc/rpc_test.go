package rpc

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dadrian/hessian"
)

func TestCallBytes(t *testing.T) {
	var buf bytes.Buffer
	e := hessian.NewEncoder(&buf)
	require.NoError(t, WriteCall(e, "add", hessian.Int32(1), hessian.Int32(2)))
	require.Equal(t, []byte{'H', 0x02, 0x00, 'C', 0x03, 'a', 'd', 'd', 0x92, 0x91, 0x92}, buf.Bytes())

	call, err := ReadCall(hessian.NewDecoder(&buf))
	require.NoError(t, err)
	require.Equal(t, &Call{Method: "add", Args: []hessian.Value{hessian.Int32(1), hessian.Int32(2)}}, call)
}

func TestReplyAndFault(t *testing.T) {
	var buf bytes.Buffer
	e := hessian.NewEncoder(&buf)
	require.NoError(t, WriteReply(e, hessian.Int32(3)))
	require.Equal(t, []byte{'H', 0x02, 0x00, 'R', 0x93}, buf.Bytes())

	require.NoError(t, WriteFault(e, &Fault{Code: NoSuchObjectException, Message: "gone"}))

	d := hessian.NewDecoder(&buf)
	v, err := ReadReply(d)
	require.NoError(t, err)
	require.Equal(t, hessian.Int32(3), v)

	_, err = ReadReply(d)
	var f *Fault
	require.True(t, errors.As(err, &f))
	require.Equal(t, NoSuchObjectException, f.Code)
	require.Equal(t, "gone", f.Message)
	require.Equal(t, hessian.Null{}, f.Detail)
	require.Equal(t, "rpc fault NoSuchObjectException: gone", f.Error())
}

func TestEnvelopesDoNotShareReferences(t *testing.T) {
	shared := &hessian.List{Elems: []hessian.Value{hessian.Int32(1)}}
	var buf bytes.Buffer
	e := hessian.NewEncoder(&buf)
	require.NoError(t, WriteReply(e, shared))
	first := buf.Len()
	require.NoError(t, WriteReply(e, shared))
	require.Equal(t, buf.Bytes()[:first], buf.Bytes()[first:])
}

func TestProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"not a header", []byte{'C', 0x02, 0x00}},
		{"old version", []byte{'H', 0x01, 0x00, 'C'}},
		{"reply where call expected", []byte{'H', 0x02, 0x00, 'R', 'N'}},
		{"negative argc", []byte{'H', 0x02, 0x00, 'C', 0x01, 'f', 0x8f}},
	}
	for _, tt := range tests {
		_, err := ReadCall(hessian.NewDecoder(bytes.NewReader(tt.in)))
		require.True(t, errors.Is(err, ErrProtocol), tt.name)
	}

	_, err := ReadCall(hessian.NewDecoder(bytes.NewReader(nil)))
	require.Equal(t, io.EOF, err)

	_, err = ReadCall(hessian.NewDecoder(bytes.NewReader([]byte{'H', 0x02})))
	require.Equal(t, io.ErrUnexpectedEOF, err)

	_, err = ReadReply(hessian.NewDecoder(bytes.NewReader([]byte{'H', 0x02, 0x00, 'F', 0x91})))
	require.True(t, errors.Is(err, ErrProtocol))
}

func TestMuxOverPipes(t *testing.T) {
	mux := NewMux(nil)
	mux.Handle("add", func(args []hessian.Value) (hessian.Value, error) {
		var sum int32
		for _, a := range args {
			sum += int32(a.(hessian.Int32))
		}
		return hessian.Int32(sum), nil
	})
	mux.Handle("fail", func([]hessian.Value) (hessian.Value, error) {
		return nil, errors.New("boom")
	})
	mux.Handle("deny", func([]hessian.Value) (hessian.Value, error) {
		return nil, &Fault{Code: RequireHeaderException, Message: "auth", Detail: hessian.String("token")}
	})

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	var g errgroup.Group
	g.Go(func() error {
		defer respW.Close()
		return mux.Serve(hessian.NewDecoder(reqR), hessian.NewEncoder(respW))
	})

	c := NewClient(respR, reqW)
	v, err := c.Invoke("add", hessian.Int32(40), hessian.Int32(2))
	require.NoError(t, err)
	require.Equal(t, hessian.Int32(42), v)

	var f *Fault
	_, err = c.Invoke("fail")
	require.True(t, errors.As(err, &f))
	require.Equal(t, ServiceException, f.Code)
	require.Equal(t, "boom", f.Message)

	_, err = c.Invoke("deny")
	require.True(t, errors.As(err, &f))
	require.Equal(t, RequireHeaderException, f.Code)
	require.Equal(t, hessian.String("token"), f.Detail)

	_, err = c.Invoke("missing")
	require.True(t, errors.As(err, &f))
	require.Equal(t, NoSuchMethodException, f.Code)

	require.NoError(t, reqW.Close())
	require.NoError(t, g.Wait())
}

func TestServeOneAnswersMalformedCall(t *testing.T) {
	var out bytes.Buffer
	err := NewMux(nil).ServeOne(hessian.NewDecoder(bytes.NewReader([]byte{'X'})), hessian.NewEncoder(&out))
	require.True(t, errors.Is(err, ErrProtocol))

	_, err = ReadReply(hessian.NewDecoder(&out))
	var f *Fault
	require.True(t, errors.As(err, &f))
	require.Equal(t, ProtocolException, f.Code)
}

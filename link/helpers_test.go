package link

import (
	"errors"
	"io"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

var errSendFailed = errors.New("send failed")

// memConn is one end of an in-memory record channel.
type memConn struct {
	in   <-chan []byte
	out  chan<- []byte
	peer *memConn

	closed    chan struct{}
	closeOnce sync.Once
	failSend  bool
}

func memPair() (*memConn, *memConn) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	a := &memConn{in: ba, out: ab, closed: make(chan struct{})}
	b := &memConn{in: ab, out: ba, closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *memConn) Send(record []byte) error {
	if c.failSend {
		return errSendFailed
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case <-c.peer.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.out <- append([]byte(nil), record...):
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	case <-c.peer.closed:
		return io.ErrClosedPipe
	}
}

func (c *memConn) Receive() ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.closed:
		return nil, io.ErrClosedPipe
	case <-c.peer.closed:
		return nil, io.EOF
	}
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *memConn) sendHeader(t *testing.T, h Header) {
	t.Helper()
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, c.Send(b))
}

func (c *memConn) receiveHeader(t *testing.T) Header {
	t.Helper()
	select {
	case m := <-c.in:
		h, err := ParseHeader(m)
		require.NoError(t, err)
		return h
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a record")
		return Header{}
	}
}

func receiveInbound(t *testing.T, in <-chan Header) Header {
	t.Helper()
	select {
	case h, ok := <-in:
		require.True(t, ok, "inbound channel closed")
		return h
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for an inbound header")
		return Header{}
	}
}

func waitDone(t *testing.T, l *Link) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(testTimeout):
		t.Fatal("link did not shut down")
	}
}

var testKey = netip.MustParseAddrPort("192.0.2.10:4040")

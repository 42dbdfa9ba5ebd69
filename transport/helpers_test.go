package transport

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/opd-ai/unilink/crypto"
	"github.com/opd-ai/unilink/noise"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// testReadCap keeps corrupted length prefixes from causing huge allocations.
const testReadCap = 1 << 20

func testConfig(t testing.TB, role noise.Role, psk crypto.PreSharedKey) HandshakeConfig {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return HandshakeConfig{
		Role: role,
		Keys: noise.Keys{StaticPrivate: kp.Private[:], PSK: psk[:]},
	}
}

// securePair handshakes both ends of an in-memory pipe.
func securePair(t testing.TB) (*SecureConn, *SecureConn) {
	t.Helper()

	psk, err := crypto.GeneratePSK()
	require.NoError(t, err)

	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	var initiator, responder *SecureConn
	var g errgroup.Group
	g.Go(func() error {
		var err error
		initiator, err = Handshake(a, testConfig(t, noise.Initiator, psk))
		return err
	})
	g.Go(func() error {
		var err error
		responder, err = Handshake(b, testConfig(t, noise.Responder, psk))
		return err
	})
	require.NoError(t, g.Wait())
	return initiator, responder
}

// bufferedPair returns a sender and receiver that share a buffer instead of
// a pipe, so tests can inspect and corrupt the bytes in flight.
func bufferedPair(t testing.TB) (*SecureConn, *SecureConn, *bytes.Buffer) {
	t.Helper()
	initiator, responder := securePair(t)

	var buf bytes.Buffer
	sender, err := NewSecureConn(NewFrameConn(&buf), initiator.Session())
	require.NoError(t, err)
	receiver, err := NewSecureConn(NewFrameConn(&buf, WithMaxFrameSize(testReadCap)), responder.Session())
	require.NoError(t, err)
	return sender, receiver, &buf
}

// recordingStream serves canned input and records what was consumed and
// written.
type recordingStream struct {
	input    *bytes.Reader
	consumed int
	written  bytes.Buffer
}

func newRecordingStream(input []byte) *recordingStream {
	return &recordingStream{input: bytes.NewReader(input)}
}

func (s *recordingStream) Read(p []byte) (int, error) {
	n, err := s.input.Read(p)
	s.consumed += n
	return n, err
}

func (s *recordingStream) Write(p []byte) (int, error) {
	return s.written.Write(p)
}

// failingWriter accepts limit bytes and then fails.
type failingWriter struct {
	limit int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		n := w.limit
		w.limit = 0
		return n, io.ErrClosedPipe
	}
	w.limit -= len(p)
	return len(p), nil
}

package noise

import (
	"io"
	"testing"

	"github.com/opd-ai/unilink/crypto"
	"github.com/stretchr/testify/require"
)

// chanFrames is an in-memory frame channel; two of them form a duplex pair.
type chanFrames struct {
	in  <-chan []byte
	out chan<- []byte
}

func (c *chanFrames) WriteFrame(message []byte) error {
	c.out <- append([]byte(nil), message...)
	return nil
}

func (c *chanFrames) ReadFrame() ([]byte, error) {
	m, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return m, nil
}

func framePair() (*chanFrames, *chanFrames) {
	ab := make(chan []byte, 4)
	ba := make(chan []byte, 4)
	return &chanFrames{in: ba, out: ab}, &chanFrames{in: ab, out: ba}
}

// countingFrames records every call and carries nothing.
type countingFrames struct {
	reads  int
	writes int
}

func (c *countingFrames) WriteFrame([]byte) error {
	c.writes++
	return nil
}

func (c *countingFrames) ReadFrame() ([]byte, error) {
	c.reads++
	return nil, io.EOF
}

func testKeys(t testing.TB, psk crypto.PreSharedKey) Keys {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return Keys{StaticPrivate: kp.Private[:], PSK: psk[:]}
}

func testPSK(t testing.TB) crypto.PreSharedKey {
	t.Helper()
	psk, err := crypto.GeneratePSK()
	require.NoError(t, err)
	return psk
}

// handshakePair runs both sides of a handshake concurrently and returns the
// initiator and responder sessions with their errors.
func handshakePair(t testing.TB, initKeys, respKeys Keys) (*Session, *Session, error, error) {
	t.Helper()

	is, err := NewSession(PatternXXpsk3, initKeys, Initiator)
	require.NoError(t, err)
	rs, err := NewSession(PatternXXpsk3, respKeys, Responder)
	require.NoError(t, err)

	ie, err := NewEngine(is)
	require.NoError(t, err)
	re, err := NewEngine(rs)
	require.NoError(t, err)

	a, b := framePair()
	respErr := make(chan error, 1)
	go func() {
		err := re.Responder(b)
		if err != nil {
			// Unblock an initiator waiting for a reply that will never come.
			close(b.out)
		}
		respErr <- err
	}()

	initErr := ie.Initiator(a)
	if initErr != nil {
		close(a.out)
	}
	return is, rs, initErr, <-respErr
}

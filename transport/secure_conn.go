package transport

import (
	"fmt"
	"sync"

	"github.com/opd-ai/unilink/noise"
	"github.com/sirupsen/logrus"
)

// ChunkSize is the plaintext carried by each sealed chunk of a record, so
// that every sealed chunk fits one Noise message.
const ChunkSize = noise.MaxPlaintextLen

// SecureConn sends and receives records over a frame channel using a session
// in transport phase.
//
// A record of any length is split into chunks of at most ChunkSize bytes.
// Each chunk is sealed on its own, and the sealed chunks are concatenated
// into a single frame. Every chunk but the last seals to exactly
// noise.MaxMessageLen bytes, which is how the receiver finds the boundaries.
// An empty record is sent as one sealed empty chunk.
//
// Send may be called concurrently with Receive. Concurrent Sends are
// serialised; concurrent Receives are serialised.
type SecureConn struct {
	frames  *FrameConn
	session *noise.Session

	sendMu sync.Mutex
	recvMu sync.Mutex
}

// NewSecureConn pairs frames with a session that has finished its handshake.
func NewSecureConn(frames *FrameConn, s *noise.Session) (*SecureConn, error) {
	if s == nil || s.Phase() != noise.PhaseTransport {
		return nil, noise.ErrNotTransport
	}
	return &SecureConn{frames: frames, session: s}, nil
}

// sealedLen returns the size of plaintext n once chunked and sealed.
func sealedLen(n int) int {
	chunks := (n + ChunkSize - 1) / ChunkSize
	if chunks == 0 {
		chunks = 1
	}
	return n + chunks*noise.TagSize
}

// Send seals plaintext and writes it as one frame.
func (c *SecureConn) Send(plaintext []byte) error {
	if err := checkFrameLen(sealedLen(len(plaintext))); err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	record := make([]byte, 0, sealedLen(len(plaintext)))
	for off := 0; ; {
		end := off + ChunkSize
		if end > len(plaintext) {
			end = len(plaintext)
		}

		var err error
		record, err = c.session.Encrypt(record, plaintext[off:end])
		if err != nil {
			return fmt.Errorf("seal chunk at offset %d: %w", off, err)
		}

		off = end
		if off >= len(plaintext) {
			break
		}
	}

	if err := c.frames.WriteFrame(record); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "SecureConn.Send",
		"plaintext":  len(plaintext),
		"record_len": len(record),
	}).Trace("Record sent")
	return nil
}

// Receive reads one frame and opens every sealed chunk in it, in order.
// If any chunk fails authentication, no plaintext is returned.
func (c *SecureConn) Receive() ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	record, err := c.frames.ReadFrame()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrDecrypt)
	}

	out := make([]byte, 0, len(record))
	for cursor, chunk := 0, 0; cursor < len(record); chunk++ {
		n := len(record) - cursor
		if n > noise.MaxMessageLen {
			n = noise.MaxMessageLen
		}

		out, err = c.session.Decrypt(out, record[cursor:cursor+n])
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrDecrypt, chunk, err)
		}
		cursor += n
	}

	logrus.WithFields(logrus.Fields{
		"function":   "SecureConn.Receive",
		"plaintext":  len(out),
		"record_len": len(record),
	}).Trace("Record received")
	return out, nil
}

// Session returns the session backing the connection.
func (c *SecureConn) Session() *noise.Session { return c.session }

// RemoteStatic returns the peer's authenticated static public key.
func (c *SecureConn) RemoteStatic() []byte { return c.session.RemoteStatic() }

// Close closes the underlying stream.
func (c *SecureConn) Close() error {
	return c.frames.Close()
}

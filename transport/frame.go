package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

const (
	// FrameHeaderLen is the size of the big-endian length prefix.
	FrameHeaderLen = 4
	// MaxFrameLen is the largest payload a frame can carry. The all-ones
	// length is reserved.
	MaxFrameLen = math.MaxUint32 - 1
)

// checkFrameLen rejects payload lengths that cannot be framed.
func checkFrameLen(n int) error {
	if uint64(n) > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}
	return nil
}

// WriteFrame writes payload to w as one frame:
//
//	[length:4 big-endian][payload:length]
//
// Oversized payloads are rejected before anything is written. A failure part
// way through leaves the stream unusable; it is not rolled back.
func WriteFrame(w io.Writer, payload []byte) error {
	if err := checkFrameLen(len(payload)); err != nil {
		return err
	}

	var hdr [FrameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	// net.Buffers lets a net.Conn send header and payload in one writev.
	bufs := net.Buffers{hdr[:], payload}
	if _, err := bufs.WriteTo(w); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r. A stream that ends inside a frame gives
// ErrShortFrame; io.EOF is returned unwrapped only when r ends cleanly before
// the first header byte.
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r, MaxFrameLen)
}

func readFrame(r io.Reader, limit uint32) ([]byte, error) {
	var hdr [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: header", ErrShortFrame)
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length == math.MaxUint32 || length > limit {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, length, limit)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: want %d payload bytes", ErrShortFrame, length)
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// FrameConn turns an ordered byte stream into discrete frames. It keeps no
// state between calls.
type FrameConn struct {
	rw      io.ReadWriter
	maxRead uint32
}

// FrameOption configures a FrameConn.
type FrameOption func(*FrameConn)

// WithMaxFrameSize caps the length of inbound frames. Zero means no cap
// beyond the frame format itself.
func WithMaxFrameSize(n uint32) FrameOption {
	return func(fc *FrameConn) {
		if n > 0 && n < MaxFrameLen {
			fc.maxRead = n
		}
	}
}

// NewFrameConn wraps rw.
func NewFrameConn(rw io.ReadWriter, opts ...FrameOption) *FrameConn {
	fc := &FrameConn{rw: rw, maxRead: MaxFrameLen}
	for _, opt := range opts {
		opt(fc)
	}
	return fc
}

// WriteFrame sends message as one frame.
func (fc *FrameConn) WriteFrame(message []byte) error {
	return WriteFrame(fc.rw, message)
}

// ReadFrame receives one frame.
func (fc *FrameConn) ReadFrame() ([]byte, error) {
	return readFrame(fc.rw, fc.maxRead)
}

// Close closes the underlying stream if it can be closed.
func (fc *FrameConn) Close() error {
	if c, ok := fc.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

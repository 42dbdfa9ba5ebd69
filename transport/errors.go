package transport

import "errors"

var (
	// ErrMessageTooLarge indicates a payload that cannot be framed: its length
	// does not fit the 32-bit prefix or collides with the reserved value.
	ErrMessageTooLarge = errors.New("message too large to frame")
	// ErrFrameTooLarge indicates an inbound length prefix that is reserved or
	// above the connection's read limit.
	ErrFrameTooLarge = errors.New("inbound frame exceeds size limit")
	// ErrShortFrame indicates a stream that ended part way through a frame.
	ErrShortFrame = errors.New("stream ended inside a frame")
	// ErrDecrypt indicates a record that failed authentication or could not
	// be split into sealed chunks.
	ErrDecrypt = errors.New("record decryption failed")
)

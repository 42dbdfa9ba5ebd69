package noise

import "errors"

var (
	// ErrHandshakeAlreadyFinished indicates the session has already left the
	// uninitialized phase. Handshakes are never rerun on a session.
	ErrHandshakeAlreadyFinished = errors.New("handshake already finished")
	// ErrHandshakeNotStarted indicates a handshake message was produced or
	// consumed outside a running handshake.
	ErrHandshakeNotStarted = errors.New("handshake not started")
	// ErrShouldBeInitiator indicates initiator steps were run on a responder session.
	ErrShouldBeInitiator = errors.New("session should be initiator")
	// ErrShouldBeResponder indicates responder steps were run on an initiator session.
	ErrShouldBeResponder = errors.New("session should be responder")
	// ErrHandshakeFailed wraps any cryptographic or framing failure during a handshake.
	ErrHandshakeFailed = errors.New("handshake failed")
	// ErrNotTransport indicates an encrypt or decrypt on a session that has not
	// completed its handshake.
	ErrNotTransport = errors.New("session not in transport phase")
	// ErrUnknownPattern indicates a pattern identifier with no registered pattern.
	ErrUnknownPattern = errors.New("unknown handshake pattern")
	// ErrDuplicatePattern indicates a second registration of a pattern identifier.
	ErrDuplicatePattern = errors.New("handshake pattern already registered")
	// ErrInvalidKey indicates unusable static or pre-shared key material.
	ErrInvalidKey = errors.New("invalid key material")
	// ErrMessageTooLarge indicates a transport plaintext above MaxPlaintextLen.
	ErrMessageTooLarge = errors.New("message exceeds noise message size limit")
)

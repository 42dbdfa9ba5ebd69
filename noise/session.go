package noise

import (
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// MaxMessageLen is the largest Noise message, tag included.
	MaxMessageLen = 65535
	// TagSize is the per-message authentication overhead.
	TagSize = chacha20poly1305.Overhead
	// MaxPlaintextLen is the largest plaintext one transport message can carry.
	MaxPlaintextLen = MaxMessageLen - TagSize
)

// Role is the side of the handshake a session plays.
type Role uint8

const (
	// Initiator sends the first handshake message.
	Initiator Role = iota
	// Responder answers the initiator.
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Phase is the lifecycle stage of a session. Phases only move forward.
type Phase uint8

const (
	// PhaseUninitialized is a freshly built session; no handshake message has
	// been produced or consumed.
	PhaseUninitialized Phase = iota
	// PhaseHandshaking is a session with a handshake in progress, or one whose
	// handshake failed.
	PhaseHandshaking
	// PhaseTransport is a session holding directional transport keys.
	PhaseTransport
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseTransport:
		return "transport"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Keys is the key material a session is built from. Both buffers are
// copied; callers may wipe them afterwards.
type Keys struct {
	// StaticPrivate is the local X25519 private key (32 bytes).
	StaticPrivate []byte
	// PSK is the pre-shared key (32 bytes).
	PSK []byte
}

// noCopy trips go vet's copylocks check on Session values.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Session is the cryptographic state of one connection. It is owned by that
// connection and only handed on by pointer.
//
// Encrypt and Decrypt use separate cipher states and may run concurrently
// with each other, but neither is safe for concurrent use with itself.
type Session struct {
	noCopy noCopy

	pattern PatternID
	role    Role
	phase   Phase

	hs   *noise.HandshakeState
	send *noise.CipherState
	recv *noise.CipherState

	remoteStatic  []byte
	handshakeHash []byte
}

func newSession(id PatternID, role Role, hs *noise.HandshakeState) *Session {
	return &Session{
		pattern: id,
		role:    role,
		phase:   PhaseUninitialized,
		hs:      hs,
	}
}

// NewSession builds an uninitialized session for the registered pattern id.
func NewSession(id PatternID, keys Keys, role Role) (*Session, error) {
	p, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	return p.NewSession(keys, role)
}

// Pattern returns the identifier of the pattern the session was built for.
func (s *Session) Pattern() PatternID { return s.pattern }

// Role returns the side the session was built for.
func (s *Session) Role() Role { return s.role }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// RemoteStatic returns the peer's authenticated static public key.
// It is nil until the session reaches PhaseTransport.
func (s *Session) RemoteStatic() []byte {
	if s.remoteStatic == nil {
		return nil
	}
	out := make([]byte, len(s.remoteStatic))
	copy(out, s.remoteStatic)
	return out
}

// HandshakeHash returns the final handshake transcript hash, usable as a
// channel binding. It is nil until the session reaches PhaseTransport.
func (s *Session) HandshakeHash() []byte {
	if s.handshakeHash == nil {
		return nil
	}
	out := make([]byte, len(s.handshakeHash))
	copy(out, s.handshakeHash)
	return out
}

// WriteHandshake produces the next handshake message carrying payload.
// When it produces the final message the session enters PhaseTransport.
func (s *Session) WriteHandshake(payload []byte) ([]byte, error) {
	if err := s.checkHandshaking(); err != nil {
		return nil, err
	}

	msg, cs1, cs2, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: write message: %w", ErrHandshakeFailed, err)
	}
	if cs1 != nil && cs2 != nil {
		s.finish(cs1, cs2)
	}
	return msg, nil
}

// ReadHandshake consumes one handshake message and returns its payload.
// When it consumes the final message the session enters PhaseTransport.
func (s *Session) ReadHandshake(msg []byte) ([]byte, error) {
	if err := s.checkHandshaking(); err != nil {
		return nil, err
	}

	payload, cs1, cs2, err := s.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: read message: %w", ErrHandshakeFailed, err)
	}
	if cs1 != nil && cs2 != nil {
		s.finish(cs1, cs2)
	}
	return payload, nil
}

func (s *Session) checkHandshaking() error {
	switch s.phase {
	case PhaseHandshaking:
		return nil
	case PhaseTransport:
		return ErrHandshakeAlreadyFinished
	default:
		return ErrHandshakeNotStarted
	}
}

// begin moves an uninitialized session into the handshake for role want.
func (s *Session) begin(want Role) error {
	if s.phase != PhaseUninitialized {
		return ErrHandshakeAlreadyFinished
	}
	if s.role != want {
		if want == Initiator {
			return ErrShouldBeInitiator
		}
		return ErrShouldBeResponder
	}
	s.phase = PhaseHandshaking
	return nil
}

// finish installs the transport keys. cs1 encrypts initiator to responder.
func (s *Session) finish(cs1, cs2 *noise.CipherState) {
	if s.role == Initiator {
		s.send, s.recv = cs1, cs2
	} else {
		s.send, s.recv = cs2, cs1
	}

	if peer := s.hs.PeerStatic(); len(peer) > 0 {
		s.remoteStatic = append([]byte(nil), peer...)
	}
	s.handshakeHash = append([]byte(nil), s.hs.ChannelBinding()...)

	// The handshake state holds ephemeral secrets and is no longer needed.
	s.hs = nil
	s.phase = PhaseTransport
}

// Encrypt seals one transport message with the send key and appends it to out.
func (s *Session) Encrypt(out, plaintext []byte) ([]byte, error) {
	if s.phase != PhaseTransport {
		return nil, ErrNotTransport
	}
	if len(plaintext) > MaxPlaintextLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(plaintext))
	}
	return s.send.Encrypt(out, nil, plaintext)
}

// Decrypt opens one transport message with the receive key and appends the
// plaintext to out.
func (s *Session) Decrypt(out, ciphertext []byte) ([]byte, error) {
	if s.phase != PhaseTransport {
		return nil, ErrNotTransport
	}
	if len(ciphertext) > MaxMessageLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(ciphertext))
	}
	return s.recv.Decrypt(out, nil, ciphertext)
}

package noise

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"
	"github.com/opd-ai/unilink/crypto"
)

const (
	// PatternXXpsk3 is the identifier of Noise_XXpsk3_25519_ChaChaPoly_BLAKE2s.
	PatternXXpsk3 PatternID = 0

	xxpsk3Name      = "Noise_XXpsk3_25519_ChaChaPoly_BLAKE2s"
	xxpsk3Placement = 3
)

func init() {
	MustRegister(newXXpsk3())
}

// xxpsk3 is the XX pattern with the pre-shared key mixed into the third
// message:
//
//	-> e
//	<- e, ee, s, es
//	-> s, se, psk
type xxpsk3 struct {
	suite noise.CipherSuite
}

func newXXpsk3() *xxpsk3 {
	p := &xxpsk3{
		suite: noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s),
	}

	// Both sides hash the name into the transcript.
	built := fmt.Sprintf("Noise_%spsk%d_%s", noise.HandshakeXX.Name, xxpsk3Placement, p.suite.Name())
	if built != xxpsk3Name {
		panic(fmt.Sprintf("noise: pattern %d builds %q, want %q", PatternXXpsk3, built, xxpsk3Name))
	}
	return p
}

func (p *xxpsk3) ID() PatternID { return PatternXXpsk3 }

func (p *xxpsk3) Name() string { return xxpsk3Name }

func (p *xxpsk3) NewSession(keys Keys, role Role) (*Session, error) {
	if role != Initiator && role != Responder {
		return nil, fmt.Errorf("invalid handshake role %v", role)
	}

	kp, err := crypto.FromSecretKeyBytes(keys.StaticPrivate)
	if err != nil {
		return nil, fmt.Errorf("%w: static key: %w", ErrInvalidKey, err)
	}
	defer crypto.WipeKeyPair(kp)

	if len(keys.PSK) != crypto.PSKSize {
		return nil, fmt.Errorf("%w: pre-shared key must be %d bytes, got %d", ErrInvalidKey, crypto.PSKSize, len(keys.PSK))
	}

	static := noise.DHKey{
		Private: append([]byte(nil), kp.Private[:]...),
		Public:  append([]byte(nil), kp.Public[:]...),
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:           p.suite,
		Random:                rand.Reader,
		Pattern:               noise.HandshakeXX,
		Initiator:             role == Initiator,
		StaticKeypair:         static,
		PresharedKey:          append([]byte(nil), keys.PSK...),
		PresharedKeyPlacement: xxpsk3Placement,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	return newSession(p.ID(), role, hs), nil
}

func (p *xxpsk3) Initiator(s *Session, rw FrameReadWriter) error {
	// -> e
	if err := writeStep(s, rw); err != nil {
		return err
	}
	// <- e, ee, s, es
	if err := readStep(s, rw); err != nil {
		return err
	}
	// -> s, se, psk
	return writeStep(s, rw)
}

func (p *xxpsk3) Responder(s *Session, rw FrameReadWriter) error {
	if err := readStep(s, rw); err != nil {
		return err
	}
	if err := writeStep(s, rw); err != nil {
		return err
	}
	return readStep(s, rw)
}

// writeStep produces one handshake message with an empty payload and sends
// it as a single frame.
func writeStep(s *Session, rw FrameReadWriter) error {
	msg, err := s.WriteHandshake(nil)
	if err != nil {
		return err
	}
	if err := rw.WriteFrame(msg); err != nil {
		return fmt.Errorf("%w: send: %w", ErrHandshakeFailed, err)
	}
	return nil
}

// readStep receives one frame and consumes it as a handshake message.
func readStep(s *Session, rw FrameReadWriter) error {
	msg, err := rw.ReadFrame()
	if err != nil {
		return fmt.Errorf("%w: receive: %w", ErrHandshakeFailed, err)
	}
	_, err = s.ReadHandshake(msg)
	return err
}

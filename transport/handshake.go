package transport

import (
	"fmt"
	"io"

	"github.com/opd-ai/unilink/noise"
	"github.com/sirupsen/logrus"
)

// HandshakeConfig describes one side of a connection handshake.
type HandshakeConfig struct {
	// Role selects which side of the handshake to run.
	Role noise.Role
	// Pattern is the pattern an initiator announces. A responder accepts
	// whichever registered pattern the initiator announces.
	Pattern noise.PatternID
	// Keys is the local key material.
	Keys noise.Keys
	// MaxFrameSize caps inbound frames, handshake and records alike.
	// Zero leaves only the frame format limit.
	MaxFrameSize uint32
}

// WritePreamble announces the pattern by writing its identifier as the
// first byte of the stream. Unregistered identifiers are rejected before
// anything is written.
func WritePreamble(w io.Writer, id noise.PatternID) error {
	if _, err := noise.Lookup(id); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(id)}); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}
	return nil
}

// ReadPreamble consumes exactly one byte and returns the pattern it names.
func ReadPreamble(r io.Reader) (noise.PatternID, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read preamble: %w", err)
	}

	id := noise.PatternID(b[0])
	if _, err := noise.Lookup(id); err != nil {
		return id, err
	}
	return id, nil
}

// BeginHandshake exchanges the preamble on stream and runs the handshake for
// cfg.Role. It returns a session in transport phase. On error the stream is
// in an unknown state and should be closed.
func BeginHandshake(stream io.ReadWriter, cfg HandshakeConfig) (*noise.Session, error) {
	s, _, err := handshake(stream, cfg)
	return s, err
}

// Handshake is BeginHandshake followed by NewSecureConn.
func Handshake(stream io.ReadWriter, cfg HandshakeConfig) (*SecureConn, error) {
	s, frames, err := handshake(stream, cfg)
	if err != nil {
		return nil, err
	}
	return NewSecureConn(frames, s)
}

func handshake(stream io.ReadWriter, cfg HandshakeConfig) (*noise.Session, *FrameConn, error) {
	fields := logrus.Fields{
		"function": "handshake",
		"role":     cfg.Role.String(),
	}

	var (
		id  noise.PatternID
		err error
	)
	switch cfg.Role {
	case noise.Initiator:
		id = cfg.Pattern
		err = WritePreamble(stream, id)
	case noise.Responder:
		id, err = ReadPreamble(stream)
	default:
		err = fmt.Errorf("invalid handshake role %s", cfg.Role)
	}
	if err != nil {
		logrus.WithFields(fields).WithError(err).Warn("Preamble rejected")
		return nil, nil, err
	}
	fields["pattern"] = uint8(id)

	s, err := noise.NewSession(id, cfg.Keys, cfg.Role)
	if err != nil {
		return nil, nil, err
	}
	engine, err := noise.NewEngine(s)
	if err != nil {
		return nil, nil, err
	}

	frames := NewFrameConn(stream, WithMaxFrameSize(cfg.MaxFrameSize))
	if cfg.Role == noise.Initiator {
		err = engine.Initiator(frames)
	} else {
		err = engine.Responder(frames)
	}
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(fields).Debug("Connection secured")
	return s, frames, nil
}

package noise

import (
	"errors"
	"fmt"

	"github.com/opd-ai/unilink/crypto"
	"github.com/sirupsen/logrus"
)

// Engine drives a session's handshake to completion over a frame channel.
type Engine struct {
	pattern Pattern
	session *Session
}

// NewEngine prepares a handshake for s. It fails if s has already
// completed a handshake.
func NewEngine(s *Session) (*Engine, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if s.phase == PhaseTransport {
		return nil, ErrHandshakeAlreadyFinished
	}

	p, err := Lookup(s.pattern)
	if err != nil {
		return nil, err
	}
	return &Engine{pattern: p, session: s}, nil
}

// Session returns the session the engine drives.
func (e *Engine) Session() *Session { return e.session }

// Initiator runs the initiator side. On a responder session it returns
// ErrShouldBeInitiator without touching rw.
func (e *Engine) Initiator(rw FrameReadWriter) error {
	return e.run(Initiator, rw, e.pattern.Initiator)
}

// Responder runs the responder side. On an initiator session it returns
// ErrShouldBeResponder without touching rw.
func (e *Engine) Responder(rw FrameReadWriter) error {
	return e.run(Responder, rw, e.pattern.Responder)
}

func (e *Engine) run(role Role, rw FrameReadWriter, steps func(*Session, FrameReadWriter) error) error {
	fields := logrus.Fields{
		"function": "Engine.run",
		"pattern":  e.pattern.Name(),
		"role":     role.String(),
	}

	if err := e.session.begin(role); err != nil {
		logrus.WithFields(fields).WithError(err).Debug("Handshake refused")
		return err
	}

	logrus.WithFields(fields).Debug("Handshake started")

	if err := steps(e.session, rw); err != nil {
		logrus.WithFields(fields).WithError(err).Warn("Handshake failed")
		return err
	}

	if e.session.phase != PhaseTransport {
		err := fmt.Errorf("%w: pattern %s ended before transport phase", ErrHandshakeFailed, e.pattern.Name())
		logrus.WithFields(fields).WithError(err).Error("Handshake incomplete")
		return err
	}

	logrus.WithFields(fields).
		WithFields(crypto.SecureFieldHash(e.session.remoteStatic, "remote_static")).
		Debug("Handshake complete")
	return nil
}

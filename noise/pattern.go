package noise

import (
	"fmt"
	"sort"
	"sync"
)

// PatternID is the one-byte identifier that opens every connection and
// selects the handshake pattern and cipher suite.
type PatternID uint8

// FrameReadWriter carries whole handshake messages. The transport package's
// FrameConn satisfies it.
type FrameReadWriter interface {
	WriteFrame(message []byte) error
	ReadFrame() ([]byte, error)
}

// Pattern is one handshake pattern family. Implementations only sequence
// session reads and writes over the frame channel; phase and role checks
// are done by Engine before the steps run.
type Pattern interface {
	// ID is the wire identifier of the pattern.
	ID() PatternID
	// Name is the full Noise protocol name, e.g. Noise_XX_25519_AESGCM_SHA256.
	Name() string
	// NewSession builds an uninitialized session for role.
	NewSession(keys Keys, role Role) (*Session, error)
	// Initiator runs the initiator's message steps to completion.
	Initiator(s *Session, rw FrameReadWriter) error
	// Responder runs the responder's message steps to completion.
	Responder(s *Session, rw FrameReadWriter) error
}

var (
	patternsMu sync.RWMutex
	patterns   = make(map[PatternID]Pattern)
)

// Register makes p selectable by its identifier.
func Register(p Pattern) error {
	patternsMu.Lock()
	defer patternsMu.Unlock()

	if _, exists := patterns[p.ID()]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicatePattern, p.ID())
	}
	patterns[p.ID()] = p
	return nil
}

// MustRegister is Register for package initialisation.
func MustRegister(p Pattern) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// Lookup returns the pattern registered under id.
func Lookup(id PatternID) (Pattern, error) {
	patternsMu.RLock()
	defer patternsMu.RUnlock()

	p, ok := patterns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPattern, id)
	}
	return p, nil
}

// Patterns lists the registered identifiers in ascending order.
func Patterns() []PatternID {
	patternsMu.RLock()
	defer patternsMu.RUnlock()

	ids := make([]PatternID, 0, len(patterns))
	for id := range patterns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Package noise runs the authenticated key exchange that opens every unilink
// connection, using the flynn/noise implementation of the Noise Protocol
// Framework.
//
// # Patterns
//
// Handshake patterns are selected by a one-byte [PatternID] sent ahead of the
// first handshake message. Each pattern is registered once with [Register]
// and found again with [Lookup]; the record layer and the multiplexer never
// see which pattern produced a session.
//
// Only one pattern is defined:
//
//	ID │ Name                                   │ Messages
//	───┼────────────────────────────────────────┼──────────────────────────
//	0  │ Noise_XXpsk3_25519_ChaChaPoly_BLAKE2s  │ -> e
//	   │                                        │ <- e, ee, s, es
//	   │                                        │ -> s, se, psk
//
// XX exchanges both static keys under encryption, and psk3 mixes a 32-byte
// pre-shared key into the chaining key at the last message, so a peer
// without the network key cannot finish the handshake.
//
// # Sessions
//
// A [Session] moves through three phases and never back:
//
//	Uninitialized ──Engine.Initiator/Responder──▶ Handshaking ──final message──▶ Transport
//
// The role is fixed when the session is built. Running the wrong side returns
// [ErrShouldBeInitiator] or [ErrShouldBeResponder] before any frame is read
// or written; running a second handshake returns [ErrHandshakeAlreadyFinished].
// A session whose handshake failed stays in the handshaking phase and can
// only be discarded.
//
// Example:
//
//	s, err := noise.NewSession(noise.PatternXXpsk3, noise.Keys{
//	    StaticPrivate: id.KeyPair.Private[:],
//	    PSK:           id.PSK[:],
//	}, noise.Initiator)
//	if err != nil {
//	    return err
//	}
//	engine, err := noise.NewEngine(s)
//	if err != nil {
//	    return err
//	}
//	if err := engine.Initiator(frames); err != nil {
//	    return err
//	}
//	ciphertext, err := s.Encrypt(nil, []byte("hello"))
//
// In transport phase a session seals at most [MaxPlaintextLen] bytes per
// message; the transport package chunks larger records.
package noise

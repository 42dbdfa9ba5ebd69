// Package transport carries Noise-protected records over an ordered byte
// stream such as a TCP connection.
//
// # Layers
//
// The package stacks three layers on the stream:
//
//	preamble     one byte naming the handshake pattern, initiator to responder
//	frames       [length:4 big-endian][payload]; handshake messages and records
//	records      a plaintext of any length, split into sealed chunks that
//	             travel together in one frame
//
// # Usage
//
// A dialer and a listener each wrap their net.Conn:
//
//	conn, err := transport.Handshake(netConn, transport.HandshakeConfig{
//	    Role: noise.Initiator,
//	    Keys: noise.Keys{StaticPrivate: id.KeyPair.Private[:], PSK: id.PSK[:]},
//	})
//	if err != nil {
//	    netConn.Close()
//	    return err
//	}
//	err = conn.Send([]byte("hello"))
//
// The responder passes noise.Responder and learns the pattern from the
// preamble. BeginHandshake returns the bare session for callers that want to
// build their own record layer.
//
// # Errors
//
// Framing errors (ErrMessageTooLarge, ErrFrameTooLarge, ErrShortFrame) and
// decryption errors (ErrDecrypt) are fatal to the connection. Nothing in this
// package retries.
package transport

package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the length of X25519 private and public keys.
const KeySize = 32

// ErrZeroKey is returned for an all-zero private key.
var ErrZeroKey = errors.New("invalid secret key: all zeros")

// KeyPair is a static X25519 key pair used as a node's long-term identity.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return &KeyPair{
		Public:  *publicKey,
		Private: *privateKey,
	}, nil
}

// FromSecretKey rebuilds a key pair from a stored private key.
func FromSecretKey(secretKey [KeySize]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, ErrZeroKey
	}

	pub, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], pub)
	return kp, nil
}

// FromSecretKeyBytes is FromSecretKey for an opaque byte buffer.
func FromSecretKeyBytes(secretKey []byte) (*KeyPair, error) {
	if len(secretKey) != KeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", KeySize, len(secretKey))
	}

	var sk [KeySize]byte
	copy(sk[:], secretKey)
	defer ZeroBytes(sk[:])

	return FromSecretKey(sk)
}

func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}

package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// PSKSize is the length of the pre-shared key mixed into the handshake.
const PSKSize = 32

// identityFile is the keystore entry holding the local Identity.
const identityFile = "identity.key"

// ErrInvalidPSK is returned for a pre-shared key of the wrong length.
var ErrInvalidPSK = errors.New("pre-shared key must be 32 bytes")

// PreSharedKey is a secret both peers hold out of band.
type PreSharedKey [PSKSize]byte

// GeneratePSK returns a fresh random pre-shared key.
func GeneratePSK() (PreSharedKey, error) {
	var psk PreSharedKey
	if _, err := rand.Read(psk[:]); err != nil {
		return psk, fmt.Errorf("failed to generate pre-shared key: %w", err)
	}
	return psk, nil
}

// PSKFromBytes copies b into a PreSharedKey.
func PSKFromBytes(b []byte) (PreSharedKey, error) {
	var psk PreSharedKey
	if len(b) != PSKSize {
		return psk, fmt.Errorf("%w: got %d", ErrInvalidPSK, len(b))
	}
	copy(psk[:], b)
	return psk, nil
}

// Identity is the key material a node needs to build a Session:
// its static key pair and the network pre-shared key.
type Identity struct {
	KeyPair *KeyPair
	PSK     PreSharedKey
}

// GenerateIdentity creates a new key pair and pre-shared key.
func GenerateIdentity() (*Identity, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	psk, err := GeneratePSK()
	if err != nil {
		return nil, err
	}
	return &Identity{KeyPair: kp, PSK: psk}, nil
}

// MarshalBinary encodes the identity as private key || psk.
// The public key is derived again on load.
func (id *Identity) MarshalBinary() ([]byte, error) {
	if id == nil || id.KeyPair == nil {
		return nil, errors.New("identity has no key pair")
	}
	out := make([]byte, 0, KeySize+PSKSize)
	out = append(out, id.KeyPair.Private[:]...)
	out = append(out, id.PSK[:]...)
	return out, nil
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (id *Identity) UnmarshalBinary(data []byte) error {
	if len(data) != KeySize+PSKSize {
		return fmt.Errorf("identity must be %d bytes, got %d", KeySize+PSKSize, len(data))
	}
	kp, err := FromSecretKeyBytes(data[:KeySize])
	if err != nil {
		return err
	}
	id.KeyPair = kp
	copy(id.PSK[:], data[KeySize:])
	return nil
}

// Wipe erases the secret parts of the identity.
func (id *Identity) Wipe() {
	if id == nil {
		return
	}
	if id.KeyPair != nil {
		_ = WipeKeyPair(id.KeyPair)
	}
	ZeroBytes(id.PSK[:])
}

// StoreIdentity writes id into the key store.
func (ks *EncryptedKeyStore) StoreIdentity(id *Identity) error {
	data, err := id.MarshalBinary()
	if err != nil {
		return err
	}
	defer ZeroBytes(data)

	NewLogger("StoreIdentity").
		WithFields(SecureFieldHash(id.KeyPair.Public[:], "public_key")).
		Info("Storing identity")

	return ks.WriteEncrypted(identityFile, data)
}

// LoadIdentity reads the identity written by StoreIdentity.
func (ks *EncryptedKeyStore) LoadIdentity() (*Identity, error) {
	data, err := ks.ReadEncrypted(identityFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	defer ZeroBytes(data)

	id := &Identity{}
	if err := id.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	return id, nil
}

// HasIdentity reports whether an identity has been stored.
func (ks *EncryptedKeyStore) HasIdentity() bool {
	return ks.exists(identityFile)
}

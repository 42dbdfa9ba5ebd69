package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the work factor for deriving the store key.
	PBKDF2Iterations = 100000
	// StoreVersion is the on-disk format version.
	StoreVersion = 1
	// SaltSize is the size of the PBKDF2 salt.
	SaltSize = 32

	saltFileName = ".salt"
	versionSize  = 2
)

// ErrStoreClosed is returned by a key store after Close.
var ErrStoreClosed = errors.New("key store is closed")

// EncryptedKeyStore keeps node secrets in a directory, each file sealed
// with AES-256-GCM under a key derived from a passphrase.
type EncryptedKeyStore struct {
	encryptionKey [32]byte
	dataDir       string
	saltFile      string
	closed        bool
}

// NewEncryptedKeyStore opens (or creates) a key store in dataDir.
// The passphrase buffer is wiped before returning.
func NewEncryptedKeyStore(dataDir string, passphrase []byte) (*EncryptedKeyStore, error) {
	log := NewLogger("NewEncryptedKeyStore").WithField("data_dir", dataDir)

	if len(passphrase) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}
	defer ZeroBytes(passphrase)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		log.WithError(err, "io", "mkdir").Error("Failed to create key store directory")
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	ks := &EncryptedKeyStore{
		dataDir:  dataDir,
		saltFile: filepath.Join(dataDir, saltFileName),
	}

	salt, err := ks.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derived := pbkdf2.Key(passphrase, salt, PBKDF2Iterations, 32, sha256.New)
	copy(ks.encryptionKey[:], derived)
	ZeroBytes(derived)

	log.Debug("Key store opened")
	return ks, nil
}

func (ks *EncryptedKeyStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(ks.saltFile)
	if err == nil {
		if len(data) != SaltSize {
			return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(ks.saltFile, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

func (ks *EncryptedKeyStore) aead() (cipher.AEAD, error) {
	if ks.closed {
		return nil, ErrStoreClosed
	}
	block, err := aes.NewCipher(ks.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// WriteEncrypted seals plaintext into filename.
// Layout: [version:2][nonce:12][ciphertext+tag].
// The write goes through a temporary file and a rename.
func (ks *EncryptedKeyStore) WriteEncrypted(filename string, plaintext []byte) error {
	gcm, err := ks.aead()
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, versionSize, versionSize+len(nonce)+len(plaintext)+gcm.Overhead())
	binary.BigEndian.PutUint16(out, StoreVersion)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, []byte(filename))

	tmpFile := filepath.Join(ks.dataDir, filename+".tmp")
	finalFile := filepath.Join(ks.dataDir, filename)

	if err := os.WriteFile(tmpFile, out, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpFile, finalFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// ReadEncrypted opens a file written by WriteEncrypted. A wrong passphrase
// and a corrupted file both surface as an authentication failure.
func (ks *EncryptedKeyStore) ReadEncrypted(filename string) ([]byte, error) {
	gcm, err := ks.aead()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(ks.dataDir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	headerLen := versionSize + gcm.NonceSize()
	if len(data) < headerLen+gcm.Overhead() {
		return nil, fmt.Errorf("file too short: %d bytes", len(data))
	}

	if version := binary.BigEndian.Uint16(data[:versionSize]); version != StoreVersion {
		return nil, fmt.Errorf("unsupported store version: %d (expected %d)", version, StoreVersion)
	}

	nonce := data[versionSize:headerLen]
	plaintext, err := gcm.Open(nil, nonce, data[headerLen:], []byte(filename))
	if err != nil {
		NewLogger("ReadEncrypted").
			WithField("file", filename).
			WithError(err, "crypto", "open").
			Warn("Key store entry failed authentication")
		return nil, fmt.Errorf("decryption failed (wrong passphrase or corrupted data): %w", err)
	}
	return plaintext, nil
}

// DeleteEncrypted overwrites filename with zeros and removes it.
func (ks *EncryptedKeyStore) DeleteEncrypted(filename string) error {
	path := filepath.Join(ks.dataDir, filename)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// Best effort: remove even if the overwrite fails.
	_ = os.WriteFile(path, make([]byte, info.Size()), 0o600)
	return os.Remove(path)
}

func (ks *EncryptedKeyStore) exists(filename string) bool {
	_, err := os.Stat(filepath.Join(ks.dataDir, filename))
	return err == nil
}

// Close wipes the derived key. The store is unusable afterwards.
func (ks *EncryptedKeyStore) Close() error {
	ZeroBytes(ks.encryptionKey[:])
	ks.closed = true
	return nil
}

package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of a node's at-rest key.
const KeySize = chacha20poly1305.KeySize

// Sealer encrypts blobs at rest with ChaCha20-Poly1305.
// Sealed format: [12-byte random nonce][ciphertext + 16-byte tag]
type Sealer struct {
	key []byte
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("sealed blob too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// LoadOrGenerateKey reads a key file, creating one with a fresh random key if it is missing.
func LoadOrGenerateKey(filename string) ([]byte, bool, error) {
	if key, err := os.ReadFile(filename); err == nil {
		if len(key) != KeySize {
			return nil, false, fmt.Errorf("key file %s holds %d bytes, expected %d", filename, len(key), KeySize)
		}
		return key, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(filename, key, 0600); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

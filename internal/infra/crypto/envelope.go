package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"custody/internal/domain"
)

const (
	// KeySize is the AES-256 master key length in bytes.
	KeySize = 32
	// NonceSize is the 96-bit GCM nonce length in bytes.
	NonceSize = 12
)

// Envelope performs authenticated encryption under a single master key. It holds
// no mutable state after construction and is safe for concurrent use.
type Envelope struct {
	aead cipher.AEAD
	rand io.Reader
}

func NewEnvelope(key []byte) (*Envelope, error) {
	return newEnvelope(key, rand.Reader)
}

func newEnvelope(key []byte, random io.Reader) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: invalid master key length %d", domain.ErrCryptographic, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, domain.ErrCryptographic
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, domain.ErrCryptographic
	}
	return &Envelope{aead: aead, rand: random}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *Envelope) Encrypt(plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	if e == nil || e.aead == nil {
		return nil, nil, domain.ErrCryptographic
	}
	if len(plaintext) == 0 {
		return nil, nil, fmt.Errorf("%w: empty plaintext", domain.ErrCryptographic)
	}
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: nonce generation", domain.ErrCryptographic)
	}
	return e.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext. Every failure, including tag mismatch, returns the
// same generic error.
func (e *Envelope) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if e == nil || e.aead == nil {
		return nil, domain.ErrCryptographic
	}
	if len(nonce) != NonceSize || len(ciphertext) < e.aead.Overhead() {
		return nil, domain.ErrCryptographic
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, domain.ErrCryptographic
	}
	return plaintext, nil
}

// Overhead is the number of bytes the authentication tag adds to a payload.
func (e *Envelope) Overhead() int {
	return e.aead.Overhead()
}

// GenerateKey returns a new random master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: key generation", domain.ErrCryptographic)
	}
	return key, nil
}

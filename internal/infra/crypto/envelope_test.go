package crypto

import (
	"bytes"
	"errors"
	"testing"

	"custody/internal/domain"
)

func newTestEnvelope(t *testing.T) *Envelope {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env, err := NewEnvelope(key)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	return env
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := newTestEnvelope(t)
	payloads := [][]byte{
		[]byte("x"),
		[]byte("hello-gov"),
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
	}
	for _, plaintext := range payloads {
		ciphertext, nonce, err := env.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if len(nonce) != NonceSize {
			t.Fatalf("expected %d byte nonce, got %d", NonceSize, len(nonce))
		}
		if len(ciphertext) != len(plaintext)+env.Overhead() {
			t.Fatalf("unexpected ciphertext length %d", len(ciphertext))
		}
		decrypted, err := env.Decrypt(ciphertext, nonce)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Fatal("round trip mismatch")
		}
		if Digest(decrypted) != Digest(plaintext) {
			t.Fatal("digest mismatch after round trip")
		}
	}
}

func TestEnvelope_FreshNoncePerCall(t *testing.T) {
	env := newTestEnvelope(t)
	plaintext := []byte("same plaintext")
	c1, n1, err := env.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	c2, n2, err := env.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(n1, n2) {
		t.Fatal("expected distinct nonces")
	}
	if bytes.Equal(c1, c2) {
		t.Fatal("expected distinct ciphertexts")
	}
}

func TestEnvelope_TamperDetection(t *testing.T) {
	env := newTestEnvelope(t)
	ciphertext, nonce, err := env.Encrypt([]byte("chain of custody"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	for i := 0; i < len(ciphertext)*8; i++ {
		mutated := append([]byte(nil), ciphertext...)
		mutated[i/8] ^= 1 << (i % 8)
		out, err := env.Decrypt(mutated, nonce)
		if !errors.Is(err, domain.ErrCryptographic) {
			t.Fatalf("bit %d: expected cryptographic error, got %v", i, err)
		}
		if out != nil {
			t.Fatalf("bit %d: expected no plaintext", i)
		}
	}
	badNonce := append([]byte(nil), nonce...)
	badNonce[0] ^= 0x01
	if _, err := env.Decrypt(ciphertext, badNonce); !errors.Is(err, domain.ErrCryptographic) {
		t.Fatalf("expected cryptographic error for wrong nonce, got %v", err)
	}
}

func TestEnvelope_RejectsInvalidInput(t *testing.T) {
	if _, err := NewEnvelope(make([]byte, 16)); !errors.Is(err, domain.ErrCryptographic) {
		t.Fatalf("expected error for short key, got %v", err)
	}
	env := newTestEnvelope(t)
	if _, _, err := env.Encrypt(nil); !errors.Is(err, domain.ErrCryptographic) {
		t.Fatalf("expected error for empty plaintext, got %v", err)
	}
	if _, err := env.Decrypt([]byte("short"), make([]byte, NonceSize)); !errors.Is(err, domain.ErrCryptographic) {
		t.Fatalf("expected error for truncated ciphertext, got %v", err)
	}
	if _, err := env.Decrypt(make([]byte, 32), make([]byte, 8)); !errors.Is(err, domain.ErrCryptographic) {
		t.Fatalf("expected error for short nonce, got %v", err)
	}
}

func TestEnvelope_ErrorDoesNotRevealCause(t *testing.T) {
	env := newTestEnvelope(t)
	ciphertext, nonce, err := env.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ciphertext[0] ^= 0xff
	_, err = env.Decrypt(ciphertext, nonce)
	if err == nil || err.Error() != domain.ErrCryptographic.Error() {
		t.Fatalf("expected bare generic error, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestEnvelope_NonceSourceFailure(t *testing.T) {
	env, err := newEnvelope(make([]byte, KeySize), failingReader{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ciphertext, nonce, err := env.Encrypt([]byte("payload"))
	if !errors.Is(err, domain.ErrCryptographic) {
		t.Fatalf("expected cryptographic error, got %v", err)
	}
	if ciphertext != nil || nonce != nil {
		t.Fatal("expected no partial output")
	}
}

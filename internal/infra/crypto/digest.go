package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// DigestHexLen is the length of a hex-encoded SHA-256 digest.
const DigestHexLen = sha256.Size * 2

// Digest returns the lowercase hex SHA-256 of input.
func Digest(input []byte) string {
	return hex.EncodeToString(sha256Bytes(input))
}

// DigestReader hashes r without buffering it and returns the digest and the
// number of bytes read.
func DigestReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Verify reports whether input hashes to expectedHex. The comparison touches
// every character regardless of where the first difference is.
func Verify(input []byte, expectedHex string) bool {
	return ConstantTimeEqual(Digest(input), expectedHex)
}

// ConstantTimeEqual compares two strings without an early exit on mismatch.
func ConstantTimeEqual(a, b string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var diff byte
	if len(a) != len(b) {
		diff = 1
	}
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		diff |= x ^ y
	}
	return diff == 0
}

// DigestWriter hashes bytes as they are written through it to an optional target.
type DigestWriter struct {
	target io.Writer
	h      hash.Hash
	n      int64
}

func NewDigestWriter(target io.Writer) *DigestWriter {
	return &DigestWriter{target: target, h: sha256.New()}
}

func (w *DigestWriter) Write(p []byte) (int, error) {
	if w.target != nil {
		n, err := w.target.Write(p)
		w.h.Write(p[:n])
		w.n += int64(n)
		return n, err
	}
	w.h.Write(p)
	w.n += int64(len(p))
	return len(p), nil
}

// Sum returns the hex digest of everything written so far.
func (w *DigestWriter) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

func (w *DigestWriter) Written() int64 {
	return w.n
}

func sha256Bytes(input []byte) []byte {
	sum := sha256.Sum256(input)
	return sum[:]
}

// Package merkle folds a window of audit records into a single RFC 6962 style
// root, so that a pinned root reveals records added to or removed from the
// window after the fact.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"custody/internal/domain"
)

const HashSize = 32

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
	ErrInvalidSize    = errors.New("invalid tree size")
)

// LeafHash domain-separates leaves from interior nodes.
func LeafHash(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x00})
	hasher.Write(data)
	return hasher.Sum(nil)
}

func NodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x01})
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// RecordLeaf binds a record id to its stored digest.
func RecordLeaf(record domain.AuditRecord) []byte {
	return LeafHash([]byte(record.ID + ":" + record.IntegrityDigest))
}

func Root(leaves [][]byte) ([]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	return treeHash(level), nil
}

func InclusionProof(leaves [][]byte, leafIndex int) ([][]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, ErrInvalidIndex
	}
	path := make([][]byte, 0)
	inclusionProof(level, leafIndex, &path)
	return path, nil
}

func VerifyInclusionProof(leafHash []byte, leafIndex int, treeSize int, path [][]byte, expectedRoot []byte) (bool, error) {
	if treeSize <= 0 {
		return false, ErrInvalidSize
	}
	if leafIndex < 0 || leafIndex >= treeSize {
		return false, ErrInvalidIndex
	}
	if err := validateHash(leafHash); err != nil {
		return false, err
	}
	if err := validateHash(expectedRoot); err != nil {
		return false, err
	}
	for _, p := range path {
		if err := validateHash(p); err != nil {
			return false, err
		}
	}
	hash, used, err := rootFromPath(leafHash, leafIndex, treeSize, path)
	if err != nil {
		return false, err
	}
	if used != len(path) {
		return false, ErrInvalidSize
	}
	return bytes.Equal(hash, expectedRoot), nil
}

// Service computes window roots for the audit trail.
type Service struct{}

// WindowRoot returns the hex root over records in the order given.
func (s *Service) WindowRoot(records []domain.AuditRecord) (string, error) {
	if len(records) == 0 {
		return "", ErrEmptyTree
	}
	leaves := make([][]byte, len(records))
	for i, record := range records {
		leaves[i] = RecordLeaf(record)
	}
	root, err := Root(leaves)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(root), nil
}

func treeHash(leaves [][]byte) []byte {
	if len(leaves) == 1 {
		return cloneHash(leaves[0])
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	return NodeHash(treeHash(leaves[:k]), treeHash(leaves[k:]))
}

func inclusionProof(leaves [][]byte, leafIndex int, path *[][]byte) {
	if len(leaves) == 1 {
		return
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	if leafIndex < k {
		inclusionProof(leaves[:k], leafIndex, path)
		*path = append(*path, treeHash(leaves[k:]))
		return
	}
	inclusionProof(leaves[k:], leafIndex-k, path)
	*path = append(*path, treeHash(leaves[:k]))
}

func rootFromPath(leafHash []byte, leafIndex int, treeSize int, path [][]byte) ([]byte, int, error) {
	if treeSize == 1 {
		if leafIndex != 0 {
			return nil, 0, ErrInvalidIndex
		}
		return cloneHash(leafHash), 0, nil
	}
	k := largestPowerOfTwoLessThan(treeSize)
	if leafIndex < k {
		left, used, err := rootFromPath(leafHash, leafIndex, k, path)
		if err != nil {
			return nil, 0, err
		}
		if used >= len(path) {
			return nil, 0, ErrInvalidSize
		}
		return NodeHash(left, path[used]), used + 1, nil
	}
	right, used, err := rootFromPath(leafHash, leafIndex-k, treeSize-k, path)
	if err != nil {
		return nil, 0, err
	}
	if used >= len(path) {
		return nil, 0, ErrInvalidSize
	}
	return NodeHash(path[used], right), used + 1, nil
}

func cloneAndValidateLeaves(leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := validateHash(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func validateHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}

// largestPowerOfTwoLessThan expects value > 1.
func largestPowerOfTwoLessThan(value int) int {
	power := 1
	for power<<1 < value {
		power <<= 1
	}
	return power
}

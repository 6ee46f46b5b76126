package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"custody/internal/domain"
)

// LocalStore keeps blobs as files under a root directory. Every locator is
// re-resolved and checked for containment before use.
type LocalStore struct {
	root string
	now  func() time.Time
}

func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &LocalStore{root: resolved, now: time.Now}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

// Store writes ciphertext to a temporary file and renames it into place, so a
// reader never observes a partial blob. The local layout has nowhere to keep a
// hint, so it is not used.
func (s *LocalStore) Store(ctx context.Context, ciphertext []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(ciphertext) == 0 {
		return "", fmt.Errorf("%w: empty blob", domain.ErrStorage)
	}
	locator := NewLocator(s.now())
	full, err := s.resolve(locator)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: create partition: %v", domain.ErrStorage, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", domain.ErrStorage, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(ciphertext); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: write blob: %v", domain.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: sync blob: %v", domain.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: close blob: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: commit blob: %v", domain.ErrStorage, err)
	}
	return locator, nil
}

func (s *LocalStore) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, classifyFSError(err)
	}
	return data, nil
}

func (s *LocalStore) Exists(ctx context.Context, locator string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.resolve(locator)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, classifyFSError(err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes a blob. It reports false when nothing was there.
func (s *LocalStore) Delete(ctx context.Context, locator string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.resolve(locator)
	if err != nil {
		return false, err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, classifyFSError(err)
	}
	return true, nil
}

func (s *LocalStore) Size(ctx context.Context, locator string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	full, err := s.resolve(locator)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, classifyFSError(err)
	}
	return info.Size(), nil
}

// resolve maps a locator to an absolute path and verifies it is still inside
// the root after cleaning.
func (s *LocalStore) resolve(locator string) (string, error) {
	cleaned, err := CleanLocator(locator)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: locator escapes storage root", domain.ErrStorage)
	}
	return full, nil
}

func classifyFSError(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrBlobNotFound
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}

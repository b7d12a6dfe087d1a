// Package storage provides the file store that converted images land in and optional remote sinks.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Storage is the file collaborator used by the converter. Paths are relative to the store root.
type Storage interface {
	WriteBinary(path string, data []byte) (string, error)
	ReadBinary(path string) ([]byte, error)
	Delete(path string) error
	AvailablePath(suggested string) (string, error)
	FullPath(path string) string
}

// LocalStore keeps files under a root directory
type LocalStore struct {
	root string

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewLocalStore creates the root directory if needed
func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &LocalStore{
		root:     root,
		reserved: make(map[string]struct{}),
	}, nil
}

// Root returns the store's root directory
func (s *LocalStore) Root() string {
	return s.root
}

// FullPath resolves a store-relative path to a filesystem path
func (s *LocalStore) FullPath(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// WriteBinary writes data to path, creating parent directories, and returns the path
func (s *LocalStore) WriteBinary(path string, data []byte) (string, error) {
	if err := validateRelative(path); err != nil {
		return "", err
	}

	full := s.FullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.release(path)
	return path, nil
}

// ReadBinary returns the contents of path
func (s *LocalStore) ReadBinary(path string) ([]byte, error) {
	if err := validateRelative(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.FullPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Delete removes path. Deleting a missing file is not an error.
func (s *LocalStore) Delete(path string) error {
	if err := validateRelative(path); err != nil {
		return err
	}

	s.release(path)
	if err := os.Remove(s.FullPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// AvailablePath returns a path that neither exists on disk nor has been handed out and not yet written.
// Collisions get " 1", " 2", ... appended to the stem.
func (s *LocalStore) AvailablePath(suggested string) (string, error) {
	if err := validateRelative(suggested); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, name := filepath.Split(filepath.ToSlash(suggested))
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := suggested
	for i := 1; s.taken(candidate); i++ {
		candidate = fmt.Sprintf("%s%s %d%s", dir, stem, i, ext)
	}

	s.reserved[candidate] = struct{}{}
	return candidate, nil
}

// taken must be called with mu held
func (s *LocalStore) taken(path string) bool {
	if _, ok := s.reserved[path]; ok {
		return true
	}
	_, err := os.Stat(s.FullPath(path))
	return err == nil
}

func (s *LocalStore) release(path string) {
	s.mu.Lock()
	delete(s.reserved, path)
	s.mu.Unlock()
}

func validateRelative(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the storage root", path)
	}
	return nil
}

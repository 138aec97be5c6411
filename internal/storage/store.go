package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store keeps one value per key as a file under a single directory. It is the
// durable key/value storage the session layer writes tokens and user records
// into, so a login survives process restarts.
type Store struct {
	dir string
}

// New creates the backing directory if it does not exist yet.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("storage: directory path cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: failed to create directory %q: %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the backing directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the stored value for key. The second return value reports
// whether the key was present; an unreadable entry counts as absent.
func (s *Store) Get(key string) ([]byte, bool) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	return data, true
}

// Set writes value under key, replacing any previous value.
func (s *Store) Set(key string, value []byte) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, value, 0o600); err != nil {
		return fmt.Errorf("storage: failed to write key %q: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: failed to delete key %q: %w", key, err)
	}

	return nil
}

func (s *Store) keyPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}

	return filepath.Join(s.dir, key+".json"), nil
}

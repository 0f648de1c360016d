package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Registry locates the per-account note stores under one data directory.
type Registry struct {
	dataDir string
}

// NewRegistry returns a registry rooted at dataDir, creating the directory
// if needed.
func NewRegistry(dataDir string) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &Registry{dataDir: dataDir}, nil
}

// Path returns the store file of an account. Usernames are validated to be
// safe file names before they reach the registry, and are unique ignoring
// case so case-folding filesystems never map two accounts to one file.
func (r *Registry) Path(username string) string {
	return filepath.Join(r.dataDir, username+".db")
}

// Create initializes a fresh store for a newly registered account. It
// refuses to adopt a file that already exists.
func (r *Registry) Create(username string) error {
	path := r.Path(username)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to claim store for %s: %w", username, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to claim store for %s: %w", username, err)
	}
	db, err := Open(path)
	if err != nil {
		return fmt.Errorf("failed to create store for %s: %w", username, err)
	}
	return db.Close()
}

// Open opens an existing account store. The caller must close it.
func (r *Registry) Open(username string) (*DB, error) {
	db, err := OpenExisting(r.Path(username))
	if err != nil {
		return nil, fmt.Errorf("failed to open store for %s: %w", username, err)
	}
	return db, nil
}

// Remove deletes an account store. A missing file is not an error.
func (r *Registry) Remove(username string) error {
	if err := os.Remove(r.Path(username)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove store for %s: %w", username, err)
	}
	return nil
}

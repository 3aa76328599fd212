// Package local implements the local filesystem archive backend. It is intended
// for development and single-node deployments only: multiple registry instances
// would need access to the same filesystem (e.g. via NFS) to see the same
// archive. For production, use a cloud backend.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/storage"
)

func init() {
	// Register local archive backend
	storage.Register("local", func(settings *models.ArchiveSettings) (storage.Backend, error) {
		return New(settings)
	})
}

// LocalBackend implements the Backend interface on the local filesystem
type LocalBackend struct {
	basePath string
}

// New creates a new local filesystem archive backend
func New(settings *models.ArchiveSettings) (*LocalBackend, error) {
	if settings.BasePath == "" {
		return nil, fmt.Errorf("local archive base path is required")
	}

	// Ensure base path exists
	if err := os.MkdirAll(settings.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &LocalBackend{basePath: settings.BasePath}, nil
}

// Store writes an object to the local filesystem
func (b *LocalBackend) Store(ctx context.Context, key string, data []byte) error {
	fullPath := filepath.Join(b.basePath, filepath.FromSlash(key))

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0600); err != nil {
		// Clean up partial file
		_ = os.Remove(fullPath)
		return fmt.Errorf("failed to write object: %w", err)
	}

	return nil
}

// Retrieve reads an object from the local filesystem
func (b *LocalBackend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	fullPath := filepath.Join(b.basePath, filepath.FromSlash(key))

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return data, nil
}

// Delete removes an object from the local filesystem
func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	fullPath := filepath.Join(b.basePath, filepath.FromSlash(key))

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // Object doesn't exist, consider it deleted
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}

	// Try to remove empty parent directories (best effort)
	dir := filepath.Dir(fullPath)
	for dir != b.basePath {
		if err := os.Remove(dir); err != nil {
			break // Directory not empty or other error, stop trying
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

// List returns the keys of stored objects beginning with prefix. Keys use
// forward slashes regardless of the host filesystem.
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(b.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.basePath, path)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return keys, nil
}

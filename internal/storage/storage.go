// Package storage defines the Backend interface for the transition archive.
// The relay job writes shipped transition batches as JSON-lines objects to
// whichever backend the archive_config row selects.
//
// New backends are added by implementing the Backend interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(settings *models.ArchiveSettings) (storage.Backend, error) {
//	        return New(settings)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
// This means adding a new backend requires no changes to the factory or main
// package, only a blank import in cmd/server/main.go.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Retrieve when no object exists under the
// requested key. Backends wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("archive object not found")

// Backend defines the interface for all transition archive backends
type Backend interface {
	// Store writes data under key, overwriting any existing object
	Store(ctx context.Context, key string, data []byte) error

	// Retrieve reads the object stored under key
	// Returns an error wrapping ErrNotFound if no object exists
	Retrieve(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key
	// Deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns the keys of stored objects that begin with prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// Probe verifies a backend is usable by writing, reading back, and removing a
// small marker object. The admin test-connection endpoint runs this against a
// candidate configuration before it is saved.
func Probe(ctx context.Context, b Backend) error {
	key := fmt.Sprintf("probe/archive-probe-%d", time.Now().UnixNano())
	payload := []byte(`{"probe":true}`)

	if err := b.Store(ctx, key, payload); err != nil {
		return fmt.Errorf("probe store failed: %w", err)
	}

	got, err := b.Retrieve(ctx, key)
	if err != nil {
		return fmt.Errorf("probe retrieve failed: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return fmt.Errorf("probe readback mismatch: stored %d bytes, read %d", len(payload), len(got))
	}

	if err := b.Delete(ctx, key); err != nil {
		return fmt.Errorf("probe cleanup failed: %w", err)
	}

	return nil
}

// Package gcs implements the Google Cloud Storage archive backend. Supports
// Application Default Credentials, service account JSON keys, and Workload
// Identity Federation for keyless authentication in GKE and GitHub Actions
// environments.
package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
	appstorage "github.com/ticket-registry/ticket-registry/internal/storage"
)

func init() {
	// Register GCS archive backend
	appstorage.Register("gcs", func(settings *models.ArchiveSettings) (appstorage.Backend, error) {
		return New(settings)
	})
}

// GCSBackend implements the Backend interface for Google Cloud Storage
type GCSBackend struct {
	client *storage.Client
	bucket string
}

// New creates a new Google Cloud Storage archive backend
//
// Authentication methods:
//   - "default" or empty: Uses Application Default Credentials (ADC), which
//     covers GOOGLE_APPLICATION_CREDENTIALS, the GCE/GKE metadata service,
//     Cloud Run service accounts, and gcloud user credentials
//   - "service_account": Uses a service account key file or JSON
//   - "workload_identity": Uses Workload Identity Federation (GKE, GitHub Actions, etc.)
func New(settings *models.ArchiveSettings) (*GCSBackend, error) {
	if settings.GCSBucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	ctx := context.Background()
	var opts []option.ClientOption

	// Custom endpoint for GCS emulators or compatible services
	if settings.GCSEndpoint != "" {
		opts = append(opts, option.WithEndpoint(settings.GCSEndpoint))
	}

	authMethod := settings.GCSAuthMethod
	if authMethod == "" {
		// Default to ADC unless credentials were provided explicitly
		if settings.GCSCredentialsFile != "" || settings.GCSCredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		if settings.GCSCredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(settings.GCSCredentialsJSON)))
		} else if settings.GCSCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(settings.GCSCredentialsFile))
		} else {
			return nil, fmt.Errorf("gcs_credentials_file or gcs_credentials_json is required for service_account auth")
		}

	case "workload_identity", "default":
		// Application Default Credentials, no additional options needed

	default:
		return nil, fmt.Errorf("unsupported gcs_auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBackend{
		client: client,
		bucket: settings.GCSBucket,
	}, nil
}

// Close closes the GCS client
func (b *GCSBackend) Close() error {
	return b.client.Close()
}

// Store writes an object to GCS
func (b *GCSBackend) Store(ctx context.Context, key string, data []byte) error {
	hasher := sha256.New()
	hasher.Write(data)

	writer := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	// Store SHA256 in metadata so batches can be verified without download
	writer.Metadata = map[string]string{
		"sha256": hex.EncodeToString(hasher.Sum(nil)),
	}

	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return nil
}

// Retrieve reads an object from GCS
func (b *GCSBackend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}

	return data, nil
}

// Delete removes an object from GCS
func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Bucket(b.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}

	return nil
}

// List returns the keys of stored objects beginning with prefix
func (b *GCSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		keys = append(keys, attrs.Name)
	}

	return keys, nil
}

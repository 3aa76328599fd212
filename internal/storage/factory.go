// factory.go implements the archive backend registry and factory, mapping backend type
// strings (local, s3, azure, gcs) to constructor functions and dispatching NewBackend calls.
package storage

import (
	"fmt"

	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// FactoryFunc creates a backend from the settings stored in archive_config
type FactoryFunc func(settings *models.ArchiveSettings) (Backend, error)

var factories = make(map[string]FactoryFunc)

// Register registers an archive backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewBackend creates an archive backend from a backend name and its settings
func NewBackend(backend string, settings *models.ArchiveSettings) (Backend, error) {
	factory, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("unsupported archive backend: %s (must be 'local', 'azure', 's3', or 'gcs')", backend)
	}

	return factory(settings)
}

// NewBackendFromConfig creates an archive backend from file configuration.
// This is the bootstrap path used until an administrator saves an
// archive_config row; after that the row wins.
func NewBackendFromConfig(cfg *config.ArchiveConfig) (Backend, error) {
	return NewBackend(cfg.DefaultBackend, SettingsFromConfig(cfg))
}

// SettingsFromConfig maps file-level archive configuration onto the settings
// union stored in archive_config.
func SettingsFromConfig(cfg *config.ArchiveConfig) *models.ArchiveSettings {
	return &models.ArchiveSettings{
		BasePath: cfg.Local.BasePath,

		S3Region:          cfg.S3.Region,
		S3Bucket:          cfg.S3.Bucket,
		S3AuthMethod:      cfg.S3.AuthMethod,
		S3AccessKeyID:     cfg.S3.AccessKeyID,
		S3SecretAccessKey: cfg.S3.SecretAccessKey,
		S3RoleARN:         cfg.S3.RoleARN,
		S3RoleSessionName: cfg.S3.RoleSessionName,
		S3ExternalID:      cfg.S3.ExternalID,
		S3WebIdentityFile: cfg.S3.WebIdentityTokenFile,
		S3Endpoint:        cfg.S3.Endpoint,

		GCSBucket:          cfg.GCS.Bucket,
		GCSProjectID:       cfg.GCS.ProjectID,
		GCSAuthMethod:      cfg.GCS.AuthMethod,
		GCSCredentialsFile: cfg.GCS.CredentialsFile,
		GCSCredentialsJSON: cfg.GCS.CredentialsJSON,
		GCSEndpoint:        cfg.GCS.Endpoint,

		AzureAccountName:   cfg.Azure.AccountName,
		AzureAccountKey:    cfg.Azure.AccountKey,
		AzureContainerName: cfg.Azure.ContainerName,
	}
}

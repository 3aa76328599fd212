// settings_crypto.go seals and opens the credential fields of archive settings.
// Credentials are encrypted before the settings JSON is written to the
// archive_config row and decrypted when a backend is built from a stored row.
// Non-secret fields (buckets, regions, endpoints) stay readable in the
// database.
package storage

import (
	"errors"

	"github.com/ticket-registry/ticket-registry/internal/crypto"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// ErrEncryptionKeyRequired is returned when settings carry credential material
// but no cipher is available to seal or open it.
var ErrEncryptionKeyRequired = errors.New("archive settings carry credentials but no encryption key is configured")

// secretFields returns pointers to every credential field in the settings.
func secretFields(s *models.ArchiveSettings) []*string {
	return []*string{
		&s.S3AccessKeyID,
		&s.S3SecretAccessKey,
		&s.GCSCredentialsJSON,
		&s.AzureAccountKey,
	}
}

// HasSecrets reports whether the settings carry any credential material.
func HasSecrets(s *models.ArchiveSettings) bool {
	for _, f := range secretFields(s) {
		if *f != "" {
			return true
		}
	}
	return false
}

// SealSettings returns a copy of s with every credential field encrypted.
// A nil cipher is an error when s carries credentials; credential-free
// settings pass through unchanged.
func SealSettings(cipher *crypto.SecretCipher, s *models.ArchiveSettings) (*models.ArchiveSettings, error) {
	out := *s
	if cipher == nil {
		if HasSecrets(&out) {
			return nil, ErrEncryptionKeyRequired
		}
		return &out, nil
	}
	for _, f := range secretFields(&out) {
		if *f == "" {
			continue
		}
		sealed, err := cipher.Seal(*f)
		if err != nil {
			return nil, err
		}
		*f = sealed
	}
	return &out, nil
}

// OpenSettings returns a copy of s with every credential field decrypted,
// ready to hand to a backend factory.
func OpenSettings(cipher *crypto.SecretCipher, s *models.ArchiveSettings) (*models.ArchiveSettings, error) {
	out := *s
	if cipher == nil {
		if HasSecrets(&out) {
			return nil, ErrEncryptionKeyRequired
		}
		return &out, nil
	}
	for _, f := range secretFields(&out) {
		if *f == "" {
			continue
		}
		opened, err := cipher.Open(*f)
		if err != nil {
			return nil, err
		}
		*f = opened
	}
	return &out, nil
}

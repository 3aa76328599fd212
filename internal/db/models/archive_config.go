// Package models - archive_config.go defines the ArchiveConfig model: the
// singleton row selecting which backend stores shipped transition batches,
// with backend settings held as JSONB. Secret-bearing fields are masked in
// API responses.
package models

import (
	"encoding/json"
	"time"
)

// Archive backend types.
const (
	ArchiveBackendLocal = "local"
	ArchiveBackendS3    = "s3"
	ArchiveBackendGCS   = "gcs"
	ArchiveBackendAzure = "azure"
)

// ArchiveConfig selects and configures the transition archive backend
type ArchiveConfig struct {
	ID           int             `db:"id" json:"-"`
	Backend      string          `db:"backend" json:"backend"`
	Settings     json.RawMessage `db:"settings" json:"-"`
	ConfiguredBy *string         `db:"configured_by" json:"configured_by,omitempty"`
	ConfiguredAt *time.Time      `db:"configured_at" json:"configured_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// ArchiveSettings is the union of per-backend settings stored in the JSONB
// column. Only the fields for the active backend are meaningful.
type ArchiveSettings struct {
	// local
	BasePath string `json:"base_path,omitempty"`
	// s3
	S3Region          string `json:"s3_region,omitempty"`
	S3Bucket          string `json:"s3_bucket,omitempty"`
	S3AuthMethod      string `json:"s3_auth_method,omitempty"` // default, static, oidc, assume_role
	S3AccessKeyID     string `json:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `json:"s3_secret_access_key,omitempty"`
	S3RoleARN         string `json:"s3_role_arn,omitempty"`
	S3RoleSessionName string `json:"s3_role_session_name,omitempty"`
	S3ExternalID      string `json:"s3_external_id,omitempty"`
	S3WebIdentityFile string `json:"s3_web_identity_file,omitempty"`
	S3Endpoint        string `json:"s3_endpoint,omitempty"`
	// gcs
	GCSBucket          string `json:"gcs_bucket,omitempty"`
	GCSProjectID       string `json:"gcs_project_id,omitempty"`
	GCSAuthMethod      string `json:"gcs_auth_method,omitempty"` // default, service_account, workload_identity
	GCSCredentialsFile string `json:"gcs_credentials_file,omitempty"`
	GCSCredentialsJSON string `json:"gcs_credentials_json,omitempty"`
	GCSEndpoint        string `json:"gcs_endpoint,omitempty"`
	// azure
	AzureAccountName   string `json:"azure_account_name,omitempty"`
	AzureAccountKey    string `json:"azure_account_key,omitempty"`
	AzureContainerName string `json:"azure_container_name,omitempty"`
}

// ParseSettings decodes the JSONB settings column.
func (c *ArchiveConfig) ParseSettings() (*ArchiveSettings, error) {
	s := &ArchiveSettings{}
	if len(c.Settings) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(c.Settings, s); err != nil {
		return nil, err
	}
	return s, nil
}

// MarshalArchiveSettings encodes settings for the JSONB column.
func MarshalArchiveSettings(s *ArchiveSettings) (json.RawMessage, error) {
	return json.Marshal(s)
}

// ArchiveConfigResponse is the API response for archive configuration with
// secrets reduced to set/unset booleans.
type ArchiveConfigResponse struct {
	Backend            string     `json:"backend"`
	BasePath           string     `json:"base_path,omitempty"`
	S3Region           string     `json:"s3_region,omitempty"`
	S3Bucket           string     `json:"s3_bucket,omitempty"`
	S3AuthMethod       string     `json:"s3_auth_method,omitempty"`
	S3AccessKeySet     bool       `json:"s3_access_key_set"`
	S3RoleARN          string     `json:"s3_role_arn,omitempty"`
	S3Endpoint         string     `json:"s3_endpoint,omitempty"`
	GCSBucket          string     `json:"gcs_bucket,omitempty"`
	GCSProjectID       string     `json:"gcs_project_id,omitempty"`
	GCSCredentialsSet  bool       `json:"gcs_credentials_set"`
	AzureAccountName   string     `json:"azure_account_name,omitempty"`
	AzureAccountKeySet bool       `json:"azure_account_key_set"`
	AzureContainerName string     `json:"azure_container_name,omitempty"`
	ConfiguredBy       *string    `json:"configured_by,omitempty"`
	ConfiguredAt       *time.Time `json:"configured_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ToResponse converts an ArchiveConfig to a safe API response (no secrets)
func (c *ArchiveConfig) ToResponse() *ArchiveConfigResponse {
	resp := &ArchiveConfigResponse{
		Backend:      c.Backend,
		ConfiguredBy: c.ConfiguredBy,
		ConfiguredAt: c.ConfiguredAt,
		UpdatedAt:    c.UpdatedAt,
	}

	settings, err := c.ParseSettings()
	if err != nil {
		return resp
	}

	resp.BasePath = settings.BasePath
	resp.S3Region = settings.S3Region
	resp.S3Bucket = settings.S3Bucket
	resp.S3AuthMethod = settings.S3AuthMethod
	resp.S3AccessKeySet = settings.S3AccessKeyID != "" || settings.S3SecretAccessKey != ""
	resp.S3RoleARN = settings.S3RoleARN
	resp.S3Endpoint = settings.S3Endpoint
	resp.GCSBucket = settings.GCSBucket
	resp.GCSProjectID = settings.GCSProjectID
	resp.GCSCredentialsSet = settings.GCSCredentialsJSON != ""
	resp.AzureAccountName = settings.AzureAccountName
	resp.AzureAccountKeySet = settings.AzureAccountKey != ""
	resp.AzureContainerName = settings.AzureContainerName

	return resp
}

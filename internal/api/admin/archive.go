// archive.go implements handlers for the transition archive configuration:
// reading the stored settings, replacing them, and probing a candidate backend
// before anything is saved. The configuration is a single row; saving it swaps
// the relay's archive backend without a restart. Credential fields are sealed
// with the secret cipher before they reach the database.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ticket-registry/ticket-registry/internal/crypto"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/storage"
)

// ArchiveSwapper is the part of the transition relay the handlers need to
// apply a reconfigured backend without a restart.
type ArchiveSwapper interface {
	SetArchive(backend storage.Backend)
}

// ArchiveHandlers contains the handlers for archive configuration endpoints
type ArchiveHandlers struct {
	archiveRepo *repositories.ArchiveConfigRepository
	cipher      *crypto.SecretCipher // nil when no encryption key is configured
	relay       ArchiveSwapper       // nil when the relay is not running
}

// NewArchiveHandlers creates a new ArchiveHandlers instance
func NewArchiveHandlers(archiveRepo *repositories.ArchiveConfigRepository, cipher *crypto.SecretCipher, relay ArchiveSwapper) *ArchiveHandlers {
	return &ArchiveHandlers{
		archiveRepo: archiveRepo,
		cipher:      cipher,
		relay:       relay,
	}
}

// ValidationError describes a missing or invalid archive settings field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// UpdateArchiveRequest is the payload for replacing the archive configuration
type UpdateArchiveRequest struct {
	Backend  string                 `json:"backend" binding:"required"`
	Settings models.ArchiveSettings `json:"settings"`
}

// @Summary      Get archive configuration
// @Description  Returns the stored transition archive configuration with credentials redacted. Requires admin scope.
// @Tags         Archive
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.ArchiveConfigResponse
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "No archive configuration stored"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/archive-config [get]
// GetArchiveConfig returns the stored archive configuration
// GET /api/v1/admin/archive-config
func (h *ArchiveHandlers) GetArchiveConfig(c *gin.Context) {
	cfg, err := h.archiveRepo.GetArchiveConfig(c.Request.Context())
	if err != nil {
		slog.Error("failed to fetch archive configuration", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch archive configuration"})
		return
	}
	// The migration seeds the row with configured_at NULL; it stays NULL until
	// an administrator saves a configuration, and file config applies meanwhile.
	if cfg == nil || cfg.ConfiguredAt == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No archive configuration stored"})
		return
	}

	c.JSON(http.StatusOK, cfg.ToResponse())
}

// @Summary      Update archive configuration
// @Description  Validates the settings, builds the backend to prove they are usable, seals the credential fields, and stores the configuration. The running relay picks up the new backend immediately. Requires admin scope.
// @Tags         Archive
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UpdateArchiveRequest  true  "Archive configuration"
// @Success      200  {object}  models.ArchiveConfigResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid or incomplete configuration"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/archive-config [put]
// PutArchiveConfig replaces the archive configuration
// PUT /api/v1/admin/archive-config
func (h *ArchiveHandlers) PutArchiveConfig(c *gin.Context) {
	var req UpdateArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := validateArchiveSettings(req.Backend, &req.Settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Seal first: a request carrying credentials with no encryption key
	// configured is rejected before any backend construction happens.
	sealed, err := storage.SealSettings(h.cipher, &req.Settings)
	if err != nil {
		if errors.Is(err, storage.ErrEncryptionKeyRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Storing credentials requires security.encryption_key to be configured"})
			return
		}
		slog.Error("failed to seal archive credentials", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store archive configuration"})
		return
	}

	// Build the backend from the plaintext input before saving anything, so a
	// configuration the factory rejects never reaches the database.
	backend, err := storage.NewBackend(req.Backend, &req.Settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid archive settings: " + err.Error()})
		return
	}

	settingsJSON, err := models.MarshalArchiveSettings(sealed)
	if err != nil {
		slog.Error("failed to encode archive settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store archive configuration"})
		return
	}

	now := time.Now()
	cfg := &models.ArchiveConfig{
		Backend:      req.Backend,
		Settings:     settingsJSON,
		UpdatedAt:    now,
		ConfiguredAt: &now,
	}
	if actor := c.GetString("actor_address"); actor != "" {
		cfg.ConfiguredBy = &actor
	}

	if err := h.archiveRepo.UpdateArchiveConfig(c.Request.Context(), cfg); err != nil {
		slog.Error("failed to store archive configuration", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store archive configuration"})
		return
	}

	if h.relay != nil {
		h.relay.SetArchive(backend)
	}
	slog.Info("archive backend reconfigured",
		"backend", req.Backend,
		"configured_by", c.GetString("actor_address"))

	c.JSON(http.StatusOK, cfg.ToResponse())
}

// @Summary      Test archive configuration
// @Description  Builds a backend from the submitted settings without saving them and probes it with a lightweight List call (10-second timeout). Requires admin scope.
// @Tags         Archive
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UpdateArchiveRequest  true  "Archive configuration to test"
// @Success      200  {object}  map[string]interface{}  "success flag plus a human-readable message"
// @Failure      400  {object}  map[string]interface{}  "Invalid or incomplete configuration"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/admin/archive-config/test [post]
// TestArchiveConfig probes an archive configuration without saving it
// POST /api/v1/admin/archive-config/test
func (h *ArchiveHandlers) TestArchiveConfig(c *gin.Context) {
	var req UpdateArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := validateArchiveSettings(req.Backend, &req.Settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	backend, err := storage.NewBackend(req.Backend, &req.Settings)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "failed to initialise archive backend: " + err.Error(),
		})
		return
	}

	// Probe with a lightweight List call. Discovery against a cold bucket can
	// be slow, so bound it.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if _, probeErr := backend.List(ctx, ".connectivity-test"); probeErr != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "archive backend unreachable: " + probeErr.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "archive connection successful",
	})
}

// validateArchiveSettings checks the per-backend required fields before a
// configuration is tested or stored.
func validateArchiveSettings(backend string, s *models.ArchiveSettings) error {
	switch backend {
	case models.ArchiveBackendLocal:
		if s.BasePath == "" {
			return &ValidationError{Field: "base_path", Message: "required for local archive"}
		}
	case models.ArchiveBackendAzure:
		if s.AzureAccountName == "" {
			return &ValidationError{Field: "azure_account_name", Message: "required for Azure archive"}
		}
		if s.AzureContainerName == "" {
			return &ValidationError{Field: "azure_container_name", Message: "required for Azure archive"}
		}
		if s.AzureAccountKey == "" {
			return &ValidationError{Field: "azure_account_key", Message: "required for Azure archive"}
		}
	case models.ArchiveBackendS3:
		if s.S3Bucket == "" {
			return &ValidationError{Field: "s3_bucket", Message: "required for S3 archive"}
		}
		if s.S3Region == "" {
			return &ValidationError{Field: "s3_region", Message: "required for S3 archive"}
		}
		if s.S3AuthMethod == "static" {
			if s.S3AccessKeyID == "" || s.S3SecretAccessKey == "" {
				return &ValidationError{Field: "s3_access_key_id", Message: "required for static auth"}
			}
		}
		if s.S3AuthMethod == "assume_role" || s.S3AuthMethod == "oidc" {
			if s.S3RoleARN == "" {
				return &ValidationError{Field: "s3_role_arn", Message: "required for assume_role/oidc auth"}
			}
		}
	case models.ArchiveBackendGCS:
		if s.GCSBucket == "" {
			return &ValidationError{Field: "gcs_bucket", Message: "required for GCS archive"}
		}
		if s.GCSAuthMethod == "service_account" {
			if s.GCSCredentialsFile == "" && s.GCSCredentialsJSON == "" {
				return &ValidationError{Field: "gcs_credentials", Message: "credentials_file or credentials_json required for service_account auth"}
			}
		}
	default:
		return &ValidationError{Field: "backend", Message: "must be 'local', 'azure', 's3', or 'gcs'"}
	}
	return nil
}

// Package config loads and validates the registry configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the TKR_ prefix (e.g., TKR_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
//
// The JWT_SECRET variable has no TKR_ prefix because it may be injected by
// infrastructure tooling (e.g., Kubernetes secrets, Vault agent) that does not
// know the application-specific prefix and treats it as a generic secret name.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Events        EventsConfig        `mapstructure:"events"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Transitions   TransitionsConfig   `mapstructure:"transitions"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// DevMode enables the dev-only seeding endpoints and the in-memory ledger
	// helpers. Never enable in production.
	DevMode bool `mapstructure:"dev_mode"`
}

// GetPublicURL returns the public-facing URL used for OAuth callbacks and external redirects.
// When server.public_url is set it is returned as-is; otherwise it falls back to server.base_url.
// This distinction matters in reverse-proxied deployments where the internal listen address
// (base_url) differs from the URL registered with the OAuth provider (public_url).
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// PaymentConfig holds payment-ledger gateway configuration
type PaymentConfig struct {
	// Provider selects the ledger implementation: "http" (gateway client) or
	// "mem" (in-memory ledger, dev/test only)
	Provider string `mapstructure:"provider"`
	// GatewayURL is the base URL of the token gateway (http provider)
	GatewayURL string `mapstructure:"gateway_url"`
	// APIToken authenticates this service against the gateway
	APIToken string `mapstructure:"api_token"`
	// PlatformAccount is the address that receives platform fees and acts as
	// the approved spender for transferFrom calls
	PlatformAccount string `mapstructure:"platform_account"`
	// TimeoutSecs bounds each gateway call (default 10)
	TimeoutSecs int `mapstructure:"timeout_secs"`
}

// EventsConfig holds the series factory template settings
type EventsConfig struct {
	// TemplateAddress is the parent reference every series address is derived
	// from. When empty the platform account is used.
	TemplateAddress string `mapstructure:"template_address"`
	// MetadataBaseURI is applied to events created without a metadata URI
	MetadataBaseURI string `mapstructure:"metadata_base_uri"`
}

// ArchiveConfig holds transition-archive backend configuration
type ArchiveConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Azure          AzureArchiveConfig `mapstructure:"azure"`
	S3             S3ArchiveConfig    `mapstructure:"s3"`
	GCS            GCSArchiveConfig   `mapstructure:"gcs"`
	Local          LocalArchiveConfig `mapstructure:"local"`
}

// AzureArchiveConfig holds Azure Blob Storage configuration
type AzureArchiveConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3ArchiveConfig holds S3-compatible storage configuration
type S3ArchiveConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	// Region is the AWS region
	Region string `mapstructure:"region"`
	// Bucket is the S3 bucket name
	Bucket string `mapstructure:"bucket"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	// - "default": Use AWS default credential chain (env vars, shared config, IAM role, etc.)
	// - "static": Use explicit access key and secret key
	// - "oidc": Use Web Identity/OIDC token for authentication (EKS, GitHub Actions, etc.)
	// - "assume_role": Assume an IAM role (optionally with external ID for cross-account)
	AuthMethod string `mapstructure:"auth_method"`

	// Static credentials (when auth_method is "static" or empty for backwards compatibility)
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// AssumeRole configuration (when auth_method is "assume_role" or "oidc")
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`

	// OIDC/Web Identity configuration (when auth_method is "oidc")
	// WebIdentityTokenFile is the path to the OIDC token file (e.g., from EKS or GitHub Actions)
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSArchiveConfig holds Google Cloud Storage configuration
type GCSArchiveConfig struct {
	// Bucket is the GCS bucket name
	Bucket string `mapstructure:"bucket"`

	// ProjectID is the Google Cloud project ID (optional if using default credentials)
	ProjectID string `mapstructure:"project_id"`

	// Authentication method: "default", "service_account", "workload_identity"
	AuthMethod string `mapstructure:"auth_method"`

	// CredentialsFile is the path to a service account JSON key file
	// (when auth_method is "service_account")
	CredentialsFile string `mapstructure:"credentials_file"`

	// CredentialsJSON is the service account JSON key as a string
	// (alternative to credentials_file, useful for environment variables)
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators or compatible services)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalArchiveConfig holds local filesystem archive configuration
type LocalArchiveConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys APIKeyConfig `mapstructure:"api_keys"`
	OIDC    OIDCConfig   `mapstructure:"oidc"`
}

// APIKeyConfig holds API key authentication configuration
type APIKeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// OIDCConfig holds the optional admin SSO provider configuration. When enabled,
// platform operators can sign in through the identity provider instead of a
// local password; the resulting session is still bound to a local account row.
type OIDCConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	IssuerURL    string   `mapstructure:"issuer_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// SecurityConfig holds security-related configuration. EncryptionKey is the
// 32-byte master key used to seal archive credentials at rest; leaving it
// empty disables storing secret-bearing archive settings through the API.
type SecurityConfig struct {
	CORS          CORSConfig         `mapstructure:"cors"`
	RateLimiting  RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS           TLSConfig          `mapstructure:"tls"`
	EncryptionKey string             `mapstructure:"encryption_key"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration. When redis_addr is set
// the limiter runs against Redis (shared across replicas); otherwise it falls
// back to an in-process token bucket.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TransitionsConfig holds transition-log shipping configuration. Records are
// always written to the database inside the operation transaction; shippers
// and the archive only control where the relay forwards them afterwards.
type TransitionsConfig struct {
	// RelayIntervalSecs is how often the relay job claims unshipped records (default 15)
	RelayIntervalSecs int `mapstructure:"relay_interval_secs"`
	// RelayBatchSize caps records claimed per pass (default 100)
	RelayBatchSize int `mapstructure:"relay_batch_size"`
	// ArchiveEnabled turns on cold archiving of shipped records
	ArchiveEnabled bool `mapstructure:"archive_enabled"`
	// Shippers configures external record shipping
	Shippers []TransitionShipperConfig `mapstructure:"shippers"`
}

// TransitionShipperConfig holds configuration for a single transition shipper
type TransitionShipperConfig struct {
	// Enabled determines if this shipper is active
	Enabled bool `mapstructure:"enabled"`
	// Type is the shipper type (file, webhook, amqp)
	Type string `mapstructure:"type"`
	// File configuration
	File *TransitionFileConfig `mapstructure:"file"`
	// Webhook configuration
	Webhook *TransitionWebhookConfig `mapstructure:"webhook"`
	// AMQP configuration
	AMQP *TransitionAMQPConfig `mapstructure:"amqp"`
}

// TransitionFileConfig holds file shipper configuration
type TransitionFileConfig struct {
	Path string `mapstructure:"path"`
	// MaxSizeMB rotates the file when it grows past this size (0 disables rotation)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// TransitionWebhookConfig holds webhook shipper configuration
type TransitionWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// TransitionAMQPConfig holds AMQP shipper configuration
type TransitionAMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

// NotificationsConfig holds settings for outbound notification emails
type NotificationsConfig struct {
	// Enabled globally toggles all outbound notification emails. Requires SMTP to be configured.
	Enabled bool `mapstructure:"enabled"`
	// SMTP holds the outbound mail server settings
	SMTP SMTPConfig `mapstructure:"smtp"`
	// APIKeyExpiryWarningDays is how many days before expiry to send the first warning email (default 7)
	APIKeyExpiryWarningDays int `mapstructure:"api_key_expiry_warning_days"`
	// APIKeyExpiryCheckIntervalHours determines how often the expiry check job runs (default 24)
	APIKeyExpiryCheckIntervalHours int `mapstructure:"api_key_expiry_check_interval_hours"`
}

// SMTPConfig holds outbound mail server configuration for notification emails
type SMTPConfig struct {
	// Host is the SMTP server hostname (e.g. smtp.sendgrid.net)
	Host string `mapstructure:"host"`
	// Port is the SMTP server port (587 for STARTTLS, 465 for SMTPS, 25 for plain)
	Port int `mapstructure:"port"`
	// Username for SMTP authentication
	Username string `mapstructure:"username"`
	// Password for SMTP authentication
	Password string `mapstructure:"password"`
	// From is the sender address shown in notification emails
	From string `mapstructure:"from"`
	// UseTLS enables STARTTLS (port 587) or implicit TLS (port 465); false = plain SMTP
	UseTLS bool `mapstructure:"use_tls"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",
		"server.dev_mode",

		// Payment ledger
		"payment.provider",
		"payment.gateway_url",
		"payment.api_token",
		"payment.platform_account",
		"payment.timeout_secs",

		// Events
		"events.template_address",
		"events.metadata_base_uri",

		// Archive
		"archive.default_backend",
		"archive.azure.account_name",
		"archive.azure.account_key",
		"archive.azure.container_name",
		"archive.s3.endpoint",
		"archive.s3.region",
		"archive.s3.bucket",
		"archive.s3.auth_method",
		"archive.s3.access_key_id",
		"archive.s3.secret_access_key",
		"archive.s3.role_arn",
		"archive.s3.role_session_name",
		"archive.s3.external_id",
		"archive.s3.web_identity_token_file",
		"archive.gcs.bucket",
		"archive.gcs.project_id",
		"archive.gcs.auth_method",
		"archive.gcs.credentials_file",
		"archive.gcs.credentials_json",
		"archive.gcs.endpoint",
		"archive.local.base_path",

		// Auth
		"auth.api_keys.enabled",
		"auth.api_keys.prefix",
		"auth.oidc.enabled",
		"auth.oidc.issuer_url",
		"auth.oidc.client_id",
		"auth.oidc.client_secret",
		"auth.oidc.redirect_url",
		"auth.oidc.scopes",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.redis_addr",
		"security.rate_limiting.redis_password",
		"security.rate_limiting.redis_db",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",
		"security.encryption_key",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Transitions
		"transitions.relay_interval_secs",
		"transitions.relay_batch_size",
		"transitions.archive_enabled",

		// Notifications / SMTP
		"notifications.enabled",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.from",
		"notifications.smtp.use_tls",
		"notifications.api_key_expiry_warning_days",
		"notifications.api_key_expiry_check_interval_hours",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ticket-registry")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("TKR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Payment.APIToken = expandEnv(cfg.Payment.APIToken)
	cfg.Archive.Azure.AccountKey = expandEnv(cfg.Archive.Azure.AccountKey)
	cfg.Archive.S3.AccessKeyID = expandEnv(cfg.Archive.S3.AccessKeyID)
	cfg.Archive.S3.SecretAccessKey = expandEnv(cfg.Archive.S3.SecretAccessKey)
	cfg.Auth.OIDC.ClientSecret = expandEnv(cfg.Auth.OIDC.ClientSecret)
	cfg.Security.RateLimiting.RedisPassword = expandEnv(cfg.Security.RateLimiting.RedisPassword)
	cfg.Notifications.SMTP.Password = expandEnv(cfg.Notifications.SMTP.Password)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.dev_mode", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "ticket_registry")
	v.SetDefault("database.user", "registry")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Payment defaults
	v.SetDefault("payment.provider", "http")
	v.SetDefault("payment.timeout_secs", 10)

	// Archive defaults
	v.SetDefault("archive.default_backend", "local")
	v.SetDefault("archive.local.base_path", "./archive")

	// Auth defaults
	v.SetDefault("auth.api_keys.enabled", true)
	v.SetDefault("auth.api_keys.prefix", "tkr_")
	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.scopes", []string{"openid", "email", "profile"})

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "ticket-registry")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Transitions defaults
	v.SetDefault("transitions.relay_interval_secs", 15)
	v.SetDefault("transitions.relay_batch_size", 100)
	v.SetDefault("transitions.archive_enabled", false)

	// Notifications defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.use_tls", true)
	v.SetDefault("notifications.api_key_expiry_warning_days", 7)
	v.SetDefault("notifications.api_key_expiry_check_interval_hours", 24)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate payment ledger
	switch c.Payment.Provider {
	case "http":
		if c.Payment.GatewayURL == "" {
			return fmt.Errorf("payment.gateway_url is required when using the http provider")
		}
		if c.Payment.PlatformAccount == "" {
			return fmt.Errorf("payment.platform_account is required when using the http provider")
		}
	case "mem":
		if !c.Server.DevMode {
			return fmt.Errorf("payment.provider \"mem\" requires server.dev_mode")
		}
		if c.Payment.PlatformAccount == "" {
			return fmt.Errorf("payment.platform_account is required when using the mem provider")
		}
	default:
		return fmt.Errorf("invalid payment provider: %s (must be http or mem)", c.Payment.Provider)
	}

	// Validate archive backend
	validBackends := map[string]bool{"azure": true, "s3": true, "gcs": true, "local": true}
	if !validBackends[c.Archive.DefaultBackend] {
		return fmt.Errorf("invalid archive backend: %s (must be azure, s3, gcs, or local)", c.Archive.DefaultBackend)
	}

	// Validate Azure archive if enabled
	if c.Archive.DefaultBackend == "azure" {
		if c.Archive.Azure.AccountName == "" {
			return fmt.Errorf("archive.azure.account_name is required when using Azure backend")
		}
		if c.Archive.Azure.AccountKey == "" {
			return fmt.Errorf("archive.azure.account_key is required when using Azure backend")
		}
		if c.Archive.Azure.ContainerName == "" {
			return fmt.Errorf("archive.azure.container_name is required when using Azure backend")
		}
	}

	// Validate S3 archive if enabled
	if c.Archive.DefaultBackend == "s3" {
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when using S3 backend")
		}
		if c.Archive.S3.Region == "" {
			return fmt.Errorf("archive.s3.region is required when using S3 backend")
		}
	}

	// Validate GCS archive if enabled
	if c.Archive.DefaultBackend == "gcs" {
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket is required when using GCS backend")
		}
	}

	// Validate local archive if enabled
	if c.Archive.DefaultBackend == "local" {
		if c.Archive.Local.BasePath == "" {
			return fmt.Errorf("archive.local.base_path is required when using local backend")
		}
	}

	// Validate OIDC if enabled
	if c.Auth.OIDC.Enabled {
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when OIDC is enabled")
		}
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate transition shippers
	for i, s := range c.Transitions.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "file":
			if s.File == nil || s.File.Path == "" {
				return fmt.Errorf("transitions.shippers[%d]: file.path is required for the file shipper", i)
			}
		case "webhook":
			if s.Webhook == nil || s.Webhook.URL == "" {
				return fmt.Errorf("transitions.shippers[%d]: webhook.url is required for the webhook shipper", i)
			}
		case "amqp":
			if s.AMQP == nil || s.AMQP.URL == "" {
				return fmt.Errorf("transitions.shippers[%d]: amqp.url is required for the amqp shipper", i)
			}
		default:
			return fmt.Errorf("transitions.shippers[%d]: unknown shipper type %q", i, s.Type)
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the per-call gateway timeout as a duration
func (c *PaymentConfig) GetTimeout() time.Duration {
	secs := c.TimeoutSecs
	if secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

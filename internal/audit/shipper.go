// Package audit delivers the transition log to external consumers. Every
// successful domain operation writes exactly one transition record inside its
// database transaction; the relay job later claims unshipped rows and hands
// them to the shippers configured here. Shipping is kept separate from
// application logging because the two have different consumers and retention
// requirements: application logs are ephemeral debug output, while transition
// records are the system of record for what happened on the platform. The
// package supports multiple simultaneous destinations (file, webhook, AMQP)
// via the Shipper interface.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ticket-registry/ticket-registry/internal/telemetry"
)

// Shipper defines the interface for transition record shipping
type Shipper interface {
	// Ship sends a transition record to the destination
	Ship(ctx context.Context, rec *Record) error
	// Close cleans up any resources
	Close() error
}

// ShipperConfig holds configuration for transition shippers
type ShipperConfig struct {
	// Enabled determines if this shipper is active
	Enabled bool `json:"enabled"`
	// Type is the shipper type (file, webhook, amqp)
	Type string `json:"type"`
	// File configuration
	File *FileConfig `json:"file,omitempty"`
	// Webhook configuration
	Webhook *WebhookConfig `json:"webhook,omitempty"`
	// AMQP configuration
	AMQP *AMQPConfig `json:"amqp,omitempty"`
}

// FileConfig holds file shipper configuration
type FileConfig struct {
	// Path is the record file path
	Path string `json:"path"`
	// MaxSizeMB is the maximum file size before rotation (0 disables rotation)
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `json:"max_backups"`
}

// WebhookConfig holds webhook shipper configuration
type WebhookConfig struct {
	// URL is the webhook endpoint
	URL string `json:"url"`
	// Headers are additional HTTP headers to send
	Headers map[string]string `json:"headers,omitempty"`
	// Timeout is the HTTP request timeout
	Timeout time.Duration `json:"timeout"`
}

// AMQPConfig holds AMQP shipper configuration
type AMQPConfig struct {
	// URL is the broker URI (amqp:// or amqps://)
	URL string `json:"url"`
	// Exchange is the exchange records are published to (default "transitions")
	Exchange string `json:"exchange"`
	// Queue, when set, is declared durable and bound to the exchange
	Queue string `json:"queue"`
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []Shipper
	names    []string
	mu       sync.RWMutex
}

// NewMultiShipper creates a multi-shipper from configs. Disabled entries are
// skipped; an invalid entry fails construction.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{
		shippers: make([]Shipper, 0),
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "amqp":
			if cfg.AMQP == nil {
				return nil, fmt.Errorf("amqp config is required for amqp shipper")
			}
			shipper, err = NewAMQPShipper(cfg.AMQP)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
		ms.names = append(ms.names, cfg.Type)
	}

	return ms, nil
}

// Ship sends a record to all configured shippers. A failing shipper does not
// stop delivery to the others; the last error is returned.
func (ms *MultiShipper) Ship(ctx context.Context, rec *Record) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for i, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, rec); err != nil {
			lastErr = err
			telemetry.TransitionShipErrorsTotal.WithLabelValues(ms.names[i]).Inc()
			slog.Error("transition shipper failed", "shipper", ms.names[i], "error", err)
			continue
		}
		telemetry.TransitionsShippedTotal.WithLabelValues(ms.names[i]).Inc()
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper posts each record to an HTTP endpoint
type WebhookShipper struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewWebhookShipper creates a new webhook shipper
func NewWebhookShipper(cfg *WebhookConfig) (*WebhookShipper, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &WebhookShipper{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Ship sends a record to the webhook
func (ws *WebhookShipper) Ship(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transition record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Close is a no-op; the webhook shipper holds no resources
func (ws *WebhookShipper) Close() error {
	return nil
}

// FileShipper appends records to a JSON-lines file
type FileShipper struct {
	cfg  *FileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper creates a new file shipper
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open transition log file: %w", err)
	}

	return &FileShipper{
		cfg:  cfg,
		file: file,
	}, nil
}

// Ship writes a record to the file, one JSON document per line
func (fs *FileShipper) Ship(ctx context.Context, rec *Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Check file size for rotation
	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Warn("failed to rotate transition log", "error", err)
			}
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transition record: %w", err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transition record: %w", err)
	}

	return nil
}

// rotate renames the current file to .1, shifting older backups up
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i)
		newPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i+1)
		_ = os.Rename(oldPath, newPath)
	}

	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")

	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	fs.file = file
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

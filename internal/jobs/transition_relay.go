// transition_relay.go implements the TransitionRelay background job, the consumer
// side of the transition outbox. Domain operations insert transition records inside
// their own database transaction; this job periodically claims unshipped rows,
// delivers them to the configured shippers, and optionally copies shipped rows to a
// cold storage archive. Delivery is at-least-once: a record is only marked shipped
// after the shipper accepts it, so a crash between ship and mark redelivers on the
// next pass. Claiming uses FOR UPDATE SKIP LOCKED, which lets multiple server
// instances run the relay concurrently without double-shipping.
package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ticket-registry/ticket-registry/internal/audit"
	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/storage"
	"github.com/ticket-registry/ticket-registry/internal/telemetry"
)

// TransitionRelay periodically ships unshipped transition records and archives
// shipped ones.
type TransitionRelay struct {
	db          *sql.DB
	transitions *repositories.TransitionRepository
	shipper     audit.Shipper
	interval    time.Duration
	batchSize   int
	stopChan    chan struct{}

	mu      sync.RWMutex
	archive storage.Backend // nil disables archiving; swappable at runtime
}

// NewTransitionRelay creates a new TransitionRelay. shipper may be nil when no
// shippers are configured; archive may be nil when archiving is disabled. The
// interval and batch size come from cfg, with the config defaults applied if
// the values are missing or non-positive.
func NewTransitionRelay(
	database *sql.DB,
	transitions *repositories.TransitionRepository,
	shipper audit.Shipper,
	archive storage.Backend,
	cfg *config.TransitionsConfig,
) *TransitionRelay {
	secs := cfg.RelayIntervalSecs
	if secs <= 0 {
		secs = 15
	}
	batch := cfg.RelayBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &TransitionRelay{
		db:          database,
		transitions: transitions,
		shipper:     shipper,
		archive:     archive,
		interval:    time.Duration(secs) * time.Second,
		batchSize:   batch,
		stopChan:    make(chan struct{}),
	}
}

// SetArchive replaces the archive backend. It is called when an administrator
// reconfigures archiving at runtime; passing nil disables archiving from the
// next pass onward. A pass already in flight finishes against the old backend.
func (r *TransitionRelay) SetArchive(backend storage.Backend) {
	r.mu.Lock()
	r.archive = backend
	r.mu.Unlock()
}

func (r *TransitionRelay) archiveBackend() storage.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.archive
}

// Start begins the background relay loop. It runs an initial pass immediately,
// then repeats on the configured interval. The loop exits when ctx is cancelled
// or Stop() is called. The loop keeps ticking even when no shipper or archive
// is configured, because an archive backend can be attached later through the
// admin API.
func (r *TransitionRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("transition relay started",
		"interval", r.interval,
		"batch_size", r.batchSize,
		"shipper_enabled", r.shipper != nil,
		"archive_enabled", r.archiveBackend() != nil)

	// Run once immediately on startup
	r.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			r.runPass(ctx)
		case <-r.stopChan:
			slog.Info("transition relay stopped")
			return
		case <-ctx.Done():
			slog.Info("transition relay context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (r *TransitionRelay) Stop() {
	close(r.stopChan)
}

// runPass executes one ship pass and, if archiving is enabled, one archive pass.
func (r *TransitionRelay) runPass(ctx context.Context) {
	start := time.Now()
	defer func() {
		telemetry.TransitionRelayDuration.Observe(time.Since(start).Seconds())
	}()

	if r.shipper != nil {
		if err := r.shipPass(ctx); err != nil {
			slog.Error("transition relay: ship pass failed", "error", err)
		}
	}
	if archive := r.archiveBackend(); archive != nil {
		if err := r.archivePass(ctx, archive); err != nil {
			slog.Error("transition relay: archive pass failed", "error", err)
		}
	}
}

// shipPass claims a batch of unshipped records, delivers each to the shipper,
// and marks the delivered ones shipped. The whole pass runs in one transaction
// because the SKIP LOCKED claim only protects rows while the claiming
// transaction holds them. A record whose delivery fails is left unshipped and
// retried on the next pass; later records in the batch still ship, so delivery
// order across retries is not guaranteed.
func (r *TransitionRelay) shipPass(ctx context.Context) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context) error {
		claimed, err := r.transitions.ClaimUnshipped(ctx, r.batchSize)
		if err != nil {
			return fmt.Errorf("failed to claim unshipped transitions: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}

		shipped := make([]string, 0, len(claimed))
		for _, t := range claimed {
			if err := r.shipper.Ship(ctx, audit.RecordFromTransition(t)); err != nil {
				slog.Warn("transition relay: delivery failed, will retry",
					"transition_id", t.ID,
					"record_type", t.RecordType,
					"error", err)
				continue
			}
			shipped = append(shipped, t.ID)
		}

		if len(shipped) == 0 {
			return nil
		}
		if err := r.transitions.MarkShipped(ctx, shipped); err != nil {
			return fmt.Errorf("failed to mark %d transitions shipped: %w", len(shipped), err)
		}
		return nil
	})
}

// archivePass copies a batch of shipped-but-unarchived records to the storage
// backend as a JSON-lines object and marks them archived. Store and MarkArchived
// are not atomic: a crash in between re-archives the batch under a new key on
// the next pass, which duplicates data in the archive but never loses it.
func (r *TransitionRelay) archivePass(ctx context.Context, archive storage.Backend) error {
	batch, err := r.transitions.ListShippedUnarchived(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list unarchived transitions: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	ids := make([]string, 0, len(batch))
	for _, t := range batch {
		data, err := json.Marshal(audit.RecordFromTransition(t))
		if err != nil {
			return fmt.Errorf("failed to marshal transition %s: %w", t.ID, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
		ids = append(ids, t.ID)
	}

	key := archiveKey(time.Now())
	if err := archive.Store(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to store archive batch %s: %w", key, err)
	}
	if err := r.transitions.MarkArchived(ctx, ids); err != nil {
		return fmt.Errorf("failed to mark %d transitions archived: %w", len(ids), err)
	}

	telemetry.TransitionsArchivedTotal.Add(float64(len(ids)))
	slog.Info("transition relay: archived batch", "key", key, "count", len(ids))
	return nil
}

// archiveKey builds the storage key for an archive batch. Keys are partitioned
// by UTC date so retention tooling can prune by prefix; the nanosecond suffix
// keeps keys from colliding when passes run close together.
func archiveKey(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("transitions/%s/%d.jsonl", now.Format("2006-01-02"), now.UnixNano())
}

package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ticket-registry/ticket-registry/internal/audit"
	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/storage"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// captureShipper records every delivered record and can be scripted to fail
// delivery for specific record ids.
type captureShipper struct {
	shipped []*audit.Record
	fail    map[string]error
}

func (c *captureShipper) Ship(_ context.Context, rec *audit.Record) error {
	if err, ok := c.fail[rec.ID]; ok {
		return err
	}
	c.shipped = append(c.shipped, rec)
	return nil
}

func (c *captureShipper) Close() error { return nil }

// fakeArchive is an in-memory storage.Backend for archive pass tests.
type fakeArchive struct {
	objects  map[string][]byte
	storeErr error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: map[string][]byte{}}
}

func (f *fakeArchive) Store(_ context.Context, key string, data []byte) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeArchive) Retrieve(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return data, nil
}

func (f *fakeArchive) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeArchive) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var relayTransitionCols = []string{
	"id", "record_type", "entity_address", "actor_address", "organization_address",
	"event_address", "ticket_id", "amount", "fee_amount", "counterparty_address",
	"metadata", "created_at", "shipped_at", "archived_at",
}

// relayTransitionRows builds result rows for the given ids, all typed as
// ticket.minted with a 200/10 amount/fee split.
func relayTransitionRows(shipped bool, ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows(relayTransitionCols)
	var shippedAt interface{}
	if shipped {
		shippedAt = time.Now()
	}
	for _, id := range ids {
		rows.AddRow(
			id, models.RecordTicketMinted, "0xevent", "0xbuyer", "0xorg",
			"0xevent", int64(5), int64(200), int64(10), "0xorg",
			[]byte(`{"price":200}`), time.Now(), shippedAt, nil,
		)
	}
	return rows
}

func newRelayForTest(t *testing.T, shipper audit.Shipper, archive storage.Backend) (*TransitionRelay, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := &config.TransitionsConfig{RelayIntervalSecs: 3600, RelayBatchSize: 100}
	relay := NewTransitionRelay(database, repositories.NewTransitionRepository(database), shipper, archive, cfg)
	return relay, mock
}

// ---------------------------------------------------------------------------
// NewTransitionRelay — construction and config defaulting
// ---------------------------------------------------------------------------

func TestNewTransitionRelay_Defaults(t *testing.T) {
	r := NewTransitionRelay(nil, nil, nil, nil, &config.TransitionsConfig{})
	if r.interval != 15*time.Second {
		t.Errorf("interval = %v, want 15s", r.interval)
	}
	if r.batchSize != 100 {
		t.Errorf("batchSize = %d, want 100", r.batchSize)
	}
}

func TestNewTransitionRelay_CustomValues(t *testing.T) {
	cfg := &config.TransitionsConfig{RelayIntervalSecs: 60, RelayBatchSize: 250}
	r := NewTransitionRelay(nil, nil, nil, nil, cfg)
	if r.interval != 60*time.Second {
		t.Errorf("interval = %v, want 60s", r.interval)
	}
	if r.batchSize != 250 {
		t.Errorf("batchSize = %d, want 250", r.batchSize)
	}
}

func TestNewTransitionRelay_StopChanInitialised(t *testing.T) {
	r := NewTransitionRelay(nil, nil, nil, nil, &config.TransitionsConfig{})
	if r.stopChan == nil {
		t.Error("stopChan should not be nil after construction")
	}
}

// ---------------------------------------------------------------------------
// Start — loop shutdown and idle behaviour
// ---------------------------------------------------------------------------

func TestTransitionRelay_Start_NothingConfigured(t *testing.T) {
	// With neither shipper nor archive the pass is a no-op, but the loop keeps
	// running so an archive backend attached later still takes effect.
	cfg := &config.TransitionsConfig{RelayIntervalSecs: 3600}
	r := NewTransitionRelay(nil, nil, nil, nil, cfg)

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Start did not return after Stop")
	}
}

func TestTransitionRelay_StartStop(t *testing.T) {
	shipper := &captureShipper{}
	r, mock := newRelayForTest(t, shipper, nil)

	// Initial pass on startup: empty claim, committed
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NULL").
		WillReturnRows(sqlmock.NewRows(relayTransitionCols))
	mock.ExpectCommit()

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Ship pass
// ---------------------------------------------------------------------------

func TestTransitionRelay_ShipPass_DeliversAndMarks(t *testing.T) {
	shipper := &captureShipper{}
	r, mock := newRelayForTest(t, shipper, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NULL").
		WithArgs(100).
		WillReturnRows(relayTransitionRows(false, "t-1", "t-2"))
	mock.ExpectExec("UPDATE transitions SET shipped_at").
		WithArgs(pq.Array([]string{"t-1", "t-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(shipper.shipped) != 2 {
		t.Fatalf("shipped %d records, want 2", len(shipper.shipped))
	}
	if shipper.shipped[0].ID != "t-1" || shipper.shipped[1].ID != "t-2" {
		t.Errorf("shipped ids = %s, %s; want t-1, t-2", shipper.shipped[0].ID, shipper.shipped[1].ID)
	}

	rec := shipper.shipped[0]
	if rec.Type != models.RecordTicketMinted {
		t.Errorf("Type = %s, want %s", rec.Type, models.RecordTicketMinted)
	}
	if rec.Amount == nil || *rec.Amount != 200 {
		t.Errorf("Amount = %v, want 200", rec.Amount)
	}
	if rec.Fee == nil || *rec.Fee != 10 {
		t.Errorf("Fee = %v, want 10", rec.Fee)
	}
}

func TestTransitionRelay_ShipPass_PartialFailureMarksOnlyDelivered(t *testing.T) {
	shipper := &captureShipper{fail: map[string]error{"t-1": errors.New("webhook returned status 502")}}
	r, mock := newRelayForTest(t, shipper, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NULL").
		WillReturnRows(relayTransitionRows(false, "t-1", "t-2"))
	// Only the delivered record is marked; t-1 stays unshipped for the next pass
	mock.ExpectExec("UPDATE transitions SET shipped_at").
		WithArgs(pq.Array([]string{"t-2"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(shipper.shipped) != 1 || shipper.shipped[0].ID != "t-2" {
		t.Errorf("shipped = %v, want exactly t-2", shipper.shipped)
	}
}

func TestTransitionRelay_ShipPass_AllDeliveriesFail(t *testing.T) {
	shipper := &captureShipper{fail: map[string]error{"t-1": errors.New("broker unavailable")}}
	r, mock := newRelayForTest(t, shipper, nil)

	// Nothing shipped, so no UPDATE runs; the claim transaction still commits.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NULL").
		WillReturnRows(relayTransitionRows(false, "t-1"))
	mock.ExpectCommit()

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(shipper.shipped) != 0 {
		t.Errorf("shipped %d records, want 0", len(shipper.shipped))
	}
}

func TestTransitionRelay_ShipPass_EmptyClaim(t *testing.T) {
	shipper := &captureShipper{}
	r, mock := newRelayForTest(t, shipper, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NULL").
		WillReturnRows(sqlmock.NewRows(relayTransitionCols))
	mock.ExpectCommit()

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionRelay_ShipPass_ClaimErrorRollsBack(t *testing.T) {
	shipper := &captureShipper{}
	r, mock := newRelayForTest(t, shipper, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NULL").
		WillReturnError(errors.New("db connection lost"))
	mock.ExpectRollback()

	r.runPass(context.Background()) // logs and returns; must not panic

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Archive pass
// ---------------------------------------------------------------------------

func TestTransitionRelay_ArchivePass_StoresBatchAndMarks(t *testing.T) {
	archive := newFakeArchive()
	r, mock := newRelayForTest(t, nil, archive)

	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NOT NULL AND archived_at IS NULL").
		WithArgs(100).
		WillReturnRows(relayTransitionRows(true, "t-1", "t-2"))
	mock.ExpectExec("UPDATE transitions SET archived_at").
		WithArgs(pq.Array([]string{"t-1", "t-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	if len(archive.objects) != 1 {
		t.Fatalf("archive holds %d objects, want 1", len(archive.objects))
	}
	for key, data := range archive.objects {
		if !strings.HasPrefix(key, "transitions/") || !strings.HasSuffix(key, ".jsonl") {
			t.Errorf("key = %q, want transitions/<date>/<n>.jsonl", key)
		}

		var ids []string
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			var rec audit.Record
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				t.Fatalf("invalid JSON line: %v", err)
			}
			if rec.Type != models.RecordTicketMinted {
				t.Errorf("archived Type = %s, want %s", rec.Type, models.RecordTicketMinted)
			}
			ids = append(ids, rec.ID)
		}
		if len(ids) != 2 || ids[0] != "t-1" || ids[1] != "t-2" {
			t.Errorf("archived ids = %v, want [t-1 t-2]", ids)
		}
	}
}

func TestTransitionRelay_ArchivePass_StoreFailureLeavesUnarchived(t *testing.T) {
	archive := newFakeArchive()
	archive.storeErr = errors.New("bucket unreachable")
	r, mock := newRelayForTest(t, nil, archive)

	// Store fails, so MarkArchived never runs and the batch is retried next pass.
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NOT NULL AND archived_at IS NULL").
		WillReturnRows(relayTransitionRows(true, "t-1"))

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(archive.objects) != 0 {
		t.Errorf("archive holds %d objects, want 0", len(archive.objects))
	}
}

func TestTransitionRelay_ArchivePass_NothingToArchive(t *testing.T) {
	archive := newFakeArchive()
	r, mock := newRelayForTest(t, nil, archive)

	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NOT NULL AND archived_at IS NULL").
		WillReturnRows(sqlmock.NewRows(relayTransitionCols))

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(archive.objects) != 0 {
		t.Errorf("archive holds %d objects, want 0", len(archive.objects))
	}
}

func TestTransitionRelay_SetArchive_EnablesArchivingAtRuntime(t *testing.T) {
	r, mock := newRelayForTest(t, nil, nil)

	// First pass: no archive configured, nothing touches the database.
	r.runPass(context.Background())

	archive := newFakeArchive()
	r.SetArchive(archive)

	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NOT NULL AND archived_at IS NULL").
		WillReturnRows(relayTransitionRows(true, "t-1"))
	mock.ExpectExec("UPDATE transitions SET archived_at").
		WithArgs(pq.Array([]string{"t-1"})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(archive.objects) != 1 {
		t.Errorf("archive holds %d objects, want 1", len(archive.objects))
	}

	// Swapping back to nil disables archiving again.
	r.SetArchive(nil)
	r.runPass(context.Background())
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity after disabling: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Full pass — ship then archive
// ---------------------------------------------------------------------------

func TestTransitionRelay_RunPass_ShipsThenArchives(t *testing.T) {
	shipper := &captureShipper{}
	archive := newFakeArchive()
	r, mock := newRelayForTest(t, shipper, archive)

	// Ship phase runs in its own transaction
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NULL").
		WillReturnRows(relayTransitionRows(false, "t-1"))
	mock.ExpectExec("UPDATE transitions SET shipped_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Archive phase picks up previously shipped records
	mock.ExpectQuery("SELECT.*FROM transitions.*WHERE shipped_at IS NOT NULL AND archived_at IS NULL").
		WillReturnRows(relayTransitionRows(true, "t-0"))
	mock.ExpectExec("UPDATE transitions SET archived_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(shipper.shipped) != 1 || shipper.shipped[0].ID != "t-1" {
		t.Errorf("shipped = %v, want exactly t-1", shipper.shipped)
	}
	if len(archive.objects) != 1 {
		t.Errorf("archive holds %d objects, want 1", len(archive.objects))
	}
}

// ---------------------------------------------------------------------------
// archiveKey
// ---------------------------------------------------------------------------

func TestArchiveKey_DatePartitioned(t *testing.T) {
	ts := time.Date(2026, 3, 7, 12, 30, 45, 123456789, time.UTC)
	want := fmt.Sprintf("transitions/2026-03-07/%d.jsonl", ts.UnixNano())
	if got := archiveKey(ts); got != want {
		t.Errorf("archiveKey = %q, want %q", got, want)
	}
}

func TestArchiveKey_NormalisesToUTC(t *testing.T) {
	// 01:00 on March 7 at UTC+5 is still March 6 in UTC
	zone := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2026, 3, 7, 1, 0, 0, 0, zone)
	if got := archiveKey(ts); !strings.HasPrefix(got, "transitions/2026-03-06/") {
		t.Errorf("archiveKey = %q, want prefix transitions/2026-03-06/", got)
	}
}

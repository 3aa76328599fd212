// services_test.go holds the fixtures shared by the registry, organization
// and series service tests: a scriptable ledger fake, sqlmock row builders,
// and constructors wiring the service graph over one mocked database.
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/factory"
)

const (
	platformAddr  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	ownerAddr     = "0xb0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0"
	organizerAddr = "0x1111111111111111111111111111111111111111"
	newOwnerAddr  = "0x2222222222222222222222222222222222222222"
	buyerAddr     = "0x3333333333333333333333333333333333333333"
	orgAddr       = "0x4444444444444444444444444444444444444444"
	eventAddr     = "0x5555555555555555555555555555555555555555"
	tokenAddr     = "0x6666666666666666666666666666666666666666"
	templateAddr  = "0x7777777777777777777777777777777777777777"
	holderAddr    = "0x8888888888888888888888888888888888888888"
)

var errGateway = errors.New("gateway rejected the call")

// ---------------------------------------------------------------------------
// Ledger fake
// ---------------------------------------------------------------------------

type ledgerCall struct {
	op     string
	from   string
	to     string
	amount int64
}

// fakeLedger is a scriptable payment.Ledger. TransferFrom pops one error per
// call from transferFromErrs (nil entry = success), so tests can fail exactly
// the fee or the remainder leg. transferFromDelay makes each TransferFrom take
// real time, which lets tests drive the sales deadline past during payment.
type fakeLedger struct {
	allowance         int64
	allowanceErr      error
	balance           int64
	balanceErr        error
	transferErr       error
	transferFromErrs  []error
	transferFromDelay time.Duration
	token             string
	calls             []ledgerCall
}

func (f *fakeLedger) BalanceOf(_ context.Context, addr string) (int64, error) {
	f.calls = append(f.calls, ledgerCall{op: "balance_of", from: addr})
	return f.balance, f.balanceErr
}

func (f *fakeLedger) Allowance(_ context.Context, owner string) (int64, error) {
	f.calls = append(f.calls, ledgerCall{op: "allowance", from: owner})
	return f.allowance, f.allowanceErr
}

func (f *fakeLedger) Transfer(_ context.Context, from, to string, amount int64) error {
	f.calls = append(f.calls, ledgerCall{op: "transfer", from: from, to: to, amount: amount})
	return f.transferErr
}

func (f *fakeLedger) TransferFrom(_ context.Context, from, to string, amount int64) error {
	if f.transferFromDelay > 0 {
		time.Sleep(f.transferFromDelay)
	}
	f.calls = append(f.calls, ledgerCall{op: "transfer_from", from: from, to: to, amount: amount})
	if len(f.transferFromErrs) > 0 {
		err := f.transferFromErrs[0]
		f.transferFromErrs = f.transferFromErrs[1:]
		return err
	}
	return nil
}

func (f *fakeLedger) SetTokenAddress(addr string) {
	f.token = addr
}

func (f *fakeLedger) callsOf(op string) []ledgerCall {
	out := make([]ledgerCall, 0, len(f.calls))
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// transferFroms returns only the transfer_from calls, in order.
func (f *fakeLedger) transferFroms() []ledgerCall { return f.callsOf("transfer_from") }

// transfers returns only the custodial transfer calls (refunds, withdrawals).
func (f *fakeLedger) transfers() []ledgerCall { return f.callsOf("transfer") }

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

var platformConfigCols = []string{
	"owner_address", "fee_bps", "payment_token_address", "paused",
	"created_at", "updated_at",
}

func platformConfigRow(feeBps int, paused bool) *sqlmock.Rows {
	return sqlmock.NewRows(platformConfigCols).AddRow(
		ownerAddr, feeBps, tokenAddr, paused, time.Now(), time.Now(),
	)
}

var organizationCols = []string{
	"id", "address", "owner_address", "platform_address", "banner_uri",
	"paused", "created_at", "updated_at",
}

func organizationRow(addr, owner string, paused bool) *sqlmock.Rows {
	return sqlmock.NewRows(organizationCols).AddRow(
		"org-1", addr, owner, platformAddr, "", paused, time.Now(), time.Now(),
	)
}

var seriesCols = []string{
	"id", "address", "organization_address", "platform_address", "base_uri",
	"ticket_price", "deadline", "max_supply", "current_supply", "state",
	"created_at", "updated_at",
}

func seriesRow(state string, price, currentSupply, maxSupply int64, deadline time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(seriesCols).AddRow(
		"evt-1", eventAddr, orgAddr, platformAddr, "https://meta/",
		price, deadline, maxSupply, currentSupply, state,
		time.Now(), time.Now(),
	)
}

var ticketCols = []string{
	"event_address", "ticket_id", "holder_address", "minted_at", "updated_at",
}

func ticketRow(ticketID int64, holder string) *sqlmock.Rows {
	return sqlmock.NewRows(ticketCols).AddRow(
		eventAddr, ticketID, holder, time.Now(), time.Now(),
	)
}

func organizerAllowedRow(addr string, allowed bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"address", "allowed", "created_at", "updated_at"}).
		AddRow(addr, allowed, time.Now(), time.Now())
}

// expectTransition expects the transition insert and pins its record type.
func expectTransition(mock sqlmock.Sqlmock, recordType string) {
	mock.ExpectExec("INSERT INTO transitions").
		WithArgs(sqlmock.AnyArg(), recordType, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// expectPaidTransition additionally pins the amount and fee columns.
func expectPaidTransition(mock sqlmock.Sqlmock, recordType string, amount, fee int64) {
	mock.ExpectExec("INSERT INTO transitions").
		WithArgs(sqlmock.AnyArg(), recordType, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), amount,
			fee, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// ---------------------------------------------------------------------------
// Service constructors
// ---------------------------------------------------------------------------

type serviceDeps struct {
	mock     sqlmock.Sqlmock
	ledger   *fakeLedger
	registry *RegistryService
	series   *SeriesService
	orgs     *OrganizationService
}

func newServices(t *testing.T) *serviceDeps {
	t.Helper()
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	led := &fakeLedger{}
	platform := repositories.NewPlatformRepository(database)
	organizations := repositories.NewOrganizationRepository(database)
	events := repositories.NewEventRepository(database)
	registryEvents := repositories.NewRegistryEventRepository(database)
	tickets := repositories.NewTicketRepository(database)
	transitions := repositories.NewTransitionRepository(database)

	registry := NewRegistryService(database, platformAddr,
		platform, organizations, events, registryEvents, tickets, transitions, led)
	series := NewSeriesService(database, platformAddr,
		platform, organizations, events, tickets, transitions, led)
	seriesFactory := factory.New(events, factory.Template{
		Address: templateAddr,
		BaseURI: "https://tickets.example.com/meta/",
	})
	orgs := NewOrganizationService(database, platformAddr,
		registry, series, seriesFactory, platform, organizations, transitions, led)

	return &serviceDeps{
		mock:     mock,
		ledger:   led,
		registry: registry,
		series:   series,
		orgs:     orgs,
	}
}

// expectConfigLock expects the platform config row lock every mutating
// operation takes first.
func (d *serviceDeps) expectConfigLock(feeBps int, paused bool) {
	d.mock.ExpectQuery("SELECT.*FROM platform_config WHERE id = 1 FOR UPDATE").
		WillReturnRows(platformConfigRow(feeBps, paused))
}

func (d *serviceDeps) assertMet(t *testing.T) {
	t.Helper()
	if err := d.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// futureDeadline is far enough out that test runtime never crosses it.
func futureDeadline() time.Time {
	return time.Now().Add(48 * time.Hour)
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/domain"
)

// ----
// splitFee
// ----

func TestSplitFee(t *testing.T) {
	cases := []struct {
		price         int64
		feeBps        int
		wantFee       int64
		wantRemainder int64
	}{
		{200, 500, 10, 190},
		{200, 0, 0, 200},
		{200, 10000, 200, 0},
		{999, 2500, 249, 750}, // fee rounds down
		{1, 1, 0, 1},
		{10000, 1, 1, 9999},
	}
	for _, tc := range cases {
		fee, remainder := splitFee(tc.price, tc.feeBps)
		if fee != tc.wantFee || remainder != tc.wantRemainder {
			t.Errorf("splitFee(%d, %d) = (%d, %d), want (%d, %d)",
				tc.price, tc.feeBps, fee, remainder, tc.wantFee, tc.wantRemainder)
		}
		if fee+remainder != tc.price {
			t.Errorf("splitFee(%d, %d): fee+remainder = %d, must equal the price",
				tc.price, tc.feeBps, fee+remainder)
		}
	}
}

// ----
// Mint
// ----

// expectOpenSeries expects the query trio every sale path starts with: the
// config lock, the locked series read and the owning organization read.
func expectOpenSeries(d *serviceDeps, feeBps int, price, currentSupply, maxSupply int64, deadline time.Time) {
	d.expectConfigLock(feeBps, false)
	d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
		WithArgs(eventAddr).
		WillReturnRows(seriesRow(models.EventStateOpen, price, currentSupply, maxSupply, deadline))
	d.mock.ExpectQuery("SELECT.*FROM organizations WHERE address").
		WithArgs(orgAddr).
		WillReturnRows(organizationRow(orgAddr, organizerAddr, false))
}

func TestMint_Success(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 200

	d.mock.ExpectBegin()
	expectOpenSeries(d, 500, 200, 5, 100, futureDeadline())
	d.mock.ExpectExec("UPDATE events SET current_supply").
		WithArgs(eventAddr, int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectQuery("INSERT INTO tickets").
		WithArgs(eventAddr, int64(5), buyerAddr).
		WillReturnRows(sqlmock.NewRows([]string{"minted_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	expectPaidTransition(d.mock, models.RecordTicketMinted, 200, 10)
	d.mock.ExpectCommit()

	ticket, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if ticket.TicketID != 5 {
		t.Errorf("expected dense ticket id 5 (= supply before mint), got %d", ticket.TicketID)
	}
	if ticket.HolderAddress != buyerAddr {
		t.Errorf("expected holder %s, got %s", buyerAddr, ticket.HolderAddress)
	}

	tfs := d.ledger.transferFroms()
	if len(tfs) != 2 {
		t.Fatalf("expected fee and remainder legs, got %d transfers", len(tfs))
	}
	if tfs[0] != (ledgerCall{op: "transfer_from", from: buyerAddr, to: platformAddr, amount: 10}) {
		t.Errorf("fee leg wrong: %+v", tfs[0])
	}
	if tfs[1] != (ledgerCall{op: "transfer_from", from: buyerAddr, to: orgAddr, amount: 190}) {
		t.Errorf("remainder leg wrong: %+v", tfs[1])
	}
	d.assertMet(t)
}

func TestMint_ZeroFeeSkipsFeeLeg(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 200

	d.mock.ExpectBegin()
	expectOpenSeries(d, 0, 200, 0, 100, futureDeadline())
	d.mock.ExpectExec("UPDATE events SET current_supply").
		WithArgs(eventAddr, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectQuery("INSERT INTO tickets").
		WithArgs(eventAddr, int64(0), buyerAddr).
		WillReturnRows(sqlmock.NewRows([]string{"minted_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	expectPaidTransition(d.mock, models.RecordTicketMinted, 200, 0)
	d.mock.ExpectCommit()

	if _, err := d.series.Mint(context.Background(), buyerAddr, eventAddr); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	tfs := d.ledger.transferFroms()
	if len(tfs) != 1 {
		t.Fatalf("expected only the remainder leg, got %d transfers", len(tfs))
	}
	if tfs[0] != (ledgerCall{op: "transfer_from", from: buyerAddr, to: orgAddr, amount: 200}) {
		t.Errorf("remainder leg wrong: %+v", tfs[0])
	}
	d.assertMet(t)
}

func TestMint_FullFeeSkipsRemainderLeg(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 200

	d.mock.ExpectBegin()
	expectOpenSeries(d, 10000, 200, 0, 100, futureDeadline())
	d.mock.ExpectExec("UPDATE events SET current_supply").
		WithArgs(eventAddr, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectQuery("INSERT INTO tickets").
		WithArgs(eventAddr, int64(0), buyerAddr).
		WillReturnRows(sqlmock.NewRows([]string{"minted_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	expectPaidTransition(d.mock, models.RecordTicketMinted, 200, 200)
	d.mock.ExpectCommit()

	if _, err := d.series.Mint(context.Background(), buyerAddr, eventAddr); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	tfs := d.ledger.transferFroms()
	if len(tfs) != 1 {
		t.Fatalf("expected only the fee leg, got %d transfers", len(tfs))
	}
	if tfs[0] != (ledgerCall{op: "transfer_from", from: buyerAddr, to: platformAddr, amount: 200}) {
		t.Errorf("fee leg wrong: %+v", tfs[0])
	}
	d.assertMet(t)
}

func TestMint_SoldOut(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 200

	d.mock.ExpectBegin()
	expectOpenSeries(d, 500, 200, 100, 100, futureDeadline())
	d.mock.ExpectRollback()

	_, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
	if !domain.IsState(err) {
		t.Fatalf("expected state error, got %v", err)
	}
	if !errors.Is(err, domain.ErrSoldOut) {
		t.Errorf("expected ErrSoldOut, got %v", err)
	}
	if len(d.ledger.calls) != 0 {
		t.Errorf("sold-out mint must not touch the ledger, got %+v", d.ledger.calls)
	}
	d.assertMet(t)
}

func TestMint_InsufficientAllowance(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 150

	d.mock.ExpectBegin()
	expectOpenSeries(d, 500, 200, 5, 100, futureDeadline())
	d.mock.ExpectRollback()

	_, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
	if !domain.IsPayment(err) {
		t.Fatalf("expected payment error, got %v", err)
	}
	if !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}
	if len(d.ledger.transferFroms()) != 0 {
		t.Errorf("no payment legs may run on insufficient allowance")
	}
	d.assertMet(t)
}

func TestMint_AllowanceLookupError(t *testing.T) {
	d := newServices(t)
	d.ledger.allowanceErr = errGateway

	d.mock.ExpectBegin()
	expectOpenSeries(d, 500, 200, 5, 100, futureDeadline())
	d.mock.ExpectRollback()

	_, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
	if !domain.IsPayment(err) {
		t.Fatalf("expected payment error, got %v", err)
	}
	if !errors.Is(err, errGateway) {
		t.Errorf("expected wrapped gateway error, got %v", err)
	}
	d.assertMet(t)
}

func TestMint_FeeLegFails(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 200
	d.ledger.transferFromErrs = []error{errGateway}

	d.mock.ExpectBegin()
	expectOpenSeries(d, 500, 200, 5, 100, futureDeadline())
	d.mock.ExpectRollback()

	_, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
	if !domain.IsPayment(err) {
		t.Fatalf("expected payment error, got %v", err)
	}
	// The fee never moved, so there is nothing to refund.
	if len(d.ledger.transfers()) != 0 {
		t.Errorf("no refund expected when the fee leg fails, got %+v", d.ledger.transfers())
	}
	d.assertMet(t)
}

func TestMint_RemainderFailureRefundsFee(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 200
	d.ledger.transferFromErrs = []error{nil, errGateway}

	d.mock.ExpectBegin()
	expectOpenSeries(d, 500, 200, 5, 100, futureDeadline())
	d.mock.ExpectRollback()

	_, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
	if !domain.IsPayment(err) {
		t.Fatalf("expected payment error, got %v", err)
	}

	refunds := d.ledger.transfers()
	if len(refunds) != 1 {
		t.Fatalf("expected exactly one refund, got %d", len(refunds))
	}
	if refunds[0] != (ledgerCall{op: "transfer", from: platformAddr, to: buyerAddr, amount: 10}) {
		t.Errorf("fee refund wrong: %+v", refunds[0])
	}
	d.assertMet(t)
}

func TestMint_DeadlinePassesDuringPayment(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 200
	d.ledger.transferFromDelay = 150 * time.Millisecond

	// The deadline holds at the locked read but expires while the two payment
	// legs run; the re-check must unwind both of them.
	d.mock.ExpectBegin()
	expectOpenSeries(d, 500, 200, 5, 100, time.Now().Add(100*time.Millisecond))
	d.mock.ExpectRollback()

	_, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
	if !domain.IsState(err) {
		t.Fatalf("expected state error, got %v", err)
	}
	if !errors.Is(err, domain.ErrDeadlinePassed) {
		t.Errorf("expected ErrDeadlinePassed, got %v", err)
	}

	refunds := d.ledger.transfers()
	if len(refunds) != 2 {
		t.Fatalf("expected remainder and fee refunds, got %d", len(refunds))
	}
	if refunds[0] != (ledgerCall{op: "transfer", from: orgAddr, to: buyerAddr, amount: 190}) {
		t.Errorf("remainder refund wrong: %+v", refunds[0])
	}
	if refunds[1] != (ledgerCall{op: "transfer", from: platformAddr, to: buyerAddr, amount: 10}) {
		t.Errorf("fee refund wrong: %+v", refunds[1])
	}
	d.assertMet(t)
}

func TestMint_GateClosed(t *testing.T) {
	cases := []struct {
		name   string
		expect func(d *serviceDeps)
		want   error
	}{
		{
			"platform paused",
			func(d *serviceDeps) { d.expectConfigLock(500, true) },
			domain.ErrPlatformPaused,
		},
		{
			"series unknown",
			func(d *serviceDeps) {
				d.expectConfigLock(500, false)
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
					WillReturnRows(sqlmock.NewRows(seriesCols))
			},
			domain.ErrNotFound,
		},
		{
			"series closed",
			func(d *serviceDeps) {
				d.expectConfigLock(500, false)
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
					WillReturnRows(seriesRow(models.EventStateClosed, 200, 5, 100, futureDeadline()))
			},
			domain.ErrNotOpen,
		},
		{
			"series uninitialized",
			func(d *serviceDeps) {
				d.expectConfigLock(500, false)
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
					WillReturnRows(seriesRow(models.EventStateUninitialized, 0, 0, 0, futureDeadline()))
			},
			domain.ErrNotOpen,
		},
		{
			"organization paused",
			func(d *serviceDeps) {
				d.expectConfigLock(500, false)
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
					WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, futureDeadline()))
				d.mock.ExpectQuery("SELECT.*FROM organizations WHERE address").
					WillReturnRows(organizationRow(orgAddr, organizerAddr, true))
			},
			domain.ErrOrganizationPaused,
		},
		{
			"deadline passed",
			func(d *serviceDeps) {
				d.expectConfigLock(500, false)
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
					WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, time.Now().Add(-time.Hour)))
				d.mock.ExpectQuery("SELECT.*FROM organizations WHERE address").
					WillReturnRows(organizationRow(orgAddr, organizerAddr, false))
			},
			domain.ErrDeadlinePassed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newServices(t)
			d.ledger.allowance = 200

			d.mock.ExpectBegin()
			tc.expect(d)
			d.mock.ExpectRollback()

			_, err := d.series.Mint(context.Background(), buyerAddr, eventAddr)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(d.ledger.transferFroms()) != 0 {
				t.Errorf("gate-closed mint must not move tokens")
			}
			d.assertMet(t)
		})
	}
}

func TestMint_InvalidCaller(t *testing.T) {
	d := newServices(t)

	_, err := d.series.Mint(context.Background(), "nope", eventAddr)
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	d.assertMet(t)
}

// ----
// Resell
// ----

func TestResell_Success(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 1000

	d.mock.ExpectBegin()
	expectOpenSeries(d, 250, 200, 10, 100, futureDeadline())
	d.mock.ExpectQuery("SELECT.*FROM tickets WHERE event_address.*FOR UPDATE").
		WithArgs(eventAddr, int64(2)).
		WillReturnRows(ticketRow(2, holderAddr))
	d.mock.ExpectExec("UPDATE tickets").
		WithArgs(eventAddr, int64(2), buyerAddr).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectPaidTransition(d.mock, models.RecordTicketResold, 1000, 25)
	d.mock.ExpectCommit()

	ticket, err := d.series.Resell(context.Background(), holderAddr, eventAddr, 2, buyerAddr, 1000)
	if err != nil {
		t.Fatalf("Resell failed: %v", err)
	}
	if ticket.HolderAddress != buyerAddr {
		t.Errorf("expected holder %s, got %s", buyerAddr, ticket.HolderAddress)
	}

	tfs := d.ledger.transferFroms()
	if len(tfs) != 2 {
		t.Fatalf("expected fee and remainder legs, got %d transfers", len(tfs))
	}
	if tfs[0] != (ledgerCall{op: "transfer_from", from: buyerAddr, to: platformAddr, amount: 25}) {
		t.Errorf("fee leg wrong: %+v", tfs[0])
	}
	if tfs[1] != (ledgerCall{op: "transfer_from", from: buyerAddr, to: holderAddr, amount: 975}) {
		t.Errorf("remainder leg wrong: %+v", tfs[1])
	}
	d.assertMet(t)
}

func TestResell_NotHolder(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 1000

	d.mock.ExpectBegin()
	expectOpenSeries(d, 250, 200, 10, 100, futureDeadline())
	d.mock.ExpectQuery("SELECT.*FROM tickets WHERE event_address.*FOR UPDATE").
		WithArgs(eventAddr, int64(2)).
		WillReturnRows(ticketRow(2, holderAddr))
	d.mock.ExpectRollback()

	_, err := d.series.Resell(context.Background(), organizerAddr, eventAddr, 2, buyerAddr, 1000)
	if !domain.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotTicketHolder) {
		t.Errorf("expected ErrNotTicketHolder, got %v", err)
	}
	if len(d.ledger.transferFroms()) != 0 {
		t.Errorf("no tokens may move for a non-holder")
	}
	d.assertMet(t)
}

func TestResell_UnknownTicket(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 1000

	d.mock.ExpectBegin()
	expectOpenSeries(d, 250, 200, 10, 100, futureDeadline())
	d.mock.ExpectQuery("SELECT.*FROM tickets WHERE event_address.*FOR UPDATE").
		WithArgs(eventAddr, int64(99)).
		WillReturnRows(sqlmock.NewRows(ticketCols))
	d.mock.ExpectRollback()

	_, err := d.series.Resell(context.Background(), holderAddr, eventAddr, 99, buyerAddr, 1000)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	d.assertMet(t)
}

func TestResell_RemainderFailureRefundsFee(t *testing.T) {
	d := newServices(t)
	d.ledger.allowance = 1000
	d.ledger.transferFromErrs = []error{nil, errGateway}

	d.mock.ExpectBegin()
	expectOpenSeries(d, 250, 200, 10, 100, futureDeadline())
	d.mock.ExpectQuery("SELECT.*FROM tickets WHERE event_address.*FOR UPDATE").
		WithArgs(eventAddr, int64(2)).
		WillReturnRows(ticketRow(2, holderAddr))
	d.mock.ExpectRollback()

	_, err := d.series.Resell(context.Background(), holderAddr, eventAddr, 2, buyerAddr, 1000)
	if !domain.IsPayment(err) {
		t.Fatalf("expected payment error, got %v", err)
	}

	refunds := d.ledger.transfers()
	if len(refunds) != 1 {
		t.Fatalf("expected exactly one refund, got %d", len(refunds))
	}
	// The buyer paid the fee, so the refund goes back to the buyer.
	if refunds[0] != (ledgerCall{op: "transfer", from: platformAddr, to: buyerAddr, amount: 25}) {
		t.Errorf("fee refund wrong: %+v", refunds[0])
	}
	d.assertMet(t)
}

func TestResell_Validation(t *testing.T) {
	d := newServices(t)

	cases := []struct {
		name   string
		caller string
		to     string
		price  int64
		want   error
	}{
		{"zero buyer", holderAddr, "0x0000000000000000000000000000000000000000", 100, domain.ErrZeroAddress},
		{"malformed buyer", holderAddr, "bogus", 100, domain.ErrInvalidAddress},
		{"zero price", holderAddr, buyerAddr, 0, domain.ErrNonPositivePrice},
		{"negative price", holderAddr, buyerAddr, -5, domain.ErrNonPositivePrice},
		{"malformed caller", "bogus", buyerAddr, 100, domain.ErrInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.series.Resell(context.Background(), tc.caller, eventAddr, 1, tc.to, tc.price)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
	d.assertMet(t)
}

// ----
// Parameter updates and close
// ----

func TestSetTicketPrice_ReturnsPreUpdateSeries(t *testing.T) {
	d := newServices(t)

	d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
		WithArgs(eventAddr).
		WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, futureDeadline()))
	d.mock.ExpectExec("UPDATE events SET ticket_price").
		WithArgs(eventAddr, int64(550)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	evt, err := d.series.SetTicketPrice(context.Background(), orgAddr, eventAddr, 550)
	if err != nil {
		t.Fatalf("SetTicketPrice failed: %v", err)
	}
	if evt.TicketPrice != 200 {
		t.Errorf("expected the pre-update price 200 back, got %d", evt.TicketPrice)
	}
	d.assertMet(t)
}

func TestSetTicketPrice_NonPositive(t *testing.T) {
	d := newServices(t)

	for _, price := range []int64{0, -1} {
		_, err := d.series.SetTicketPrice(context.Background(), orgAddr, eventAddr, price)
		if !errors.Is(err, domain.ErrNonPositivePrice) {
			t.Fatalf("price %d: expected ErrNonPositivePrice, got %v", price, err)
		}
	}
	d.assertMet(t)
}

func TestSetTicketPrice_WrongOrganization(t *testing.T) {
	d := newServices(t)

	d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
		WithArgs(eventAddr).
		WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, futureDeadline()))

	_, err := d.series.SetTicketPrice(context.Background(), "0x9999999999999999999999999999999999999999", eventAddr, 550)
	if !domain.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotEventOrganization) {
		t.Errorf("expected ErrNotEventOrganization, got %v", err)
	}
	d.assertMet(t)
}

func TestSetDeadline_Success(t *testing.T) {
	d := newServices(t)
	newDeadline := time.Now().Add(72 * time.Hour)

	d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
		WithArgs(eventAddr).
		WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, futureDeadline()))
	d.mock.ExpectExec("UPDATE events SET deadline").
		WithArgs(eventAddr, newDeadline).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := d.series.SetDeadline(context.Background(), orgAddr, eventAddr, newDeadline); err != nil {
		t.Fatalf("SetDeadline failed: %v", err)
	}
	d.assertMet(t)
}

func TestSetDeadline_NotFuture(t *testing.T) {
	d := newServices(t)

	_, err := d.series.SetDeadline(context.Background(), orgAddr, eventAddr, time.Now().Add(-time.Minute))
	if !errors.Is(err, domain.ErrDeadlineNotFuture) {
		t.Fatalf("expected ErrDeadlineNotFuture, got %v", err)
	}
	d.assertMet(t)
}

func TestClose_Success(t *testing.T) {
	d := newServices(t)

	d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
		WithArgs(eventAddr).
		WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, futureDeadline()))
	d.mock.ExpectExec("UPDATE events SET state").
		WithArgs(eventAddr, models.EventStateClosed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	evt, err := d.series.Close(context.Background(), orgAddr, eventAddr)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if evt.State != models.EventStateClosed {
		t.Errorf("expected closed state, got %s", evt.State)
	}
	d.assertMet(t)
}

func TestClose_AlreadyClosed(t *testing.T) {
	d := newServices(t)

	d.mock.ExpectQuery("SELECT.*FROM events WHERE address.*FOR UPDATE").
		WithArgs(eventAddr).
		WillReturnRows(seriesRow(models.EventStateClosed, 200, 5, 100, futureDeadline()))

	_, err := d.series.Close(context.Background(), orgAddr, eventAddr)
	if !domain.IsState(err) {
		t.Fatalf("expected state error, got %v", err)
	}
	if !errors.Is(err, domain.ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
	d.assertMet(t)
}

// ----
// ValidateTicket
// ----

func TestValidateTicket(t *testing.T) {
	cases := []struct {
		name   string
		expect func(d *serviceDeps)
		want   bool
	}{
		{
			"valid",
			func(d *serviceDeps) {
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address").
					WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, futureDeadline()))
				d.mock.ExpectQuery("SELECT.*FROM tickets WHERE event_address").
					WithArgs(eventAddr, int64(3)).
					WillReturnRows(ticketRow(3, holderAddr))
			},
			true,
		},
		{
			"unknown series",
			func(d *serviceDeps) {
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address").
					WillReturnRows(sqlmock.NewRows(seriesCols))
			},
			false,
		},
		{
			"closed series",
			func(d *serviceDeps) {
				// Short-circuits before the ticket lookup.
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address").
					WillReturnRows(seriesRow(models.EventStateClosed, 200, 5, 100, futureDeadline()))
			},
			false,
		},
		{
			"deadline passed",
			func(d *serviceDeps) {
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address").
					WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, time.Now().Add(-time.Hour)))
			},
			false,
		},
		{
			"ticket never minted",
			func(d *serviceDeps) {
				d.mock.ExpectQuery("SELECT.*FROM events WHERE address").
					WillReturnRows(seriesRow(models.EventStateOpen, 200, 5, 100, futureDeadline()))
				d.mock.ExpectQuery("SELECT.*FROM tickets WHERE event_address").
					WillReturnRows(sqlmock.NewRows(ticketCols))
			},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newServices(t)
			tc.expect(d)

			valid, err := d.series.ValidateTicket(context.Background(), eventAddr, 3)
			if err != nil {
				t.Fatalf("ValidateTicket failed: %v", err)
			}
			if valid != tc.want {
				t.Errorf("expected %v, got %v", tc.want, valid)
			}
			d.assertMet(t)
		})
	}
}

package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/domain"
	"github.com/ticket-registry/ticket-registry/internal/payment"
	"github.com/ticket-registry/ticket-registry/internal/telemetry"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// SeriesService implements ticket series operations: minting, resale,
// parameter updates and closing. Mint and resale hold the series row lock for
// the whole operation, so supply accounting and holder changes are serialized
// per series.
type SeriesService struct {
	db              *sql.DB
	platformAddress string
	platform        *repositories.PlatformRepository
	organizations   *repositories.OrganizationRepository
	events          *repositories.EventRepository
	tickets         *repositories.TicketRepository
	transitions     *repositories.TransitionRepository
	ledger          payment.Ledger
}

// NewSeriesService creates a series service. platformAddress receives the fee
// leg of every sale.
func NewSeriesService(
	database *sql.DB,
	platformAddress string,
	platform *repositories.PlatformRepository,
	organizations *repositories.OrganizationRepository,
	events *repositories.EventRepository,
	tickets *repositories.TicketRepository,
	transitions *repositories.TransitionRepository,
	ledger payment.Ledger,
) *SeriesService {
	return &SeriesService{
		db:              database,
		platformAddress: address.Normalize(platformAddress),
		platform:        platform,
		organizations:   organizations,
		events:          events,
		tickets:         tickets,
		transitions:     transitions,
		ledger:          ledger,
	}
}

// splitFee divides a price into the platform fee and the remainder. The fee
// rounds down, so fee+remainder reconstructs the price exactly.
func splitFee(price int64, feeBps int) (fee, remainder int64) {
	fee = price * int64(feeBps) / 10000
	return fee, price - fee
}

// refund returns an already-moved payment leg with the platform's custodial
// authority. The operation is failing anyway, so a refund failure is logged
// rather than returned; it needs operator attention, not a different error.
func (s *SeriesService) refund(ctx context.Context, op, from, to string, amount int64) {
	if amount <= 0 {
		return
	}
	if err := s.ledger.Transfer(ctx, from, to, amount); err != nil {
		slog.Error("refund transfer failed",
			"op", op, "from", from, "to", to, "amount", amount, "error", err)
	}
}

// lockOpenSeries loads the series row with its lock and verifies it can sell:
// platform and owning organization unpaused, state open, deadline not passed.
func (s *SeriesService) lockOpenSeries(ctx context.Context, op, eventAddress string) (*models.Event, *models.PlatformConfig, error) {
	cfg, err := lockPlatformConfig(ctx, s.platform, op)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Paused {
		return nil, nil, domain.NewStateError(op, "", domain.ErrPlatformPaused)
	}

	evt, err := s.events.GetByAddressForUpdate(ctx, eventAddress)
	if err != nil {
		return nil, nil, err
	}
	if evt == nil {
		return nil, nil, domain.NewStateError(op, eventAddress, domain.ErrNotFound)
	}
	if !evt.IsOpen() {
		return nil, nil, domain.NewStateError(op, eventAddress, domain.ErrNotOpen)
	}

	org, err := s.organizations.GetByAddress(ctx, evt.OrganizationAddress)
	if err != nil {
		return nil, nil, err
	}
	if org == nil {
		return nil, nil, fmt.Errorf("organization %s missing for event %s", evt.OrganizationAddress, eventAddress)
	}
	if org.Paused {
		return nil, nil, domain.NewStateError(op, org.Address, domain.ErrOrganizationPaused)
	}

	if evt.DeadlinePassed(time.Now()) {
		return nil, nil, domain.NewStateError(op, eventAddress, domain.ErrDeadlinePassed)
	}

	return evt, cfg, nil
}

// Mint sells the next ticket of the series to the caller at the series price.
// The payment is split into the platform fee and the organization remainder;
// the fee moves first, and if the remainder leg then fails the fee is refunded
// and nothing is minted. Ticket ids are dense: each mint assigns
// current_supply and increments it under the row lock.
func (s *SeriesService) Mint(ctx context.Context, caller, eventAddress string) (*models.Ticket, error) {
	const op = "mint"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}
	eventAddress = address.Normalize(eventAddress)

	var (
		ticket  *models.Ticket
		orgAddr string
		fee     int64
	)
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		evt, cfg, err := s.lockOpenSeries(ctx, op, eventAddress)
		if err != nil {
			return err
		}
		orgAddr = evt.OrganizationAddress

		if evt.SoldOut() {
			return domain.NewStateError(op, eventAddress, domain.ErrSoldOut)
		}

		price := evt.TicketPrice
		token := cfg.PaymentTokenAddress
		var remainder int64
		fee, remainder = splitFee(price, cfg.FeeBps)

		allowance, err := s.ledger.Allowance(ctx, caller)
		if err != nil {
			return domain.NewPaymentError(op, token, price, err)
		}
		if allowance < price {
			return domain.NewPaymentError(op, token, price, domain.ErrInsufficientAllowance)
		}

		if fee > 0 {
			if err := s.ledger.TransferFrom(ctx, caller, s.platformAddress, fee); err != nil {
				return domain.NewPaymentError(op, token, fee, err)
			}
		}
		if remainder > 0 {
			if err := s.ledger.TransferFrom(ctx, caller, orgAddr, remainder); err != nil {
				s.refund(ctx, op, s.platformAddress, caller, fee)
				return domain.NewPaymentError(op, token, remainder, err)
			}
		}

		// The row lock pins the series state for the whole operation, but the
		// ledger calls take real time; re-check the deadline before assigning
		// the ticket and unwind the payment if it passed meanwhile.
		if evt.DeadlinePassed(time.Now()) {
			s.refund(ctx, op, orgAddr, caller, remainder)
			s.refund(ctx, op, s.platformAddress, caller, fee)
			return domain.NewStateError(op, eventAddress, domain.ErrDeadlinePassed)
		}

		ticketID := evt.CurrentSupply
		if err := s.events.UpdateSupply(ctx, eventAddress, ticketID+1); err != nil {
			return err
		}

		ticket = &models.Ticket{
			EventAddress:  eventAddress,
			TicketID:      ticketID,
			HolderAddress: caller,
		}
		if err := s.tickets.Insert(ctx, ticket); err != nil {
			return err
		}

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordTicketMinted,
			EntityAddress:       eventAddress,
			ActorAddress:        caller,
			OrganizationAddress: &orgAddr,
			EventAddress:        &eventAddress,
			TicketID:            &ticketID,
			Amount:              &price,
			FeeAmount:           &fee,
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.TicketsMintedTotal.WithLabelValues(orgAddr).Inc()
	if fee > 0 {
		telemetry.PlatformFeesCollectedTotal.Add(float64(fee))
	}
	return ticket, nil
}

// Resell sells a held ticket to a new holder at a caller-chosen price. The
// buyer pays: fee to the platform first, remainder to the seller, with the
// fee refunded if the remainder leg fails. The holder changes only after both
// payments succeed.
func (s *SeriesService) Resell(ctx context.Context, caller, eventAddress string, ticketID int64, to string, price int64) (*models.Ticket, error) {
	const op = "resell"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}
	to, err = checkAddress(op, "to", to)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, domain.NewValidationError(op, "price", price, domain.ErrNonPositivePrice)
	}
	eventAddress = address.Normalize(eventAddress)

	var (
		ticket  *models.Ticket
		orgAddr string
		fee     int64
	)
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		evt, cfg, err := s.lockOpenSeries(ctx, op, eventAddress)
		if err != nil {
			return err
		}
		orgAddr = evt.OrganizationAddress

		ticket, err = s.tickets.GetForUpdate(ctx, eventAddress, ticketID)
		if err != nil {
			return err
		}
		if ticket == nil {
			return domain.NewStateError(op, fmt.Sprintf("%s ticket %d", eventAddress, ticketID), domain.ErrNotFound)
		}
		if ticket.HolderAddress != caller {
			return domain.NewAuthorizationError(op, caller, domain.ErrNotTicketHolder)
		}

		token := cfg.PaymentTokenAddress
		var remainder int64
		fee, remainder = splitFee(price, cfg.FeeBps)

		allowance, err := s.ledger.Allowance(ctx, to)
		if err != nil {
			return domain.NewPaymentError(op, token, price, err)
		}
		if allowance < price {
			return domain.NewPaymentError(op, token, price, domain.ErrInsufficientAllowance)
		}

		if fee > 0 {
			if err := s.ledger.TransferFrom(ctx, to, s.platformAddress, fee); err != nil {
				return domain.NewPaymentError(op, token, fee, err)
			}
		}
		if remainder > 0 {
			if err := s.ledger.TransferFrom(ctx, to, caller, remainder); err != nil {
				s.refund(ctx, op, s.platformAddress, to, fee)
				return domain.NewPaymentError(op, token, remainder, err)
			}
		}

		if evt.DeadlinePassed(time.Now()) {
			s.refund(ctx, op, caller, to, remainder)
			s.refund(ctx, op, s.platformAddress, to, fee)
			return domain.NewStateError(op, eventAddress, domain.ErrDeadlinePassed)
		}

		if err := s.tickets.UpdateHolder(ctx, eventAddress, ticketID, to); err != nil {
			return err
		}
		ticket.HolderAddress = to

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordTicketResold,
			EntityAddress:       eventAddress,
			ActorAddress:        caller,
			OrganizationAddress: &orgAddr,
			EventAddress:        &eventAddress,
			TicketID:            &ticketID,
			Amount:              &price,
			FeeAmount:           &fee,
			CounterpartyAddress: &to,
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.TicketResalesTotal.WithLabelValues(orgAddr).Inc()
	if fee > 0 {
		telemetry.PlatformFeesCollectedTotal.Add(float64(fee))
	}
	return ticket, nil
}

// lockOwnedSeries loads the series with its lock and verifies it belongs to
// the given organization and is not closed. Used by the parameter updates and
// close, which run inside the organization service's transaction.
func (s *SeriesService) lockOwnedSeries(ctx context.Context, op, orgAddress, eventAddress string) (*models.Event, error) {
	evt, err := s.events.GetByAddressForUpdate(ctx, eventAddress)
	if err != nil {
		return nil, err
	}
	if evt == nil {
		return nil, domain.NewStateError(op, eventAddress, domain.ErrNotFound)
	}
	if evt.OrganizationAddress != orgAddress {
		return nil, domain.NewAuthorizationError(op, orgAddress, domain.ErrNotEventOrganization)
	}
	if evt.IsClosed() {
		return nil, domain.NewStateError(op, eventAddress, domain.ErrAlreadyClosed)
	}
	return evt, nil
}

// SetTicketPrice updates the series price. Organization-only; the returned
// series holds the values as read under the lock, before the update.
func (s *SeriesService) SetTicketPrice(ctx context.Context, orgAddress, eventAddress string, price int64) (*models.Event, error) {
	const op = "setTicketPrice"

	if price <= 0 {
		return nil, domain.NewValidationError(op, "price", price, domain.ErrNonPositivePrice)
	}

	evt, err := s.lockOwnedSeries(ctx, op, orgAddress, eventAddress)
	if err != nil {
		return nil, err
	}
	if err := s.events.SetPrice(ctx, eventAddress, price); err != nil {
		return nil, err
	}
	return evt, nil
}

// SetDeadline updates the sales deadline. Organization-only; the returned
// series holds the values as read under the lock, before the update.
func (s *SeriesService) SetDeadline(ctx context.Context, orgAddress, eventAddress string, deadline time.Time) (*models.Event, error) {
	const op = "setDeadline"

	if !deadline.After(time.Now()) {
		return nil, domain.NewValidationError(op, "deadline", deadline, domain.ErrDeadlineNotFuture)
	}

	evt, err := s.lockOwnedSeries(ctx, op, orgAddress, eventAddress)
	if err != nil {
		return nil, err
	}
	if err := s.events.SetDeadline(ctx, eventAddress, deadline); err != nil {
		return nil, err
	}
	return evt, nil
}

// Close moves the series to its terminal state. Organization-only and
// one-way: closing an already-closed series is a state error, not a no-op.
func (s *SeriesService) Close(ctx context.Context, orgAddress, eventAddress string) (*models.Event, error) {
	const op = "closeEvent"

	evt, err := s.lockOwnedSeries(ctx, op, orgAddress, eventAddress)
	if err != nil {
		return nil, err
	}
	if err := s.events.Close(ctx, eventAddress); err != nil {
		return nil, err
	}
	evt.State = models.EventStateClosed
	return evt, nil
}

// ValidateTicket reports whether a ticket currently admits: it was minted,
// its series is not closed, and the deadline has not passed. Missing series
// or ticket simply validate false.
func (s *SeriesService) ValidateTicket(ctx context.Context, eventAddress string, ticketID int64) (bool, error) {
	eventAddress = address.Normalize(eventAddress)

	evt, err := s.events.GetByAddress(ctx, eventAddress)
	if err != nil {
		return false, err
	}
	if evt == nil || evt.IsClosed() || evt.DeadlinePassed(time.Now()) {
		return false, nil
	}

	ticket, err := s.tickets.Get(ctx, eventAddress, ticketID)
	if err != nil {
		return false, err
	}
	return ticket != nil, nil
}

// === Reads ===

// GetEvent returns the series at the given address, or nil.
func (s *SeriesService) GetEvent(ctx context.Context, addr string) (*models.Event, error) {
	return s.events.GetByAddress(ctx, address.Normalize(addr))
}

// ListEvents returns a page of series, newest first.
func (s *SeriesService) ListEvents(ctx context.Context, limit, offset int) ([]*models.Event, error) {
	return s.events.List(ctx, limit, offset)
}

// ListEventsByOrganization returns all series belonging to an organization.
func (s *SeriesService) ListEventsByOrganization(ctx context.Context, orgAddress string) ([]*models.Event, error) {
	return s.events.ListByOrganization(ctx, address.Normalize(orgAddress))
}

// GetTicket returns one ticket of a series, or nil.
func (s *SeriesService) GetTicket(ctx context.Context, eventAddress string, ticketID int64) (*models.Ticket, error) {
	return s.tickets.Get(ctx, address.Normalize(eventAddress), ticketID)
}

// ListTickets returns a page of a series' tickets in id order.
func (s *SeriesService) ListTickets(ctx context.Context, eventAddress string, limit, offset int) ([]*models.Ticket, error) {
	return s.tickets.ListByEvent(ctx, address.Normalize(eventAddress), limit, offset)
}

// ListTicketsByHolder returns all tickets held by an address.
func (s *SeriesService) ListTicketsByHolder(ctx context.Context, holder string) ([]*models.Ticket, error) {
	return s.tickets.ListByHolder(ctx, address.Normalize(holder))
}

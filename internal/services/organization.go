package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/domain"
	"github.com/ticket-registry/ticket-registry/internal/factory"
	"github.com/ticket-registry/ticket-registry/internal/payment"
	"github.com/ticket-registry/ticket-registry/internal/telemetry"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// OrganizationService implements owner-gated organization operations: banner
// updates, event creation and closing, series parameter changes, and token
// withdrawals. Every operation resolves the caller's organization under lock
// and requires both pause gates (platform and organization) to be open.
type OrganizationService struct {
	db              *sql.DB
	platformAddress string
	registry        *RegistryService
	series          *SeriesService
	factory         *factory.SeriesFactory
	platform        *repositories.PlatformRepository
	organizations   *repositories.OrganizationRepository
	transitions     *repositories.TransitionRepository
	ledger          payment.Ledger
	withdrawals     keyedMutex
}

// NewOrganizationService creates an organization service wired to the
// registry and series services it coordinates with.
func NewOrganizationService(
	database *sql.DB,
	platformAddress string,
	registry *RegistryService,
	series *SeriesService,
	seriesFactory *factory.SeriesFactory,
	platform *repositories.PlatformRepository,
	organizations *repositories.OrganizationRepository,
	transitions *repositories.TransitionRepository,
	ledger payment.Ledger,
) *OrganizationService {
	return &OrganizationService{
		db:              database,
		platformAddress: address.Normalize(platformAddress),
		registry:        registry,
		series:          series,
		factory:         seriesFactory,
		platform:        platform,
		organizations:   organizations,
		transitions:     transitions,
		ledger:          ledger,
	}
}

// requireActiveOwner locks the platform configuration, resolves the caller's
// organization with its row lock, and verifies both pause gates are open.
func (s *OrganizationService) requireActiveOwner(ctx context.Context, op, caller string) (*models.Organization, *models.PlatformConfig, error) {
	cfg, err := lockPlatformConfig(ctx, s.platform, op)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Paused {
		return nil, nil, domain.NewStateError(op, "", domain.ErrPlatformPaused)
	}

	org, err := s.organizations.GetByOwnerForUpdate(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	if org == nil {
		return nil, nil, domain.NewAuthorizationError(op, caller, domain.ErrOwnsNoOrganization)
	}
	if org.Paused {
		return nil, nil, domain.NewStateError(op, org.Address, domain.ErrOrganizationPaused)
	}
	return org, cfg, nil
}

// UpdateBanner sets the organization's banner URI.
func (s *OrganizationService) UpdateBanner(ctx context.Context, caller, uri string) (*models.Organization, error) {
	const op = "updateBanner"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}
	if uri == "" {
		return nil, domain.NewValidationError(op, "uri", uri, domain.ErrEmptyURI)
	}

	var org *models.Organization
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		org, _, err = s.requireActiveOwner(ctx, op, caller)
		if err != nil {
			return err
		}

		if err := s.organizations.UpdateBanner(ctx, org.Address, uri); err != nil {
			return err
		}
		org.BannerURI = uri

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordOrganizationBannerUpdated,
			EntityAddress:       org.Address,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
			Metadata:            map[string]interface{}{"banner_uri": uri},
		})
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// CreateEvent creates a new ticket series for the caller's organization: the
// factory clones and initializes the series, the registry adds it to the
// active set, and one event.created record covers the whole creation. All of
// it commits or rolls back together.
func (s *OrganizationService) CreateEvent(ctx context.Context, caller, uri string, price int64, deadline time.Time, maxSupply int64) (*models.Event, error) {
	const op = "createEvent"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}

	var (
		evt     *models.Event
		orgAddr string
	)
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		org, _, err := s.requireActiveOwner(ctx, op, caller)
		if err != nil {
			return err
		}
		orgAddr = org.Address

		evt, err = s.factory.CreateEvent(ctx, org.Address, uri, price, deadline, maxSupply, s.platformAddress)
		if err != nil {
			return err
		}

		if err := s.registry.RegisterEvent(ctx, org.Address, evt.Address); err != nil {
			return err
		}

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordEventCreated,
			EntityAddress:       evt.Address,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
			EventAddress:        &evt.Address,
			Metadata: map[string]interface{}{
				"base_uri":     evt.BaseURI,
				"ticket_price": evt.TicketPrice,
				"max_supply":   evt.MaxSupply,
				"deadline":     evt.Deadline,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.EventsCreatedTotal.WithLabelValues(orgAddr).Inc()
	return evt, nil
}

// CloseEvent closes a series owned by the caller's organization and moves its
// registry membership from active to past in the same transaction.
func (s *OrganizationService) CloseEvent(ctx context.Context, caller, eventAddress string) (*models.Event, error) {
	const op = "closeEvent"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}
	eventAddress = address.Normalize(eventAddress)

	var (
		evt     *models.Event
		orgAddr string
	)
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		org, _, err := s.requireActiveOwner(ctx, op, caller)
		if err != nil {
			return err
		}
		orgAddr = org.Address

		evt, err = s.series.Close(ctx, org.Address, eventAddress)
		if err != nil {
			return err
		}

		if err := s.registry.MarkEventAsClosed(ctx, org.Address, eventAddress); err != nil {
			return err
		}

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordEventClosed,
			EntityAddress:       eventAddress,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
			EventAddress:        &eventAddress,
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.EventsClosedTotal.WithLabelValues(orgAddr).Inc()
	return evt, nil
}

// SetTicketPrice updates the price of a series owned by the caller's
// organization.
func (s *OrganizationService) SetTicketPrice(ctx context.Context, caller, eventAddress string, price int64) (*models.Event, error) {
	const op = "setTicketPrice"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}
	eventAddress = address.Normalize(eventAddress)

	var evt *models.Event
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		org, _, err := s.requireActiveOwner(ctx, op, caller)
		if err != nil {
			return err
		}

		evt, err = s.series.SetTicketPrice(ctx, org.Address, eventAddress, price)
		if err != nil {
			return err
		}
		oldPrice := evt.TicketPrice
		evt.TicketPrice = price

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordEventPriceUpdated,
			EntityAddress:       eventAddress,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
			EventAddress:        &eventAddress,
			Metadata: map[string]interface{}{
				"old_price": oldPrice,
				"new_price": price,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return evt, nil
}

// SetDeadline updates the sales deadline of a series owned by the caller's
// organization.
func (s *OrganizationService) SetDeadline(ctx context.Context, caller, eventAddress string, deadline time.Time) (*models.Event, error) {
	const op = "setDeadline"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}
	eventAddress = address.Normalize(eventAddress)

	var evt *models.Event
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		org, _, err := s.requireActiveOwner(ctx, op, caller)
		if err != nil {
			return err
		}

		evt, err = s.series.SetDeadline(ctx, org.Address, eventAddress, deadline)
		if err != nil {
			return err
		}
		oldDeadline := evt.Deadline
		evt.Deadline = &deadline

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordEventDeadlineUpdated,
			EntityAddress:       eventAddress,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
			EventAddress:        &eventAddress,
			Metadata: map[string]interface{}{
				"old_deadline": oldDeadline,
				"new_deadline": deadline,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return evt, nil
}

// WithdrawTokens transfers the organization's full token balance to its
// owner. Withdrawals are serialized per organization by a keyed mutex so the
// balance read and the transfer can never interleave with another withdrawal
// for the same organization. Only the active payment token can be withdrawn;
// the ledger provider is scoped to it.
func (s *OrganizationService) WithdrawTokens(ctx context.Context, caller, tokenAddress string) (int64, error) {
	const op = "withdrawTokens"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return 0, err
	}
	tokenAddress, err = checkAddress(op, "token", tokenAddress)
	if err != nil {
		return 0, err
	}

	// Resolve the organization before taking the mutex; the transaction below
	// re-resolves it under lock.
	org, err := s.organizations.GetByOwner(ctx, caller)
	if err != nil {
		return 0, err
	}
	if org == nil {
		return 0, domain.NewAuthorizationError(op, caller, domain.ErrOwnsNoOrganization)
	}

	unlock := s.withdrawals.Lock(org.Address)
	defer unlock()

	var amount int64
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		org, cfg, err := s.requireActiveOwner(ctx, op, caller)
		if err != nil {
			return err
		}
		if tokenAddress != address.Normalize(cfg.PaymentTokenAddress) {
			return domain.NewValidationError(op, "token", tokenAddress, domain.ErrTokenNotActive)
		}

		balance, err := s.ledger.BalanceOf(ctx, org.Address)
		if err != nil {
			return domain.NewPaymentError(op, tokenAddress, 0, err)
		}
		if balance == 0 {
			return domain.NewPaymentError(op, tokenAddress, 0, domain.ErrZeroBalance)
		}

		if err := s.ledger.Transfer(ctx, org.Address, caller, balance); err != nil {
			return domain.NewPaymentError(op, tokenAddress, balance, err)
		}
		amount = balance

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordOrganizationWithdrawal,
			EntityAddress:       org.Address,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
			Amount:              &amount,
			CounterpartyAddress: &caller,
			Metadata:            map[string]interface{}{"token": tokenAddress},
		})
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

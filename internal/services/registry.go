// Package services implements the platform's domain operations: the registry
// (organizations, organizer allowlist, platform administration), organization
// operations (banner, events, withdrawals) and ticket series operations (mint,
// resale, parameter updates). Every mutating operation runs in a single
// database transaction that locks the platform configuration row first,
// checks authorization and lifecycle state, applies the change, and writes
// exactly one transition record. A failed operation rolls the whole
// transaction back, record included.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/domain"
	"github.com/ticket-registry/ticket-registry/internal/payment"
	"github.com/ticket-registry/ticket-registry/internal/telemetry"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// RegistryService implements platform-level operations: organization
// creation and ownership transfer, the organizer allowlist, fee and payment
// token administration, and the global pause switch.
type RegistryService struct {
	db              *sql.DB
	platformAddress string
	platform        *repositories.PlatformRepository
	organizations   *repositories.OrganizationRepository
	events          *repositories.EventRepository
	registryEvents  *repositories.RegistryEventRepository
	tickets         *repositories.TicketRepository
	transitions     *repositories.TransitionRepository
	ledger          payment.Ledger
}

// NewRegistryService creates a registry service. platformAddress is the
// platform's own account: the parent for derived organization addresses, the
// immutable platform reference stamped on every organization, and the fee
// recipient.
func NewRegistryService(
	database *sql.DB,
	platformAddress string,
	platform *repositories.PlatformRepository,
	organizations *repositories.OrganizationRepository,
	events *repositories.EventRepository,
	registryEvents *repositories.RegistryEventRepository,
	tickets *repositories.TicketRepository,
	transitions *repositories.TransitionRepository,
	ledger payment.Ledger,
) *RegistryService {
	return &RegistryService{
		db:              database,
		platformAddress: address.Normalize(platformAddress),
		platform:        platform,
		organizations:   organizations,
		events:          events,
		registryEvents:  registryEvents,
		tickets:         tickets,
		transitions:     transitions,
		ledger:          ledger,
	}
}

// lockPlatformConfig loads the platform configuration row with its lock.
// Every mutating operation takes this lock first, which serializes the whole
// state machine on one row.
func lockPlatformConfig(ctx context.Context, platform *repositories.PlatformRepository, op string) (*models.PlatformConfig, error) {
	cfg, err := platform.GetConfigForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%s: platform config not seeded", op)
	}
	return cfg, nil
}

// checkAddress validates an address argument and returns its normalized form.
func checkAddress(op, field, addr string) (string, error) {
	if !address.IsValid(addr) {
		return "", domain.NewValidationError(op, field, addr, domain.ErrInvalidAddress)
	}
	if address.IsZero(addr) {
		return "", domain.NewValidationError(op, field, addr, domain.ErrZeroAddress)
	}
	return address.Normalize(addr), nil
}

// CreateOrganization creates an organization owned by the caller. The caller
// must be on the organizer allowlist and must not already own an organization;
// the owner and organization addresses map one to one.
func (s *RegistryService) CreateOrganization(ctx context.Context, caller string) (*models.Organization, error) {
	const op = "createOrganization"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}

	var org *models.Organization
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		cfg, err := lockPlatformConfig(ctx, s.platform, op)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return domain.NewStateError(op, "", domain.ErrPlatformPaused)
		}

		allowed, err := s.platform.IsAllowedOrganizer(ctx, caller)
		if err != nil {
			return err
		}
		if !allowed {
			return domain.NewAuthorizationError(op, caller, domain.ErrNotOrganizer)
		}

		existing, err := s.organizations.GetByOwner(ctx, caller)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.NewStateError(op, existing.Address, domain.ErrAlreadyOwnsOrganization)
		}

		salt, err := address.NewSalt()
		if err != nil {
			return fmt.Errorf("failed to derive organization address: %w", err)
		}

		org = &models.Organization{
			Address:         address.Derive(s.platformAddress, salt),
			OwnerAddress:    caller,
			PlatformAddress: s.platformAddress,
		}
		if err := s.organizations.Create(ctx, org); err != nil {
			if db.IsUniqueViolation(err) {
				return domain.NewStateError(op, caller, domain.ErrAlreadyOwnsOrganization)
			}
			return err
		}

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordOrganizationCreated,
			EntityAddress:       org.Address,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
		})
	})
	if err != nil {
		return nil, err
	}

	telemetry.OrganizationsCreatedTotal.Inc()
	return org, nil
}

// TransferOrganizationOwnership moves the caller's organization to newOwner.
// Both directions of the owner mapping live on the organization row, so the
// remap is a single UPDATE and can never leave the mapping half-moved.
func (s *RegistryService) TransferOrganizationOwnership(ctx context.Context, caller, newOwner string) (*models.Organization, error) {
	const op = "transferOrganizationOwnership"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return nil, err
	}
	newOwner, err = checkAddress(op, "newOwner", newOwner)
	if err != nil {
		return nil, err
	}

	var org *models.Organization
	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		if _, err := lockPlatformConfig(ctx, s.platform, op); err != nil {
			return err
		}

		org, err = s.organizations.GetByOwnerForUpdate(ctx, caller)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.NewStateError(op, caller, domain.ErrOwnsNoOrganization)
		}

		// Covers self-transfer too: the new owner already owns this one.
		other, err := s.organizations.GetByOwner(ctx, newOwner)
		if err != nil {
			return err
		}
		if other != nil {
			return domain.NewStateError(op, other.Address, domain.ErrNewOwnerHasOrganization)
		}

		if err := s.organizations.UpdateOwner(ctx, org.Address, newOwner); err != nil {
			if db.IsUniqueViolation(err) {
				return domain.NewStateError(op, newOwner, domain.ErrNewOwnerHasOrganization)
			}
			return err
		}
		org.OwnerAddress = newOwner

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          models.RecordOrganizationOwnershipTransferred,
			EntityAddress:       org.Address,
			ActorAddress:        caller,
			OrganizationAddress: &org.Address,
			CounterpartyAddress: &newOwner,
		})
	})
	if err != nil {
		return nil, err
	}

	return org, nil
}

// RegisterEvent adds a newly created series to the registry's active set. It
// is called by the organization service inside its own transaction; the
// caller emits the transition record for the whole creation.
func (s *RegistryService) RegisterEvent(ctx context.Context, orgAddress, eventAddress string) error {
	const op = "registerEvent"

	org, err := s.organizations.GetByAddress(ctx, orgAddress)
	if err != nil {
		return err
	}
	if org == nil {
		return domain.NewAuthorizationError(op, orgAddress, domain.ErrNotOrganization)
	}

	if err := s.registryEvents.Register(ctx, eventAddress, orgAddress); err != nil {
		if db.IsUniqueViolation(err) {
			return domain.NewStateError(op, eventAddress, domain.ErrEventAlreadyRegistered)
		}
		return err
	}
	return nil
}

// MarkEventAsClosed moves a series from the active set to past. Like
// RegisterEvent it runs inside the organization service's transaction and
// emits nothing itself.
func (s *RegistryService) MarkEventAsClosed(ctx context.Context, orgAddress, eventAddress string) error {
	const op = "markEventAsClosed"

	org, err := s.organizations.GetByAddress(ctx, orgAddress)
	if err != nil {
		return err
	}
	if org == nil {
		return domain.NewAuthorizationError(op, orgAddress, domain.ErrNotOrganization)
	}

	moved, err := s.registryEvents.MarkPast(ctx, eventAddress)
	if err != nil {
		return err
	}
	if !moved {
		return domain.NewStateError(op, eventAddress, domain.ErrEventNotActive)
	}
	return nil
}

// requireOwner verifies the caller is the platform owner. The configuration
// row is already locked by the caller.
func requireOwner(op, caller string, cfg *models.PlatformConfig) error {
	if caller != address.Normalize(cfg.OwnerAddress) {
		return domain.NewAuthorizationError(op, caller, domain.ErrNotPlatformOwner)
	}
	return nil
}

// SetOrganizerStatus adds or removes an address on the organizer allowlist.
// Platform owner only.
func (s *RegistryService) SetOrganizerStatus(ctx context.Context, caller, organizer string, allowed bool) error {
	const op = "setOrganizerStatus"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return err
	}
	organizer, err = checkAddress(op, "organizer", organizer)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(ctx context.Context) error {
		cfg, err := lockPlatformConfig(ctx, s.platform, op)
		if err != nil {
			return err
		}
		if err := requireOwner(op, caller, cfg); err != nil {
			return err
		}

		if err := s.platform.UpsertOrganizer(ctx, organizer, allowed); err != nil {
			return err
		}

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:    models.RecordOrganizerStatusChanged,
			EntityAddress: organizer,
			ActorAddress:  caller,
			Metadata:      map[string]interface{}{"allowed": allowed},
		})
	})
}

// SetOrganizationStatus pauses or unpauses an organization. Platform owner
// only; the pause flag on the organization row cannot be flipped by its own
// owner.
func (s *RegistryService) SetOrganizationStatus(ctx context.Context, caller, orgAddress string, paused bool) error {
	const op = "setOrganizationStatus"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return err
	}
	orgAddress, err = checkAddress(op, "organization", orgAddress)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(ctx context.Context) error {
		cfg, err := lockPlatformConfig(ctx, s.platform, op)
		if err != nil {
			return err
		}
		if err := requireOwner(op, caller, cfg); err != nil {
			return err
		}

		org, err := s.organizations.GetByAddressForUpdate(ctx, orgAddress)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.NewStateError(op, orgAddress, domain.ErrNotFound)
		}

		if err := s.organizations.SetPaused(ctx, orgAddress, paused); err != nil {
			return err
		}

		recordType := models.RecordOrganizationUnpaused
		if paused {
			recordType = models.RecordOrganizationPaused
		}
		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:          recordType,
			EntityAddress:       orgAddress,
			ActorAddress:        caller,
			OrganizationAddress: &orgAddress,
		})
	})
}

// UpdatePlatformFee sets the platform fee in basis points (0 to 10000).
// Platform owner only.
func (s *RegistryService) UpdatePlatformFee(ctx context.Context, caller string, feeBps int) error {
	const op = "updatePlatformFee"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return err
	}
	if feeBps < 0 || feeBps > models.MaxFeeBps {
		return domain.NewValidationError(op, "feeBps", feeBps, domain.ErrFeeOutOfRange)
	}

	return db.WithTx(ctx, s.db, func(ctx context.Context) error {
		cfg, err := lockPlatformConfig(ctx, s.platform, op)
		if err != nil {
			return err
		}
		if err := requireOwner(op, caller, cfg); err != nil {
			return err
		}

		if err := s.platform.UpdateFee(ctx, feeBps); err != nil {
			return err
		}

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:    models.RecordPlatformFeeUpdated,
			EntityAddress: s.platformAddress,
			ActorAddress:  caller,
			Metadata: map[string]interface{}{
				"old_fee_bps": cfg.FeeBps,
				"new_fee_bps": feeBps,
			},
		})
	})
}

// UpdatePaymentToken sets the active payment token and retargets the ledger
// provider to it. Platform owner only.
func (s *RegistryService) UpdatePaymentToken(ctx context.Context, caller, tokenAddress string) error {
	const op = "updatePaymentToken"

	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return err
	}
	tokenAddress, err = checkAddress(op, "token", tokenAddress)
	if err != nil {
		return err
	}

	err = db.WithTx(ctx, s.db, func(ctx context.Context) error {
		cfg, err := lockPlatformConfig(ctx, s.platform, op)
		if err != nil {
			return err
		}
		if err := requireOwner(op, caller, cfg); err != nil {
			return err
		}

		if err := s.platform.UpdatePaymentToken(ctx, tokenAddress); err != nil {
			return err
		}

		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:    models.RecordPlatformPaymentTokenUpdated,
			EntityAddress: s.platformAddress,
			ActorAddress:  caller,
			Metadata: map[string]interface{}{
				"old_token": cfg.PaymentTokenAddress,
				"new_token": tokenAddress,
			},
		})
	})
	if err != nil {
		return err
	}

	// Retarget only after the new token is committed.
	if scoped, ok := s.ledger.(payment.TokenScoped); ok {
		scoped.SetTokenAddress(tokenAddress)
		slog.Info("payment ledger retargeted", "token", tokenAddress)
	}
	return nil
}

// Pause freezes the platform: organization creation and all organization and
// series commerce stop until Unpause. Platform owner only.
func (s *RegistryService) Pause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, "pause", caller, true)
}

// Unpause lifts the global freeze. Platform owner only.
func (s *RegistryService) Unpause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, "unpause", caller, false)
}

func (s *RegistryService) setPaused(ctx context.Context, op, caller string, paused bool) error {
	caller, err := checkAddress(op, "caller", caller)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(ctx context.Context) error {
		cfg, err := lockPlatformConfig(ctx, s.platform, op)
		if err != nil {
			return err
		}
		if err := requireOwner(op, caller, cfg); err != nil {
			return err
		}

		if paused && cfg.Paused {
			return domain.NewStateError(op, "", domain.ErrPlatformPaused)
		}
		if !paused && !cfg.Paused {
			return domain.NewStateError(op, "", domain.ErrPlatformNotPaused)
		}

		if err := s.platform.SetPaused(ctx, paused); err != nil {
			return err
		}

		recordType := models.RecordPlatformUnpaused
		if paused {
			recordType = models.RecordPlatformPaused
		}
		return s.transitions.Insert(ctx, &models.Transition{
			RecordType:    recordType,
			EntityAddress: s.platformAddress,
			ActorAddress:  caller,
		})
	})
}

// === Reads ===

// GetConfig returns the platform configuration snapshot, or nil when the
// database has not been seeded.
func (s *RegistryService) GetConfig(ctx context.Context) (*models.PlatformConfig, error) {
	return s.platform.GetConfig(ctx)
}

// GetOrganization returns the organization at the given address, or nil.
func (s *RegistryService) GetOrganization(ctx context.Context, addr string) (*models.Organization, error) {
	return s.organizations.GetByAddress(ctx, address.Normalize(addr))
}

// GetOrganizationByOwner returns the organization owned by the address, or nil.
func (s *RegistryService) GetOrganizationByOwner(ctx context.Context, owner string) (*models.Organization, error) {
	return s.organizations.GetByOwner(ctx, address.Normalize(owner))
}

// ListOrganizations returns a page of organizations, newest first.
func (s *RegistryService) ListOrganizations(ctx context.Context, limit, offset int) ([]*models.Organization, error) {
	return s.organizations.List(ctx, limit, offset)
}

// ListOrganizers returns the full organizer allowlist, revoked entries
// included.
func (s *RegistryService) ListOrganizers(ctx context.Context) ([]*models.Organizer, error) {
	return s.platform.ListOrganizers(ctx)
}

// ListEvents returns registry memberships, optionally filtered by status
// (active or past; empty means all).
func (s *RegistryService) ListEvents(ctx context.Context, status string, limit, offset int) ([]*models.RegistryEvent, error) {
	return s.registryEvents.List(ctx, status, limit, offset)
}

// PlatformStats aggregates the headline platform numbers.
type PlatformStats struct {
	Organizations int   `json:"organizations"`
	TotalEvents   int   `json:"total_events"`
	OpenEvents    int   `json:"open_events"`
	ClosedEvents  int   `json:"closed_events"`
	TicketsMinted int64 `json:"tickets_minted"`
}

// Stats returns platform-wide aggregates for the admin dashboard.
func (s *RegistryService) Stats(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}
	var err error

	if stats.Organizations, err = s.organizations.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalEvents, err = s.events.Count(ctx); err != nil {
		return nil, err
	}
	if stats.OpenEvents, err = s.events.CountByState(ctx, models.EventStateOpen); err != nil {
		return nil, err
	}
	if stats.ClosedEvents, err = s.events.CountByState(ctx, models.EventStateClosed); err != nil {
		return nil, err
	}
	if stats.TicketsMinted, err = s.tickets.Count(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}

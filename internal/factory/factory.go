// Package factory implements the ticket series factory. Every event series is
// cloned from a single immutable template: the factory derives the clone's
// address from the template address plus a random salt, creates the bare
// series row, and runs the one-shot initialize that opens it for sales.
// Identity creation and initialization are deliberately two steps; the
// enclosing transaction makes them atomic for callers.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/domain"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// Template is the fixed master copy every series is cloned from. It is set at
// construction and never changes for the lifetime of the factory.
type Template struct {
	// Address is the parent reference for clone address derivation
	Address string

	// BaseURI is the metadata URI applied when an event supplies none
	BaseURI string
}

// SeriesFactory creates ticket series as initialized clones of its template
type SeriesFactory struct {
	events   *repositories.EventRepository
	template Template
}

// New creates a series factory bound to a template
func New(events *repositories.EventRepository, template Template) *SeriesFactory {
	return &SeriesFactory{
		events:   events,
		template: template,
	}
}

// Template returns the factory's immutable template
func (f *SeriesFactory) Template() Template {
	return f.template
}

// CreateEvent clones the template into a new series: it validates the
// parameters, derives a fresh address, inserts the row in state uninitialized,
// and immediately initializes it to open. Repository calls join the ambient
// transaction, so when the caller runs inside one the clone and its
// initialization commit or roll back together.
func (f *SeriesFactory) CreateEvent(ctx context.Context, orgAddress, uri string, price int64, deadline time.Time, maxSupply int64, platformAddress string) (*models.Event, error) {
	const op = "createEvent"

	if !address.IsValid(orgAddress) {
		return nil, domain.NewValidationError(op, "organizationAddress", orgAddress, domain.ErrInvalidAddress)
	}
	if address.IsZero(orgAddress) {
		return nil, domain.NewValidationError(op, "organizationAddress", orgAddress, domain.ErrZeroAddress)
	}
	if !address.IsValid(platformAddress) {
		return nil, domain.NewValidationError(op, "platformAddress", platformAddress, domain.ErrInvalidAddress)
	}
	if address.IsZero(platformAddress) {
		return nil, domain.NewValidationError(op, "platformAddress", platformAddress, domain.ErrZeroAddress)
	}
	if price <= 0 {
		return nil, domain.NewValidationError(op, "price", price, domain.ErrNonPositivePrice)
	}
	if maxSupply <= 0 {
		return nil, domain.NewValidationError(op, "maxSupply", maxSupply, domain.ErrNonPositiveSupply)
	}
	if !deadline.After(time.Now()) {
		return nil, domain.NewValidationError(op, "deadline", deadline, domain.ErrDeadlineNotFuture)
	}

	if uri == "" {
		uri = f.template.BaseURI
	}

	salt, err := address.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to derive series address: %w", err)
	}
	cloneAddr := address.Derive(f.template.Address, salt)

	if _, err := f.events.CreateUninitialized(ctx, cloneAddr); err != nil {
		return nil, fmt.Errorf("failed to create series row: %w", err)
	}

	initialized, err := f.events.Initialize(ctx, cloneAddr,
		address.Normalize(orgAddress), address.Normalize(platformAddress),
		uri, price, deadline, maxSupply)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize series: %w", err)
	}
	if !initialized {
		// The state guard matched zero rows: somebody initialized the clone
		// before us. With a freshly derived address this means a misuse of
		// the factory rather than a race.
		return nil, domain.NewStateError(op, cloneAddr, domain.ErrAlreadyInitialized)
	}

	event, err := f.events.GetByAddress(ctx, cloneAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to load initialized series: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("series %s missing after initialize", cloneAddr)
	}

	return event, nil
}

// Package domain defines the error taxonomy shared by the registry,
// organization, and ticket-series services. Every guarded operation fails with
// one of four typed errors (authorization, validation, state, payment); each
// carries the exact violated condition as a sentinel cause plus the offending
// value, and aborts the whole operation with no partial mutation.
package domain

import (
	"errors"
	"fmt"
)

var (
	// Authorization causes
	ErrNotPlatformOwner     = errors.New("caller is not the platform owner")
	ErrNotOrganizer         = errors.New("caller is not in the organizer allowlist")
	ErrNotOwner             = errors.New("caller is not the organization owner")
	ErrNotOrganization      = errors.New("caller is not a registered organization")
	ErrNotEventOrganization = errors.New("event does not belong to the organization")
	ErrNotTicketHolder      = errors.New("caller does not hold the ticket")
	ErrNotRegistry          = errors.New("caller is not the platform registry")

	// Validation causes
	ErrZeroAddress       = errors.New("zero address")
	ErrInvalidAddress    = errors.New("malformed address")
	ErrNonPositivePrice  = errors.New("price must be positive")
	ErrNonPositiveSupply = errors.New("max supply must be positive")
	ErrDeadlineNotFuture = errors.New("deadline must be in the future")
	ErrFeeOutOfRange     = errors.New("fee must be between 0 and 10000 basis points")
	ErrEmptyURI          = errors.New("URI must not be empty")
	ErrTokenNotActive    = errors.New("token is not the active payment token")

	// State causes
	ErrAlreadyInitialized     = errors.New("series already initialized")
	ErrNotOpen                = errors.New("series is not open")
	ErrAlreadyClosed          = errors.New("series already closed")
	ErrDeadlinePassed         = errors.New("series deadline has passed")
	ErrSoldOut                = errors.New("max supply reached")
	ErrAlreadyOwnsOrganization = errors.New("caller already owns an organization")
	ErrOwnsNoOrganization      = errors.New("caller owns no organization")
	ErrNewOwnerHasOrganization = errors.New("new owner already owns an organization")
	ErrEventNotActive          = errors.New("event is not in the active set")
	ErrEventAlreadyRegistered  = errors.New("event already registered")
	ErrPlatformPaused          = errors.New("platform is paused")
	ErrPlatformNotPaused       = errors.New("platform is not paused")
	ErrOrganizationPaused      = errors.New("organization is paused")
	ErrNotFound                = errors.New("not found")

	// Payment causes
	ErrInsufficientAllowance = errors.New("allowance is below the required amount")
	ErrTransferFailed        = errors.New("token transfer failed")
	ErrZeroBalance           = errors.New("no balance to withdraw")
)

// AuthorizationError reports a guarded operation invoked by the wrong caller.
type AuthorizationError struct {
	Op    string
	Actor string
	Err   error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: caller %s: %v", e.Op, e.Actor, e.Err)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// NewAuthorizationError creates an authorization error for op by actor.
func NewAuthorizationError(op, actor string, cause error) *AuthorizationError {
	return &AuthorizationError{Op: op, Actor: actor, Err: cause}
}

// ValidationError reports a malformed or out-of-range argument.
type ValidationError struct {
	Op    string
	Field string
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %v: %v", e.Op, e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for the named field and value.
func NewValidationError(op, field string, value any, cause error) *ValidationError {
	return &ValidationError{Op: op, Field: field, Value: value, Err: cause}
}

// StateError reports an operation attempted in the wrong lifecycle state.
type StateError struct {
	Op     string
	Entity string
	Err    error
}

func (e *StateError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// NewStateError creates a state error for the named entity.
func NewStateError(op, entity string, cause error) *StateError {
	return &StateError{Op: op, Entity: entity, Err: cause}
}

// PaymentError reports a failed or unfunded token movement.
type PaymentError struct {
	Op     string
	Token  string
	Amount int64
	Err    error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: token %s amount %d: %v", e.Op, e.Token, e.Amount, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a payment error for the given token and amount.
func NewPaymentError(op, token string, amount int64, cause error) *PaymentError {
	return &PaymentError{Op: op, Token: token, Amount: amount, Err: cause}
}

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsPayment reports whether err is a PaymentError.
func IsPayment(err error) bool {
	var e *PaymentError
	return errors.As(err, &e)
}

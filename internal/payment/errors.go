// errors.go defines sentinel error values shared across all ledger provider
// implementations, covering configuration, account, and transfer failures.
package payment

import "errors"

var (
	// Configuration errors
	ErrInvalidProviderType    = errors.New("invalid payment provider type")
	ErrMissingGatewayURL      = errors.New("missing payment gateway URL")
	ErrMissingPlatformAccount = errors.New("missing platform account address")
	ErrProviderNotSupported   = errors.New("payment provider not supported")

	// Account and token errors
	ErrUnknownAccount    = errors.New("account not known to the ledger")
	ErrNoTokenConfigured = errors.New("no payment token configured")

	// Transfer errors
	ErrInvalidAmount         = errors.New("transfer amount must not be negative")
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
)

// GatewayError represents an error response from the token gateway
type GatewayError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new gateway error
func NewGatewayError(statusCode int, message string, err error) *GatewayError {
	return &GatewayError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

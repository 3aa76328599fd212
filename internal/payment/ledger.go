// Package payment defines the token ledger interface the registry settles ticket
// payments and platform fees against, and the factory for instantiating ledger
// providers. Supported providers are the HTTP token gateway used in real deployments
// and an in-memory ledger for dev mode. New providers are added by implementing the
// Ledger interface and registering with the factory.
package payment

import (
	"context"
	"time"
)

// Ledger exposes the payment-token operations the registry needs. Amounts are
// denominated in the token's smallest unit. The spender for Allowance and
// TransferFrom is always the configured platform account.
type Ledger interface {
	// BalanceOf returns the token balance of an account
	BalanceOf(ctx context.Context, addr string) (int64, error)

	// Allowance returns how much the owner has approved the platform account to spend
	Allowance(ctx context.Context, owner string) (int64, error)

	// Transfer moves tokens between accounts on the registry's custodial authority
	Transfer(ctx context.Context, from, to string, amount int64) error

	// TransferFrom moves tokens using the allowance the from account granted the platform
	TransferFrom(ctx context.Context, from, to string, amount int64) error
}

// TokenScoped is implemented by providers whose calls are scoped to a single token
// contract. The platform service retargets the provider when the active payment
// token changes.
type TokenScoped interface {
	SetTokenAddress(addr string)
}

// ProviderType identifies a ledger provider implementation
type ProviderType string

const (
	// ProviderHTTP is the JSON token-gateway client
	ProviderHTTP ProviderType = "http"
	// ProviderMemory is the in-memory ledger for dev mode and tests
	ProviderMemory ProviderType = "mem"
)

// IsValid checks if the provider type is supported
func (t ProviderType) IsValid() bool {
	switch t {
	case ProviderHTTP, ProviderMemory:
		return true
	}
	return false
}

// ProviderConfig holds configuration for creating a ledger provider
type ProviderConfig struct {
	Type            ProviderType
	GatewayURL      string
	APIToken        string
	PlatformAccount string
	TokenAddress    string
	Timeout         time.Duration
}

// Validate checks if the configuration is complete
func (c *ProviderConfig) Validate() error {
	if !c.Type.IsValid() {
		return ErrInvalidProviderType
	}
	if c.PlatformAccount == "" {
		return ErrMissingPlatformAccount
	}
	if c.Type == ProviderHTTP && c.GatewayURL == "" {
		return ErrMissingGatewayURL
	}
	return nil
}

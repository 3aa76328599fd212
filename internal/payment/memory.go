// memory.go implements an in-memory Ledger used in dev mode and as a test double.
// Balances and allowances live in maps guarded by a mutex; the dev seeding
// endpoints mutate them directly.
package payment

import (
	"context"
	"sync"
)

// MemoryLedger keeps token balances in process memory
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[string]int64
	allowances map[string]int64
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[string]int64),
		allowances: make(map[string]int64),
	}
}

// BalanceOf returns the token balance of an account
func (m *MemoryLedger) BalanceOf(ctx context.Context, addr string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr], nil
}

// Allowance returns how much the owner has approved the platform account to spend
func (m *MemoryLedger) Allowance(ctx context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[owner], nil
}

// Transfer moves tokens between accounts
func (m *MemoryLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount < 0 {
		return ErrInvalidAmount
	}
	if m.balances[from] < amount {
		return ErrInsufficientBalance
	}

	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

// TransferFrom moves tokens using the allowance the from account granted the
// platform. The allowance is consumed before the balance moves.
func (m *MemoryLedger) TransferFrom(ctx context.Context, from, to string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount < 0 {
		return ErrInvalidAmount
	}
	if m.allowances[from] < amount {
		return ErrInsufficientAllowance
	}
	if m.balances[from] < amount {
		return ErrInsufficientBalance
	}

	m.allowances[from] -= amount
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

// Seed sets the balance of an account, replacing any previous value
func (m *MemoryLedger) Seed(addr string, amount int64) {
	m.mu.Lock()
	m.balances[addr] = amount
	m.mu.Unlock()
}

// Approve sets the allowance an owner grants the platform account
func (m *MemoryLedger) Approve(owner string, amount int64) {
	m.mu.Lock()
	m.allowances[owner] = amount
	m.mu.Unlock()
}

func init() {
	RegisterProvider(ProviderMemory, func(_ *ProviderConfig) (Ledger, error) {
		return NewMemoryLedger(), nil
	})
}

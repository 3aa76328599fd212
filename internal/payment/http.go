// http.go implements the Ledger interface against a JSON token-gateway API. Calls
// are scoped to the active payment token, authenticated with a bearer token, and
// recorded in the ledger call metrics.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ticket-registry/ticket-registry/internal/telemetry"
)

const defaultGatewayTimeout = 10 * time.Second

// HTTPLedger talks to a token gateway over HTTP
type HTTPLedger struct {
	gatewayURL      string
	apiToken        string
	platformAccount string
	client          *http.Client

	mu        sync.RWMutex
	tokenAddr string
}

// NewHTTPLedger creates a gateway-backed ledger
func NewHTTPLedger(config *ProviderConfig) (*HTTPLedger, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &HTTPLedger{
		gatewayURL:      strings.TrimRight(config.GatewayURL, "/"),
		apiToken:        config.APIToken,
		platformAccount: config.PlatformAccount,
		client:          &http.Client{Timeout: timeout},
		tokenAddr:       config.TokenAddress,
	}, nil
}

// SetTokenAddress retargets the ledger at a different token contract
func (l *HTTPLedger) SetTokenAddress(addr string) {
	l.mu.Lock()
	l.tokenAddr = addr
	l.mu.Unlock()
}

func (l *HTTPLedger) token() (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.tokenAddr == "" {
		return "", ErrNoTokenConfigured
	}
	return l.tokenAddr, nil
}

// BalanceOf returns the token balance of an account
func (l *HTTPLedger) BalanceOf(ctx context.Context, addr string) (balance int64, err error) {
	start := time.Now()
	defer func() { observeLedgerCall("balance_of", start, err) }()

	token, err := l.token()
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/tokens/%s/accounts/%s/balance", l.gatewayURL, token, addr)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("gateway: create balance request: %w", err)
	}
	l.setAuthHeaders(req)

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, NewGatewayError(0, "failed to fetch balance", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, l.decodeError(resp, "failed to fetch balance")
	}

	var result struct {
		Balance int64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("gateway: decode balance response: %w", err)
	}

	return result.Balance, nil
}

// Allowance returns how much the owner has approved the platform account to spend
func (l *HTTPLedger) Allowance(ctx context.Context, owner string) (allowance int64, err error) {
	start := time.Now()
	defer func() { observeLedgerCall("allowance", start, err) }()

	token, err := l.token()
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/tokens/%s/accounts/%s/allowances/%s",
		l.gatewayURL, token, owner, l.platformAccount)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("gateway: create allowance request: %w", err)
	}
	l.setAuthHeaders(req)

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, NewGatewayError(0, "failed to fetch allowance", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, l.decodeError(resp, "failed to fetch allowance")
	}

	var result struct {
		Allowance int64 `json:"allowance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("gateway: decode allowance response: %w", err)
	}

	return result.Allowance, nil
}

// Transfer moves tokens between accounts on the registry's custodial authority
func (l *HTTPLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	return l.submitTransfer(ctx, "transfer", transferRequest{
		From:   from,
		To:     to,
		Amount: amount,
	})
}

// TransferFrom moves tokens using the allowance the from account granted the platform
func (l *HTTPLedger) TransferFrom(ctx context.Context, from, to string, amount int64) error {
	return l.submitTransfer(ctx, "transfer_from", transferRequest{
		From:    from,
		To:      to,
		Amount:  amount,
		Spender: l.platformAccount,
	})
}

// transferRequest is the gateway transfer payload. Spender is set only for
// allowance-backed transfers.
type transferRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  int64  `json:"amount"`
	Spender string `json:"spender,omitempty"`
}

func (l *HTTPLedger) submitTransfer(ctx context.Context, op string, payload transferRequest) (err error) {
	start := time.Now()
	defer func() { observeLedgerCall(op, start, err) }()

	token, err := l.token()
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: marshal transfer request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/tokens/%s/transfers", l.gatewayURL, token)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	l.setAuthHeaders(req)

	resp, err := l.client.Do(req)
	if err != nil {
		return NewGatewayError(0, "failed to execute transfer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return l.decodeError(resp, "transfer rejected by gateway")
	}

	return nil
}

func (l *HTTPLedger) setAuthHeaders(req *http.Request) {
	if l.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiToken)
	}
	req.Header.Set("Accept", "application/json")
}

// decodeError maps a gateway error response onto the package sentinel errors where
// the error code is recognized, and wraps everything else in a GatewayError.
func (l *HTTPLedger) decodeError(resp *http.Response, message string) error {
	body, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	switch payload.Error {
	case "insufficient_balance":
		return ErrInsufficientBalance
	case "insufficient_allowance":
		return ErrInsufficientAllowance
	case "unknown_account":
		return ErrUnknownAccount
	case "invalid_amount":
		return ErrInvalidAmount
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrUnknownAccount
	}

	return NewGatewayError(resp.StatusCode, message, fmt.Errorf("%s", body))
}

func observeLedgerCall(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.LedgerCallsTotal.WithLabelValues(op, outcome).Inc()
	telemetry.LedgerCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func init() {
	RegisterProvider(ProviderHTTP, func(config *ProviderConfig) (Ledger, error) {
		return NewHTTPLedger(config)
	})
}

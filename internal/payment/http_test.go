package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestLedger starts an httptest server and returns a gateway ledger pointing at it.
func newTestLedger(t *testing.T, handler http.HandlerFunc) *HTTPLedger {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	l, err := NewHTTPLedger(&ProviderConfig{
		Type:            ProviderHTTP,
		GatewayURL:      srv.URL,
		APIToken:        "gw-token",
		PlatformAccount: "0xplatform",
		TokenAddress:    "0xtoken",
	})
	if err != nil {
		t.Fatalf("NewHTTPLedger: %v", err)
	}
	return l
}

// ---------------------------------------------------------------------------
// Constructor
// ---------------------------------------------------------------------------

func TestNewHTTPLedger_TrimsTrailingSlash(t *testing.T) {
	l, err := NewHTTPLedger(&ProviderConfig{
		GatewayURL:      "https://gateway.example.com/",
		PlatformAccount: "0xplatform",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.gatewayURL != "https://gateway.example.com" {
		t.Errorf("gatewayURL = %q, want trailing slash removed", l.gatewayURL)
	}
}

func TestNewHTTPLedger_DefaultTimeout(t *testing.T) {
	l, _ := NewHTTPLedger(&ProviderConfig{
		GatewayURL:      "https://gateway.example.com",
		PlatformAccount: "0xplatform",
	})
	if l.client.Timeout != defaultGatewayTimeout {
		t.Errorf("client.Timeout = %v, want %v", l.client.Timeout, defaultGatewayTimeout)
	}
}

// ---------------------------------------------------------------------------
// BalanceOf
// ---------------------------------------------------------------------------

func TestHTTPLedger_BalanceOf_Success(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/v1/tokens/0xtoken/accounts/0xholder/balance" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gw-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		json.NewEncoder(w).Encode(map[string]int64{"balance": 750})
	})

	balance, err := l.BalanceOf(context.Background(), "0xholder")
	if err != nil {
		t.Fatalf("BalanceOf error: %v", err)
	}
	if balance != 750 {
		t.Errorf("balance = %d, want 750", balance)
	}
}

func TestHTTPLedger_BalanceOf_UnknownAccount(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := l.BalanceOf(context.Background(), "0xnobody")
	if !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("error = %v, want ErrUnknownAccount", err)
	}
}

func TestHTTPLedger_BalanceOf_NoTokenConfigured(t *testing.T) {
	l, _ := NewHTTPLedger(&ProviderConfig{
		GatewayURL:      "https://gateway.example.com",
		PlatformAccount: "0xplatform",
	})

	_, err := l.BalanceOf(context.Background(), "0xholder")
	if !errors.Is(err, ErrNoTokenConfigured) {
		t.Errorf("error = %v, want ErrNoTokenConfigured", err)
	}
}

// ---------------------------------------------------------------------------
// Allowance
// ---------------------------------------------------------------------------

func TestHTTPLedger_Allowance_Success(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tokens/0xtoken/accounts/0xowner/allowances/0xplatform" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]int64{"allowance": 300})
	})

	allowance, err := l.Allowance(context.Background(), "0xowner")
	if err != nil {
		t.Fatalf("Allowance error: %v", err)
	}
	if allowance != 300 {
		t.Errorf("allowance = %d, want 300", allowance)
	}
}

// ---------------------------------------------------------------------------
// Transfer / TransferFrom
// ---------------------------------------------------------------------------

func TestHTTPLedger_Transfer_Success(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/v1/tokens/0xtoken/transfers" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.From != "0xalice" || req.To != "0xbob" || req.Amount != 125 {
			t.Errorf("unexpected payload: %+v", req)
		}
		if req.Spender != "" {
			t.Errorf("Spender = %q, want empty for custodial transfer", req.Spender)
		}
		w.WriteHeader(http.StatusCreated)
	})

	if err := l.Transfer(context.Background(), "0xalice", "0xbob", 125); err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
}

func TestHTTPLedger_TransferFrom_SendsSpender(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Spender != "0xplatform" {
			t.Errorf("Spender = %q, want 0xplatform", req.Spender)
		}
		w.WriteHeader(http.StatusCreated)
	})

	if err := l.TransferFrom(context.Background(), "0xbuyer", "0xorg", 200); err != nil {
		t.Fatalf("TransferFrom error: %v", err)
	}
}

func TestHTTPLedger_Transfer_InsufficientBalance(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]string{"error": "insufficient_balance"})
	})

	err := l.Transfer(context.Background(), "0xalice", "0xbob", 9999)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("error = %v, want ErrInsufficientBalance", err)
	}
}

func TestHTTPLedger_TransferFrom_InsufficientAllowance(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]string{"error": "insufficient_allowance"})
	})

	err := l.TransferFrom(context.Background(), "0xbuyer", "0xorg", 500)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("error = %v, want ErrInsufficientAllowance", err)
	}
}

func TestHTTPLedger_Transfer_GatewayError(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	err := l.Transfer(context.Background(), "0xalice", "0xbob", 10)
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %v, want *GatewayError", err)
	}
	if gwErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", gwErr.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Token retargeting
// ---------------------------------------------------------------------------

func TestHTTPLedger_SetTokenAddress(t *testing.T) {
	l := newTestLedger(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tokens/0xnewtoken/accounts/0xholder/balance" {
			t.Errorf("unexpected path after retarget: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]int64{"balance": 0})
	})

	l.SetTokenAddress("0xnewtoken")
	if _, err := l.BalanceOf(context.Background(), "0xholder"); err != nil {
		t.Fatalf("BalanceOf error: %v", err)
	}
}

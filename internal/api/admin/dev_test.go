// dev_test.go exercises the development-only endpoints: the dev mode gate,
// in-memory ledger seeding and inspection, and account impersonation.
package admin

import (
	"context"
	"net/http"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/payment"
)

type devEnv struct {
	mock   sqlmock.Sqlmock
	router *gin.Engine
	ledger *payment.MemoryLedger
	scopes []string
}

// newDevEnv wires the dev handlers behind the dev mode gate. ledger may be
// nil to simulate a real payment provider being active.
func newDevEnv(t *testing.T, devMode bool, ledger *payment.MemoryLedger) *devEnv {
	t.Helper()
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{}
	cfg.Server.DevMode = devMode
	cfg.Payment.Provider = "mem"

	h := NewDevHandlers(cfg, database, ledger)

	env := &devEnv{mock: mock, ledger: ledger, scopes: []string{"platform:admin"}}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if env.scopes != nil {
			c.Set("scopes", env.scopes)
		}
	})

	dev := r.Group("/api/v1/dev", DevModeMiddleware(cfg))
	dev.GET("/status", h.DevStatusHandler())
	dev.POST("/ledger/seed", h.SeedBalanceHandler())
	dev.POST("/ledger/approve", h.ApproveAllowanceHandler())
	dev.GET("/ledger/accounts/:address", h.GetLedgerAccountHandler())
	dev.POST("/impersonate/:account_id", h.ImpersonateAccountHandler())

	env.router = r
	return env
}

func TestDevEndpoints_DisabledInProduction(t *testing.T) {
	env := newDevEnv(t, false, payment.NewMemoryLedger())

	paths := []struct{ method, path string }{
		{"GET", "/api/v1/dev/status"},
		{"POST", "/api/v1/dev/ledger/seed"},
		{"POST", "/api/v1/dev/impersonate/acc-1"},
	}
	for _, p := range paths {
		w := doReq(env.router, p.method, p.path, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", p.method, p.path, w.Code)
		}
	}
	expectationsMet(t, env.mock)
}

func TestDevStatus(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())

	w := doReq(env.router, "GET", "/api/v1/dev/status", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["dev_mode"] != true || body["payment_provider"] != "mem" {
		t.Errorf("body = %v", body)
	}
	expectationsMet(t, env.mock)
}

func TestSeedBalance(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())

	w := doReq(env.router, "POST", "/api/v1/dev/ledger/seed", gin.H{
		"address": otherAddr,
		"amount":  5000,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["balance"] != float64(5000) || body["address"] != otherAddr {
		t.Errorf("body = %v", body)
	}

	balance, err := env.ledger.BalanceOf(context.Background(), otherAddr)
	if err != nil || balance != 5000 {
		t.Errorf("ledger balance = %d, %v", balance, err)
	}
	expectationsMet(t, env.mock)
}

// An explicit zero clears a balance; the pointer binding keeps it from being
// rejected as a missing field.
func TestSeedBalance_ExplicitZero(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())
	env.ledger.Seed(otherAddr, 5000)

	w := doReq(env.router, "POST", "/api/v1/dev/ledger/seed", gin.H{
		"address": otherAddr,
		"amount":  0,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	balance, _ := env.ledger.BalanceOf(context.Background(), otherAddr)
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
	expectationsMet(t, env.mock)
}

func TestSeedBalance_Errors(t *testing.T) {
	cases := []struct {
		name    string
		body    gin.H
		wantMsg string
	}{
		{
			name:    "missing amount",
			body:    gin.H{"address": otherAddr},
			wantMsg: "Invalid request",
		},
		{
			name:    "invalid address",
			body:    gin.H{"address": "banana", "amount": 100},
			wantMsg: "Invalid actor address",
		},
		{
			name:    "negative amount",
			body:    gin.H{"address": otherAddr, "amount": -1},
			wantMsg: "amount must be non-negative",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newDevEnv(t, true, payment.NewMemoryLedger())

			w := doReq(env.router, "POST", "/api/v1/dev/ledger/seed", tc.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			if msg := decode(t, w)["error"].(string); !strings.Contains(msg, tc.wantMsg) {
				t.Errorf("error = %q, want %q", msg, tc.wantMsg)
			}
			expectationsMet(t, env.mock)
		})
	}
}

// Seeding refuses to run when a real payment gateway is configured.
func TestSeedBalance_RealProvider(t *testing.T) {
	env := newDevEnv(t, true, nil)

	w := doReq(env.router, "POST", "/api/v1/dev/ledger/seed", gin.H{
		"address": otherAddr,
		"amount":  100,
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w)["error"].(string); !strings.Contains(msg, "payment.provider=mem") {
		t.Errorf("error = %q", msg)
	}
	expectationsMet(t, env.mock)
}

func TestApproveAllowance(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())

	w := doReq(env.router, "POST", "/api/v1/dev/ledger/approve", gin.H{
		"address": otherAddr,
		"amount":  2500,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["allowance"] != float64(2500) {
		t.Errorf("body = %v", body)
	}

	allowance, err := env.ledger.Allowance(context.Background(), otherAddr)
	if err != nil || allowance != 2500 {
		t.Errorf("ledger allowance = %d, %v", allowance, err)
	}
	expectationsMet(t, env.mock)
}

func TestGetLedgerAccount(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())
	env.ledger.Seed(otherAddr, 1000)
	env.ledger.Approve(otherAddr, 400)

	w := doReq(env.router, "GET", "/api/v1/dev/ledger/accounts/"+otherAddr, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["balance"] != float64(1000) || body["allowance"] != float64(400) {
		t.Errorf("body = %v", body)
	}
	expectationsMet(t, env.mock)
}

func TestImpersonateAccount(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("acc-2").
		WillReturnRows(accountRow("acc-2", otherAddr, "user@example.com", true))

	w := doReq(env.router, "POST", "/api/v1/dev/impersonate/acc-2", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["token"] == "" || body["token"] == nil {
		t.Error("no token in response")
	}
	if body["message"] != "You are now impersonating user@example.com" {
		t.Errorf("message = %v", body["message"])
	}
	expectationsMet(t, env.mock)
}

func TestImpersonateAccount_RequiresAdmin(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())
	env.scopes = []string{"events:write"}

	w := doReq(env.router, "POST", "/api/v1/dev/impersonate/acc-2", nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w)["error"]; msg != "Only administrators can impersonate accounts" {
		t.Errorf("error = %v", msg)
	}
	expectationsMet(t, env.mock)
}

func TestImpersonateAccount_NotAuthenticated(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())
	env.scopes = nil

	w := doReq(env.router, "POST", "/api/v1/dev/impersonate/acc-2", nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestImpersonateAccount_NotFound(t *testing.T) {
	env := newDevEnv(t, true, payment.NewMemoryLedger())

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountCols))

	w := doReq(env.router, "POST", "/api/v1/dev/impersonate/ghost", nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

// accounts_test.go exercises the account management handlers: listing,
// creation with email and address uniqueness, updates, deletion and the
// authenticated self-lookup.
package admin

import (
	"database/sql/driver"
	"net/http"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

var accountCols = []string{
	"id", "address", "email", "password_hash", "display_name", "scopes",
	"active", "created_at", "updated_at",
}

func accountRow(id, addr, email string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(accountCols).AddRow(
		id, addr, email, "$2a$12$unused", "Test Account",
		[]byte(`["events:read"]`), active, time.Now(), time.Now(),
	)
}

type accountEnv struct {
	mock      sqlmock.Sqlmock
	router    *gin.Engine
	accountID string // set on the context by the stand-in auth middleware
}

func newAccountEnv(t *testing.T) *accountEnv {
	t.Helper()
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	h := NewAccountHandlers(database)

	env := &accountEnv{mock: mock, accountID: "acc-1"}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if env.accountID != "" {
			c.Set("account_id", env.accountID)
		}
	})

	api := r.Group("/api/v1")
	api.GET("/admin/accounts", h.ListAccountsHandler())
	api.POST("/admin/accounts", h.CreateAccountHandler())
	api.GET("/admin/accounts/:id", h.GetAccountHandler())
	api.PUT("/admin/accounts/:id", h.UpdateAccountHandler())
	api.DELETE("/admin/accounts/:id", h.DeleteAccountHandler())
	api.GET("/auth/me", h.GetCurrentAccountHandler())

	env.router = r
	return env
}

func TestListAccounts(t *testing.T) {
	env := newAccountEnv(t)

	rows := sqlmock.NewRows(accountCols).
		AddRow("acc-1", adminAddr, "admin@example.com", "$2a$12$unused", "Admin",
			[]byte(`["platform:admin"]`), true, time.Now(), time.Now()).
		AddRow("acc-2", otherAddr, "user@example.com", "$2a$12$unused", "User",
			[]byte(`["events:read"]`), true, time.Now(), time.Now())
	env.mock.ExpectQuery("FROM accounts").
		WithArgs(20, 0).
		WillReturnRows(rows)
	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	w := doReq(env.router, "GET", "/api/v1/admin/accounts", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	accounts := body["accounts"].([]any)
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	first := accounts[0].(map[string]any)
	if first["email"] != "admin@example.com" {
		t.Errorf("first account = %v", first)
	}
	if _, leaked := first["password_hash"]; leaked {
		t.Error("password hash leaked into the response")
	}
	if body["pagination"].(map[string]any)["total"] != float64(2) {
		t.Errorf("pagination = %v", body["pagination"])
	}
	expectationsMet(t, env.mock)
}

func TestListAccounts_ClampsPerPage(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	w := doReq(env.router, "GET", "/api/v1/admin/accounts?per_page=500", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestGetAccount(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("acc-2").
		WillReturnRows(accountRow("acc-2", otherAddr, "user@example.com", true))

	w := doReq(env.router, "GET", "/api/v1/admin/accounts/acc-2", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	account := decode(t, w)["account"].(map[string]any)
	if account["email"] != "user@example.com" || account["address"] != otherAddr {
		t.Errorf("account = %v", account)
	}
	expectationsMet(t, env.mock)
}

func TestGetAccount_NotFound(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountCols))

	w := doReq(env.router, "GET", "/api/v1/admin/accounts/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestCreateAccount(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE email").
		WithArgs("new@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectQuery("FROM accounts WHERE address").
		WithArgs(otherAddr).
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), otherAddr, "new@example.com", sqlmock.AnyArg(),
			"New User", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doReq(env.router, "POST", "/api/v1/admin/accounts", gin.H{
		"address":      otherAddr,
		"email":        "new@example.com",
		"display_name": "New User",
		"password":     "hunter2hunter2",
		"scopes":       []string{"events:read", "events:write"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	account := decode(t, w)["account"].(map[string]any)
	if account["address"] != otherAddr || account["active"] != true {
		t.Errorf("account = %v", account)
	}
	expectationsMet(t, env.mock)
}

func TestCreateAccount_NormalizesAddress(t *testing.T) {
	env := newAccountEnv(t)

	// Mixed-case input is stored lowercased; the email check still runs first
	lowered := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	env.mock.ExpectQuery("FROM accounts WHERE email").
		WithArgs("caps@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectQuery("FROM accounts WHERE address").
		WithArgs(lowered).
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), lowered, "caps@example.com", sqlmock.AnyArg(),
			"Caps", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doReq(env.router, "POST", "/api/v1/admin/accounts", gin.H{
		"address":      "0xAbCdEfAbCdEfAbCdEfAbCdEfAbCdEfAbCdEfAbCd",
		"email":        "caps@example.com",
		"display_name": "Caps",
		"password":     "hunter2hunter2",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["account"].(map[string]any)["address"]; got != lowered {
		t.Errorf("address = %v, want %s", got, lowered)
	}
	expectationsMet(t, env.mock)
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE email").
		WithArgs("taken@example.com").
		WillReturnRows(accountRow("acc-9", organizerAddr, "taken@example.com", true))

	w := doReq(env.router, "POST", "/api/v1/admin/accounts", gin.H{
		"address":      otherAddr,
		"email":        "taken@example.com",
		"display_name": "Dup",
		"password":     "hunter2hunter2",
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w)["error"].(string); !strings.Contains(msg, "email") {
		t.Errorf("error = %q", msg)
	}
	expectationsMet(t, env.mock)
}

func TestCreateAccount_DuplicateAddress(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE email").
		WithArgs("fresh@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectQuery("FROM accounts WHERE address").
		WithArgs(otherAddr).
		WillReturnRows(accountRow("acc-9", otherAddr, "taken@example.com", true))

	w := doReq(env.router, "POST", "/api/v1/admin/accounts", gin.H{
		"address":      otherAddr,
		"email":        "fresh@example.com",
		"display_name": "Dup",
		"password":     "hunter2hunter2",
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w)["error"].(string); !strings.Contains(msg, "address") {
		t.Errorf("error = %q", msg)
	}
	expectationsMet(t, env.mock)
}

func TestCreateAccount_InvalidInput(t *testing.T) {
	cases := map[string]gin.H{
		"bad address": {
			"address": "not-an-address", "email": "a@example.com",
			"display_name": "A", "password": "hunter2hunter2",
		},
		"zero address": {
			"address": "0x0000000000000000000000000000000000000000", "email": "a@example.com",
			"display_name": "A", "password": "hunter2hunter2",
		},
		"short password": {
			"address": otherAddr, "email": "a@example.com",
			"display_name": "A", "password": "short",
		},
		"unknown scope": {
			"address": otherAddr, "email": "a@example.com",
			"display_name": "A", "password": "hunter2hunter2",
			"scopes": []string{"galactic:overlord"},
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			env := newAccountEnv(t)

			w := doReq(env.router, "POST", "/api/v1/admin/accounts", body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			expectationsMet(t, env.mock)
		})
	}
}

func TestUpdateAccount(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("acc-2").
		WillReturnRows(accountRow("acc-2", otherAddr, "user@example.com", true))
	env.mock.ExpectExec("UPDATE accounts").
		WithArgs("acc-2", "Renamed", sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doReq(env.router, "PUT", "/api/v1/admin/accounts/acc-2", gin.H{
		"display_name": "Renamed",
		"scopes":       []string{"events:read", "events:write"},
		"active":       false,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	account := decode(t, w)["account"].(map[string]any)
	if account["display_name"] != "Renamed" || account["active"] != false {
		t.Errorf("account = %v", account)
	}
	expectationsMet(t, env.mock)
}

func TestUpdateAccount_PasswordChange(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("acc-2").
		WillReturnRows(accountRow("acc-2", otherAddr, "user@example.com", true))
	env.mock.ExpectExec("UPDATE accounts").
		WithArgs("acc-2", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec("UPDATE accounts SET password_hash").
		WithArgs("acc-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doReq(env.router, "PUT", "/api/v1/admin/accounts/acc-2", gin.H{
		"password": "new-password-123",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestUpdateAccount_ShortPassword(t *testing.T) {
	env := newAccountEnv(t)

	w := doReq(env.router, "PUT", "/api/v1/admin/accounts/acc-2", gin.H{
		"password": "short",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestUpdateAccount_NotFound(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountCols))

	w := doReq(env.router, "PUT", "/api/v1/admin/accounts/missing", gin.H{
		"display_name": "Ghost",
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestDeleteAccount(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("acc-2").
		WillReturnRows(accountRow("acc-2", otherAddr, "user@example.com", true))
	env.mock.ExpectExec("DELETE FROM accounts").
		WithArgs("acc-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doReq(env.router, "DELETE", "/api/v1/admin/accounts/acc-2", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountCols))

	w := doReq(env.router, "DELETE", "/api/v1/admin/accounts/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

func TestGetCurrentAccount(t *testing.T) {
	env := newAccountEnv(t)

	env.mock.ExpectQuery("FROM accounts WHERE id").
		WithArgs("acc-1").
		WillReturnRows(accountRow("acc-1", adminAddr, "admin@example.com", true))

	w := doReq(env.router, "GET", "/api/v1/auth/me", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	account := decode(t, w)["account"].(map[string]any)
	if account["email"] != "admin@example.com" {
		t.Errorf("account = %v", account)
	}
	expectationsMet(t, env.mock)
}

func TestGetCurrentAccount_NotAuthenticated(t *testing.T) {
	env := newAccountEnv(t)
	env.accountID = ""

	w := doReq(env.router, "GET", "/api/v1/auth/me", nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	expectationsMet(t, env.mock)
}

// bcrypt at the production cost factor is deliberately slow; keep one
// round-trip check here rather than hashing in every account test.
func TestCreateAccount_PasswordIsHashed(t *testing.T) {
	env := newAccountEnv(t)

	var storedHash string
	env.mock.ExpectQuery("FROM accounts WHERE email").
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectQuery("FROM accounts WHERE address").
		WillReturnRows(sqlmock.NewRows(accountCols))
	env.mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			hashCapture{&storedHash}, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doReq(env.router, "POST", "/api/v1/admin/accounts", gin.H{
		"address":      organizerAddr,
		"email":        "hash@example.com",
		"display_name": "Hash",
		"password":     "plaintext-secret",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if storedHash == "plaintext-secret" || storedHash == "" {
		t.Fatalf("stored hash = %q", storedHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte("plaintext-secret")); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
	expectationsMet(t, env.mock)
}

// hashCapture is a sqlmock argument matcher that records the value it sees.
type hashCapture struct {
	dst *string
}

func (h hashCapture) Match(v driver.Value) bool {
	s, ok := v.(string)
	if ok {
		*h.dst = s
	}
	return ok
}

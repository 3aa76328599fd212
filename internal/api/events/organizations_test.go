package events

import (
	"context"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// ---------------------------------------------------------------------------
// CreateOrganizationHandler
// ---------------------------------------------------------------------------

func TestCreateOrganizationHandler_Success(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizers WHERE address").
		WithArgs(actorAddr).
		WillReturnRows(sqlmock.NewRows([]string{"address", "allowed", "created_at", "updated_at"}).
			AddRow(actorAddr, true, time.Now(), time.Now()))
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(actorAddr).
		WillReturnRows(sqlmock.NewRows(organizationCols))
	e.mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("org-1", time.Now(), time.Now()))
	e.expectTransition(models.RecordOrganizationCreated)
	e.mock.ExpectCommit()

	w := e.do(http.MethodPost, "/api/v1/organizations", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["owner_address"] != actorAddr {
		t.Errorf("owner_address = %v, want %s", body["owner_address"], actorAddr)
	}
	if _, hasID := body["id"]; hasID {
		t.Error("response leaks the internal row id")
	}
	e.assertMet(t)
}

func TestCreateOrganizationHandler_NotOrganizer(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizers WHERE address").
		WithArgs(actorAddr).
		WillReturnRows(sqlmock.NewRows([]string{"address", "allowed", "created_at", "updated_at"}))
	e.mock.ExpectRollback()

	w := e.do(http.MethodPost, "/api/v1/organizations", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403; body: %s", w.Code, w.Body.String())
	}
	e.assertMet(t)
}

func TestCreateOrganizationHandler_PlatformPaused(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.expectConfigLock(250, true)
	e.mock.ExpectRollback()

	w := e.do(http.MethodPost, "/api/v1/organizations", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
	e.assertMet(t)
}

func TestCreateOrganizationHandler_DBError(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.mock.ExpectQuery("SELECT.*FROM platform_config WHERE id = 1 FOR UPDATE").
		WillReturnError(errDB)
	e.mock.ExpectRollback()

	w := e.do(http.MethodPost, "/api/v1/organizations", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "Internal server error" {
		t.Errorf("error = %v, internal detail must not leak", body["error"])
	}
	e.assertMet(t)
}

// ---------------------------------------------------------------------------
// TransferOwnershipHandler
// ---------------------------------------------------------------------------

func TestTransferOwnershipHandler_Success(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address.*FOR UPDATE").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(otherAddr).
		WillReturnRows(sqlmock.NewRows(organizationCols))
	e.mock.ExpectExec("UPDATE organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.expectTransition(models.RecordOrganizationOwnershipTransferred)
	e.mock.ExpectCommit()

	w := e.do(http.MethodPost, "/api/v1/organizations/ownership-transfers",
		TransferOwnershipRequest{NewOwner: otherAddr})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["owner_address"] != otherAddr {
		t.Errorf("owner_address = %v, want %s", body["owner_address"], otherAddr)
	}
	e.assertMet(t)
}

func TestTransferOwnershipHandler_MissingBody(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/v1/organizations/ownership-transfers", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	e.assertMet(t)
}

func TestTransferOwnershipHandler_NewOwnerTaken(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address.*FOR UPDATE").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(otherAddr).
		WillReturnRows(organizationRow("0x9999999999999999999999999999999999999999", otherAddr, false))
	e.mock.ExpectRollback()

	w := e.do(http.MethodPost, "/api/v1/organizations/ownership-transfers",
		TransferOwnershipRequest{NewOwner: otherAddr})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
	e.assertMet(t)
}

func TestTransferOwnershipHandler_InvalidNewOwner(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/v1/organizations/ownership-transfers",
		TransferOwnershipRequest{NewOwner: "not-an-address"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
	e.assertMet(t)
}

// ---------------------------------------------------------------------------
// UpdateBannerHandler
// ---------------------------------------------------------------------------

func TestUpdateBannerHandler_Success(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address.*FOR UPDATE").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectExec("UPDATE organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.expectTransition(models.RecordOrganizationBannerUpdated)
	e.mock.ExpectCommit()

	w := e.do(http.MethodPut, "/api/v1/organizations/banner",
		UpdateBannerRequest{BannerURI: "https://cdn.example.com/banner.png"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["banner_uri"] != "https://cdn.example.com/banner.png" {
		t.Errorf("banner_uri = %v", body["banner_uri"])
	}
	e.assertMet(t)
}

func TestUpdateBannerHandler_MissingBody(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPut, "/api/v1/organizations/banner", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	e.assertMet(t)
}

func TestUpdateBannerHandler_NoOrganization(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address.*FOR UPDATE").
		WithArgs(actorAddr).
		WillReturnRows(sqlmock.NewRows(organizationCols))
	e.mock.ExpectRollback()

	w := e.do(http.MethodPut, "/api/v1/organizations/banner",
		UpdateBannerRequest{BannerURI: "https://cdn.example.com/banner.png"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403; body: %s", w.Code, w.Body.String())
	}
	e.assertMet(t)
}

// ---------------------------------------------------------------------------
// WithdrawHandler
// ---------------------------------------------------------------------------

func TestWithdrawHandler_Success(t *testing.T) {
	e := newTestEnv(t)
	e.ledger.Seed(orgAddr, 500)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address.*FOR UPDATE").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.expectTransition(models.RecordOrganizationWithdrawal)
	e.mock.ExpectCommit()

	w := e.do(http.MethodPost, "/api/v1/organizations/withdrawals",
		WithdrawRequest{TokenAddress: tokenAddr})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["amount"] != float64(500) {
		t.Errorf("amount = %v, want 500", body["amount"])
	}

	balance, _ := e.ledger.BalanceOf(context.Background(), actorAddr)
	if balance != 500 {
		t.Errorf("owner balance = %d, want the full 500 withdrawn", balance)
	}
	e.assertMet(t)
}

func TestWithdrawHandler_ZeroBalance(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address.*FOR UPDATE").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectRollback()

	w := e.do(http.MethodPost, "/api/v1/organizations/withdrawals",
		WithdrawRequest{TokenAddress: tokenAddr})
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402; body: %s", w.Code, w.Body.String())
	}
	e.assertMet(t)
}

func TestWithdrawHandler_WrongToken(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectBegin()
	e.expectConfigLock(250, false)
	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address.*FOR UPDATE").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))
	e.mock.ExpectRollback()

	w := e.do(http.MethodPost, "/api/v1/organizations/withdrawals",
		WithdrawRequest{TokenAddress: otherAddr})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
	e.assertMet(t)
}

func TestWithdrawHandler_MissingBody(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/v1/organizations/withdrawals", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	e.assertMet(t)
}

// ---------------------------------------------------------------------------
// Organization reads
// ---------------------------------------------------------------------------

func TestGetOrganizationHandler_Success(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE address").
		WithArgs(orgAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))

	w := e.do(http.MethodGet, "/api/v1/organizations/"+orgAddr, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["address"] != orgAddr {
		t.Errorf("address = %v, want %s", body["address"], orgAddr)
	}
	e.assertMet(t)
}

func TestGetOrganizationHandler_NotFound(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE address").
		WithArgs(orgAddr).
		WillReturnRows(sqlmock.NewRows(organizationCols))

	w := e.do(http.MethodGet, "/api/v1/organizations/"+orgAddr, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	e.assertMet(t)
}

func TestGetMyOrganizationHandler_Success(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(actorAddr).
		WillReturnRows(organizationRow(orgAddr, actorAddr, false))

	w := e.do(http.MethodGet, "/api/v1/organizations/mine", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["owner_address"] != actorAddr {
		t.Errorf("owner_address = %v, want %s", body["owner_address"], actorAddr)
	}
	e.assertMet(t)
}

func TestGetMyOrganizationHandler_NotFound(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE owner_address").
		WithArgs(actorAddr).
		WillReturnRows(sqlmock.NewRows(organizationCols))

	w := e.do(http.MethodGet, "/api/v1/organizations/mine", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	e.assertMet(t)
}

func TestGetOrganizationHandler_DBError(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery("SELECT.*FROM organizations WHERE address").
		WithArgs(orgAddr).
		WillReturnError(errDB)

	w := e.do(http.MethodGet, "/api/v1/organizations/"+orgAddr, nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	e.assertMet(t)
}

// main_test.go holds the fixtures shared by the organization, event and
// ticket handler tests: the real service graph over one mocked database, a
// fundable in-memory ledger, and a router registering the same routes the API
// mounts, with a stand-in auth middleware pinning the caller.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/factory"
	"github.com/ticket-registry/ticket-registry/internal/payment"
	"github.com/ticket-registry/ticket-registry/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	actorAddr    = "0x1111111111111111111111111111111111111111"
	otherAddr    = "0x2222222222222222222222222222222222222222"
	buyerAddr    = "0x3333333333333333333333333333333333333333"
	orgAddr      = "0x4444444444444444444444444444444444444444"
	eventAddr    = "0x5555555555555555555555555555555555555555"
	tokenAddr    = "0x6666666666666666666666666666666666666666"
	templateAddr = "0x7777777777777777777777777777777777777777"
	platformAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	adminAddr    = "0xadadadadadadadadadadadadadadadadadadadad"
)

var errDB = errors.New("db down")

// ---------------------------------------------------------------------------
// Row builders (positional order must match the repository Scan calls)
// ---------------------------------------------------------------------------

var platformConfigCols = []string{
	"owner_address", "fee_bps", "payment_token_address", "paused",
	"created_at", "updated_at",
}

func platformConfigRow(feeBps int, paused bool) *sqlmock.Rows {
	return sqlmock.NewRows(platformConfigCols).AddRow(
		adminAddr, feeBps, tokenAddr, paused, time.Now(), time.Now(),
	)
}

var organizationCols = []string{
	"id", "address", "owner_address", "platform_address", "banner_uri",
	"paused", "created_at", "updated_at",
}

func organizationRow(addr, owner string, paused bool) *sqlmock.Rows {
	return sqlmock.NewRows(organizationCols).AddRow(
		"org-1", addr, owner, platformAddr, "", paused, time.Now(), time.Now(),
	)
}

var seriesCols = []string{
	"id", "address", "organization_address", "platform_address", "base_uri",
	"ticket_price", "deadline", "max_supply", "current_supply", "state",
	"created_at", "updated_at",
}

func seriesRow(state string, price, currentSupply, maxSupply int64, deadline time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(seriesCols).AddRow(
		"evt-1", eventAddr, orgAddr, platformAddr, "https://meta/",
		price, deadline, maxSupply, currentSupply, state,
		time.Now(), time.Now(),
	)
}

var ticketCols = []string{
	"event_address", "ticket_id", "holder_address", "minted_at", "updated_at",
}

func ticketRow(ticketID int64, holder string) *sqlmock.Rows {
	return sqlmock.NewRows(ticketCols).AddRow(
		eventAddr, ticketID, holder, time.Now(), time.Now(),
	)
}

// ---------------------------------------------------------------------------
// Router fixture
// ---------------------------------------------------------------------------

type testEnv struct {
	mock   sqlmock.Sqlmock
	ledger *payment.MemoryLedger
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ledger := payment.NewMemoryLedger()
	platform := repositories.NewPlatformRepository(database)
	organizations := repositories.NewOrganizationRepository(database)
	eventsRepo := repositories.NewEventRepository(database)
	registryEvents := repositories.NewRegistryEventRepository(database)
	tickets := repositories.NewTicketRepository(database)
	transitions := repositories.NewTransitionRepository(database)

	registry := services.NewRegistryService(database, platformAddr,
		platform, organizations, eventsRepo, registryEvents, tickets, transitions, ledger)
	series := services.NewSeriesService(database, platformAddr,
		platform, organizations, eventsRepo, tickets, transitions, ledger)
	seriesFactory := factory.New(eventsRepo, factory.Template{
		Address: templateAddr,
		BaseURI: "https://tickets.example.com/meta/",
	})
	orgs := services.NewOrganizationService(database, platformAddr,
		registry, series, seriesFactory, platform, organizations, transitions, ledger)

	h := NewHandlers(registry, orgs, series)

	r := gin.New()
	// Stand-in for AuthMiddleware: every request arrives as actorAddr.
	r.Use(func(c *gin.Context) { c.Set("actor_address", actorAddr) })

	api := r.Group("/api/v1")
	api.POST("/organizations", h.CreateOrganizationHandler())
	api.POST("/organizations/ownership-transfers", h.TransferOwnershipHandler())
	api.PUT("/organizations/banner", h.UpdateBannerHandler())
	api.POST("/organizations/withdrawals", h.WithdrawHandler())
	api.GET("/organizations/mine", h.GetMyOrganizationHandler())
	api.GET("/organizations/:address", h.GetOrganizationHandler())
	api.POST("/events", h.CreateEventHandler())
	api.GET("/events", h.ListEventsHandler())
	api.GET("/events/:address", h.GetEventHandler())
	api.POST("/events/:address/close", h.CloseEventHandler())
	api.PUT("/events/:address/price", h.SetTicketPriceHandler())
	api.PUT("/events/:address/deadline", h.SetDeadlineHandler())
	api.POST("/events/:address/tickets", h.MintHandler())
	api.GET("/events/:address/tickets", h.ListTicketsHandler())
	api.GET("/events/:address/tickets/:id", h.GetTicketHandler())
	api.POST("/events/:address/tickets/:id/resales", h.ResellHandler())
	api.GET("/events/:address/tickets/:id/validation", h.ValidateTicketHandler())
	api.GET("/tickets/mine", h.ListMyTicketsHandler())

	return &testEnv{mock: mock, ledger: ledger, router: r}
}

// expectConfigLock expects the platform config row lock every mutating
// operation takes first.
func (e *testEnv) expectConfigLock(feeBps int, paused bool) {
	e.mock.ExpectQuery("SELECT.*FROM platform_config WHERE id = 1 FOR UPDATE").
		WillReturnRows(platformConfigRow(feeBps, paused))
}

// expectTransition expects the transition insert and pins its record type.
func (e *testEnv) expectTransition(recordType string) {
	e.mock.ExpectExec("INSERT INTO transitions").
		WithArgs(sqlmock.AnyArg(), recordType, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// expectPaidTransition additionally pins the amount and fee columns.
func (e *testEnv) expectPaidTransition(recordType string, amount, fee int64) {
	e.mock.ExpectExec("INSERT INTO transitions").
		WithArgs(sqlmock.AnyArg(), recordType, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), amount,
			fee, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func (e *testEnv) assertMet(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		rd = bytes.NewReader(buf)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return out
}

// futureDeadline is far enough out that test runtime never crosses it.
func futureDeadline() time.Time {
	return time.Now().Add(48 * time.Hour)
}

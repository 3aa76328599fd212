// dev.go implements development-only handlers for seeding the in-memory
// payment ledger and impersonating accounts in dev mode.
package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/payment"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// DevHandlers handles development-only endpoints
type DevHandlers struct {
	cfg         *config.Config
	accountRepo *repositories.AccountRepository
	ledger      *payment.MemoryLedger // nil unless the mem provider is active
}

// NewDevHandlers creates a new DevHandlers instance. ledger is the in-memory
// payment ledger when payment.provider is "mem", nil otherwise; the seeding
// endpoints refuse to run against a real gateway.
func NewDevHandlers(cfg *config.Config, db *sql.DB, ledger *payment.MemoryLedger) *DevHandlers {
	return &DevHandlers{
		cfg:         cfg,
		accountRepo: repositories.NewAccountRepository(db),
		ledger:      ledger,
	}
}

// DevModeMiddleware blocks access to dev endpoints unless server.dev_mode is set
func DevModeMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Server.DevMode {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Development endpoints are disabled in production",
			})
			return
		}
		c.Next()
	}
}

// LedgerSeedRequest is the payload for seeding a balance or an allowance.
// Amount is a pointer so an explicit zero (clearing a balance) still binds.
type LedgerSeedRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  *int64 `json:"amount" binding:"required"`
}

// checkLedgerRequest validates a seed request and returns the normalized
// address, or responds with the error and returns false.
func (h *DevHandlers) checkLedgerRequest(c *gin.Context, req *LedgerSeedRequest) (string, bool) {
	if h.ledger == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Ledger seeding requires the in-memory payment provider (payment.provider=mem)",
		})
		return "", false
	}
	if !address.IsValid(req.Address) || address.IsZero(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid actor address"})
		return "", false
	}
	if *req.Amount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be non-negative"})
		return "", false
	}
	return address.Normalize(req.Address), true
}

// SeedBalanceHandler sets the token balance of an address
// POST /api/v1/dev/ledger/seed
func (h *DevHandlers) SeedBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LedgerSeedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		addr, ok := h.checkLedgerRequest(c, &req)
		if !ok {
			return
		}

		h.ledger.Seed(addr, *req.Amount)
		c.JSON(http.StatusOK, gin.H{
			"message": "Balance seeded",
			"address": addr,
			"balance": *req.Amount,
		})
	}
}

// ApproveAllowanceHandler sets the allowance an address grants the platform account
// POST /api/v1/dev/ledger/approve
func (h *DevHandlers) ApproveAllowanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LedgerSeedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		addr, ok := h.checkLedgerRequest(c, &req)
		if !ok {
			return
		}

		h.ledger.Approve(addr, *req.Amount)
		c.JSON(http.StatusOK, gin.H{
			"message":   "Allowance approved",
			"address":   addr,
			"allowance": *req.Amount,
		})
	}
}

// GetLedgerAccountHandler returns the balance and allowance of an address
// GET /api/v1/dev/ledger/accounts/:address
func (h *DevHandlers) GetLedgerAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.ledger == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Ledger inspection requires the in-memory payment provider (payment.provider=mem)",
			})
			return
		}

		raw := c.Param("address")
		if !address.IsValid(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid actor address"})
			return
		}
		addr := address.Normalize(raw)

		balance, _ := h.ledger.BalanceOf(c.Request.Context(), addr)
		allowance, _ := h.ledger.Allowance(c.Request.Context(), addr)
		c.JSON(http.StatusOK, gin.H{
			"address":   addr,
			"balance":   balance,
			"allowance": allowance,
		})
	}
}

// ImpersonateAccountHandler allows an admin to get a token as another account
// POST /api/v1/dev/impersonate/:account_id
// This is for development/testing only
func (h *DevHandlers) ImpersonateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		scopesVal, exists := c.Get("scopes")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "No scopes found - must be authenticated"})
			return
		}
		scopes, ok := scopesVal.([]string)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid scopes format"})
			return
		}
		if !auth.HasScope(scopes, auth.ScopePlatformAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only administrators can impersonate accounts"})
			return
		}

		target, err := h.accountRepo.GetAccountByID(c.Request.Context(), c.Param("account_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve account"})
			return
		}
		if target == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}

		token, err := auth.GenerateJWT(target.ID, target.Address, target.Email, 24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"account": target.ToResponse(),
			"message": "You are now impersonating " + target.Email,
		})
	}
}

// DevStatusHandler returns dev mode status
// GET /api/v1/dev/status
func (h *DevHandlers) DevStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"dev_mode":         true,
			"payment_provider": h.cfg.Payment.Provider,
			"message":          "Development mode is enabled",
		})
	}
}

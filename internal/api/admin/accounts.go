// accounts.go implements handlers for account CRUD operations including listing, creating, updating, and deleting accounts.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// AccountHandlers handles account management endpoints
type AccountHandlers struct {
	accountRepo *repositories.AccountRepository
}

// NewAccountHandlers creates a new AccountHandlers instance
func NewAccountHandlers(db *sql.DB) *AccountHandlers {
	return &AccountHandlers{
		accountRepo: repositories.NewAccountRepository(db),
	}
}

// @Summary      List accounts
// @Description  Get a paginated list of all accounts. Requires platform:admin scope.
// @Tags         Accounts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "accounts: []models.AccountResponse, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/accounts [get]
// ListAccountsHandler lists all accounts with pagination
// GET /api/v1/admin/accounts?page=1&per_page=20
func (h *AccountHandlers) ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Parse pagination parameters
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		offset := (page - 1) * perPage

		accounts, err := h.accountRepo.ListAccounts(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list accounts",
			})
			return
		}

		total, err := h.accountRepo.CountAccounts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to count accounts",
			})
			return
		}

		out := make([]*models.AccountResponse, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, a.ToResponse())
		}

		c.JSON(http.StatusOK, gin.H{
			"accounts": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get account
// @Description  Get an account by ID. Requires platform:admin scope.
// @Tags         Accounts
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Account ID"
// @Success      200  {object}  map[string]interface{}  "account: models.AccountResponse"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/accounts/{id} [get]
// GetAccountHandler retrieves a specific account by ID
// GET /api/v1/admin/accounts/:id
func (h *AccountHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.accountRepo.GetAccountByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve account",
			})
			return
		}

		if account == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Account not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account": account.ToResponse(),
		})
	}
}

// CreateAccountRequest represents the request to create a new account
type CreateAccountRequest struct {
	Address     string   `json:"address" binding:"required"`
	Email       string   `json:"email" binding:"required,email"`
	DisplayName string   `json:"display_name" binding:"required"`
	Password    string   `json:"password" binding:"required,min=8"`
	Scopes      []string `json:"scopes"`
}

// @Summary      Create account
// @Description  Create a new account. The address becomes the actor identity for every domain operation the account performs. Requires platform:admin scope.
// @Tags         Accounts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAccountRequest  true  "Account creation request"
// @Success      201  {object}  map[string]interface{}  "account: models.AccountResponse"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Email or address already in use"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/accounts [post]
// CreateAccountHandler creates a new account
// POST /api/v1/admin/accounts
func (h *AccountHandlers) CreateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if !address.IsValid(req.Address) || address.IsZero(req.Address) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid actor address",
			})
			return
		}

		scopes := req.Scopes
		if len(scopes) == 0 {
			scopes = auth.GetDefaultScopes()
		}
		if err := auth.ValidateScopes(scopes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		// Check if the email is already taken
		existing, err := h.accountRepo.GetAccountByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing account",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Account with this email already exists",
			})
			return
		}

		// The address is an identity too, so it must be unique as well
		addr := address.Normalize(req.Address)
		existing, err = h.accountRepo.GetAccountByAddress(c.Request.Context(), addr)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing account",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Account with this address already exists",
			})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to hash password",
			})
			return
		}

		account := &models.Account{
			Address:      addr,
			Email:        req.Email,
			PasswordHash: string(hash),
			DisplayName:  req.DisplayName,
			Scopes:       scopes,
			Active:       true,
		}

		if err := h.accountRepo.CreateAccount(c.Request.Context(), account); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create account",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"account": account.ToResponse(),
		})
	}
}

// UpdateAccountRequest represents the request to update an account.
// Email and address are identities and cannot be changed here.
type UpdateAccountRequest struct {
	DisplayName *string  `json:"display_name"`
	Scopes      []string `json:"scopes"`
	Active      *bool    `json:"active"`
	Password    *string  `json:"password"`
}

// @Summary      Update account
// @Description  Update an account's display name, scopes, active flag or password. Requires platform:admin scope.
// @Tags         Accounts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                true  "Account ID"
// @Param        body  body  UpdateAccountRequest  true  "Account update request"
// @Success      200  {object}  map[string]interface{}  "account: models.AccountResponse"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/accounts/{id} [put]
// UpdateAccountHandler updates an account
// PUT /api/v1/admin/accounts/:id
func (h *AccountHandlers) UpdateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("id")

		var req UpdateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if req.Scopes != nil {
			if err := auth.ValidateScopes(req.Scopes); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": err.Error(),
				})
				return
			}
		}

		if req.Password != nil && len(*req.Password) < 8 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Password must be at least 8 characters",
			})
			return
		}

		// Get existing account
		account, err := h.accountRepo.GetAccountByID(c.Request.Context(), accountID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve account",
			})
			return
		}

		if account == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Account not found",
			})
			return
		}

		// Update fields
		if req.DisplayName != nil {
			account.DisplayName = *req.DisplayName
		}
		if req.Scopes != nil {
			account.Scopes = req.Scopes
		}
		if req.Active != nil {
			account.Active = *req.Active
		}

		if err := h.accountRepo.UpdateAccount(c.Request.Context(), account); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update account",
			})
			return
		}

		// Password is stored separately so a failed hash never half-applies
		if req.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), auth.BcryptCost)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to hash password",
				})
				return
			}
			if err := h.accountRepo.UpdatePasswordHash(c.Request.Context(), accountID, string(hash)); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to update password",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"account": account.ToResponse(),
		})
	}
}

// @Summary      Delete account
// @Description  Delete an account by ID. The account's API keys are deleted with it. Requires platform:admin scope.
// @Tags         Accounts
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Account ID"
// @Success      200  {object}  map[string]interface{}  "message: Account deleted successfully"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/accounts/{id} [delete]
// DeleteAccountHandler deletes an account
// DELETE /api/v1/admin/accounts/:id
func (h *AccountHandlers) DeleteAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("id")

		// Check if the account exists
		account, err := h.accountRepo.GetAccountByID(c.Request.Context(), accountID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve account",
			})
			return
		}

		if account == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Account not found",
			})
			return
		}

		// Delete account (cascading deletes handle API keys)
		if err := h.accountRepo.DeleteAccount(c.Request.Context(), accountID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete account",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Account deleted successfully",
		})
	}
}

// @Summary      Get current account
// @Description  Get the currently authenticated account. No special scopes required.
// @Tags         Accounts
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "account: models.AccountResponse"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/auth/me [get]
// GetCurrentAccountHandler returns the authenticated caller's own account
// GET /api/v1/auth/me
func (h *AccountHandlers) GetCurrentAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("account_id")
		if accountID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Not authenticated",
			})
			return
		}

		account, err := h.accountRepo.GetAccountByID(c.Request.Context(), accountID)
		if err != nil || account == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve account",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account": account.ToResponse(),
		})
	}
}

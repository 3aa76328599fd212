// setup.go provides middleware for authenticating first-run setup requests.
// Setup endpoints use a separate authentication scheme ("Authorization:
// SetupToken <token>") that is independent of the normal JWT/API key chain,
// because no account exists yet when they run. The setup token is generated
// once at first boot and invalidated after the first admin account is created.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"golang.org/x/crypto/bcrypt"
)

// SetupTokenContextKey is the context key set when a request is authenticated via setup token.
const SetupTokenContextKey = "is_setup_request"

const (
	setupMaxAttempts = 5
	setupRateWindow  = time.Minute
)

// setupRateLimiter counts token attempts per IP in fixed one-minute windows,
// to slow down brute-forcing of the setup token.
type setupRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
}

type attemptWindow struct {
	count int
	start time.Time
}

func newSetupRateLimiter() *setupRateLimiter {
	return &setupRateLimiter{
		windows: make(map[string]*attemptWindow),
	}
}

// allow returns true if the IP has not exceeded the rate limit.
func (rl *setupRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w := rl.windows[ip]
	if w == nil || now.Sub(w.start) >= setupRateWindow {
		rl.windows[ip] = &attemptWindow{count: 1, start: now}
		return true
	}
	if w.count >= setupMaxAttempts {
		return false
	}
	w.count++
	return true
}

// parseSetupAuthHeader pulls the raw token out of an
// "Authorization: SetupToken <token>" header. On failure it returns an empty
// token and a client-facing message.
func parseSetupAuthHeader(header string) (token, errMsg string) {
	if header == "" {
		return "", "Authorization header required. Use: Authorization: SetupToken <token>"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "SetupToken") {
		return "", "Invalid authorization scheme. Use: Authorization: SetupToken <token>"
	}
	return strings.TrimSpace(parts[1]), ""
}

// SetupTokenMiddleware validates setup token authentication. It checks that:
//  1. Setup has not already been completed (returns 403 if it has).
//  2. The IP is not rate-limited (max 5 attempts per minute).
//  3. The Authorization header contains a valid "SetupToken <token>" value.
//  4. The token matches the bcrypt hash stored in system_settings.
//
// On success, sets SetupTokenContextKey=true in the gin context and calls c.Next().
func SetupTokenMiddleware(ssoConfigRepo *repositories.SSOConfigRepository) gin.HandlerFunc {
	rateLimiter := newSetupRateLimiter()

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// Once setup completes the endpoints are permanently disabled.
		completed, err := ssoConfigRepo.IsSetupCompleted(ctx)
		if err != nil {
			slog.Error("setup middleware: failed to check setup status", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check setup status",
			})
			return
		}
		if completed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Setup has already been completed. These endpoints are permanently disabled.",
			})
			return
		}

		// Rate limit check before doing any bcrypt work
		clientIP := c.ClientIP()
		if !rateLimiter.allow(clientIP) {
			slog.Warn("setup middleware: rate limit exceeded", "ip", clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many setup token attempts. Try again in one minute.",
			})
			return
		}

		rawToken, errMsg := parseSetupAuthHeader(c.GetHeader("Authorization"))
		if errMsg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		storedHash, err := ssoConfigRepo.GetSetupTokenHash(ctx)
		if err != nil {
			slog.Error("setup middleware: failed to get token hash", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to validate setup token",
			})
			return
		}
		if storedHash == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "No setup token has been generated. Restart the server to generate one.",
			})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(rawToken)); err != nil {
			slog.Warn("setup middleware: invalid setup token", "ip", clientIP)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid setup token",
			})
			return
		}

		c.Set(SetupTokenContextKey, true)
		c.Next()
	}
}

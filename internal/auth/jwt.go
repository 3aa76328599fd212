// Package auth - jwt.go issues and verifies the HS256 session tokens used by
// the admin UI login flow. The signing secret comes from TKR_JWT_SECRET and is
// resolved exactly once per process.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims represents the JWT claims structure. Address is the account's actor
// address; services use it as the caller identity for domain operations.
type Claims struct {
	AccountID string `json:"account_id"`
	Address   string `json:"address"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// isDevMode reads the environment directly so this package stays independent
// of the config loader.
func isDevMode() bool {
	for _, key := range []string{"DEV_MODE", "TKR_SERVER_DEV_MODE"} {
		if v := os.Getenv(key); v == "true" || v == "1" {
			return true
		}
	}
	return os.Getenv("GIN_MODE") == "debug"
}

// resolveJWTSecret decides what secret the process signs with. Production
// requires TKR_JWT_SECRET; dev mode falls back to a random per-process secret.
func resolveJWTSecret() (string, error) {
	if secret := os.Getenv("TKR_JWT_SECRET"); secret != "" {
		if len(secret) < 32 {
			slog.Warn("TKR_JWT_SECRET is shorter than the recommended 32 characters")
		}
		return secret, nil
	}

	if !isDevMode() {
		return "", errors.New("SECURITY ERROR: TKR_JWT_SECRET environment variable is required in production. " +
			"Generate a secure secret with: openssl rand -hex 32")
	}

	slog.Warn("TKR_JWT_SECRET not set, using auto-generated secret for development")
	slog.Warn("sessions will not persist across restarts; set TKR_JWT_SECRET for persistent sessions")

	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Keep the dev server bootable even if the entropy source fails.
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano()), nil
	}
	return hex.EncodeToString(bytes), nil
}

// ValidateJWTSecret resolves and caches the signing secret. Call it at
// startup: a production deployment without TKR_JWT_SECRET fails here instead
// of at the first login.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		jwtSecret, jwtSecretErr = resolveJWTSecret()
	})
	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if ValidateJWTSecret() hasn't been called or failed.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT creates a signed session token for an authenticated account.
// A zero expiresIn means one hour.
func GenerateJWT(accountID, address, email string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 1 * time.Hour
	}

	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		Address:   address,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "ticket-registry",
			Subject:   accountID,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses tokenString, rejects anything not HMAC-signed with the
// process secret, and returns the embedded claims.
func ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(GetJWTSecret()), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

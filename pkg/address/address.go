// Package address provides 20-byte hex account identifiers and their
// SHA-256 based derivation. Organizations and ticket series receive derived
// addresses at creation time: the derivation hashes the parent reference
// together with a per-instance salt, so a clone's identity is reproducible
// from its template and salt. Keeping this logic in a dedicated package makes
// it easy to apply consistent identifier behaviour across the registry,
// factory, and payment layers without duplicating crypto/sha256 wiring
// throughout the codebase.
package address

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Zero is the all-zero address. It is never a valid actor or owner.
const Zero = "0x0000000000000000000000000000000000000000"

// hexLen is the number of hex characters in an address body (20 bytes).
const hexLen = 40

// IsValid reports whether s is a well-formed address: "0x" followed by
// exactly 40 hex characters.
func IsValid(s string) bool {
	if len(s) != hexLen+2 {
		return false
	}
	if s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsZero reports whether s is the zero address. Malformed input is not zero.
func IsZero(s string) bool {
	if !IsValid(s) {
		return false
	}
	return Normalize(s) == Zero
}

// Normalize lowercases an address body so lookups compare consistently.
func Normalize(s string) string {
	return "0x" + strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

// Derive computes a deterministic child address from a parent reference and a
// salt: the first 20 bytes of sha256(parent || ":" || salt). The same parent
// and salt always yield the same address.
func Derive(parent, salt string) string {
	sum := sha256.Sum256([]byte(parent + ":" + salt))
	return "0x" + hex.EncodeToString(sum[:20])
}

// NewSalt returns a random 16-byte hex salt for address derivation.
func NewSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// scopes.go implements scope-based authorization middleware.
//
// Scopes are read at request time from the account row (or API key) that
// AuthMiddleware loaded, rather than being embedded in the JWT. When an admin
// changes an account's scopes the change takes effect on the account's next
// request without reissuing any token.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/auth"
)

// contextScopes pulls the scope list set by AuthMiddleware. The second result
// is false when the request is unauthenticated or the value has the wrong type.
func contextScopes(c *gin.Context) ([]string, bool) {
	scopesVal, exists := c.Get("scopes")
	if !exists {
		return nil, false
	}
	scopes, ok := scopesVal.([]string)
	return scopes, ok
}

// RequireScope aborts with 403 unless the authenticated identity carries the
// required scope. platform:admin passes every check and events:write implies
// events:read, per auth.HasScope.
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, ok := contextScopes(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		if !auth.HasScope(scopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyScope aborts with 403 unless the identity has at least one of the
// required scopes.
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		held, ok := contextScopes(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		if !auth.HasAnyScope(held, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required scope",
			})
			return
		}

		c.Next()
	}
}

// RequireAllScopes aborts with 403 unless the identity has every one of the
// required scopes.
func RequireAllScopes(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		held, ok := contextScopes(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		if !auth.HasAllScopes(held, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing one or more required scopes",
			})
			return
		}

		c.Next()
	}
}

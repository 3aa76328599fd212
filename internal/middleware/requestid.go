// requestid.go assigns every request a correlation identifier that flows from
// the inbound headers through the gin context and back out in the response.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the canonical HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID string is stored so
	// that handlers and other middleware can retrieve it without reading the response header.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware returns a Gin handler that ensures every request carries
// a unique identifier propagated as an X-Request-ID header.
//
// If the inbound request already carries an X-Request-ID (set by an upstream
// load balancer or API gateway), its value is reused unchanged; otherwise a
// new UUID v4 is generated. The identifier is stored in gin.Context under
// RequestIDKey and echoed back in the response header so clients can correlate
// a failed ticket purchase or admin call with server-side slog entries.
//
// Register this middleware early so all downstream logging includes the ID:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestIDMiddleware())
//	router.Use(MetricsMiddleware())
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		// Store in context for use by handlers and other middleware (e.g. logging).
		c.Set(RequestIDKey, id)

		// Echo back to caller so they can correlate their request with server-side logs.
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

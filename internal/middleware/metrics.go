// metrics.go provides Gin middleware that records request counters and latency
// histograms for every route registered on the router.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/telemetry"
)

// MetricsMiddleware returns a Gin handler that records two Prometheus metrics
// for every request:
//
//   - http_requests_total{method, path, status}
//   - http_request_duration_seconds{method, path}
//
// The path label comes from c.FullPath(), the matched route template
// (e.g. /api/v1/events/:address/tickets) rather than the raw URL, so event
// addresses and ticket ids do not inflate label cardinality. Requests that
// match no registered route (404/405) are labeled with the literal string
// "<no-route>".
//
// Register this middleware AFTER gin.Recovery() and RequestIDMiddleware so the
// status written by error handlers is the one recorded:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestIDMiddleware())
//	router.Use(MetricsMiddleware())
//
// See telemetry.HTTPRequestsTotal and telemetry.HTTPRequestDuration for
// example PromQL queries and alert rules.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Resolve the route template; fall back for 404/405 situations.
		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Package telemetry provides application-level observability for the Ticket Registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<TKR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router and
// is therefore absent from the OpenAPI/Swagger spec.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Ticket issuance, resale, and platform fee counters
//   - Payment ledger call counters and latency histograms
//   - Transition relay ship/archive counters and durations
//   - API key expiry notification counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/events/:address)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as event addresses or ticket ids.  Domain
// counters are labelled by organization address, which grows with the (allowlisted,
// slow-moving) organizer population rather than with traffic.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/ticket-registry/ticket-registry/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.TicketsMintedTotal.WithLabelValues(orgAddress).Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/events/:address/tickets),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Ticketing domain metrics — incremented by the registry, organization, and
// series services after a transition commits.
//
// TicketsMintedTotal / TicketResalesTotal are CounterVecs with label {organization}
// (the owning organization's address).
//
// Example PromQL queries:
//   - Mint rate by organization:  sum by (organization) (rate(tickets_minted_total[1h]))
//   - Busiest organizations:      topk(5, sum by (organization) (tickets_minted_total))
//
// PlatformFeesCollectedTotal is a plain Counter summing fee amounts (token base
// units) collected across mints and resales.
//
// Example PromQL queries:
//   - Fee revenue rate:  rate(platform_fees_collected_total[1h])
//
// EventsCreatedTotal / EventsClosedTotal count series lifecycle transitions by
// organization; OrganizationsCreatedTotal counts registry-level organization
// creations.
//
// Example PromQL queries:
//   - Events opened per day:  increase(events_created_total[24h])
//   - Open-event churn:       rate(events_closed_total[24h]) / rate(events_created_total[24h])
var (
	TicketsMintedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_minted_total",
			Help: "Total number of tickets minted, by owning organization address.",
		},
		[]string{"organization"},
	)

	TicketResalesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_resales_total",
			Help: "Total number of ticket resales, by owning organization address.",
		},
		[]string{"organization"},
	)

	PlatformFeesCollectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_fees_collected_total",
			Help: "Sum of platform fees collected across mints and resales, in token base units.",
		},
	)

	EventsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_created_total",
			Help: "Total number of ticket series created, by organization address.",
		},
		[]string{"organization"},
	)

	EventsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_closed_total",
			Help: "Total number of ticket series closed, by organization address.",
		},
		[]string{"organization"},
	)

	OrganizationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "organizations_created_total",
			Help: "Total number of organizations created through the registry.",
		},
	)
)

// Payment ledger metrics — recorded around every call to the token gateway.
//
// LedgerCallsTotal is a CounterVec with labels {op, outcome} where op is one of
// balance_of, allowance, transfer, transfer_from and outcome is ok or error.
//
// Example PromQL queries:
//   - Gateway error rate:  sum(rate(ledger_calls_total{outcome="error"}[5m])) / sum(rate(ledger_calls_total[5m]))
//   - Calls by operation:  sum by (op) (rate(ledger_calls_total[5m]))
//
// LedgerCallDuration is a HistogramVec with label {op} using the default buckets.
//
// Example PromQL queries:
//   - p95 gateway latency:  histogram_quantile(0.95, sum by (op, le) (rate(ledger_call_duration_seconds_bucket[5m])))
var (
	LedgerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_calls_total",
			Help: "Total number of payment ledger gateway calls, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	LedgerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_call_duration_seconds",
			Help:    "Duration of payment ledger gateway calls, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// Transition relay metrics — recorded by the transition relay background job.
//
// TransitionsShippedTotal / TransitionShipErrorsTotal are CounterVecs with label
// {shipper} (file, webhook, amqp).  An alert on rate(transition_ship_errors_total[1h]) > 0
// is recommended to catch consumer outages early.
//
// Example PromQL queries:
//   - Ship rate by shipper:  sum by (shipper) (rate(transitions_shipped_total[5m]))
//   - Alert expression:      increase(transition_ship_errors_total[30m]) > 3
//
// TransitionRelayDuration is a Histogram using the default Prometheus buckets.
// Each observation represents one complete relay pass (claim, ship, mark).
//
// Example PromQL queries:
//   - p95 relay pass duration:  histogram_quantile(0.95, rate(transition_relay_duration_seconds_bucket[1h]))
//
// TransitionsArchivedTotal counts records successfully written to the cold archive.
var (
	TransitionsShippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transitions_shipped_total",
			Help: "Total number of transition records shipped, by shipper type.",
		},
		[]string{"shipper"},
	)

	TransitionShipErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transition_ship_errors_total",
			Help: "Total number of failed transition ship attempts, by shipper type.",
		},
		[]string{"shipper"},
	)

	TransitionRelayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transition_relay_duration_seconds",
			Help:    "Duration of a single transition relay pass.",
			Buckets: prometheus.DefBuckets,
		},
	)

	TransitionsArchivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transitions_archived_total",
			Help: "Total number of transition records written to the cold archive.",
		},
	)
)

// APIKeyExpiryNotificationsSentTotal is a plain Counter (no labels) incremented once
// per email successfully delivered by the api_key_expiry_notifier background job.
// A stalled counter combined with api keys approaching expiry is a useful alert signal
// for SMTP delivery failures.
//
// Example PromQL queries:
//   - Rate of notifications sent:  rate(apikey_expiry_notifications_sent_total[24h])
var APIKeyExpiryNotificationsSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "apikey_expiry_notifications_sent_total",
		Help: "Total number of API key expiry warning emails successfully sent.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <TKR_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}

// ratelimit.go provides per-client request rate limiting. When Redis is
// configured the limiter runs GCRA through redis_rate and shares state across
// replicas; otherwise each process falls back to a local token bucket.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/ticket-registry/ticket-registry/internal/config"
)

// RateLimitConfig holds the limit applied to each client key.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client
	RequestsPerMinute int
	// BurstSize is the short-term burst allowed above the sustained rate
	BurstSize int
	// CleanupInterval is how often the in-memory limiter prunes idle clients
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the limit for general API traffic.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 200,
		BurstSize:         50,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns the stricter limit for login and token
// endpoints, where every request costs a bcrypt comparison.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// PurchaseRateLimitConfig returns the limit for mint and resale endpoints,
// sized for the burst when an event opens for sale.
func PurchaseRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
	}
}

// Decision is the outcome of a limiter check for one request.
type Decision struct {
	Allowed   bool
	Limit     int // sustained requests per minute
	Remaining int
	// RetryAfter is how long the client should wait, set only when denied
	RetryAfter time.Duration
}

// Limiter is the decision interface shared by the Redis-backed and in-memory
// implementations.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
	Stop()
}

// NewRedisClient creates the shared Redis client for rate limiting, or nil
// when no address is configured. The caller owns the client and closes it on
// shutdown.
func NewRedisClient(cfg *config.RateLimitingConfig) *redis.Client {
	if cfg == nil || cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewLimiter builds the limiter selected by the runtime configuration:
// Redis-backed when a client is provided, in-memory otherwise. Values from
// the config file override the preset limit. A nil return disables the check.
func NewLimiter(cfg *config.RateLimitingConfig, rdb *redis.Client, limit RateLimitConfig) Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	if cfg.RequestsPerMinute > 0 {
		limit.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if cfg.Burst > 0 {
		limit.BurstSize = cfg.Burst
	}
	if rdb != nil {
		return NewRedisRateLimiter(rdb, limit)
	}
	return NewMemoryRateLimiter(limit)
}

// ---------------------------------------------------------------------------
// Redis-backed limiter
// ---------------------------------------------------------------------------

// RedisRateLimiter enforces limits with the GCRA limiter in redis_rate. State
// lives in Redis, so all replicas see the same budget per client. Redis errors
// fail open: an unreachable Redis must not take the API down with it.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisRateLimiter creates a limiter backed by the given Redis client.
func NewRedisRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RedisRateLimiter {
	cfg = cfg.withDefaults()
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit: redis_rate.Limit{
			Rate:   cfg.RequestsPerMinute,
			Burst:  cfg.BurstSize,
			Period: time.Minute,
		},
	}
}

// Allow checks the client's budget in Redis.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) Decision {
	res, err := rl.limiter.Allow(ctx, "ratelimit:"+key, rl.limit)
	if err != nil {
		slog.Warn("rate limiter: redis unavailable, allowing request", "error", err)
		return Decision{Allowed: true, Limit: rl.limit.Rate, Remaining: rl.limit.Burst}
	}

	d := Decision{
		Allowed:   res.Allowed > 0,
		Limit:     rl.limit.Rate,
		Remaining: res.Remaining,
	}
	if !d.Allowed {
		d.RetryAfter = res.RetryAfter
	}
	return d
}

// Stop is a no-op; the Redis client is owned by the caller.
func (rl *RedisRateLimiter) Stop() {}

// ---------------------------------------------------------------------------
// In-memory fallback limiter
// ---------------------------------------------------------------------------

// tokenBucketEntry tracks the bucket for a single client
type tokenBucketEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryRateLimiter is the in-process fallback token bucket, used when no
// Redis address is configured. Each replica keeps its own budgets.
type MemoryRateLimiter struct {
	config  RateLimitConfig
	entries map[string]*tokenBucketEntry
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewMemoryRateLimiter creates the in-memory limiter and starts its cleanup
// goroutine. Call Stop to release it.
func NewMemoryRateLimiter(config RateLimitConfig) *MemoryRateLimiter {
	rl := &MemoryRateLimiter{
		config:  config.withDefaults(),
		entries: make(map[string]*tokenBucketEntry),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = DefaultRateLimitConfig().RequestsPerMinute
	}
	if c.BurstSize <= 0 {
		c.BurstSize = DefaultRateLimitConfig().BurstSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultRateLimitConfig().CleanupInterval
	}
	return c
}

// cleanup periodically removes buckets that have been idle long enough to be
// full again, so one-off clients do not accumulate forever.
func (rl *MemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *MemoryRateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow takes one token from the client's bucket, refilling first from the
// time elapsed since the last request.
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]

	if !exists {
		// New client starts with a full burst.
		rl.entries[key] = &tokenBucketEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return Decision{
			Allowed:   true,
			Limit:     rl.config.RequestsPerMinute,
			Remaining: rl.config.BurstSize - 1,
		}
	}

	// Refill from elapsed time, capped at the burst size.
	refill := now.Sub(entry.lastUpdate).Seconds() * float64(rl.config.RequestsPerMinute) / 60.0
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+refill)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return Decision{
			Allowed:   true,
			Limit:     rl.config.RequestsPerMinute,
			Remaining: int(entry.tokens),
		}
	}

	// Time until one full token refills.
	perToken := time.Minute / time.Duration(rl.config.RequestsPerMinute)
	return Decision{
		Limit:      rl.config.RequestsPerMinute,
		RetryAfter: time.Duration(float64(perToken) * (1 - entry.tokens)),
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware rejects requests over the client's limit with 429.
// A nil limiter disables the check entirely.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		d := limiter.Allow(c.Request.Context(), clientKey(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retry := int(d.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

// clientKey picks the identity a request is limited under.
// Priority: account > API key > client IP. The account keys only apply where
// the limiter runs after auth, as on the purchase endpoints; the global
// limiter runs before auth and always keys by IP.
func clientKey(c *gin.Context) string {
	if accountID, exists := c.Get("account_id"); exists {
		if id, ok := accountID.(string); ok && id != "" {
			return "account:" + id
		}
	}

	if apiKeyID, exists := c.Get("api_key_id"); exists {
		if id, ok := apiKeyID.(string); ok && id != "" {
			return "apikey:" + id
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

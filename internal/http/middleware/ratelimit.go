package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-complaint-triage/internal/metrics"
)

// keyFunc selects the bucket a request draws from.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP buckets by ClientID ("user:<id>" or "ip:<addr>").
func KeyByUserOrIP() keyFunc {
	return ClientID
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-process token bucket per client. Every accepted
// submission costs one classifier call, so this is first of all a guard on
// the model quota. It is not shared across replicas.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	// Skip exempts requests from limiting. CORS preflights and idempotent
	// replays are always exempt.
	Skip func(*gin.Context) bool
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows rps requests per second per key with the given
// burst; burst <= 0 is raised to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		IdleTTL: 10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// limiter returns the bucket for key. Idle buckets are swept at most once
// per IdleTTL, before the lookup, so a stale bucket is replaced by a full one.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.IdleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// size reports the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator found a stored result
// for this request, in which case it costs nothing to serve.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. A rejected request gets 429 with the API
// error envelope and a Retry-After in whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || IsRateBypass(c) || (rl.Skip != nil && rl.Skip(c)) {
			c.Next()
			return
		}

		lim := rl.limiter(rl.keyFn(c))
		if lim.Allow() {
			c.Next()
			return
		}

		metrics.RateLimitedTotal.WithLabelValues(c.Request.Method).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim)))
		abortError(c, http.StatusTooManyRequests, "rate_limited", "Too many requests, please retry later")
	}
}

// retryAfter estimates when the next token is available, at least 1s.
func retryAfter(lim *rate.Limiter) int {
	r := lim.Reserve()
	if !r.OK() {
		return 1
	}
	d := r.Delay()
	r.Cancel()
	return max(1, int(math.Ceil(d.Seconds())))
}

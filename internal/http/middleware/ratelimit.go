package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByMerchantOrIP buckets requests by the merchant resolved upstream (see
// IdempotencyValidator) and falls back to the client IP address. Keys are
// prefixed so the two namespaces cannot collide.
func KeyByMerchantOrIP() keyFunc {
	return func(c *gin.Context) string {
		if m := MerchantID(c); m != "" {
			return "merchant:" + m
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64 // tokens per second; 0 admits only the initial burst
	Burst int     // bucket size; values <= 0 are coerced to 1
	Key   keyFunc // defaults to KeyByMerchantOrIP

	// PerRoute gives every matched route its own bucket per identity, so a
	// wallet hammering /scan does not starve the same merchant's /qr calls.
	PerRoute bool

	// IdleTTL evicts buckets not touched for this long (default 10m).
	IdleTTL time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-memory token-bucket limiter with one bucket per key.
// It is process-local; horizontally scaled deployments get per-instance
// limits. Safe for concurrent use.
type RateLimiter struct {
	opt RateLimitOptions
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter returns a limiter ready to be installed via Handler().
func NewRateLimiter(opt RateLimitOptions) *RateLimiter {
	if opt.Burst <= 0 {
		opt.Burst = 1
	}
	if opt.Key == nil {
		opt.Key = KeyByMerchantOrIP()
	}
	if opt.IdleTTL <= 0 {
		opt.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		opt:     opt,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// limiter returns the bucket for key, creating it if absent. Idle buckets
// are swept at most once per IdleTTL/2, before the lookup, so a stale entry
// is dropped even when it is the one being requested.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.opt.IdleTTL/2 {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opt.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(rate.Limit(rl.opt.RPS), rl.opt.Burst)
	rl.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a completed request; replays do not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	b, _ := ctxValue[bool](c, ctxKeyRateBypass)
	return b
}

// Handler enforces the limits. A rejected request gets 429 with the standard
// error envelope (code "too_many_requests") and, when the bucket refills at
// all, a Retry-After header in whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.opt.Key(c)
		bucketKey := key
		if rl.opt.PerRoute {
			bucketKey += "|" + c.FullPath()
		}

		now := rl.now()
		res := rl.limiter(bucketKey).ReserveN(now, 1)
		if res.OK() {
			delay := res.DelayFrom(now)
			if delay == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		}

		rateLimited.WithLabelValues(keyNamespace(key)).Inc()
		abort(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}

// keyNamespace returns the prefix of a bucket key ("merchant" or "ip") for
// use as a bounded metric label.
func keyNamespace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

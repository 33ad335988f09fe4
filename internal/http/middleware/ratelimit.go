package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Per-caller token buckets for the API group. Every request draws tokens
// from the caller's bucket; report generation draws more than reads because
// each one ends in an LLM call. Buckets live in process memory, so limits
// apply per replica.

// KeyFunc maps a request to the identity whose bucket it draws from.
type KeyFunc func(*gin.Context) string

// CostFunc returns how many tokens a request consumes.
type CostFunc func(*gin.Context) int

// KeyByUserOrIP keys buckets by the authenticated user and falls back to the
// client IP for anonymous traffic. Prefixes keep the two namespaces apart.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// CostByMethod charges writeCost tokens for POST requests and one token for
// everything else.
func CostByMethod(writeCost int) CostFunc {
	if writeCost < 1 {
		writeCost = 1
	}
	return func(c *gin.Context) int {
		if c.Request.Method == http.MethodPost {
			return writeCost
		}
		return 1
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64 // refill rate in tokens per second
	Burst int     // bucket size; values < 1 become 1
	Key   KeyFunc // defaults to KeyByUserOrIP
	Cost  CostFunc
	// IdleTTL drops buckets that have not been touched for this long.
	IdleTTL time.Duration

	now func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	key   KeyFunc
	cost  CostFunc
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter from opts, filling defaults.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Key == nil {
		opts.Key = KeyByUserOrIP()
	}
	if opts.Cost == nil {
		opts.Cost = func(*gin.Context) int { return 1 }
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &RateLimiter{
		rps:       rate.Limit(opts.RPS),
		burst:     opts.Burst,
		key:       opts.Key,
		cost:      opts.Cost,
		ttl:       opts.IdleTTL,
		now:       opts.now,
		buckets:   make(map[string]*bucket),
		lastSweep: opts.now(),
	}
}

// limiter returns the bucket for key, creating it on first use. Idle buckets
// are swept at most once per TTL, before the lookup, so a stale bucket for key
// is replaced rather than revived.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
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

// size is the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay. Replays are served from storage and do not draw tokens.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// Handler enforces the limits. A rejected request gets 429 with Retry-After
// set to the whole seconds until enough tokens are back, and no tokens are
// consumed by it.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		n := rl.cost(c)
		if n > rl.burst {
			n = rl.burst
		}
		now := rl.now()
		res := rl.limiter(rl.key(c), now).ReserveN(now, n)
		delay := res.DelayFrom(now)
		if res.OK() && delay == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)

		retry := 1
		if res.OK() {
			retry = int(math.Ceil(delay.Seconds()))
			if retry < 1 {
				retry = 1
			}
		}
		rateLimited.WithLabelValues(routeLabel(c)).Inc()

		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.GetString(requestIDKey),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded, retry in " + strconv.Itoa(retry) + "s",
		})
	}
}

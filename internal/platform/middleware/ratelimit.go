package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops a client's bucket after this long without requests.
	// Zero keeps buckets forever.
	IdleTTL time.Duration
	Clock   clock.Clock
}

// DefaultRateLimitConfig returns the limits applied to authentication routes:
// a burst of 20 attempts, then one every half second.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 2,
		BurstSize:         20,
		IdleTTL:           10 * time.Minute,
	}
}

// bucket is a token bucket. Callers hold limiter.mu.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// limiter keeps one bucket per client and route.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     RateLimitConfig
	swept   time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &limiter{buckets: make(map[string]*bucket), cfg: cfg}
}

// take spends one token for key. It returns the tokens left and, when none
// were available, how long until the next one.
func (l *limiter) take(key string) (remaining int, wait time.Duration) {
	now := l.cfg.Clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize), lastSeen: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(l.cfg.BurstSize), b.tokens+elapsed*l.cfg.RequestsPerSecond)
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return int(b.tokens), 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return 0, time.Second
	}
	return 0, time.Duration((1 - b.tokens) / l.cfg.RequestsPerSecond * float64(time.Second))
}

// sweep forgets idle buckets at most once per IdleTTL.
func (l *limiter) sweep(now time.Time) {
	if l.cfg.IdleTTL <= 0 || now.Sub(l.swept) < l.cfg.IdleTTL {
		return
	}
	l.swept = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit limits each client IP on each route separately, so exhausting
// the OTP endpoint does not lock a user out of password login. The server
// mounts it on the auth routes, where it bounds OTP requests and code
// guessing.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiter(cfg))
}

func rateLimit(l *limiter) echo.MiddlewareFunc {
	limit := strconv.Itoa(l.cfg.BurstSize)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			remaining, wait := l.take(c.RealIP() + " " + c.Path())
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if wait > 0 {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many attempts, try again later")
			}
			return next(c)
		}
	}
}

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// KeyFunc picks the bucket for a request. Defaults to the owner id set by
	// the auth middleware, falling back to the client IP.
	KeyFunc func(c echo.Context) string
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleTTL:           3 * time.Minute,
	}
}

func defaultKey(c echo.Context) string {
	if owner, ok := c.Get("owner_id").(string); ok && owner != "" {
		return "owner:" + owner
	}
	return "ip:" + c.RealIP()
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one limiter per key.
type limiterStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		ttl:      cfg.IdleTTL,
		now:      time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep drops limiters idle for longer than the TTL.
func (s *limiterStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.visitors, key)
			removed++
		}
	}
	return removed
}

// RateLimit returns a per-key token bucket middleware. Idle buckets are swept
// lazily on the request path.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKey
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	store := newLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	var sweepMu sync.Mutex
	lastSweep := time.Now()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sweepMu.Lock()
			if time.Since(lastSweep) > cfg.IdleTTL {
				lastSweep = time.Now()
				sweepMu.Unlock()
				store.sweep()
			} else {
				sweepMu.Unlock()
			}

			limiter := store.get(cfg.KeyFunc(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			r := limiter.Reserve()
			if !r.OK() {
				h.Set("Retry-After", "1")
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/trialsite/siteaccess/pkg/httputil"
	"github.com/trialsite/siteaccess/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate (in-memory limiter only)
	BurstSize int
}

// DefaultRateLimitConfig returns limits for unauthenticated clients
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// PerUserRateLimitConfig returns per-principal limits
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// RateLimiter is an in-memory token bucket limiter
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow takes a token for key if one is available
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	refill := int(now.Sub(b.lastUpdate).Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens += refill
		if b.tokens > rl.capacity() {
			b.tokens = rl.capacity()
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the number of remaining tokens for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok := rl.buckets[key]; ok {
		return b.tokens
	}
	return rl.capacity()
}

// Cleanup removes buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RejectionRecorder counts rejected requests. observability.Metrics implements it.
type RejectionRecorder interface {
	RecordRateLimited(backend string)
}

// RateLimitMiddleware limits requests per principal, or per client IP for
// unauthenticated requests. Redis is used when configured; the in-memory
// limiter takes over whenever Redis fails.
type RateLimitMiddleware struct {
	distributed *DistributedRateLimiter
	fallback    *RateLimiter
	config      *RateLimitConfig
	recorder    RejectionRecorder
	logger      *observability.Logger
}

// NewRateLimitMiddleware creates the middleware. redisClient may be nil.
func NewRateLimitMiddleware(redisClient *redis.Client, config *RateLimitConfig, logger *observability.Logger) *RateLimitMiddleware {
	if config == nil {
		config = PerUserRateLimitConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	m := &RateLimitMiddleware{
		fallback: NewRateLimiter(config),
		config:   config,
		logger:   logger,
	}
	if redisClient != nil {
		m.distributed = NewDistributedRateLimiter(redisClient, config, "trialsite:ratelimit")
	}
	return m
}

// SetRecorder sets the sink for rejections
func (m *RateLimitMiddleware) SetRecorder(r RejectionRecorder) { m.recorder = r }

// Fallback returns the in-memory limiter
func (m *RateLimitMiddleware) Fallback() *RateLimiter { return m.fallback }

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		allowed, remaining, backend := m.allow(r.Context(), key)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.config.RequestsPerWindow))
		if !allowed {
			if m.recorder != nil {
				m.recorder.RecordRateLimited(backend)
			}
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", m.config.WindowDuration.Seconds()))
			httputil.WriteTooManyRequests(w, r, "rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) allow(ctx context.Context, key string) (bool, int, string) {
	if m.distributed != nil {
		allowed, remaining, err := m.distributed.Allow(ctx, key)
		if err == nil {
			return allowed, remaining, "redis"
		}
		m.logger.WithError(err).Warn("redis rate limiter unavailable, using in-memory limiter")
	}
	allowed := m.fallback.Allow(key)
	return allowed, m.fallback.Remaining(key), "memory"
}

func rateLimitKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r); ok {
		return fmt.Sprintf("user:%d", p.ID)
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

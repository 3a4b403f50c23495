package httpx

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

// RateLimitConfig defines the rate limiting parameters for a route class.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
}

// Common rate limit profiles for different endpoint types
// These can be overridden via environment variables (see init() below)
var (
	// StrictLimit for authentication-sensitive endpoints (device code
	// requests, token polling) - brute force and mint-spam prevention.
	// Override with: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC
	StrictLimit = RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
	}

	// ModerateLimit for authenticated operations
	// Override with: RATELIMIT_MODERATE_REQUESTS, RATELIMIT_MODERATE_WINDOW_SEC
	ModerateLimit = RateLimitConfig{
		RequestsPerWindow: 60,
		Window:            time.Minute,
	}

	// LenientLimit for less sensitive operations (chat traffic)
	// Override with: RATELIMIT_LENIENT_REQUESTS, RATELIMIT_LENIENT_WINDOW_SEC
	LenientLimit = RateLimitConfig{
		RequestsPerWindow: 120,
		Window:            time.Minute,
	}

	// PublicLimit for public read-only endpoints
	// Override with: RATELIMIT_PUBLIC_REQUESTS, RATELIMIT_PUBLIC_WINDOW_SEC
	PublicLimit = RateLimitConfig{
		RequestsPerWindow: 1000,
		Window:            time.Minute,
	}
)

func init() {
	// Allow overriding rate limits via environment variables (useful for testing)
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
	PublicLimit = ParseRateLimitFromEnv("PUBLIC", PublicLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	return config
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, subject id, etc.)
type KeyExtractor func(*http.Request) string

// Common key extractors

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// SubjectKeyExtractor extracts the resolved principal's subject id from the
// request context. Returns empty string if the request is unauthenticated.
func SubjectKeyExtractor(r *http.Request) string {
	return SubjectFromCtx(r.Context())
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
// Example: CompositeKeyExtractor(":", SubjectKeyExtractor, IPKeyExtractor)
// would produce keys like "user-42:192.168.1.1"
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// FixedWindowLimiter admits or rejects requests with fixed-window counting
// per key. Admission is a map lookup plus an increment under one mutex, so
// decisions resolve in constant time regardless of what the proxied upstream
// is doing.
type FixedWindowLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	counters  map[string]*windowCounter
	lastSweep time.Time
}

type windowCounter struct {
	start time.Time
	count int
}

// NewFixedWindowLimiter creates a limiter with the given window length using
// the wall clock.
func NewFixedWindowLimiter(window time.Duration) *FixedWindowLimiter {
	return NewFixedWindowLimiterWithClock(window, time.Now)
}

// NewFixedWindowLimiterWithClock is like NewFixedWindowLimiter but with an
// injectable clock so tests can drive window boundaries deterministically.
func NewFixedWindowLimiterWithClock(window time.Duration, now func() time.Time) *FixedWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindowLimiter{
		window:    window,
		now:       now,
		counters:  make(map[string]*windowCounter),
		lastSweep: now(),
	}
}

// Admit reports whether a request under key is allowed given limit requests
// per window. The counter is incremented only on admission.
func (l *FixedWindowLimiter) Admit(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	c, ok := l.counters[key]
	if !ok || now.Sub(c.start) >= l.window {
		c = &windowCounter{start: now}
		l.counters[key] = c
	}

	if c.count >= limit {
		return false
	}
	c.count++
	return true
}

// RetryAfter returns the number of seconds until key's current window rolls
// over, with a floor of one second for Retry-After friendliness.
func (l *FixedWindowLimiter) RetryAfter(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		return 1
	}
	remaining := c.start.Add(l.window).Sub(l.now())
	return max(int(remaining.Seconds()), 1)
}

// maybeSweep drops counters whose windows ended. Called with the mutex held.
// Runs at most once per window length to keep Admit cheap.
func (l *FixedWindowLimiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now

	for key, c := range l.counters {
		if now.Sub(c.start) >= l.window {
			delete(l.counters, key)
		}
	}
}

// RateLimitMiddleware creates a rate limiting middleware with the given
// configuration. The keyExtractor determines how requests are grouped.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	limiter := NewFixedWindowLimiter(config.Window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			// Extract the key for this request
			key := keyExtractor(r)
			if key == "" {
				// If we can't extract a key, allow the request but log it
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Admit(key, config.RequestsPerWindow) {
				retryAfter := limiter.RetryAfter(key)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", config.Window.String())

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Convenience functions for common rate limiting scenarios

// RateLimitByIP creates a rate limiter that limits by IP address only.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitBySubject creates a rate limiter that limits by the resolved
// principal's subject. Falls back to IP if the request is unauthenticated.
func RateLimitBySubject(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		SubjectKeyExtractor,
		IPKeyExtractor,
	))
}

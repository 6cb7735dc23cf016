package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// RateLimiter throttles credential endpoints per client IP with a sliding
// one-minute window. It is a brute-force brake, not a traffic shaper: the
// count race under the read lock is acceptable for a soft limit.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*rateWindow
	limit   int
	logger  *slog.Logger

	clientIP func(*http.Request) string
	now      func() time.Time
}

type rateWindow struct {
	count       int
	windowStart time.Time
}

const rateWindowLength = time.Minute

// NewRateLimiter builds the limiter. limit <= 0 defaults to 10 attempts per
// minute per IP.
func NewRateLimiter(limit int, clientIP func(*http.Request) string, logger *slog.Logger) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		windows:  make(map[string]*rateWindow),
		limit:    limit,
		logger:   logger,
		clientIP: clientIP,
		now:      time.Now,
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether another attempt from key fits in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.RLock()
	window, ok := rl.windows[key]
	if ok && now.Sub(window.windowStart) <= rateWindowLength {
		window.count++
		count := window.count
		rl.mu.RUnlock()
		if count > rl.limit {
			rl.logger.Warn("rate limit exceeded", "key", key, "count", count, "limit", rl.limit)
			return false
		}
		return true
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	window, ok = rl.windows[key]
	if ok && now.Sub(window.windowStart) <= rateWindowLength {
		window.count++
		return window.count <= rl.limit
	}
	rl.windows[key] = &rateWindow{count: 1, windowStart: now}
	return true
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests, try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanup drops stale windows so idle IPs do not accumulate.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := rl.now()
		for key, window := range rl.windows {
			if now.Sub(window.windowStart) > 2*rateWindowLength {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

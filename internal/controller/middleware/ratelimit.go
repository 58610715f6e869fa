// Package middleware contains the HTTP middleware of the controller API.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reviewplane/pkg/api"
)

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	rps            float64
	burst          int
	ttl            time.Duration
	trustForwarded bool
	limiters       sync.Map // client IP -> *cachedLimiter
	now            func() time.Time

	sweepMu   sync.Mutex
	nextSweep time.Time
}

// RateLimitOption configures a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithTTL sets how long an idle client's limiter is kept.
func WithTTL(ttl time.Duration) RateLimitOption {
	return func(rl *RateLimiter) {
		rl.ttl = ttl
	}
}

// WithForwardedFor keys clients on the first X-Forwarded-For hop. Only enable
// it behind a proxy that overwrites the header, otherwise clients pick their key.
func WithForwardedFor() RateLimitOption {
	return func(rl *RateLimiter) {
		rl.trustForwarded = true
	}
}

// NewRateLimiter creates a limiter allowing rps requests per second per client
// with the given burst. rps <= 0 means unlimited.
func NewRateLimiter(rps float64, burst int, opts ...RateLimitOption) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{rps: rps, burst: burst, ttl: 5 * time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Middleware rejects requests over the client's limit with 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// RateLimit=0 means unlimited
			if rl.rps > 0 {
				if !rl.limiterFor(rl.clientIP(r)).Allow() {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Retry-After", "1")
					w.WriteHeader(http.StatusTooManyRequests)
					json.NewEncoder(w).Encode(api.ErrorResponse{
						Error: "Too Many Requests",
						Code:  "rate_limited",
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()
	rl.sweep(now)
	if v, ok := rl.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if now.Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
	rl.limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: now.Add(rl.ttl),
	})
	return limiter
}

// sweep drops expired limiters, at most once per TTL.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.sweepMu.Lock()
	if now.Before(rl.nextSweep) {
		rl.sweepMu.Unlock()
		return
	}
	rl.nextSweep = now.Add(rl.ttl)
	rl.sweepMu.Unlock()

	rl.limiters.Range(func(key, v any) bool {
		if !now.Before(v.(*cachedLimiter).expiresAt) {
			rl.limiters.CompareAndDelete(key, v)
		}
		return true
	})
}

// clientIP is the remote address, or the first X-Forwarded-For hop when trusted.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

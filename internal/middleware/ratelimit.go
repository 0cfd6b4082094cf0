package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig configures a process-wide token bucket limiter. Report
// generation holds a warehouse connection for the whole request, so the
// limit bounds concurrent warehouse pressure rather than fairness per client.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// RateLimitMiddleware rejects requests over the configured rate with 429.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	bucket := newTokenBucket(cfg.RPS, cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !bucket.take() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type tokenBucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rps float64, burst int) *tokenBucket {
	if rps <= 0 || burst <= 0 {
		// Degenerate config admits everything.
		return &tokenBucket{}
	}
	return &tokenBucket{
		rate:   rps,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rate <= 0 {
		return true
	}

	now := time.Now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed*b.rate)
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

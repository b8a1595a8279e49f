package util

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// DefaultRate is the default minimum time between requests
	DefaultRate = 100 * time.Millisecond
	// DefaultBurst is the default burst size
	DefaultBurst = 10
	// DefaultMaxRate caps how far OnRateLimit can slow the limiter down
	DefaultMaxRate = 5 * time.Second
)

// RateLimiter wraps a token bucket limiter and slows it down when the
// server reports that it is being rate limited
type RateLimiter struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	rate         time.Duration
	minRate      time.Duration
	maxRate      time.Duration
	lastRateDrop time.Time
}

// NewRateLimiter creates a new RateLimiter.
// every is the minimum time between requests once the burst is spent,
// burst is the number of requests that may go out back to back.
func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	if every <= 0 {
		every = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}

	return &RateLimiter{
		limiter:      rate.NewLimiter(rate.Every(every), burst),
		rate:         every,
		minRate:      every,
		maxRate:      DefaultMaxRate,
		lastRateDrop: time.Now().Add(-time.Hour),
	}
}

// Wait blocks until a token is available or the context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Burst returns how many requests may go out back to back
func (r *RateLimiter) Burst() int {
	return r.limiter.Burst()
}

// OnRateLimit is called when the server answered 429.
// It increases the delay between requests, drains the bucket and returns
// how long to back off.
func (r *RateLimiter) OnRateLimit(retryAfter time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	// repeated limits within five minutes back off harder
	if now.Sub(r.lastRateDrop) < 5*time.Minute {
		r.rate = time.Duration(1.5 * float64(r.rate))
	} else {
		r.rate = time.Duration(1.2 * float64(r.rate))
	}
	if r.rate > r.maxRate {
		r.rate = r.maxRate
	}
	r.lastRateDrop = now

	r.limiter.SetLimitAt(now, rate.Every(r.rate))
	if n := int(r.limiter.TokensAt(now)); n > 0 {
		r.limiter.AllowN(now, n)
	}

	log.Warn().
		Dur("new_rate", r.rate).
		Dur("retry_after", retryAfter).
		Msg("Rate limited, increasing delay between requests")

	if retryAfter > r.rate {
		return retryAfter
	}
	return r.rate
}

// ResetRate resets the rate limiter to its minimum rate
func (r *RateLimiter) ResetRate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = r.minRate
	r.limiter.SetLimit(rate.Every(r.rate))
}

// GetRate returns the current rate
func (r *RateLimiter) GetRate() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
// It returns 0 when the header is absent or unparsable.
func ParseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests to a provider with a token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
	rps     float64
	burst   int

	mu            sync.Mutex
	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
	blockedUntil  time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	RequestsPerSec  float64       `json:"requests_per_second"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing rps requests per second with a
// burst of one second's worth of requests.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 2
	}
	burst := max(int(rps), 1)
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()

	r.mu.Lock()
	blocked := time.Until(r.blockedUntil)
	r.mu.Unlock()
	if blocked > 0 {
		timer := time.NewTimer(blocked)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	waited := time.Since(start)

	r.mu.Lock()
	r.totalConsumed++
	r.totalWaited += waited
	r.mu.Unlock()
	return nil
}

// TryConsume takes a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	blocked := time.Now().Before(r.blockedUntil)
	r.mu.Unlock()
	if blocked || !r.limiter.Allow() {
		return false
	}
	r.mu.Lock()
	r.totalConsumed++
	r.mu.Unlock()
	return true
}

// Record429 notes a rate limit response. With a positive retryAfter, Wait
// blocks until that much time has passed.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429Time = now
	if until := now.Add(retryAfter); retryAfter > 0 && until.After(r.blockedUntil) {
		r.blockedUntil = until
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := max(int(r.limiter.Tokens()), 0)
	return RateLimiterStatus{
		TokensAvailable: tokens,
		TokensLimit:     r.burst,
		RequestsPerSec:  r.rps,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
}

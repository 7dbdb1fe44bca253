package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a sliding-window counter keyed by caller.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Run drops idle callers every window until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key := range rl.requests {
				if len(rl.prune(key)) == 0 {
					delete(rl.requests, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// prune keeps only the hits inside the current window. Caller holds mu.
func (rl *RateLimiter) prune(key string) []time.Time {
	windowStart := rl.now().Add(-rl.window)
	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	rl.requests[key] = valid
	return valid
}

func (rl *RateLimiter) IsAllowed(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.prune(key)) >= rl.limit {
		return false
	}
	rl.requests[key] = append(rl.requests[key], rl.now())
	return true
}

func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.limit - len(rl.prune(key))
}

// RateLimitMiddleware throttles per authenticated user, falling back to the client IP
// on routes mounted before authentication.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("userID")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !rl.IsAllowed(key) {
			resetAt := rl.now().Add(rl.window).Format(time.RFC3339)
			c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", resetAt)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":    "Too many requests, try again later",
				"reset_at": resetAt,
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(key)))
		c.Next()
	}
}

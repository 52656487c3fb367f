package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/response"
)

// WindowCounter counts requests in fixed windows. Implemented by database.RedisClient.
type WindowCounter interface {
	SafeIncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	IsDegraded() bool
}

// InMemoryRateLimiter is the fallback while Redis is degraded or disabled
type InMemoryRateLimiter struct {
	mu     sync.Mutex
	limits map[string]*windowCount
	now    func() time.Time
}

type windowCount struct {
	count   int64
	resetAt time.Time
}

// NewInMemoryRateLimiter creates a new in-memory rate limiter
func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limits: make(map[string]*windowCount),
		now:    time.Now,
	}
}

// Incr counts one request for identifier and returns the count and time left in its window
func (im *InMemoryRateLimiter) Incr(identifier string, window time.Duration) (int64, time.Duration) {
	im.mu.Lock()
	defer im.mu.Unlock()

	now := im.now()
	wc, ok := im.limits[identifier]
	if !ok || !now.Before(wc.resetAt) {
		wc = &windowCount{resetAt: now.Add(window)}
		im.limits[identifier] = wc
	}
	wc.count++
	return wc.count, wc.resetAt.Sub(now)
}

// RateLimiter limits requests per caller (user ID when known, else client IP)
type RateLimiter struct {
	counter  WindowCounter // nil uses only the in-memory limiter
	fallback *InMemoryRateLimiter
	requests int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter. counter may be nil.
func NewRateLimiter(counter WindowCounter, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counter:  counter,
		fallback: NewInMemoryRateLimiter(),
		requests: requests,
		window:   window,
	}
}

func (rl *RateLimiter) identifier(c *gin.Context) string {
	if raw := c.GetHeader(UserIDHeader); raw != "" {
		return "user:" + raw
	}
	return "ip:" + c.ClientIP()
}

func (rl *RateLimiter) count(ctx context.Context, identifier string) (int64, time.Duration) {
	if rl.counter != nil && !rl.counter.IsDegraded() {
		count, ttl, err := rl.counter.SafeIncrWindow(ctx, "ratelimit:"+identifier, rl.window)
		if err == nil {
			return count, ttl
		}
		logger.Warn("Redis rate limit check failed, using in-memory limiter",
			zap.String("identifier", identifier),
			zap.Error(err))
	}
	return rl.fallback.Incr(identifier, rl.window)
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, ttl := rl.count(c.Request.Context(), rl.identifier(c))

		remaining := int64(rl.requests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > int64(rl.requests) {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("Rate limit exceeded (%d requests per %s)", rl.requests, rl.window))
			c.Abort()
			return
		}

		c.Next()
	}
}

package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/pkg/response"
)

// rateLimitEntry tracks requests for a single client
type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// RateLimiter implements a fixed window in-memory rate limiter
type RateLimiter struct {
	mu              sync.Mutex
	clients         map[string]*rateLimitEntry
	requestsPerMin  int
	cleanupInterval time.Duration
	now             func() time.Time
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		clients:         make(map[string]*rateLimitEntry),
		requestsPerMin:  requestsPerMinute,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
		stop:            make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup removes expired entries periodically
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, entry := range rl.clients {
				if now.After(entry.resetTime) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Allow checks if a request is allowed for the given client. When it is not,
// the time until the window resets is returned as well.
func (rl *RateLimiter) Allow(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, exists := rl.clients[client]

	if !exists || now.After(entry.resetTime) {
		rl.clients[client] = &rateLimitEntry{
			count:     1,
			resetTime: now.Add(time.Minute),
		}
		return true, 0
	}

	if entry.count >= rl.requestsPerMin {
		return false, entry.resetTime.Sub(now)
	}

	entry.count++
	return true, 0
}

// RateLimitMiddleware limits requests per API key and client IP
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()
		if key, ok := apiKeyFromRequest(c); ok && key != "" {
			client = key + "|" + client
		}

		allowed, retryAfter := limiter.Allow(client)
		if !allowed {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// EffectiveLimit combines the per-minute rate with the burst allowance
func EffectiveLimit(requestsPerMinute, burst int) int {
	if burst > 0 {
		return requestsPerMinute + burst
	}
	return requestsPerMinute
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type RateLimitMiddleware struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimitMiddleware(rps float64, burst int) *RateLimitMiddleware {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	m := &RateLimitMiddleware{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go m.cleanup()
	return m
}

// PerIP applies a token-bucket limit per client IP. State is in-process only;
// each instance enforces its own share of the limit.
func (m *RateLimitMiddleware) PerIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests, slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *RateLimitMiddleware) allow(key string) bool {
	m.mu.Lock()
	client, ok := m.limiters[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.limiters[key] = client
	}
	client.lastSeen = time.Now()
	m.mu.Unlock()

	return client.limiter.Allow()
}

// cleanup drops limiters idle for more than 10 minutes so the map does not
// grow without bound.
func (m *RateLimitMiddleware) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		m.mu.Lock()
		for key, client := range m.limiters {
			if client.lastSeen.Before(cutoff) {
				delete(m.limiters, key)
			}
		}
		m.mu.Unlock()
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const staleClientWindow = 5 * time.Minute

// RateLimiter enforces per-client request throttling.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientEntry
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the given requests-per-minute budget.
// A non-positive budget disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		clients: make(map[string]*clientEntry),
	}
}

// Handler returns the gin middleware enforcing the limit keyed by client IP.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	entry, ok := r.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(r.limit, r.burst), lastSeen: now}
		r.clients[key] = entry
		for k, e := range r.clients {
			if now.Sub(e.lastSeen) > staleClientWindow {
				delete(r.clients, k)
			}
		}
	}
	entry.lastSeen = now
	r.mu.Unlock()

	return entry.limiter.Allow()
}

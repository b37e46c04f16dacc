package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/podlab/podcast-backend-go/pkg/response"
)

// limiter is a sliding-window per-client request counter. Stream connections
// count once at subscribe time, not per delivered event.
type limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

func newLimiter(limit int, window time.Duration) *limiter {
	l := &limiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
	go l.sweep()
	return l
}

// allow records the hit and reports whether the client is within its budget.
func (l *limiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	recent := l.prune(client, now)
	if len(recent) >= l.limit {
		l.hits[client] = recent
		return false
	}
	l.hits[client] = append(recent, now)
	return true
}

// prune drops hits older than the window. Caller holds l.mu.
func (l *limiter) prune(client string, now time.Time) []time.Time {
	all := l.hits[client]
	recent := all[:0]
	for _, t := range all {
		if now.Sub(t) < l.window {
			recent = append(recent, t)
		}
	}
	return recent
}

// sweep drops idle clients so the hit map cannot grow unbounded.
func (l *limiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for client := range l.hits {
			if recent := l.prune(client, now); len(recent) == 0 {
				delete(l.hits, client)
			} else {
				l.hits[client] = recent
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit rejects clients exceeding limit requests per window with a 429.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	l := newLimiter(limit, window)

	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}
		c.Next()
	}
}

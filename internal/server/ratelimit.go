package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiters hands out one token bucket per client address. POS
// terminals at some venues share an uplink, so limits are keyed on IP
// rather than device key.
type clientLimiters struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type clientEntry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps float64, burst int, idleTTL time.Duration) *clientLimiters {
	l := &clientLimiters{
		clients: make(map[string]*clientEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
	}
	go l.evictIdle()
	return l
}

// evictIdle drops buckets for addresses that went quiet, keeping the
// map bounded over a multi-day event.
func (l *clientLimiters) evictIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		for addr, e := range l.clients {
			if time.Since(e.lastSeen) > l.idleTTL {
				delete(l.clients, addr)
			}
		}
		l.mu.Unlock()
	}
}

func (l *clientLimiters) allow(addr string) bool {
	l.mu.Lock()
	e, ok := l.clients[addr]
	if !ok {
		e = &clientEntry{bucket: rate.NewLimiter(l.rps, l.burst)}
		l.clients[addr] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.bucket.Allow()
}

// RateLimitMiddleware rejects clients exceeding rps (with bursts up to
// burst). Buckets for clients idle longer than idleTTL are evicted.
func RateLimitMiddleware(rps float64, burst int, idleTTL time.Duration) gin.HandlerFunc {
	limiters := newClientLimiters(rps, burst, idleTTL)

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

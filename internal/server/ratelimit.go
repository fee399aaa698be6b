package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucketIdleTimeout is how long a client bucket survives without traffic
// before eviction.
const bucketIdleTimeout = 10 * time.Minute

// limiter hands out one token bucket per client IP, evicting buckets that
// have been idle for a while so the map does not grow without bound.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiter(rps float64, burst int) *limiter {
	return &limiter{
		buckets: map[string]*bucket{},
		rate:    rate.Limit(rps),
		burst:   burst,
	}
}

func (l *limiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
		if len(l.buckets)%128 == 0 {
			l.evict(now)
		}
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// evict removes idle buckets. Called with l.mu held.
func (l *limiter) evict(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdleTimeout {
			delete(l.buckets, k)
		}
	}
}

// rateLimit rejects clients that exhausted their bucket with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.allow(host) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const connLimiterTTL = 5 * time.Minute

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// connLimiter is a per-IP token bucket guarding the WebSocket handshake.
type connLimiter struct {
	mu        sync.Mutex
	rate      rate.Limit
	burst     int
	ttl       time.Duration
	now       func() time.Time
	limiters  map[string]*ipLimiterEntry
	lastSweep time.Time
}

// newConnLimiter allows perSec handshakes per IP with the given burst. A
// non-positive rate disables limiting.
func newConnLimiter(perSec float64, burst int) *connLimiter {
	limit := rate.Limit(perSec)
	if perSec <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &connLimiter{
		rate:     limit,
		burst:    burst,
		ttl:      connLimiterTTL,
		now:      time.Now,
		limiters: make(map[string]*ipLimiterEntry),
	}
}

func (l *connLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.ttl {
		l.sweep(now)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastAccess = now

	return entry.limiter.AllowN(now, 1)
}

// sweep drops limiters not used within the TTL. Callers hold mu.
func (l *connLimiter) sweep(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastAccess) >= l.ttl {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}

// clientIP is the host part of RemoteAddr, which handlers.ProxyHeaders
// has already rewritten from X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

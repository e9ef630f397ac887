package http

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters sync.Map
}

// NewIPRateLimiter defaults a non-positive burst to max(1, limit) so a missing burst never
// rejects every request.
func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = max(1, int(limit))
	}
	return &IPRateLimiter{limit: limit, burst: burst}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	limiter, ok := l.limiters.Load(ip)
	if !ok {
		limiter, _ = l.limiters.LoadOrStore(ip, rate.NewLimiter(l.limit, l.burst))
	}
	return limiter.(*rate.Limiter).Allow()
}

func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			writeFailure(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package httpadapter

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	backpressureWait     = 150 * time.Millisecond
	limiterSweepInterval = 3 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

// clientLimiters keeps one token bucket per client address. Idle entries are
// swept lazily on the request path so no background goroutine is needed.
type clientLimiters struct {
	mu        sync.Mutex
	qps       rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(qps float64, burst int) *clientLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiters{
		qps:       rate.Limit(qps),
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

func (cl *clientLimiters) allow(clientKey string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	if now.Sub(cl.lastSweep) > limiterSweepInterval {
		for key, c := range cl.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(cl.clients, key)
			}
		}
		cl.lastSweep = now
	}

	c, ok := cl.clients[clientKey]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(cl.qps, cl.burst)}
		cl.clients[clientKey] = c
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

// rateLimitMiddleware rejects over-limit clients with 429. Only /v1/* is
// limited: health probes and metrics scrapes always pass.
func (rt *Router) rateLimitMiddleware(next http.Handler) http.Handler {
	if rt.limiters == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		if !rt.limiters.allow(clientAddr(r)) {
			if rt.metrics != nil {
				rt.metrics.RecordRateLimited(rt.cfg.ServiceName, r.URL.Path)
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "request rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware bounds concurrent /v1/* requests. A request that
// cannot claim a slot within wait is turned away with 503 instead of piling
// onto an already saturated pipeline.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			writeError(w, http.StatusServiceUnavailable, codeRateLimited, "server is overloaded, retry later")
		case <-r.Context().Done():
		}
	})
}

// clientAddr extracts the client key for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the peer address.
func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if addr := strings.TrimSpace(first); addr != "" {
			return addr
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

package httpapi

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hopline-ai/hopline/internal/metrics"
)

// ClientLimiter keeps one token bucket per client address. Idle buckets are
// swept after an hour.
type ClientLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a per-client limiter allowing rps requests per
// second with the given burst.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	l := &ClientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientBucket),
	}
	go l.sweep()
	return l
}

// Allow reports whether the client may proceed.
func (l *ClientLimiter) Allow(clientKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.clients[clientKey]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientKey] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (l *ClientLimiter) sweep() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-time.Hour)
		l.mu.Lock()
		for key, b := range l.clients {
			if b.lastSeen.Before(cutoff) {
				delete(l.clients, key)
			}
		}
		l.mu.Unlock()
	}
}

// clientKey derives the rate-limit key, preferring the first proxy-forwarded
// address over the socket peer.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects over-limit clients with 429. A nil limiter
// disables limiting.
func RateLimitMiddleware(limiter *ClientLimiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientKey(r)) {
			metrics.RateLimited.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush preserves SSE flushing through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack preserves WebSocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// MetricsMiddleware records request count and latency per route.
func MetricsMiddleware(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

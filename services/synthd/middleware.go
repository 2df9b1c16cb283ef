package synthd

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"synthdollar/observability"
)

type requestIDKey struct{}

const requestIDHeader = "X-Request-Id"

// requestID tags every request with a caller-supplied or generated identifier
// so log lines and audit rows can be correlated.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestID extracts the request identifier stamped by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observe records per-route latency and outcome metrics and emits one access
// log line per request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		observability.Service().Observe(route, r.Method, recorder.status, duration)
		s.logger.Info("http request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", recorder.status,
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// RateLimit bounds per-client request rates for one route class.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// RateLimiter applies per-client token buckets keyed by route class.
type RateLimiter struct {
	limits map[string]RateLimit

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewRateLimiter constructs a limiter; classes absent from limits pass through.
func NewRateLimiter(limits map[string]RateLimit) *RateLimiter {
	return &RateLimiter{limits: limits, visitors: make(map[string]*rate.Limiter)}
}

// Middleware enforces the named limit class.
func (l *RateLimiter) Middleware(class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, ok := l.limits[class]
			if !ok || limit.RequestsPerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if !l.obtain(class+"|"+clientID(r), limit).Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) obtain(key string, cfg RateLimit) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.visitors[key]; ok {
		return limiter
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), burst)
	l.visitors[key] = limiter
	return limiter
}

func clientID(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AlexZinkM/fident/internal/handler"
	"github.com/AlexZinkM/fident/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the per-request id in responses.
const RequestIDHeader = "X-Request-ID"

// Options tunes the router middleware.
type Options struct {
	RateLimit float64 // requests per second; 0 disables limiting
	Log       *zap.Logger
}

// SetupRouter sets up router with handlers
func SetupRouter(h *handler.OnboardingHandler, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)
	mux.Handle("/metrics", promhttp.Handler())

	// Onboarding endpoints
	mux.HandleFunc("/onboarding/state", h.State)
	mux.HandleFunc("/onboarding/resolve", h.Resolve)
	mux.HandleFunc("/onboarding/create", h.Create)
	mux.HandleFunc("/onboarding/secret", h.Secret)
	mux.HandleFunc("/onboarding/acknowledge", h.Acknowledge)
	mux.HandleFunc("/onboarding/restore", h.Restore)
	mux.HandleFunc("/onboarding/reset", h.Reset)
	mux.HandleFunc("/onboarding/sync", h.Sync)

	// Identity binding endpoints
	mux.HandleFunc("/identity/bind", h.Bind)
	mux.HandleFunc("/identity/resubmit", h.Resubmit)

	// Wallet endpoints
	mux.HandleFunc("/wallet/balance", h.GetBalance)

	var next http.Handler = mux
	if opts.RateLimit > 0 {
		next = rateLimit(rate.NewLimiter(rate.Limit(opts.RateLimit), burstFor(opts.RateLimit)), next)
	}
	next = loopbackOnly(log, next)
	return observe(log, mux, next)
}

// loopbackOnly refuses requests whose Host is not a loopback name. A page on
// another origin can rebind its own hostname to 127.0.0.1, but it cannot make
// the browser send a loopback Host header, so this keeps such pages away from
// the recovery phrase.
func loopbackOnly(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopbackHost(r.Host) {
			log.Warn("rejected non-loopback host", zap.String("host", r.Host), zap.String("path", r.URL.Path))
			http.Error(w, "Forbidden host", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackHost(hostport string) bool {
	if hostport == "" {
		return true
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func burstFor(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}

func rateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe tags each request with an id, counts it and logs it. Request
// bodies are never logged.
func observe(log *zap.Logger, mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, route := mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(route, strconv.Itoa(rec.status))
		log.Debug("request served",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/services"
)

const rateLimitedMessage = "too many requests, please slow down"

// newLimiter returns nil when rps <= 0, which disables limiting.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// rateLimit rejects requests with 429 once the shared token bucket is empty.
func rateLimit(limiter *rate.Limiter, m *metrics.Metrics) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				m.IncRateLimited()
				log.Warn().Str("path", r.URL.Path).Str("remote_addr", r.RemoteAddr).Msg("Rate limit exceeded")
				writeJSONError(w, http.StatusTooManyRequests, rateLimitedMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Instrument tags each request with a trace id (X-Request-ID) and records
// its route, status and duration.
func Instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Request-ID")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", traceID)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(services.WithTraceID(r.Context(), traceID)))
			elapsed := time.Since(start)

			m.ObserveHTTP(route, r.Method, rec.status, elapsed)
			log.Debug().
				Str("trace_id", traceID).
				Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Dur("duration", elapsed).
				Msg("HTTP request")
		})
	}
}

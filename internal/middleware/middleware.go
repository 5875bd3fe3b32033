package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
)

const RequestIDHeader = "X-Request-ID"

// LogRequest attaches a request-scoped logger to the context, logs one line
// per request and counts requests by status class.
func LogRequest(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			rid := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, rid)

			logger := log.With().
				Str("request_id", rid).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Logger()
			r = r.WithContext(logger.WithContext(r.Context()))

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			duration := time.Since(startTime)
			labels := map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": statusClass(rw.statusCode),
			}
			reg.Inc(r.Context(), "http_requests_total", labels, 1)

			event := logger.Info()
			if rw.statusCode >= 500 {
				event = logger.Error()
				reg.Inc(r.Context(), "http_requests_errors_total", labels, 1)
			}
			event.Int("status", rw.statusCode).Dur("duration", duration).Msg("http request served")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "0"
	}
	return strconv.Itoa(code/100) + "xx"
}

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Logging is a middleware that logs HTTP requests.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		entry := logrus.WithFields(logrus.Fields{
			"request_id":  GetRequestID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case wrapped.statusCode >= 500:
			entry.Error("request")
		case wrapped.statusCode >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

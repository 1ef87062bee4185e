package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/logging"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	user       string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

type userRecorder struct{}

// LoggerMiddleware writes one access log line per request. It runs outside
// the auth middleware, so the user is reported back through the request
// context.
func LoggerMiddleware() func(http.Handler) http.Handler {
	log := logging.Component("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r.WithContext(withUserRecorder(r.Context(), rw)))

			user := rw.user
			if user == "" {
				user = "anonymous"
			}

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"status":      rw.statusCode,
				"duration":    time.Since(start).String(),
				"user":        user,
			})
			switch {
			case rw.statusCode >= 500:
				entry.Error("request failed")
			case rw.statusCode >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request handled")
			}
		})
	}
}

func withUserRecorder(ctx context.Context, rw *responseWriter) context.Context {
	return context.WithValue(ctx, userRecorder{}, rw)
}

// recordUser reports the authenticated user to the access log.
func recordUser(ctx context.Context, userID string) {
	if rw, ok := ctx.Value(userRecorder{}).(*responseWriter); ok {
		rw.user = userID
	}
}

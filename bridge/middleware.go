package bridge

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/aureus-sentinel/bridge/internal/obslog"
)

// withAuth enforces AuthToken as a bearer token on every wrapped route
// when one is configured. Comparison is constant-time to avoid leaking
// the token byte-by-byte through response timing.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.AuthToken == "" {
		return next
	}
	expected := []byte("Bearer " + s.AuthToken)
	return func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), expected) != 1 {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid Authorization header", "")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// withApproverAuth enforces ApproverToken as a bearer token on the
// human-approval-grant route. It is the same constant-time bearer check
// as withAuth, against a deliberately separate credential: the whole
// point of this middleware is that holding AuthToken must never be
// enough to pass it.
func (s *Server) withApproverAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.ApproverToken == "" {
		return next
	}
	expected := []byte("Bearer " + s.ApproverToken)
	return func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), expected) != 1 {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid Authorization header", "")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// statusResponseWriter captures the status code written so the request
// logger can report it after the handler completes.
type statusResponseWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLogger records one obslog entry per request. Ambient logging is
// fail-open by construction (obslog.Logger never blocks on signing
// errors) so it never becomes a reason a request fails.
func requestLogger(log *obslog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusResponseWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)
			if log != nil {
				log.Info("http request", obslog.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     sw.code,
					"durationMs": time.Since(start).Milliseconds(),
					"remoteAddr": r.RemoteAddr,
				})
			}
		})
	}
}

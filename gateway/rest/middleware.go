package rest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/botapi/metric"
)

// getOrGenerateRequestID extracts the request ID from headers or
// generates a new one. Format: 16 hex characters (8 random bytes).
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if random generation fails
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestMiddleware stamps a request ID, applies CORS, enforces the
// body size limit, and records access logs and metrics.
func requestMiddleware(next http.Handler, cfg MiddlewareConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		applyCORS(w, r, cfg.AllowedOrigins)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if cfg.MaxRequestBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		if cfg.Metrics != nil {
			// The route pattern keeps label cardinality bounded.
			operation := r.Pattern
			if operation == "" {
				operation = r.Method + " unmatched"
			}
			cfg.Metrics.ObserveRequest("rest", operation,
				fmt.Sprintf("%d", rec.status), elapsed)
		}
		cfg.Logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds())
	})
}

// MiddlewareConfig carries the cross-cutting request settings.
type MiddlewareConfig struct {
	AllowedOrigins  []string
	MaxRequestBytes int64
	Metrics         *metric.Metrics
	Logger          *slog.Logger
}

// applyCORS sets CORS headers when the origin is on the allowlist. An
// entry of "*" allows any origin.
func applyCORS(w http.ResponseWriter, r *http.Request, allowedOrigins []string) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, allowedOrigin := range allowedOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

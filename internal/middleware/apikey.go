package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

const apiKeyHeader = "X-API-KEY"

// APIKeyAuth guards service-to-service calls with the pre-shared key.
// Health endpoints stay reachable without a key.
func APIKeyAuth(expected string, logger *slog.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			provided := strings.TrimSpace(r.Header.Get(apiKeyHeader))
			if provided == "" {
				logger.Warn("missing API key", "path", r.URL.Path)
				apiKeyError(w, "Missing X-API-KEY header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				logger.Warn("invalid API key", "path", r.URL.Path)
				apiKeyError(w, "Invalid X-API-KEY")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHealthPath(path string) bool {
	return path == "/actuator/health" || path == "/api/v1/invoices/health" || path == "/metrics"
}

func apiKeyError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

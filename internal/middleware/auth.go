// Package middleware provides the request guards of both services: bearer
// token authentication on the gateway and the pre-shared API key on the
// accounts service. Health endpoints bypass both.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

type contextKey string

const userContextKey contextKey = "auth.user"

// TokenChecker validates bearer tokens and resolves their subject.
type TokenChecker interface {
	Validate(ctx context.Context, token string) error
	ExtractSubject(token string) (string, error)
}

// UserFrom returns the authenticated username placed by BearerAuth.
func UserFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userContextKey).(string)
	return u, ok
}

// BearerAuth rejects requests without a valid bearer token and stores the
// token subject in the request context.
func BearerAuth(tokens TokenChecker, logger *slog.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "Missing bearer token")
				return
			}
			if err := tokens.Validate(r.Context(), token); err != nil {
				logger.Warn("bearer token rejected", "path", r.URL.Path, "error", err)
				unauthorized(w, "Invalid or expired token")
				return
			}
			subject, err := tokens.ExtractSubject(token)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, prefix) {
		return header[len(prefix):]
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

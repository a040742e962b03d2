// Package middleware provides HTTP middleware for the signing gateway.
package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/tradewind-labs/signing_service/internal/auth"
	"github.com/tradewind-labs/signing_service/pkg/logger"
)

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the authenticated user attached by AuthMiddleware.
func UserFromContext(ctx context.Context) *auth.User {
	u, _ := ctx.Value(userContextKey).(*auth.User)
	return u
}

// AuthMiddleware resolves bearer tokens to configured users.
type AuthMiddleware struct {
	tokens    *auth.TokenService
	logger    *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates the authentication middleware. Paths in
// skipPaths (login, health, metrics) bypass it.
func NewAuthMiddleware(tokens *auth.TokenService, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("middleware")
	}

	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		tokens:    tokens,
		logger:    log,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "invalid Authorization header format")
			return
		}

		user, err := m.tokens.Verify(parts[1])
		if err != nil {
			// expired vs invalid vs removed user matters only for the log line
			m.logger.WithError(err).WithField("path", r.URL.Path).Warn("token rejected")
			unauthorized(w, "could not validate credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ClientIP extracts the caller address, trusting X-Forwarded-For when the
// gateway sits behind a proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	return remoteHost(r)
}

// remoteHost returns the transport-level peer address, ignoring proxy
// headers. Rate limiting keys on this so a forged X-Forwarded-For cannot
// mint fresh limiter buckets.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

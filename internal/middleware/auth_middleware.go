package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/qcom/accounts/internal/models"
	"github.com/qcom/accounts/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *logrus.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// ClaimsFromContext returns the access token claims stored by RequireAuth or OptionalAuth.
func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *service.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header")
			return
		}

		claims, message := m.authenticate(authHeader)
		if claims == nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// OptionalAuth attaches claims when a valid bearer token is present and
// otherwise passes the request through unchanged.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, message := m.authenticate(authHeader)
		if claims == nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if claims.Role != role {
				m.logger.WithFields(logrus.Fields{
					"user_id": claims.UserID(),
					"role":    claims.Role,
				}).Warn("Role check failed")
				respondError(w, http.StatusForbidden, "FORBIDDEN", "Permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) authenticate(authHeader string) (*service.Claims, string) {
	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, "Invalid authorization header format"
	}

	claims, err := m.verifier.VerifyToken(parts[1])
	if err != nil {
		m.logger.WithError(err).Debug("Token verification failed")
		return nil, "Invalid or expired token"
	}

	if claims.Type != service.TokenTypeAccess {
		return nil, "Invalid token type"
	}

	return claims, ""
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qcom/accounts/internal/config"
	"github.com/qcom/accounts/internal/models"
	"github.com/qcom/accounts/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddleware(t *testing.T) (*AuthMiddleware, *service.JWTService) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	jwtService, err := service.NewJWTService(&config.JWTConfig{
		SecretKey:     "0123456789abcdef0123456789abcdef",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: time.Hour,
	}, logger)
	require.NoError(t, err)

	return NewAuthMiddleware(jwtService, logger), jwtService
}

func echoUserID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(claims.UserID()))
	})
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	m, jwtService := newTestMiddleware(t)
	pair, _, err := jwtService.GenerateTokenPair(&models.User{ID: "user-1", Role: models.RoleUser}, "")
	require.NoError(t, err)

	h := m.RequireAuth(echoUserID())

	rec := serve(h, "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())

	for _, header := range []string{"", "Token abc", "Bearer", "Bearer not-a-jwt", "Bearer " + pair.RefreshToken} {
		rec := serve(h, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestOptionalAuth(t *testing.T) {
	m, jwtService := newTestMiddleware(t)
	pair, _, err := jwtService.GenerateTokenPair(&models.User{ID: "user-1"}, "")
	require.NoError(t, err)

	h := m.OptionalAuth(echoUserID())

	assert.Equal(t, "anonymous", serve(h, "").Body.String())
	assert.Equal(t, "user-1", serve(h, "Bearer "+pair.AccessToken).Body.String())
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer nope").Code)
}

func TestRequireRole(t *testing.T) {
	m, jwtService := newTestMiddleware(t)
	h := m.RequireAuth(m.RequireRole(models.RoleAdmin)(echoUserID()))

	member, _, err := jwtService.GenerateTokenPair(&models.User{ID: "user-1", Role: models.RoleUser}, "")
	require.NoError(t, err)
	admin, _, err := jwtService.GenerateTokenPair(&models.User{ID: "admin-1", Role: models.RoleAdmin}, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer "+member.AccessToken).Code)

	rec := serve(h, "Bearer "+admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(m.RequireRole(models.RoleAdmin)(echoUserID()), "").Code)
}

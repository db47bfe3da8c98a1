package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qcom/accounts/internal/middleware"
	"github.com/qcom/accounts/internal/models"
	"github.com/sirupsen/logrus"
)

func NewRouter(
	authHandlers *AuthHandlers,
	accountHandlers *AccountHandlers,
	healthHandlers *HealthHandlers,
	authMiddleware *middleware.AuthMiddleware,
	allowedOrigins []string,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.Logging(logger))

	router.HandleFunc("/health", healthHandlers.Health).Methods(http.MethodGet, http.MethodOptions)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandlers.Register).Methods(http.MethodPost, http.MethodOptions)
	auth.HandleFunc("/login", authHandlers.Login).Methods(http.MethodPost, http.MethodOptions)
	auth.HandleFunc("/password/forgot", authHandlers.ForgotPassword).Methods(http.MethodPost, http.MethodOptions)
	auth.HandleFunc("/password/reset", authHandlers.ResetPassword).Methods(http.MethodPost, http.MethodOptions)
	auth.HandleFunc("/refresh", authHandlers.RefreshToken).Methods(http.MethodPost, http.MethodOptions)

	optional := auth.NewRoute().Subrouter()
	optional.Use(authMiddleware.OptionalAuth)
	optional.HandleFunc("/verify-email", authHandlers.VerifyEmail).Methods(http.MethodPost, http.MethodOptions)
	optional.HandleFunc("/resend-otp", authHandlers.ResendOTP).Methods(http.MethodPost, http.MethodOptions)

	protectedAuth := auth.NewRoute().Subrouter()
	protectedAuth.Use(authMiddleware.RequireAuth)
	protectedAuth.HandleFunc("/logout", authHandlers.Logout).Methods(http.MethodPost, http.MethodOptions)

	me := api.PathPrefix("/me").Subrouter()
	me.Use(authMiddleware.RequireAuth)
	me.HandleFunc("", accountHandlers.GetMe).Methods(http.MethodGet, http.MethodOptions)
	me.HandleFunc("", accountHandlers.UpdateMe).Methods(http.MethodPatch)
	me.HandleFunc("", accountHandlers.DeleteMe).Methods(http.MethodDelete)
	me.HandleFunc("/password", accountHandlers.ChangePassword).Methods(http.MethodPost, http.MethodOptions)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMiddleware.RequireAuth)
	admin.Use(authMiddleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/users/{id}", accountHandlers.DeleteUser).Methods(http.MethodDelete, http.MethodOptions)
	admin.HandleFunc("/users/{id}/role", accountHandlers.SetRole).Methods(http.MethodPut, http.MethodOptions)

	return router
}

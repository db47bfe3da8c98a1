package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/qcom/accounts/internal/middleware"
	"github.com/qcom/accounts/internal/models"
	"github.com/qcom/accounts/internal/service"
	"github.com/sirupsen/logrus"
)

// AccountHandlers serve the signed in user's own account and the admin routes.
// Every route is mounted behind RequireAuth.
type AccountHandlers struct {
	accounts Accounts
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewAccountHandlers(accounts Accounts, logger *logrus.Logger) *AccountHandlers {
	return &AccountHandlers{
		accounts: accounts,
		validate: newValidator(),
		logger:   logger,
	}
}

type UpdateProfileRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,e164"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type SetRoleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=user admin"`
}

func (h *AccountHandlers) GetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.GetUser(r.Context(), claims.UserID())
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *AccountHandlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), claims.UserID(), service.ProfileUpdate{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *AccountHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), claims.UserID(), req.CurrentPassword, req.NewPassword); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

func (h *AccountHandlers) DeleteMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), claims.UserID()); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	if err := h.accounts.DeleteUser(r.Context(), claims, mux.Vars(r)["id"]); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req SetRoleRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	user, err := h.accounts.SetRole(r.Context(), claims, mux.Vars(r)["id"], req.Role)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *AccountHandlers) claims(w http.ResponseWriter, r *http.Request) (*service.Claims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}
	return claims, ok
}

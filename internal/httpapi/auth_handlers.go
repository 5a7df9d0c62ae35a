package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/almoxweb/almoxweb/internal/shared"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "malformed json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		// Malformed email shapes are rejected as invalid credentials, not
		// as a validation error, to keep the login surface uniform.
		shared.RespondError(w, h.logger, shared.ErrInvalidCredentials)
		return
	}
	sess, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      toUserView(user),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), shared.BearerToken(r)); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		shared.RespondError(w, h.logger, shared.ErrInvalidSession)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toUserView(user))
}

func (h *Handler) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		shared.RespondError(w, h.logger, shared.ErrInvalidSession)
		return
	}
	if err := h.service.Permit(r.Context(), user, chi.URLParam(r, "module")); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

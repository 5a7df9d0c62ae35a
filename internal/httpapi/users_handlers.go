package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

type createUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "malformed json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "missing required fields"))
		return
	}
	created, err := h.service.CreateUser(r.Context(), users.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     users.Role(req.Role),
	}, userFromContext(r.Context()))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toUserView(created))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	list, err := h.service.Directory().List(r.Context(), activeOnly)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	views := make([]userView, len(list))
	for i := range list {
		views[i] = toUserView(&list[i])
	}
	shared.RespondJSON(w, http.StatusOK, views)
}

type updateUserRequest struct {
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required"`
	Role   string `json:"role" validate:"required"`
	Active *bool  `json:"active" validate:"required"`
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "malformed json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "missing required fields"))
		return
	}
	updated, err := h.service.UpdateUser(r.Context(), id, users.UpdateInput{
		Name:     req.Name,
		Email:    req.Email,
		Role:     users.Role(req.Role),
		IsActive: *req.Active,
	}, userFromContext(r.Context()))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toUserView(updated))
}

func (h *Handler) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeactivateUser(r.Context(), id, userFromContext(r.Context())); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// handleChangePassword is self-service only: the target id must match
// the authenticated user.
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	actor := userFromContext(r.Context())
	if actor == nil || actor.ID != id {
		shared.RespondError(w, h.logger, shared.ErrForbidden)
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "malformed json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "missing required fields"))
		return
	}
	if err := h.service.ChangePassword(r.Context(), id, req.OldPassword, req.NewPassword, actor); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	effective, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, effective)
}

func (h *Handler) handleReplacePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var grants map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&grants); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "malformed json"))
		return
	}
	if err := h.service.ReplacePermissions(r.Context(), id, grants, userFromContext(r.Context())); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.NewValidationError("id", "must be an integer")
	}
	return id, nil
}

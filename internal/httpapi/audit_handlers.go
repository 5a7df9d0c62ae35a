package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/almoxweb/almoxweb/internal/audit"
	"github.com/almoxweb/almoxweb/internal/shared"
)

type auditEntryView struct {
	ID          int64          `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	ActorID     *int64         `json:"actor_id"`
	ActorName   string         `json:"actor_name"`
	ActorEmail  string         `json:"actor_email,omitempty"`
	ActorRole   string         `json:"actor_role,omitempty"`
	Module      string         `json:"module"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type,omitempty"`
	EntityID    *int64         `json:"entity_id,omitempty"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	Result      string         `json:"result"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	DurationMs  *int64         `json:"duration_ms,omitempty"`
}

func (h *Handler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := audit.Filters{
		Actor:  q.Get("actor"),
		Module: q.Get("module"),
		Action: q.Get("action"),
		Result: q.Get("result"),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.RespondError(w, h.logger, shared.NewValidationError("from", "must be RFC 3339"))
			return
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.RespondError(w, h.logger, shared.NewValidationError("to", "must be RFC 3339"))
			return
		}
		filters.To = t
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.RespondError(w, h.logger, shared.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		filters.Limit = limit
	}

	entries, err := h.service.Trail().Query(r.Context(), filters)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	views := make([]auditEntryView, len(entries))
	for i, e := range entries {
		views[i] = auditEntryView{
			ID:          e.ID,
			Timestamp:   e.Timestamp,
			ActorID:     e.Actor.ID,
			ActorName:   e.Actor.Name,
			ActorEmail:  e.Actor.Email,
			ActorRole:   e.Actor.Role,
			Module:      e.Module,
			Action:      e.Action,
			EntityType:  e.EntityType,
			EntityID:    e.EntityID,
			Before:      e.Before,
			After:       e.After,
			Result:      e.Result,
			ErrorDetail: e.ErrorDetail,
			DurationMs:  e.DurationMs,
		}
	}
	shared.RespondJSON(w, http.StatusOK, views)
}

type recordAuditRequest struct {
	Module      string         `json:"module" validate:"required"`
	Action      string         `json:"action" validate:"required"`
	EntityType  string         `json:"entity_type"`
	EntityID    *int64         `json:"entity_id"`
	Before      map[string]any `json:"before"`
	After       map[string]any `json:"after"`
	Result      string         `json:"result"`
	ErrorDetail string         `json:"error_detail"`
	DurationMs  *int64         `json:"duration_ms"`
}

// handleRecordAudit lets collaborator modules append their own domain
// mutations to the unified trail. The actor is always the session
// owner; callers cannot impersonate.
func (h *Handler) handleRecordAudit(w http.ResponseWriter, r *http.Request) {
	var req recordAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "malformed json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, h.logger, shared.NewValidationError("body", "module and action are required"))
		return
	}
	h.service.Trail().Record(r.Context(), audit.Draft{
		Actor:       audit.ActorFromUser(userFromContext(r.Context())),
		Module:      req.Module,
		Action:      req.Action,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Before:      req.Before,
		After:       req.After,
		Result:      req.Result,
		ErrorDetail: req.ErrorDetail,
		DurationMs:  req.DurationMs,
	})
	w.WriteHeader(http.StatusAccepted)
}

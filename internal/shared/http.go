package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// RespondJSON writes v as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// RespondError maps the error taxonomy onto HTTP statuses. Validation
// details are surfaced verbatim; persistence failures collapse into a
// plain 500 after being logged by the caller.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case err == nil:
		return
	case isValidation(err):
		ve, _ := AsValidation(err)
		RespondJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, ErrInvalidCredentials):
		RespondJSON(w, http.StatusUnauthorized, errorBody{Error: ErrInvalidCredentials.Error()})
	case errors.Is(err, ErrInvalidSession):
		RespondJSON(w, http.StatusUnauthorized, errorBody{Error: ErrInvalidSession.Error()})
	case errors.Is(err, ErrForbidden):
		RespondJSON(w, http.StatusForbidden, errorBody{Error: ErrForbidden.Error()})
	case errors.Is(err, ErrNotFound):
		RespondJSON(w, http.StatusNotFound, errorBody{Error: ErrNotFound.Error()})
	case errors.Is(err, ErrConflict):
		RespondJSON(w, http.StatusConflict, errorBody{Error: ErrConflict.Error()})
	default:
		if logger != nil {
			logger.Error("internal error", slog.Any("error", err))
		}
		RespondJSON(w, http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
	}
}

func isValidation(err error) bool {
	_, ok := AsValidation(err)
	return ok
}

// BearerToken extracts the bearer credential from the request.
func BearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

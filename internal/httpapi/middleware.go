package httpapi

import (
	"context"
	"net/http"

	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

type userContextKey struct{}

func contextWithUser(ctx context.Context, user *users.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func userFromContext(ctx context.Context) *users.User {
	user, _ := ctx.Value(userContextKey{}).(*users.User)
	return user
}

// requireSession resolves the bearer token on every request needing
// identity and stashes the owning user in the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := shared.BearerToken(r)
		user, err := h.service.RequireSession(r.Context(), token)
		if err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithUser(r.Context(), user)))
	})
}

// requireModule gates the request on a module grant. Runs after
// requireSession.
func (h *Handler) requireModule(moduleKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil {
				shared.RespondError(w, h.logger, shared.ErrInvalidSession)
				return
			}
			if err := h.service.Permit(r.Context(), user, moduleKey); err != nil {
				shared.RespondError(w, h.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

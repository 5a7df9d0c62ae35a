package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almoxweb/almoxweb/internal/auth"
	"github.com/almoxweb/almoxweb/internal/permissions"
	"github.com/almoxweb/almoxweb/internal/users"
)

// Handler wires the JSON API consumed by collaborator modules.
type Handler struct {
	logger     *slog.Logger
	service    *auth.Service
	validate   *validator.Validate
	loginLimit func(http.Handler) http.Handler
}

// NewHandler constructs a Handler. loginLimit may be nil.
func NewHandler(logger *slog.Logger, service *auth.Service, loginLimit func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		service:    service,
		validate:   validator.New(),
		loginLimit: loginLimit,
	}
}

// MountRoutes registers the API under the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.loginLimit != nil {
				r.Use(h.loginLimit)
			}
			r.Post("/auth/login", h.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Post("/auth/logout", h.handleLogout)
			r.Get("/auth/session", h.handleSession)
			r.Get("/auth/permissions/{module}", h.handlePermissionCheck)

			r.Route("/users", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(h.requireModule(permissions.ModuleUsuarios))
					r.Post("/", h.handleCreateUser)
					r.Get("/", h.handleListUsers)
					r.Patch("/{id}", h.handleUpdateUser)
					r.Delete("/{id}", h.handleDeactivateUser)
					r.Get("/{id}/permissions", h.handleListPermissions)
					r.Put("/{id}/permissions", h.handleReplacePermissions)
				})
				r.Post("/{id}/password", h.handleChangePassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.requireModule(permissions.ModuleLogsAuditoria))
				r.Get("/audit", h.handleQueryAudit)
			})
			r.Post("/audit", h.handleRecordAudit)
		})
	})
}

// userView is the caller-facing account shape; the credential hash
// never leaves the service.
type userView struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserView(u *users.User) userView {
	return userView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        string(u.Role),
		Active:      u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

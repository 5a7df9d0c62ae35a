package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/almoxweb/almoxweb/internal/audit"
	"github.com/almoxweb/almoxweb/internal/permissions"
	"github.com/almoxweb/almoxweb/internal/sessions"
	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

// Audit module key for authentication events, which belong to the
// system itself rather than any functional area.
const systemModule = "sistema"

// LoginCounter receives login outcomes for operational monitoring.
type LoginCounter interface {
	IncLogin(result string)
}

// Service is the facade collaborators call. It composes the user
// directory, session store, permission engine and audit trail into the
// login/logout/provisioning use cases, and funnels every mutation
// through the audit log before returning.
type Service struct {
	directory *users.Directory
	store     *sessions.Store
	engine    *permissions.Engine
	trail     *audit.Log
	logger    *slog.Logger
	logins    LoginCounter
}

// NewService constructs the facade. logins may be nil.
func NewService(directory *users.Directory, store *sessions.Store, engine *permissions.Engine, trail *audit.Log, logger *slog.Logger, logins LoginCounter) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{directory: directory, store: store, engine: engine, trail: trail, logger: logger, logins: logins}
}

// Login authenticates credentials and issues a session. Every attempt,
// successful or not, lands on the attempt trail and the audit log; the
// caller-facing error stays generic for all failure causes.
func (s *Service) Login(ctx context.Context, email, password string) (sessions.Session, *users.User, error) {
	start := time.Now()
	user, reason, err := s.directory.AuthenticateCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			s.trail.RecordAttempt(ctx, email, audit.ResultError, reason)
			s.record(ctx, audit.Draft{
				Actor:       audit.SystemActor(),
				Module:      systemModule,
				Action:      audit.ActionLogin,
				EntityType:  "sessao",
				Result:      audit.ResultError,
				ErrorDetail: reason,
				DurationMs:  durationMs(start),
			})
			if s.logins != nil {
				s.logins.IncLogin(audit.ResultError)
			}
		}
		return sessions.Session{}, nil, err
	}

	// Credentials are verified at this point, so the attempt lands on
	// the trail even if session issuance fails below.
	s.trail.RecordAttempt(ctx, email, audit.ResultSuccess, "")

	sess, err := s.store.Issue(ctx, user.ID)
	if err != nil {
		s.record(ctx, audit.Draft{
			Actor:       audit.ActorFromUser(user),
			Module:      systemModule,
			Action:      audit.ActionLogin,
			EntityType:  "sessao",
			Result:      audit.ResultError,
			ErrorDetail: err.Error(),
			DurationMs:  durationMs(start),
		})
		if s.logins != nil {
			s.logins.IncLogin(audit.ResultError)
		}
		return sessions.Session{}, nil, err
	}

	s.record(ctx, audit.Draft{
		Actor:      audit.ActorFromUser(user),
		Module:     systemModule,
		Action:     audit.ActionLogin,
		EntityType: "sessao",
		Result:     audit.ResultSuccess,
		DurationMs: durationMs(start),
	})
	if s.logins != nil {
		s.logins.IncLogin(audit.ResultSuccess)
	}
	return sess, user, nil
}

// Logout revokes the session. Idempotent; an already-invalid token
// still logs out cleanly.
func (s *Service) Logout(ctx context.Context, token string) error {
	actor := audit.SystemActor()
	if user, err := s.store.Resolve(ctx, token); err == nil {
		actor = audit.ActorFromUser(user)
	}
	if err := s.store.Revoke(ctx, token); err != nil {
		return err
	}
	s.record(ctx, audit.Draft{
		Actor:      actor,
		Module:     systemModule,
		Action:     audit.ActionLogout,
		EntityType: "sessao",
		Result:     audit.ResultSuccess,
	})
	return nil
}

// RequireSession resolves the bearer token into its owning user.
func (s *Service) RequireSession(ctx context.Context, token string) (*users.User, error) {
	return s.store.Resolve(ctx, token)
}

// RequirePermission resolves the token and gates the requested module.
// A valid session without the grant yields shared.ErrForbidden,
// distinct from authentication failures since the caller is known.
func (s *Service) RequirePermission(ctx context.Context, token, moduleKey string) (*users.User, error) {
	user, err := s.store.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	granted, err := s.engine.Check(ctx, user, moduleKey)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, shared.ErrForbidden
	}
	return user, nil
}

// Permit gates an already-resolved user on a module key.
func (s *Service) Permit(ctx context.Context, user *users.User, moduleKey string) error {
	granted, err := s.engine.Check(ctx, user, moduleKey)
	if err != nil {
		return err
	}
	if !granted {
		return shared.ErrForbidden
	}
	return nil
}

// CreateUser provisions an account on behalf of actor.
func (s *Service) CreateUser(ctx context.Context, in users.CreateInput, actor *users.User) (*users.User, error) {
	start := time.Now()
	created, err := s.directory.Create(ctx, in, actorID(actor))
	if err != nil {
		s.recordOutcome(ctx, actor, audit.ActionCreate, nil, nil, nil, start, err)
		return nil, err
	}
	id := created.ID
	s.record(ctx, audit.Draft{
		Actor:      audit.ActorFromUser(actor),
		Module:     permissions.ModuleUsuarios,
		Action:     audit.ActionCreate,
		EntityType: "usuario",
		EntityID:   &id,
		After:      userSnapshot(created),
		Result:     audit.ResultSuccess,
		DurationMs: durationMs(start),
	})
	return created, nil
}

// UpdateUser rewrites an account's profile, capturing the pre-image on
// the audit entry.
func (s *Service) UpdateUser(ctx context.Context, id int64, patch users.UpdateInput, actor *users.User) (*users.User, error) {
	start := time.Now()
	before, after, err := s.directory.Update(ctx, id, patch)
	if err != nil {
		s.recordOutcome(ctx, actor, audit.ActionUpdate, &id, nil, nil, start, err)
		return nil, err
	}
	if err := s.store.RefreshUser(ctx, id); err != nil {
		// Stale cache entries age out on their own TTL.
		s.logger.Warn("refresh cached sessions on update", slog.Int64("user_id", id), slog.Any("error", err))
	}
	s.record(ctx, audit.Draft{
		Actor:      audit.ActorFromUser(actor),
		Module:     permissions.ModuleUsuarios,
		Action:     audit.ActionUpdate,
		EntityType: "usuario",
		EntityID:   &id,
		Before:     userSnapshot(before),
		After:      userSnapshot(after),
		Result:     audit.ResultSuccess,
		DurationMs: durationMs(start),
	})
	return after, nil
}

// DeactivateUser soft-deletes an account and revokes its sessions.
func (s *Service) DeactivateUser(ctx context.Context, id int64, actor *users.User) error {
	start := time.Now()
	before, err := s.directory.Deactivate(ctx, id)
	if err != nil {
		s.recordOutcome(ctx, actor, audit.ActionDelete, &id, nil, nil, start, err)
		return err
	}
	if err := s.store.RevokeAllForUser(ctx, id); err != nil {
		// The account is already inactive, so resolution fails regardless;
		// the revocation sweep is retried by the purge job.
		s.logger.Warn("revoke sessions on deactivate", slog.Int64("user_id", id), slog.Any("error", err))
	}
	after := userSnapshot(before)
	after["active"] = false
	s.record(ctx, audit.Draft{
		Actor:      audit.ActorFromUser(actor),
		Module:     permissions.ModuleUsuarios,
		Action:     audit.ActionDelete,
		EntityType: "usuario",
		EntityID:   &id,
		Before:     userSnapshot(before),
		After:      after,
		Result:     audit.ResultSuccess,
		DurationMs: durationMs(start),
	})
	return nil
}

// ChangePassword verifies the old credential, applies the strength
// policy and swaps the hash.
func (s *Service) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string, actor *users.User) error {
	start := time.Now()
	err := s.directory.ChangePassword(ctx, id, oldPassword, newPassword)
	if err != nil {
		s.recordOutcome(ctx, actor, audit.ActionChangePassword, &id, nil, nil, start, err)
		return err
	}
	s.record(ctx, audit.Draft{
		Actor:      audit.ActorFromUser(actor),
		Module:     permissions.ModuleUsuarios,
		Action:     audit.ActionChangePassword,
		EntityType: "usuario",
		EntityID:   &id,
		Result:     audit.ResultSuccess,
		DurationMs: durationMs(start),
	})
	return nil
}

// ReplacePermissions atomically swaps a user's module grants, emitting
// one audit entry summarising the change rather than one per module.
func (s *Service) ReplacePermissions(ctx context.Context, userID int64, grants map[string]bool, actor *users.User) error {
	start := time.Now()
	target, err := s.directory.GetByID(ctx, userID)
	if err != nil {
		s.recordOutcome(ctx, actor, audit.ActionReplacePermissions, &userID, nil, nil, start, err)
		return err
	}
	before, err := s.engine.Effective(ctx, target)
	if err != nil {
		s.recordOutcome(ctx, actor, audit.ActionReplacePermissions, &userID, nil, nil, start, err)
		return err
	}
	if err := s.engine.Replace(ctx, userID, grants); err != nil {
		s.recordOutcome(ctx, actor, audit.ActionReplacePermissions, &userID, nil, nil, start, err)
		return err
	}
	s.record(ctx, audit.Draft{
		Actor:      audit.ActorFromUser(actor),
		Module:     permissions.ModuleUsuarios,
		Action:     audit.ActionReplacePermissions,
		EntityType: "permissoes",
		EntityID:   &userID,
		Before:     permissionSnapshot(before),
		After:      permissionSnapshot(grants),
		Result:     audit.ResultSuccess,
		DurationMs: durationMs(start),
	})
	return nil
}

// EffectivePermissions returns the resolved module map for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) (map[string]bool, error) {
	user, err := s.directory.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.Effective(ctx, user)
}

// Directory exposes read access for handler-level listing.
func (s *Service) Directory() *users.Directory {
	return s.directory
}

// Trail exposes the audit log so collaborator modules append their own
// domain mutations to the unified trail.
func (s *Service) Trail() *audit.Log {
	return s.trail
}

func (s *Service) record(ctx context.Context, draft audit.Draft) {
	s.trail.Record(ctx, draft)
}

// recordOutcome writes the error-result entry for a failed use case.
func (s *Service) recordOutcome(ctx context.Context, actor *users.User, action string, entityID *int64, before, after map[string]any, start time.Time, err error) {
	s.record(ctx, audit.Draft{
		Actor:       audit.ActorFromUser(actor),
		Module:      permissions.ModuleUsuarios,
		Action:      action,
		EntityType:  "usuario",
		EntityID:    entityID,
		Before:      before,
		After:       after,
		Result:      audit.ResultError,
		ErrorDetail: err.Error(),
		DurationMs:  durationMs(start),
	})
}

func actorID(actor *users.User) *int64 {
	if actor == nil {
		return nil
	}
	id := actor.ID
	return &id
}

func userSnapshot(u *users.User) map[string]any {
	if u == nil {
		return nil
	}
	return map[string]any{
		"name":   u.Name,
		"email":  u.Email,
		"role":   string(u.Role),
		"active": u.IsActive,
	}
}

func permissionSnapshot(grants map[string]bool) map[string]any {
	if grants == nil {
		return nil
	}
	snapshot := make(map[string]any, len(grants))
	for key, granted := range grants {
		snapshot[key] = granted
	}
	return snapshot
}

func durationMs(start time.Time) *int64 {
	ms := time.Since(start).Milliseconds()
	return &ms
}

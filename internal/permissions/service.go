package permissions

import (
	"context"
	"errors"

	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

// Engine resolves {user, module} access decisions and maintains the
// per-user override rows.
type Engine struct {
	repo   RepositoryPort
	policy RolePolicy
}

// NewEngine constructs an Engine.
func NewEngine(repo RepositoryPort, policy RolePolicy) *Engine {
	if policy == nil {
		policy = DefaultRolePolicy()
	}
	return &Engine{repo: repo, policy: policy}
}

// Policy exposes the role default table, e.g. for provisioning prefill.
func (e *Engine) Policy() RolePolicy {
	return e.policy
}

// Check resolves access for user on moduleKey. Admins are granted every
// module; dashboard is granted to everyone; otherwise the stored
// override row decides, defaulting to deny when absent.
func (e *Engine) Check(ctx context.Context, user *users.User, moduleKey string) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.Role == users.RoleAdmin {
		return true, nil
	}
	if moduleKey == ModuleDashboard {
		return true, nil
	}
	row, err := e.repo.Get(ctx, user.ID, moduleKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return row.Granted, nil
}

// Effective returns the full module map for a user: every catalog key
// with its resolved grant, consistent with Check.
func (e *Engine) Effective(ctx context.Context, user *users.User) (map[string]bool, error) {
	result := make(map[string]bool, len(Catalog()))
	for _, key := range Catalog() {
		result[key] = user != nil && (user.Role == users.RoleAdmin || key == ModuleDashboard)
	}
	if user == nil || user.Role == users.RoleAdmin {
		return result, nil
	}
	rows, err := e.repo.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ModuleKey == ModuleDashboard {
			continue
		}
		result[row.ModuleKey] = row.Granted
	}
	return result, nil
}

// Replace swaps the whole override set of a user atomically. Unknown
// module keys are rejected. A full replace is the only mutation; there
// is no per-row delete.
func (e *Engine) Replace(ctx context.Context, userID int64, grants map[string]bool) error {
	for key := range grants {
		if !KnownModule(key) {
			return shared.NewValidationError("module", "unknown module key: "+key)
		}
	}
	return e.repo.Replace(ctx, userID, grants)
}

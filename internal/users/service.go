package users

import (
	"context"
	"errors"
	"strings"

	"github.com/almoxweb/almoxweb/internal/credential"
	"github.com/almoxweb/almoxweb/internal/shared"
)

// Failure reason codes recorded on the login-attempt trail. They stay
// internal; callers only ever see shared.ErrInvalidCredentials.
const (
	ReasonUserNotFound = "user_not_found"
	ReasonUserInactive = "user_inactive"
	ReasonBadPassword  = "bad_password"
)

// dummyHash keeps credential verification work roughly constant when
// the account does not exist, so response timing does not reveal
// whether an email is registered.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Directory owns user records: provisioning, profile updates,
// deactivation and credential verification.
type Directory struct {
	repo   RepositoryPort
	hasher *credential.Hasher
	policy PasswordPolicy
}

// NewDirectory constructs a Directory.
func NewDirectory(repo RepositoryPort, hasher *credential.Hasher, policy PasswordPolicy) *Directory {
	return &Directory{repo: repo, hasher: hasher, policy: policy}
}

// Create provisions a new active account. Only the credential hash is
// stored, never the plaintext.
func (d *Directory) Create(ctx context.Context, in CreateInput, createdBy *int64) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" {
		return nil, shared.NewValidationError("name", "name is required")
	}
	if err := ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := d.policy.Validate(in.Password); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !in.Role.Valid() {
		return nil, shared.NewValidationError("role", "unknown role")
	}

	// Early duplicate check for a friendlier error. The unique index is
	// the final arbiter under concurrency.
	if _, err := d.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, shared.ErrConflict
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	return d.repo.Create(ctx, User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
		CreatedBy:    createdBy,
	})
}

// AuthenticateCredentials verifies an email/password pair. On failure
// it returns shared.ErrInvalidCredentials regardless of the root cause
// together with an internal reason code for the attempt trail.
func (d *Directory) AuthenticateCredentials(ctx context.Context, email, password string) (*User, string, error) {
	user, err := d.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			d.hasher.Verify(password, dummyHash)
			return nil, ReasonUserNotFound, shared.ErrInvalidCredentials
		}
		return nil, "", err
	}
	if !d.hasher.Verify(password, user.PasswordHash) {
		return nil, ReasonBadPassword, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ReasonUserInactive, shared.ErrInvalidCredentials
	}
	if err := d.repo.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, "", err
	}
	return user, "", nil
}

// Update rewrites the profile fields and returns the pre-image
// alongside the updated record so the caller can audit the change.
func (d *Directory) Update(ctx context.Context, id int64, patch UpdateInput) (before, after *User, err error) {
	before, err = d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	patch.Name = strings.TrimSpace(patch.Name)
	patch.Email = strings.TrimSpace(patch.Email)
	if patch.Name == "" {
		return nil, nil, shared.NewValidationError("name", "name is required")
	}
	if err := ValidateEmail(patch.Email); err != nil {
		return nil, nil, err
	}
	if !patch.Role.Valid() {
		return nil, nil, shared.NewValidationError("role", "unknown role")
	}
	if !strings.EqualFold(patch.Email, before.Email) {
		if existing, err := d.repo.GetByEmail(ctx, patch.Email); err == nil && existing.ID != id {
			return nil, nil, shared.ErrConflict
		} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, nil, err
		}
	}
	after, err = d.repo.Update(ctx, User{
		ID:       id,
		Name:     patch.Name,
		Email:    patch.Email,
		Role:     patch.Role,
		IsActive: patch.IsActive,
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// Deactivate soft-deletes the account and returns the pre-image.
// Cascading session revocation is the caller's responsibility.
func (d *Directory) Deactivate(ctx context.Context, id int64) (*User, error) {
	before, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.repo.Deactivate(ctx, id); err != nil {
		return nil, err
	}
	return before, nil
}

// ChangePassword verifies the old credential before accepting the new
// one, which must satisfy the same strength policy as Create.
func (d *Directory) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	user, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !d.hasher.Verify(oldPassword, user.PasswordHash) {
		return shared.ErrInvalidCredentials
	}
	if err := d.policy.Validate(newPassword); err != nil {
		return err
	}
	hash, err := d.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return d.repo.SetPasswordHash(ctx, id, hash)
}

// GetByID fetches a single account.
func (d *Directory) GetByID(ctx context.Context, id int64) (*User, error) {
	return d.repo.GetByID(ctx, id)
}

// List returns accounts ordered by name.
func (d *Directory) List(ctx context.Context, activeOnly bool) ([]User, error) {
	return d.repo.List(ctx, activeOnly)
}

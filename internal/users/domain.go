package users

import "time"

// Role is the coarse access profile assigned to an account.
type Role string

// Known roles. Admin bypasses the module permission table entirely.
const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User represents an account. Accounts are never physically deleted,
// only deactivated, so historical audit entries keep a valid reference.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedBy    *int64
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput carries the fields required to provision an account.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// UpdateInput is a full-field patch for an existing account.
type UpdateInput struct {
	Name     string
	Email    string
	Role     Role
	IsActive bool
}

package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almoxweb/almoxweb/internal/shared"
)

const userColumns = `id, name, email, password_hash, role, is_active, created_by, last_login_at, created_at, updated_at`

// RepositoryPort defines data access methods for the user directory.
type RepositoryPort interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, activeOnly bool) ([]User, error)
	Create(ctx context.Context, user User) (*User, error)
	Update(ctx context.Context, user User) (*User, error)
	Deactivate(ctx context.Context, id int64) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	TouchLastLogin(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence. Email uniqueness
// is enforced case-insensitively by a unique index on lower(email); the
// application-level check in the service is an optimisation only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a user by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

// List returns users ordered by name.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

// Create inserts a new user. A duplicate email maps to shared.ErrConflict.
func (r *Repository) Create(ctx context.Context, user User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, role, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		user.Name, strings.TrimSpace(user.Email), user.PasswordHash, string(user.Role), user.IsActive, user.CreatedBy)
	created, err := scanUser(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return created, nil
}

// Update rewrites the mutable profile fields.
func (r *Repository) Update(ctx context.Context, user User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, email = $3, role = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Name, strings.TrimSpace(user.Email), string(user.Role), user.IsActive)
	updated, err := scanUser(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return updated, nil
}

// Deactivate soft-deletes a user.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPasswordHash replaces the stored credential hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchLastLogin stamps a successful authentication.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, id)
	return err
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	var role string
	var createdBy *int64
	var lastLogin *time.Time
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role,
		&user.IsActive, &createdBy, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.Role = Role(role)
	user.CreatedBy = createdBy
	user.LastLoginAt = lastLogin
	return &user, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)

package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

// RepositoryPort defines persistence for session records.
type RepositoryPort interface {
	Insert(ctx context.Context, s Session) error
	GetWithUser(ctx context.Context, token string) (*Session, *users.User, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID int64) ([]string, error)
	ActiveTokensForUser(ctx context.Context, userID int64) ([]string, error)
	PurgeStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a freshly issued session.
func (r *Repository) Insert(ctx context.Context, s Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (token, user_id, issued_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5)`,
		s.Token, s.UserID, s.IssuedAt, s.ExpiresAt, s.Active)
	return err
}

// GetWithUser fetches a session row together with its owning user.
// Validity is not evaluated here; the store applies the invariant so
// every failure mode maps to the same error.
func (r *Repository) GetWithUser(ctx context.Context, token string) (*Session, *users.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT s.token, s.user_id, s.issued_at, s.expires_at, s.active,
		       u.id, u.name, u.email, u.password_hash, u.role, u.is_active, u.created_by, u.last_login_at, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1`, token)

	var s Session
	var u users.User
	var role string
	err := row.Scan(&s.Token, &s.UserID, &s.IssuedAt, &s.ExpiresAt, &s.Active,
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.CreatedBy, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, shared.ErrNotFound
		}
		return nil, nil, err
	}
	u.Role = users.Role(role)
	return &s, &u, nil
}

// Revoke deactivates a session. Revoking an already-inactive or unknown
// token is a no-op success.
func (r *Repository) Revoke(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET active = false WHERE token = $1`, token)
	return err
}

// RevokeAllForUser deactivates every active session of a user and
// returns the affected tokens so cache entries can be dropped.
func (r *Repository) RevokeAllForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE sessions SET active = false
		WHERE user_id = $1 AND active
		RETURNING token`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// ActiveTokensForUser lists the tokens of a user's live sessions.
func (r *Repository) ActiveTokensForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token FROM sessions
		WHERE user_id = $1 AND active AND expires_at > NOW()`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// PurgeStale deletes terminal rows whose expiry is older than the
// cutoff. Storage reclamation only; resolve-time checks stay the
// correctness mechanism.
func (r *Repository) PurgeStale(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (NOT active AND issued_at < $1)`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ RepositoryPort = (*Repository)(nil)

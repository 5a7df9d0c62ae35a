package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almoxweb/almoxweb/internal/shared"
)

// RepositoryPort defines persistence for module permission rows.
type RepositoryPort interface {
	Get(ctx context.Context, userID int64, moduleKey string) (*ModulePermission, error)
	ListForUser(ctx context.Context, userID int64) ([]ModulePermission, error)
	Replace(ctx context.Context, userID int64, grants map[string]bool) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches the override row for {user, module}.
func (r *Repository) Get(ctx context.Context, userID int64, moduleKey string) (*ModulePermission, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, module_key, granted
		FROM module_permissions
		WHERE user_id = $1 AND module_key = $2`, userID, moduleKey)
	var p ModulePermission
	if err := row.Scan(&p.UserID, &p.ModuleKey, &p.Granted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListForUser returns every override row of a user.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]ModulePermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, module_key, granted
		FROM module_permissions
		WHERE user_id = $1
		ORDER BY module_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ModulePermission
	for rows.Next() {
		var p ModulePermission
		if err := rows.Scan(&p.UserID, &p.ModuleKey, &p.Granted); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Replace swaps a user's whole permission set inside one transaction so
// a concurrent reader never observes the emptied intermediate state.
func (r *Repository) Replace(ctx context.Context, userID int64, grants map[string]bool) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM module_permissions WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for moduleKey, granted := range grants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO module_permissions (user_id, module_key, granted)
			VALUES ($1, $2, $3)`, userID, moduleKey, granted); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

var _ RepositoryPort = (*Repository)(nil)

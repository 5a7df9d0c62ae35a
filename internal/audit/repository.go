package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines persistence for the audit trail.
type RepositoryPort interface {
	Insert(ctx context.Context, draft Draft) error
	Query(ctx context.Context, filters Filters) ([]Entry, error)
	InsertAttempt(ctx context.Context, attempt LoginAttempt) error
	CountRecentFailures(ctx context.Context, email string, window time.Duration) (int, error)
}

// Repository provides PostgreSQL backed persistence. audit_log is
// insert-only; no update or delete statement exists here.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry.
func (r *Repository) Insert(ctx context.Context, draft Draft) error {
	before, err := marshalSnapshot(draft.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(draft.After)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (
			actor_user_id, actor_name, actor_email, actor_role, correlation_id,
			module, action, entity_type, entity_id,
			before, after, result, error_detail, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		draft.Actor.ID, draft.Actor.Name, draft.Actor.Email, draft.Actor.Role, draft.CorrelationID,
		draft.Module, draft.Action, draft.EntityType, draft.EntityID,
		before, after, draft.Result, nullable(draft.ErrorDetail), draft.DurationMs)
	return err
}

// Query returns entries newest-first, bounded by filters.Limit.
func (r *Repository) Query(ctx context.Context, filters Filters) ([]Entry, error) {
	var conditions []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if !filters.From.IsZero() {
		add("timestamp >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("timestamp <= $%d", filters.To)
	}
	if filters.Actor != "" {
		args = append(args, "%"+filters.Actor+"%")
		conditions = append(conditions, fmt.Sprintf("(actor_name ILIKE $%d OR actor_email ILIKE $%d)", len(args), len(args)))
	}
	if filters.Module != "" {
		add("module = $%d", filters.Module)
	}
	if filters.Action != "" {
		add("action = $%d", filters.Action)
	}
	if filters.Result != "" {
		add("result = $%d", filters.Result)
	}

	query := `
		SELECT id, timestamp, actor_user_id, actor_name, actor_email, actor_role, correlation_id,
		       module, action, entity_type, entity_id, before, after, result, error_detail, duration_ms
		FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filters.Limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errorDetail *string
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor.ID, &e.Actor.Name, &e.Actor.Email, &e.Actor.Role,
			&e.CorrelationID, &e.Module, &e.Action, &e.EntityType, &e.EntityID,
			&before, &after, &e.Result, &errorDetail, &e.DurationMs); err != nil {
			return nil, err
		}
		if errorDetail != nil {
			e.ErrorDetail = *errorDetail
		}
		if e.Before, err = unmarshalSnapshot(before); err != nil {
			return nil, err
		}
		if e.After, err = unmarshalSnapshot(after); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertAttempt appends one login-attempt row.
func (r *Repository) InsertAttempt(ctx context.Context, attempt LoginAttempt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO login_attempts (email, result, failure_reason, consecutive_failures)
		VALUES ($1, $2, $3, $4)`,
		attempt.Email, attempt.Result, nullable(attempt.FailureReason), attempt.ConsecutiveFailures)
	return err
}

// CountRecentFailures counts failed attempts for email inside window.
func (r *Repository) CountRecentFailures(ctx context.Context, email string, window time.Duration) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM login_attempts
		WHERE email = $1 AND result = $2 AND timestamp > now() - $3::interval`,
		email, ResultError, fmt.Sprintf("%d seconds", int(window.Seconds()))).Scan(&count)
	return count, err
}

func marshalSnapshot(snapshot map[string]any) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(snapshot)
}

func unmarshalSnapshot(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

var _ RepositoryPort = (*Repository)(nil)

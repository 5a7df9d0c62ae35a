package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// failureWindow bounds the consecutive-failure count on the attempt
// trail.
const failureWindow = 15 * time.Minute

// defaultQueryLimit caps Query results when the caller does not.
const defaultQueryLimit = 1000

// FailureCounter receives a signal whenever a trail write fails, so the
// condition reaches operational monitoring.
type FailureCounter interface {
	IncAuditWriteFailure()
}

// Log is the append-only audit trail. Record is best-effort: a failed
// write is logged and counted but never propagates to the operation
// being audited.
type Log struct {
	repo     RepositoryPort
	logger   *slog.Logger
	failures FailureCounter
	limit    int
}

// NewLog constructs a Log. failures may be nil.
func NewLog(repo RepositoryPort, logger *slog.Logger, failures FailureCounter, queryLimit int) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	if queryLimit <= 0 {
		queryLimit = defaultQueryLimit
	}
	return &Log{repo: repo, logger: logger, failures: failures, limit: queryLimit}
}

// Record appends one entry. The primary operation's outcome never
// depends on this call succeeding.
func (l *Log) Record(ctx context.Context, draft Draft) {
	if draft.Result == "" {
		draft.Result = ResultSuccess
	}
	if draft.CorrelationID == "" {
		draft.CorrelationID = uuid.NewString()
	}
	if draft.Actor.Name == "" {
		draft.Actor = SystemActor()
	}
	if err := l.repo.Insert(ctx, draft); err != nil {
		l.logger.Error("audit write failed",
			slog.String("module", draft.Module),
			slog.String("action", draft.Action),
			slog.Any("error", err))
		if l.failures != nil {
			l.failures.IncAuditWriteFailure()
		}
	}
}

// Query returns entries newest-first. The limit is clamped to the
// configured cap to bound response size.
func (l *Log) Query(ctx context.Context, filters Filters) ([]Entry, error) {
	if filters.Limit <= 0 || filters.Limit > l.limit {
		filters.Limit = l.limit
	}
	return l.repo.Query(ctx, filters)
}

// RecordAttempt appends an authentication attempt. Part of the security
// boundary: a write failure is surfaced to monitoring, but still does
// not block the login response.
func (l *Log) RecordAttempt(ctx context.Context, email, result, failureReason string) {
	email = strings.TrimSpace(strings.ToLower(email))
	consecutive := 0
	if result == ResultError {
		count, err := l.repo.CountRecentFailures(ctx, email, failureWindow)
		if err != nil {
			l.logger.Warn("count login failures", slog.Any("error", err))
		}
		consecutive = count + 1
	}
	err := l.repo.InsertAttempt(ctx, LoginAttempt{
		Email:               email,
		Result:              result,
		FailureReason:       failureReason,
		ConsecutiveFailures: consecutive,
	})
	if err != nil {
		l.logger.Error("login attempt write failed",
			slog.String("email", email),
			slog.String("result", result),
			slog.Any("error", err))
		if l.failures != nil {
			l.failures.IncAuditWriteFailure()
		}
	}
}

package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/almoxweb/almoxweb/internal/sessions"
	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

type stubPurgeRepo struct {
	cutoff time.Time
	purged int64
	calls  int
}

func (s *stubPurgeRepo) Insert(ctx context.Context, sess sessions.Session) error { return nil }

func (s *stubPurgeRepo) GetWithUser(ctx context.Context, token string) (*sessions.Session, *users.User, error) {
	return nil, nil, shared.ErrNotFound
}

func (s *stubPurgeRepo) Revoke(ctx context.Context, token string) error { return nil }

func (s *stubPurgeRepo) RevokeAllForUser(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func (s *stubPurgeRepo) ActiveTokensForUser(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func (s *stubPurgeRepo) PurgeStale(ctx context.Context, olderThan time.Time) (int64, error) {
	s.calls++
	s.cutoff = olderThan
	return s.purged, nil
}

func TestSessionPurgeHandle(t *testing.T) {
	repo := &stubPurgeRepo{purged: 4}
	job := NewSessionPurgeJob(repo, nil)

	task, err := NewSessionPurgeTask(SessionPurgePayload{RetentionDays: 30})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, repo.calls)

	wantCutoff := time.Now().AddDate(0, 0, -30)
	require.WithinDuration(t, wantCutoff, repo.cutoff, time.Minute)
}

func TestSessionPurgeHandleDefaultsRetention(t *testing.T) {
	repo := &stubPurgeRepo{}
	job := NewSessionPurgeJob(repo, nil)

	task, err := NewSessionPurgeTask(SessionPurgePayload{})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	wantCutoff := time.Now().AddDate(0, 0, -30)
	require.WithinDuration(t, wantCutoff, repo.cutoff, time.Minute)
}

func TestSessionPurgeHandleRejectsMalformedPayload(t *testing.T) {
	repo := &stubPurgeRepo{}
	job := NewSessionPurgeJob(repo, nil)

	task := asynq.NewTask(TaskSessionPurge, []byte("not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, repo.calls)
}

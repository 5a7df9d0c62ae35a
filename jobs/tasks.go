package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/almoxweb/almoxweb/internal/sessions"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge trims terminal session rows past retention.
	TaskSessionPurge = "sessions:purge"
)

// SessionPurgePayload carries the retention window in days.
type SessionPurgePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewSessionPurgeTask constructs an Asynq task.
func NewSessionPurgeTask(payload SessionPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}

// SessionPurgeJob deletes expired and revoked session rows older than
// the retention cutoff. Validity is still decided lazily at resolve
// time; this only reclaims storage.
type SessionPurgeJob struct {
	repo   sessions.RepositoryPort
	logger *slog.Logger
}

// NewSessionPurgeJob constructs the job.
func NewSessionPurgeJob(repo sessions.RepositoryPort, logger *slog.Logger) *SessionPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPurgeJob{repo: repo, logger: logger}
}

// Handle processes TaskSessionPurge tasks.
func (j *SessionPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SessionPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -payload.RetentionDays)
	purged, err := j.repo.PurgeStale(ctx, cutoff)
	if err != nil {
		return err
	}
	j.logger.Info("session purge",
		slog.Int64("purged", purged),
		slog.Time("cutoff", cutoff))
	return nil
}

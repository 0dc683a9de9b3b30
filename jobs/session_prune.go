package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/parokia/parokia/internal/jobs"
)

// SessionPruner removes expired session records.
type SessionPruner interface {
	PruneSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionPruneJob deletes expired rows from user_sessions.
type SessionPruneJob struct {
	Pruner  SessionPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPruneJob initialises the prune handler.
func NewSessionPruneJob(pruner SessionPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPruneJob {
	return &SessionPruneJob{
		Pruner:  pruner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one prune pass. The payload is informational only.
func (j *SessionPruneJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Pruner == nil {
		return errors.New("session prune: handler not configured")
	}
	tracker := j.Metrics.Track(TaskSessionPrune)
	defer func() {
		err = tracker.End(err)
	}()
	removed, err := j.Pruner.PruneSessions(ctx, j.clock())
	if err != nil {
		return err
	}
	j.Metrics.AddPrunedSessions(removed)
	if j.Logger != nil {
		j.Logger.Info("expired sessions pruned", slog.Int64("removed", removed))
	}
	return nil
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/parokia/parokia/internal/jobs"
)

// LastLoginStore persists last-login timestamps.
type LastLoginStore interface {
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// TouchLastLoginJob applies queued last-login updates.
type TouchLastLoginJob struct {
	Store   LastLoginStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTouchLastLoginJob initialises the handler.
func NewTouchLastLoginJob(store LastLoginStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *TouchLastLoginJob {
	return &TouchLastLoginJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes one update.
func (j *TouchLastLoginJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("touch last login: handler not configured")
	}
	var payload TouchLastLoginPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskTouchLastLogin)
	defer func() {
		err = tracker.End(err)
	}()
	if payload.At.IsZero() {
		payload.At = time.Now()
	}
	if err := j.Store.TouchLastLogin(ctx, payload.UserID, payload.At); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("touch last login failed", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

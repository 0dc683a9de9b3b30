package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTouchLastLogin records the last authorized access of a user.
	TaskTouchLastLogin = "users:touch_last_login"
	// TaskSessionPrune deletes expired login session records.
	TaskSessionPrune = "auth:prune_sessions"
)

// TouchLastLoginPayload identifies the user and the access time.
type TouchLastLoginPayload struct {
	UserID int64     `json:"user_id"`
	At     time.Time `json:"at"`
}

// NewTouchLastLoginTask constructs an Asynq task. Tasks for the same user
// within the dedup window collapse into one.
func NewTouchLastLoginTask(payload TouchLastLoginPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTouchLastLogin, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// SessionPrunePayload carries scheduling metadata.
type SessionPrunePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionPruneTask constructs the cron task for session pruning.
func NewSessionPruneTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SessionPrunePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPrune, body, asynq.Queue(QueueDefault)), nil
}

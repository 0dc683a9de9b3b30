package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/parokia/parokia/internal/jobs"
)

type touchStore struct {
	calls map[int64]time.Time
	err   error
}

func (s *touchStore) TouchLastLogin(_ context.Context, userID int64, at time.Time) error {
	if s.err != nil {
		return s.err
	}
	if s.calls == nil {
		s.calls = map[int64]time.Time{}
	}
	s.calls[userID] = at
	return nil
}

type pruner struct {
	removed int64
	seen    time.Time
	err     error
}

func (p *pruner) PruneSessions(_ context.Context, now time.Time) (int64, error) {
	p.seen = now
	return p.removed, p.err
}

func TestTouchLastLoginJob(t *testing.T) {
	store := &touchStore{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewTouchLastLoginJob(store, nil, metrics)

	at := time.Date(2024, 5, 12, 8, 30, 0, 0, time.UTC)
	task, err := NewTouchLastLoginTask(TouchLastLoginPayload{UserID: 7, At: at})
	require.NoError(t, err)
	require.Equal(t, TaskTouchLastLogin, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	assert.True(t, store.calls[7].Equal(at))
}

func TestTouchLastLoginJobRejectsBadPayload(t *testing.T) {
	store := &touchStore{}
	job := NewTouchLastLoginJob(store, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskTouchLastLogin, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(TouchLastLoginPayload{UserID: 0})
	err = job.Handle(context.Background(), asynq.NewTask(TaskTouchLastLogin, body))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, store.calls)
}

func TestTouchLastLoginJobSurfacesStoreError(t *testing.T) {
	boom := errors.New("db down")
	job := NewTouchLastLoginJob(&touchStore{err: boom}, nil, nil)
	task, err := NewTouchLastLoginTask(TouchLastLoginPayload{UserID: 3, At: time.Now()})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestSessionPruneJobCountsRemovals(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	p := &pruner{removed: 4}
	job := NewSessionPruneJob(p, nil, metrics)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	task, err := NewSessionPruneTask(fixed)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, fixed, p.seen)

	count, err := testutil.GatherAndCount(registry, "parokia_sessions_pruned_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionPruneJobFailure(t *testing.T) {
	boom := errors.New("timeout")
	job := NewSessionPruneJob(&pruner{err: boom}, nil, nil)
	assert.ErrorIs(t, job.Handle(context.Background(), nil), boom)
}

func TestUnconfiguredJobsFail(t *testing.T) {
	var touch *TouchLastLoginJob
	assert.Error(t, touch.Handle(context.Background(), asynq.NewTask(TaskTouchLastLogin, nil)))
	assert.Error(t, NewSessionPruneJob(nil, nil, nil).Handle(context.Background(), nil))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, QueueDefault, body.Queue)
}

func TestConcurrencyDefault(t *testing.T) {
	assert.Equal(t, 5, concurrency(0))
	assert.Equal(t, 12, concurrency(12))
}

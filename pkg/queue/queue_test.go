package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/logger"
)

func setupQueueTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	jobs := `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL,
  next_attempt_at DATETIME NOT NULL,
  last_error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	jobDLQ := `
CREATE TABLE IF NOT EXISTS job_dlqs (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  name TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(jobs).Error)
	require.NoError(t, db.Exec(jobDLQ).Error)
	return db
}

func newTestService(t *testing.T, db *gorm.DB, maxAttempts int) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "queue-test", Level: zerolog.ErrorLevel})
	svc, err := NewService(NewRepository(db), logg, maxAttempts)
	require.NoError(t, err)
	return svc
}

func TestEnqueueAndClaimDue(t *testing.T) {
	db := setupQueueTestDB(t)
	svc := newTestService(t, db, 5)
	repo := NewRepository(db)

	job, err := svc.Enqueue(context.Background(), JobDeliverAlert, map[string]string{"alertId": uuid.NewString()})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, 5, job.MaxAttempts)

	claimed, err := repo.ClaimDueTx(db, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, job.ID, claimed[0].ID)
	assert.Equal(t, JobDeliverAlert, claimed[0].Name)
}

func TestClaimDue_SkipsFutureJobs(t *testing.T) {
	db := setupQueueTestDB(t)
	repo := NewRepository(db)

	future := models.Job{
		ID:            uuid.New(),
		Name:          JobDeliverAlert,
		Payload:       json.RawMessage(`{}`),
		MaxAttempts:   5,
		NextAttemptAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Insert(context.Background(), &future))

	claimed, err := repo.ClaimDueTx(db, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestMarkFailed_SchedulesRetry(t *testing.T) {
	db := setupQueueTestDB(t)
	repo := NewRepository(db)
	svc := newTestService(t, db, 5)

	job, err := svc.Enqueue(context.Background(), JobDeliverAlert, map[string]string{})
	require.NoError(t, err)

	next := time.Now().Add(6 * time.Second)
	require.NoError(t, repo.MarkFailedTx(db, job.ID, next, errors.New("push gateway unreachable")))

	var row models.Job
	require.NoError(t, db.First(&row, "id = ?", job.ID).Error)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "push gateway unreachable", *row.LastError)
	assert.WithinDuration(t, next, row.NextAttemptAt, time.Second)

	// Not due yet, so a claim at "now" must skip it.
	claimed, err := repo.ClaimDueTx(db, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestMoveToDeadLetter_PreservesPayload(t *testing.T) {
	db := setupQueueTestDB(t)
	repo := NewRepository(db)

	payload := json.RawMessage(`{"alertId":"abc-123"}`)
	job := models.Job{
		ID:            uuid.New(),
		Name:          JobDeliverAlert,
		Payload:       payload,
		AttemptCount:  5,
		MaxAttempts:   5,
		NextAttemptAt: time.Now(),
	}
	require.NoError(t, repo.Insert(context.Background(), &job))

	require.NoError(t, repo.MoveToDeadLetterTx(db, job, errors.New("exhausted")))

	var jobCount int64
	require.NoError(t, db.Model(&models.Job{}).Count(&jobCount).Error)
	assert.Zero(t, jobCount)

	letters, err := repo.ListDeadLetters(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, job.ID, letters[0].JobID)
	assert.JSONEq(t, string(payload), string(letters[0].Payload))
	assert.Equal(t, 5, letters[0].AttemptCount)
	require.NotNil(t, letters[0].ErrorMessage)
	assert.Equal(t, "exhausted", *letters[0].ErrorMessage)
}

func TestDeleteTx_RemovesJob(t *testing.T) {
	db := setupQueueTestDB(t)
	repo := NewRepository(db)
	svc := newTestService(t, db, 3)

	job, err := svc.Enqueue(context.Background(), JobDeliverAlert, map[string]string{})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteTx(db, job.ID))

	count, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBackoffPolicy_DoublesAndCaps(t *testing.T) {
	policy := BackoffPolicy{Base: 3 * time.Second, Ceiling: 60 * time.Second}

	for attempt, want := range map[int]time.Duration{
		1: 3 * time.Second,
		2: 6 * time.Second,
		3: 12 * time.Second,
		4: 24 * time.Second,
		5: 48 * time.Second,
		6: 60 * time.Second,
		9: 60 * time.Second,
	} {
		got := policy.Delay(attempt)
		assert.GreaterOrEqual(t, got, want, "attempt %d", attempt)
		assert.LessOrEqual(t, got, want+want/10, "attempt %d", attempt)
	}
}

func TestNonRetryable(t *testing.T) {
	base := errors.New("alert not found")
	wrapped := NonRetryable(base)

	assert.True(t, IsNonRetryable(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.False(t, IsNonRetryable(base))
	assert.Nil(t, NonRetryable(nil))
}

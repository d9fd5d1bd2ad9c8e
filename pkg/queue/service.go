package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/logger"
)

// Job names handled by the worker. Registering a handler under one of
// these names binds it to enqueued payloads.
const (
	JobDeliverAlert = "alert.deliver"
)

type Service struct {
	repo        *Repository
	logg        *logger.Logger
	maxAttempts int
}

func NewService(repo *Repository, logg *logger.Logger, maxAttempts int) (*Service, error) {
	if repo == nil {
		return nil, errors.New("queue repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Service{repo: repo, logg: logg, maxAttempts: maxAttempts}, nil
}

// Enqueue persists a job due immediately. Payload must marshal to JSON.
func (s *Service) Enqueue(ctx context.Context, name string, payload any) (*models.Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := models.Job{
		ID:            uuid.New(),
		Name:          name,
		Payload:       json.RawMessage(raw),
		MaxAttempts:   s.maxAttempts,
		NextAttemptAt: time.Now(),
	}
	if err := s.repo.Insert(ctx, &job); err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"job_id":   job.ID.String(),
		"job_name": name,
	})
	s.logg.Info(logCtx, "job enqueued")
	return &job, nil
}

// EnqueueTx persists a job inside the caller's transaction.
func (s *Service) EnqueueTx(tx *gorm.DB, name string, payload any) (*models.Job, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := models.Job{
		ID:            uuid.New(),
		Name:          name,
		Payload:       json.RawMessage(raw),
		MaxAttempts:   s.maxAttempts,
		NextAttemptAt: time.Now(),
	}
	if err := s.repo.InsertTx(tx, job); err != nil {
		return nil, err
	}
	return &job, nil
}

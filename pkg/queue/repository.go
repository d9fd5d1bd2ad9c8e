package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
)

const maxDLQErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertTx(tx *gorm.DB, job models.Job) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&job).Error
}

func (r *Repository) Insert(ctx context.Context, job *models.Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// ClaimDueTx locks up to limit jobs whose next attempt is due. SKIP LOCKED
// keeps concurrent workers from claiming the same rows.
func (r *Repository) ClaimDueTx(tx *gorm.DB, now time.Time, limit int) ([]models.Job, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if limit <= 0 {
		limit = 10
	}
	query := tx
	// SQLite (used in tests) has no row locking.
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.Job
	err := query.
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Delete(&models.Job{}, "id = ?", id).Error
}

// MarkFailedTx records a failed attempt and schedules the next one.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, nextAttemptAt time.Time, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return tx.Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"next_attempt_at": nextAttemptAt,
			"last_error":      msg,
		}).Error
}

// MoveToDeadLetterTx copies the job payload verbatim into the dead letter
// table and removes the job row, both inside the caller's transaction.
func (r *Repository) MoveToDeadLetterTx(tx *gorm.DB, job models.Job, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	msg := "exhausted retry attempts"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxDLQErrorLen {
		msg = msg[:maxDLQErrorLen]
	}
	entry := models.JobDLQ{
		ID:           uuid.New(),
		JobID:        job.ID,
		Name:         job.Name,
		Payload:      job.Payload,
		ErrorMessage: &msg,
		AttemptCount: job.AttemptCount,
		FailedAt:     time.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Job{}, "id = ?", job.ID).Error
}

func (r *Repository) ListDeadLetters(ctx context.Context, limit int) ([]models.JobDLQ, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []models.JobDLQ
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Job{}).Count(&count).Error
	return count, err
}

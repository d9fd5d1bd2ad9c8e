package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	"github.com/ridewell/alertcast-backend/pkg/pagination"
)

// Repository exposes alert persistence. Status transitions are guarded at
// the SQL level so a concurrent or replayed worker can never move an alert
// backwards out of a terminal state.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, alert *models.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

// MarkInProgress moves a pending alert to in_progress. Returns false when
// the alert was not pending (already claimed or finished).
func (r *Repository) MarkInProgress(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, enums.AlertStatusPending).
		Updates(map[string]any{
			"status":     enums.AlertStatusInProgress,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FinalizeTx writes the delivery stats and the terminal status in one
// statement, guarded on the alert still being in_progress.
func (r *Repository) FinalizeTx(tx *gorm.DB, id uuid.UUID, status enums.AlertStatus, stats models.AlertStats, lastError *string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if !status.IsTerminal() {
		return false, errors.New("finalize requires a terminal status")
	}
	result := tx.Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, enums.AlertStatusInProgress).
		Updates(map[string]any{
			"status":         status,
			"total_targets":  stats.TotalTargets,
			"sent":           stats.Sent,
			"failed":         stats.Failed,
			"invalid_tokens": stats.InvalidTokens,
			"in_app_created": stats.InAppCreated,
			"in_app_failed":  stats.InAppFailed,
			"last_error":     lastError,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ForceFailed marks the alert failed regardless of its current non-terminal
// state. Used when the delivery job is dead-lettered.
func (r *Repository) ForceFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.forceFailed(r.db.WithContext(ctx), id, reason)
}

func (r *Repository) ForceFailedTx(tx *gorm.DB, id uuid.UUID, reason string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	return r.forceFailed(tx, id, reason)
}

func (r *Repository) forceFailed(db *gorm.DB, id uuid.UUID, reason string) (bool, error) {
	result := db.Model(&models.Alert{}).
		Where("id = ? AND status IN ?", id, []enums.AlertStatus{enums.AlertStatusPending, enums.AlertStatusInProgress}).
		Updates(map[string]any{
			"status":     enums.AlertStatusFailed,
			"last_error": reason,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type listAlertsParams struct {
	Status *enums.AlertStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, params listAlertsParams) ([]models.Alert, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Alert{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Alert
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows user lookups. Zero-value fields are ignored; an empty
// filter matches every active user.
type Filter struct {
	IDs  []uuid.UUID
	Role string
}

// Find returns active users matching the filter, ordered by id for
// deterministic batching.
func (r *Repository) Find(ctx context.Context, filter Filter) ([]models.User, error) {
	query := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_active = ?", true)

	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Role != "" {
		if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
			query = query.Where("roles @> ARRAY[?]::text[]", filter.Role)
		} else {
			// SQLite (tests) stores the array literal as text.
			query = query.Where("roles LIKE ?", "%"+filter.Role+"%")
		}
	}

	var rows []models.User
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ClearDeviceToken removes the stored token for every listed user. Called
// after the push provider reports the token permanently invalid.
func (r *Repository) ClearDeviceToken(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ?", ids).
		UpdateColumn("device_token", nil)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

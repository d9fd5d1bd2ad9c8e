package alerts

import (
	"github.com/google/uuid"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	dbtypes "github.com/ridewell/alertcast-backend/pkg/db/types"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	"github.com/ridewell/alertcast-backend/pkg/types"
)

// CreateAlertInput is the admin-facing payload for authoring an alert.
type CreateAlertInput struct {
	Audience   string               `json:"audience" validate:"required"`
	Recipients []uuid.UUID          `json:"recipients,omitempty" validate:"max=10000,dive,required"`
	Blocks     []types.MessageBlock `json:"blocks" validate:"required,min=1"`
}

func (in CreateAlertInput) toModel(audience enums.Audience, createdBy uuid.UUID) *models.Alert {
	return &models.Alert{
		ID:         uuid.New(),
		CreatedBy:  createdBy,
		Audience:   audience,
		Recipients: dbtypes.UUIDArray(in.Recipients),
		Blocks:     types.BlockList(in.Blocks),
		Status:     enums.AlertStatusPending,
	}
}

// AlertView is the API projection of an alert.
type AlertView struct {
	ID         uuid.UUID            `json:"id"`
	CreatedBy  uuid.UUID            `json:"createdBy"`
	Audience   enums.Audience       `json:"audience"`
	Recipients []uuid.UUID          `json:"recipients,omitempty"`
	Blocks     []types.MessageBlock `json:"blocks"`
	Status     enums.AlertStatus    `json:"status"`
	Stats      StatsView            `json:"stats"`
	LastError  *string              `json:"lastError,omitempty"`
	CreatedAt  string               `json:"createdAt"`
	UpdatedAt  string               `json:"updatedAt"`
}

// StatsView mirrors the persisted delivery counters.
type StatsView struct {
	TotalTargets  int `json:"totalTargets"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
	InvalidTokens int `json:"invalidTokens"`
	InAppCreated  int `json:"inAppCreated"`
	InAppFailed   int `json:"inAppFailed"`
}

func toView(alert *models.Alert) AlertView {
	return AlertView{
		ID:         alert.ID,
		CreatedBy:  alert.CreatedBy,
		Audience:   alert.Audience,
		Recipients: alert.Recipients,
		Blocks:     alert.Blocks,
		Status:     alert.Status,
		Stats: StatsView{
			TotalTargets:  alert.Stats.TotalTargets,
			Sent:          alert.Stats.Sent,
			Failed:        alert.Stats.Failed,
			InvalidTokens: alert.Stats.InvalidTokens,
			InAppCreated:  alert.Stats.InAppCreated,
			InAppFailed:   alert.Stats.InAppFailed,
		},
		LastError: alert.LastError,
		CreatedAt: alert.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt: alert.UpdatedAt.UTC().Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

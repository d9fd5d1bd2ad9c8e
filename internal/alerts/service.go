package alerts

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	pkgerrors "github.com/ridewell/alertcast-backend/pkg/errors"
	"github.com/ridewell/alertcast-backend/pkg/logger"
	"github.com/ridewell/alertcast-backend/pkg/pagination"
	"github.com/ridewell/alertcast-backend/pkg/queue"
)

// DeliveryJobPayload is the payload enqueued for the worker.
type DeliveryJobPayload struct {
	AlertID uuid.UUID `json:"alertId"`
}

// Enqueuer is the slice of the queue service the alerts service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) (*models.Job, error)
}

// Service owns the admin-facing alert operations.
type Service interface {
	Create(ctx context.Context, createdBy uuid.UUID, input CreateAlertInput) (*AlertView, error)
	Get(ctx context.Context, id uuid.UUID) (*AlertView, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo *Repository
	jobs Enqueuer
	logg *logger.Logger
}

// ListParams configures alert listing.
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ListResult wraps a page of alerts and the cursor for the next one.
type ListResult struct {
	Items  []AlertView `json:"items"`
	Cursor string      `json:"cursor"`
}

// NewService wires the alert service dependencies.
func NewService(repo *Repository, jobs Enqueuer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "alerts repository required")
	}
	if jobs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "job enqueuer required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, jobs: jobs, logg: logg}, nil
}

// Create persists the alert as pending, then enqueues the delivery job.
// The two writes are deliberately separate commits: a persisted alert whose
// enqueue failed stays visible as stuck-pending instead of vanishing.
func (s *service) Create(ctx context.Context, createdBy uuid.UUID, input CreateAlertInput) (*AlertView, error) {
	if createdBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator id required")
	}

	audience, err := enums.ParseAudience(input.Audience)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid audience")
	}
	if audience == enums.AudienceCustom && len(input.Recipients) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "custom audience requires recipients")
	}
	if len(input.Blocks) == 0 || input.Blocks[0].IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one non-empty message block required")
	}

	alert := input.toModel(audience, createdBy)
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting alert")
	}

	logCtx := s.logg.WithAlertID(ctx, alert.ID.String())
	s.logg.Info(logCtx, "alert created")

	if _, err := s.jobs.Enqueue(ctx, queue.JobDeliverAlert, DeliveryJobPayload{AlertID: alert.ID}); err != nil {
		s.logg.Error(logCtx, "enqueue delivery job failed", err)
		wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "alert accepted but delivery enqueue failed")
		return nil, wrapped.WithDetails(map[string]any{"alertId": alert.ID.String()})
	}

	view := toView(alert)
	return &view, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*AlertView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alert id required")
	}
	alert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading alert")
	}
	if alert == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
	}
	view := toView(alert)
	return &view, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listAlertsParams{Limit: params.Limit}

	if params.Status != "" {
		status, err := enums.ParseAlertStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid status %q", params.Status))
		}
		query.Status = &status
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing alerts")
	}

	result := &ListResult{Items: make([]AlertView, 0, len(rows))}
	for i := range rows {
		result.Items = append(result.Items, toView(&rows[i]))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

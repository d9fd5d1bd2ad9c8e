package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	pkgerrors "github.com/ridewell/alertcast-backend/pkg/errors"
	"github.com/ridewell/alertcast-backend/pkg/pagination"
)

type fakeNotificationsRepo struct {
	listRows    []models.Notification
	listNext    *pagination.Cursor
	listErr     error
	listParams  listNotificationsParams
	unreadCount int64
	markResult  notificationMarkResult
	markErr     error
	markAllN    int64
	markAllErr  error
}

func (f *fakeNotificationsRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeNotificationsRepo) Create(context.Context, *models.Notification) error { return nil }

func (f *fakeNotificationsRepo) List(_ context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	f.listParams = params
	return f.listRows, f.listNext, f.listErr
}

func (f *fakeNotificationsRepo) CountUnread(context.Context, uuid.UUID) (int64, error) {
	return f.unreadCount, nil
}

func (f *fakeNotificationsRepo) MarkRead(context.Context, uuid.UUID, uuid.UUID, time.Time) (notificationMarkResult, error) {
	return f.markResult, f.markErr
}

func (f *fakeNotificationsRepo) MarkAllRead(context.Context, uuid.UUID, time.Time) (int64, error) {
	return f.markAllN, f.markAllErr
}

func TestNewService_RequiresRepo(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatalf("expected error when repo is nil")
	}
}

func TestList_RequiresUserID(t *testing.T) {
	svc, err := NewService(&fakeNotificationsRepo{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.List(context.Background(), ListParams{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestList_RejectsBadCursor(t *testing.T) {
	svc, _ := NewService(&fakeNotificationsRepo{})
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "not-base64!!"})
	if err == nil {
		t.Fatalf("expected cursor error")
	}
}

func TestList_ReturnsCursorAndUnread(t *testing.T) {
	next := &pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()}
	repo := &fakeNotificationsRepo{
		listRows:    []models.Notification{{ID: uuid.New()}},
		listNext:    next,
		unreadCount: 3,
	}
	svc, _ := NewService(repo)

	result, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), UnreadOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	if result.Cursor == "" {
		t.Fatalf("expected non-empty cursor")
	}
	if result.UnreadCount != 3 {
		t.Fatalf("expected unread count 3, got %d", result.UnreadCount)
	}
	if !repo.listParams.UnreadOnly {
		t.Fatalf("expected unread-only filter to propagate")
	}
}

func TestMarkRead_NotFound(t *testing.T) {
	svc, _ := NewService(&fakeNotificationsRepo{markResult: notificationMarkResult{Found: false}})
	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkRead_AlreadyRead(t *testing.T) {
	svc, _ := NewService(&fakeNotificationsRepo{markResult: notificationMarkResult{Found: true, Updated: false}})
	if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("marking an already-read notification should be a no-op, got %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	svc, _ := NewService(&fakeNotificationsRepo{markAllN: 7})
	count, err := svc.MarkAllRead(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 7 {
		t.Fatalf("expected 7, got %d", count)
	}
}

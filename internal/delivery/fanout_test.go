package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ridewell/alertcast-backend/internal/audience"
	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	"github.com/ridewell/alertcast-backend/pkg/types"
)

type fakeNotificationsRepo struct {
	created []*models.Notification
	failFor map[uuid.UUID]error
}

func newFakeNotificationsRepo() *fakeNotificationsRepo {
	return &fakeNotificationsRepo{failFor: map[uuid.UUID]error{}}
}

func (f *fakeNotificationsRepo) Create(_ context.Context, n *models.Notification) error {
	if err, ok := f.failFor[n.UserID]; ok {
		return err
	}
	f.created = append(f.created, n)
	return nil
}

func newTestFanout(t *testing.T, repo NotificationCreator, guard DeliveryGuard) *Fanout {
	t.Helper()
	f, err := NewFanout(repo, guard, rate.NewLimiter(rate.Inf, 1), nil, deliveryTestLogger())
	require.NoError(t, err)
	return f
}

func TestCreateInApp_WritesOneRowPerTarget(t *testing.T) {
	repo := newFakeNotificationsRepo()
	fanout := newTestFanout(t, repo, newFakeGuard())

	alert := testAlert()
	targets := []audience.Target{{ID: uuid.New()}, {ID: uuid.New(), DeviceToken: "tok"}}

	outcome, err := fanout.CreateInApp(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, InAppOutcome{Created: 2}, outcome)
	require.Len(t, repo.created, 2)

	row := repo.created[0]
	assert.Equal(t, enums.NotificationTypeAlert, row.Type)
	assert.Equal(t, enums.ModuleBroadcast, row.Module)
	assert.Equal(t, "Service update", row.Title)
	assert.Equal(t, "Routes resumed", row.Message)
	require.NotNil(t, row.AlertID)
	assert.Equal(t, alert.ID, *row.AlertID)
	assert.Equal(t, alert.ID.String(), row.Metadata["alertId"])
}

func TestCreateInApp_FallbackTitleAndMessage(t *testing.T) {
	repo := newFakeNotificationsRepo()
	fanout := newTestFanout(t, repo, newFakeGuard())

	alert := testAlert()
	alert.Blocks = types.BlockList{{Data: map[string]string{"k": "v"}}}

	_, err := fanout.CreateInApp(context.Background(), alert, []audience.Target{{ID: uuid.New()}})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, fallbackTitle, repo.created[0].Title)
	assert.Equal(t, fallbackMessage, repo.created[0].Message)
	assert.Equal(t, "v", repo.created[0].Metadata["k"])
}

func TestCreateInApp_PerUserFailureDoesNotAbort(t *testing.T) {
	repo := newFakeNotificationsRepo()
	bad := uuid.New()
	repo.failFor[bad] = errors.New("disk full")
	fanout := newTestFanout(t, repo, newFakeGuard())

	targets := []audience.Target{{ID: bad}, {ID: uuid.New()}}
	outcome, err := fanout.CreateInApp(context.Background(), testAlert(), targets)
	require.NoError(t, err)
	assert.Equal(t, InAppOutcome{Created: 1, Failed: 1}, outcome)
}

func TestCreateInApp_DuplicateRowCountsAsCreated(t *testing.T) {
	repo := newFakeNotificationsRepo()
	dup := uuid.New()
	repo.failFor[dup] = errors.New(`UNIQUE constraint failed: ux_notifications_alert_user`)
	fanout := newTestFanout(t, repo, newFakeGuard())

	outcome, err := fanout.CreateInApp(context.Background(), testAlert(), []audience.Target{{ID: dup}})
	require.NoError(t, err)
	assert.Equal(t, InAppOutcome{Created: 1}, outcome)
}

func TestCreateInApp_GuardSkipsAlreadyDelivered(t *testing.T) {
	repo := newFakeNotificationsRepo()
	guard := newFakeGuard()
	fanout := newTestFanout(t, repo, guard)

	alert := testAlert()
	targets := []audience.Target{{ID: uuid.New()}}

	outcome, err := fanout.CreateInApp(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, InAppOutcome{Created: 1}, outcome)

	outcome, err = fanout.CreateInApp(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, InAppOutcome{Created: 1}, outcome)
	assert.Len(t, repo.created, 1)
}

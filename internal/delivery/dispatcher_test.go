package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridewell/alertcast-backend/internal/audience"
	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	"github.com/ridewell/alertcast-backend/pkg/logger"
	"github.com/ridewell/alertcast-backend/pkg/push"
	"github.com/ridewell/alertcast-backend/pkg/types"
)

type fakeSender struct {
	requests  []push.MulticastRequest
	responses []*push.MulticastResponse
	errs      []error
	calls     int
}

func (f *fakeSender) SendMulticast(_ context.Context, req push.MulticastRequest) (*push.MulticastResponse, error) {
	f.requests = append(f.requests, req)
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return nil, err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	// Default: everything succeeds.
	results := make([]push.SendResult, len(req.Tokens))
	for i := range results {
		results[i] = push.SendResult{Success: true}
	}
	return &push.MulticastResponse{Results: results}, nil
}

type fakeTokenCleaner struct {
	mu      sync.Mutex
	cleared [][]uuid.UUID
}

func (f *fakeTokenCleaner) ClearDeviceToken(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, ids)
	return int64(len(ids)), nil
}

func (f *fakeTokenCleaner) all() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for _, chunk := range f.cleared {
		out = append(out, chunk...)
	}
	return out
}

type fakeGuard struct {
	mu     sync.Mutex
	marked map[string]bool
	err    error
	errOn  int // 1-based CheckAndMark call that starts failing; 0 means every call
	calls  int
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{marked: map[string]bool{}}
}

func (f *fakeGuard) key(channel string, alertID, userID uuid.UUID) string {
	return channel + ":" + alertID.String() + ":" + userID.String()
}

func (f *fakeGuard) CheckAndMark(_ context.Context, channel string, alertID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && f.calls >= f.errOn {
		return false, f.err
	}
	key := f.key(channel, alertID, userID)
	if f.marked[key] {
		return true, nil
	}
	f.marked[key] = true
	return false, nil
}

func (f *fakeGuard) Clear(_ context.Context, channel string, alertID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.marked, f.key(channel, alertID, userID))
	return nil
}

func (f *fakeGuard) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marked)
}

func deliveryTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "delivery-test", Level: zerolog.ErrorLevel})
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:       uuid.New(),
		Audience: enums.AudienceAll,
		Status:   enums.AlertStatusInProgress,
		Blocks:   types.BlockList{{Title: "Service update", Body: "Routes resumed"}},
	}
}

func makeTargets(n int) []audience.Target {
	targets := make([]audience.Target, n)
	for i := range targets {
		targets[i] = audience.Target{ID: uuid.New(), DeviceToken: "tok-" + uuid.NewString()}
	}
	return targets
}

func newTestDispatcher(t *testing.T, sender PushSender, cleaner TokenCleaner, guard DeliveryGuard, opts DispatcherOptions) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(sender, cleaner, guard, nil, deliveryTestLogger(), opts)
	require.NoError(t, err)
	return d
}

func TestSendPush_AllSucceed(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(t, sender, &fakeTokenCleaner{}, newFakeGuard(), DispatcherOptions{BatchSize: 10})

	outcome, err := d.SendPush(context.Background(), testAlert(), makeTargets(3))
	require.NoError(t, err)
	assert.Equal(t, PushOutcome{Sent: 3}, outcome)
	require.Len(t, sender.requests, 1)
	assert.Equal(t, "Service update", sender.requests[0].Title)
	assert.Contains(t, sender.requests[0].Data, "alertId")
}

func TestSendPush_BatchesRespectSize(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(t, sender, &fakeTokenCleaner{}, newFakeGuard(), DispatcherOptions{BatchSize: 2})

	outcome, err := d.SendPush(context.Background(), testAlert(), makeTargets(5))
	require.NoError(t, err)
	assert.Equal(t, 5, outcome.Sent)
	assert.Equal(t, 3, sender.calls)
	assert.Len(t, sender.requests[0].Tokens, 2)
	assert.Len(t, sender.requests[2].Tokens, 1)
}

func TestSendPush_ClassifiesPermanentFailuresAndEvicts(t *testing.T) {
	targets := makeTargets(4)
	sender := &fakeSender{responses: []*push.MulticastResponse{{Results: []push.SendResult{
		{Success: true},
		{Success: false, ErrorCode: push.ErrCodeUnregistered},
		{Success: false, ErrorCode: push.ErrCodeUnavailable},
		{Success: false, ErrorCode: push.ErrCodeInvalidToken},
	}}}}
	cleaner := &fakeTokenCleaner{}
	d := newTestDispatcher(t, sender, cleaner, newFakeGuard(), DispatcherOptions{BatchSize: 10})

	outcome, err := d.SendPush(context.Background(), testAlert(), targets)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Sent)
	assert.Equal(t, 3, outcome.Failed)
	assert.Equal(t, 2, outcome.InvalidTokens)

	evicted := cleaner.all()
	require.Len(t, evicted, 2)
	assert.ElementsMatch(t, []uuid.UUID{targets[1].ID, targets[3].ID}, evicted)
}

func TestSendPush_WholeBatchFailureCountsAllFailed(t *testing.T) {
	targets := makeTargets(3)
	sender := &fakeSender{errs: []error{errors.New("gateway 503")}}
	guard := newFakeGuard()
	cleaner := &fakeTokenCleaner{}
	d := newTestDispatcher(t, sender, cleaner, guard, DispatcherOptions{BatchSize: 10})

	alert := testAlert()
	outcome, err := d.SendPush(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, PushOutcome{Failed: 3}, outcome)
	assert.Empty(t, cleaner.all())

	// Guard marks were re-armed, so a retry attempts every target again.
	outcome, err = d.SendPush(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, PushOutcome{Sent: 3}, outcome)
}

func TestSendPush_GuardDedupesAcrossRuns(t *testing.T) {
	targets := makeTargets(3)
	sender := &fakeSender{}
	guard := newFakeGuard()
	d := newTestDispatcher(t, sender, &fakeTokenCleaner{}, guard, DispatcherOptions{BatchSize: 10})

	alert := testAlert()
	outcome, err := d.SendPush(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Sent)
	assert.Equal(t, 1, sender.calls)

	// A re-run sends nothing but still reports everyone as sent.
	outcome, err = d.SendPush(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Sent)
	assert.Equal(t, 1, sender.calls)
}

func TestSendPush_GuardErrorAborts(t *testing.T) {
	guard := newFakeGuard()
	guard.err = errors.New("redis down")
	d := newTestDispatcher(t, &fakeSender{}, &fakeTokenCleaner{}, guard, DispatcherOptions{BatchSize: 10})

	_, err := d.SendPush(context.Background(), testAlert(), makeTargets(1))
	require.Error(t, err)
}

func TestSendPush_TransientFailureRetriedOnRedelivery(t *testing.T) {
	targets := makeTargets(2)
	sender := &fakeSender{responses: []*push.MulticastResponse{{Results: []push.SendResult{
		{Success: true},
		{Success: false, ErrorCode: push.ErrCodeUnavailable},
	}}}}
	guard := newFakeGuard()
	d := newTestDispatcher(t, sender, &fakeTokenCleaner{}, guard, DispatcherOptions{BatchSize: 10})

	alert := testAlert()
	outcome, err := d.SendPush(context.Background(), alert, targets)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Sent)
	assert.Equal(t, 1, outcome.Failed)

	// A redelivered job resends only the failed recipient. The successful
	// one stays deduped but still counts as sent.
	outcome, err = d.SendPush(context.Background(), alert, targets)
	require.NoError(t, err)
	require.Equal(t, 2, sender.calls)
	require.Len(t, sender.requests[1].Tokens, 1)
	assert.Equal(t, targets[1].DeviceToken, sender.requests[1].Tokens[0])
	assert.Equal(t, PushOutcome{Sent: 2}, outcome)
}

func TestSendPush_GuardErrorRearmsMarkedTargets(t *testing.T) {
	guard := newFakeGuard()
	guard.err = errors.New("redis down")
	guard.errOn = 2
	sender := &fakeSender{}
	d := newTestDispatcher(t, sender, &fakeTokenCleaner{}, guard, DispatcherOptions{BatchSize: 10})

	_, err := d.SendPush(context.Background(), testAlert(), makeTargets(2))
	require.Error(t, err)
	assert.Zero(t, sender.calls)
	assert.Zero(t, guard.size())
}

func TestSendPush_CancellationRearmsUnsentTargets(t *testing.T) {
	targets := makeTargets(4)
	sender := &fakeSender{}
	guard := newFakeGuard()
	d := newTestDispatcher(t, sender, &fakeTokenCleaner{}, guard, DispatcherOptions{BatchSize: 2, BatchDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := d.SendPush(ctx, testAlert(), targets)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, outcome.Sent)
	// Only the delivered batch keeps its marks; the rest can be retried.
	assert.Equal(t, 2, guard.size())
}

func TestSendPush_NoTargets(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(t, sender, &fakeTokenCleaner{}, newFakeGuard(), DispatcherOptions{})

	outcome, err := d.SendPush(context.Background(), testAlert(), nil)
	require.NoError(t, err)
	assert.Equal(t, PushOutcome{}, outcome)
	assert.Zero(t, sender.calls)
}

func TestClassifyBatch_IgnoresExtraResults(t *testing.T) {
	batch := makeTargets(2)
	results := []push.SendResult{
		{Success: true},
		{Success: false, ErrorCode: push.ErrCodeInvalidArgument},
		{Success: true},
	}
	sent, failed, bad := classifyBatch(batch, results)
	assert.Equal(t, 1, sent)
	require.Len(t, failed, 1)
	assert.Equal(t, batch[1].ID, failed[0].ID)
	require.Len(t, bad, 1)
	assert.Equal(t, batch[1].ID, bad[0])
}

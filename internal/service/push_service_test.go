package service

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/internal/notify"
	"github.com/quocanhngo/memento/internal/repository"
	"github.com/quocanhngo/memento/pkg/notification"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu       sync.Mutex
	errs     map[string]error
	payloads map[string]model.Payload
}

func (r *recordingTransport) Name() string                   { return "recording" }
func (r *recordingTransport) Supports(model.Subscriber) bool { return true }

func (r *recordingTransport) Send(_ context.Context, sub model.Subscriber, p model.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[sub.Endpoint] = p
	return r.errs[sub.Endpoint]
}

var fixedNow = time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*PushService, *recordingTransport, *repository.FileDeliveryLog) {
	t.Helper()
	dir := t.TempDir()

	backend, err := repository.NewFileBackend(filepath.Join(dir, "subscriptions.json"))
	require.NoError(t, err)
	store, err := repository.NewSnapshotStore(context.Background(), backend)
	require.NoError(t, err)
	deliveries, err := repository.NewFileDeliveryLog(filepath.Join(dir, "deliveries.log"))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	transport := &recordingTransport{errs: map[string]error{}, payloads: map[string]model.Payload{}}
	svc := NewPushService(
		store,
		notify.NewComposerWithRand(rand.New(rand.NewPCG(1, 1)), []string{"Carpe diem."}),
		notification.NewDispatcher(logger, transport),
		deliveries,
		PushServiceConfig{PublicKey: "BPub", FallbackTimezone: "Europe/Paris", Concurrency: 2},
		logger,
	)
	svc.now = func() time.Time { return fixedNow }
	return svc, transport, deliveries
}

func subscribeReq(endpoint, tz string) model.SubscribeRequest {
	return model.SubscribeRequest{
		Subscription: &model.PushSubscriptionObject{
			Endpoint: endpoint,
			Keys:     &model.WebPushKeys{P256dh: "p", Auth: "a"},
		},
		Timezone: tz,
	}
}

func strPtr(s string) *string { return &s }

func TestSubscribe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, subscribeReq("https://push.example/1", "Asia/Tokyo"))
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", sub.Timezone)

	_, err = svc.Subscribe(ctx, model.SubscribeRequest{Subscription: &model.PushSubscriptionObject{Endpoint: "x"}})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestResubscribeWithoutTimezoneKeepsStoredZone(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, subscribeReq("e1", "Asia/Tokyo"))
	require.NoError(t, err)
	_, err = svc.UpdatePreferences(ctx, model.UpdatePreferencesRequest{Endpoint: "e1", DateOfBirth: strPtr("1990-01-01")})
	require.NoError(t, err)

	sub, err := svc.Subscribe(ctx, subscribeReq("e1", ""))
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", sub.Timezone)
	assert.Equal(t, "1990-01-01", sub.Preferences.DateOfBirth)

	fresh, err := svc.Subscribe(ctx, subscribeReq("e2", ""))
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", fresh.Timezone)
}

func TestUpdatePreferencesUnknownEndpoint(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpdatePreferences(context.Background(), model.UpdatePreferencesRequest{
		Endpoint:    "unknown",
		DateOfBirth: strPtr("1990-01-01"),
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdatePreferencesWithoutFieldsLeavesSubscriberUnchanged(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Subscribe(ctx, subscribeReq("e1", "Asia/Tokyo"))
	require.NoError(t, err)

	sub, err := svc.UpdatePreferences(ctx, model.UpdatePreferencesRequest{Endpoint: "e1"})
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", sub.Timezone)
	assert.Nil(t, sub.Preferences)
	assert.Equal(t, created.UpdatedAt.UnixNano(), sub.UpdatedAt.UnixNano())

	_, err = svc.UpdatePreferences(ctx, model.UpdatePreferencesRequest{Endpoint: "unknown"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdatePreferencesInvalidDate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, subscribeReq("e1", "UTC"))
	require.NoError(t, err)

	_, err = svc.UpdatePreferences(ctx, model.UpdatePreferencesRequest{Endpoint: "e1", DateOfBirth: strPtr("15/10/1990")})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestUnsubscribe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, subscribeReq("e1", "UTC"))
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, "e1"))
	require.NoError(t, svc.Unsubscribe(ctx, "e1"))
	assert.ErrorIs(t, svc.Unsubscribe(ctx, " "), model.ErrValidation)

	_, err = svc.Preview(ctx, "e1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendTestAppliesOverridesAndRemovesGone(t *testing.T) {
	svc, transport, deliveries := newTestService(t)
	ctx := context.Background()
	for _, e := range []string{"ok", "gone", "flaky"} {
		_, err := svc.Subscribe(ctx, subscribeReq(e, "UTC"))
		require.NoError(t, err)
	}
	transport.errs["gone"] = fmt.Errorf("%w: 410", notification.ErrGone)
	transport.errs["flaky"] = fmt.Errorf("push service returned 502")

	sent, err := svc.SendTest(ctx, model.SendTestRequest{Title: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	assert.Equal(t, "Hello", transport.payloads["ok"].Title)
	assert.Equal(t, "Remember that you will die. Carpe diem.", transport.payloads["ok"].Body)

	_, err = svc.Preview(ctx, "gone")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.Preview(ctx, "flaky")
	assert.NoError(t, err)

	records, err := deliveries.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, model.SourceTest, rec.Source)
	}
}

func TestSendTestUnknownEndpoint(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.SendTest(context.Background(), model.SendTestRequest{Endpoint: "nope"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendNowDoesNotMarkSent(t *testing.T) {
	svc, transport, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, subscribeReq("e1", "Europe/Paris"))
	require.NoError(t, err)
	_, err = svc.Subscribe(ctx, subscribeReq("e2", "Europe/Paris"))
	require.NoError(t, err)

	sent, err := svc.SendNow(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Contains(t, transport.payloads, "e1")
	assert.NotContains(t, transport.payloads, "e2")

	sub, err := svc.store.Find(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, sub.LastSentLocalDate)
}

func TestSendNowWithNoSubscribers(t *testing.T) {
	svc, _, _ := newTestService(t)
	sent, err := svc.SendNow(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestPreview(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, subscribeReq("e1", "UTC"))
	require.NoError(t, err)

	empty, err := svc.Preview(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, empty.PercentRemaining)
	assert.Zero(t, empty.TotalWeeks)

	_, err = svc.UpdatePreferences(ctx, model.UpdatePreferencesRequest{
		Endpoint:    "e1",
		DateOfBirth: strPtr("2026-10-15"),
		Gender:      strPtr("homme"),
	})
	require.NoError(t, err)

	got, err := svc.Preview(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got.PercentRemaining)
	assert.Equal(t, 100.0, *got.PercentRemaining)
	assert.Equal(t, 0, got.PastWeeks)
	assert.Greater(t, got.TotalWeeks, 4000)

	_, err = svc.Preview(ctx, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPublicKeyAndRecentDeliveries(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.Equal(t, "BPub", svc.PublicKey())

	recent, err := svc.RecentDeliveries(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

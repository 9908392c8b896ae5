package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quocanhngo/memento/internal/lifespan"
	"github.com/quocanhngo/memento/internal/metrics"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/internal/notify"
	"github.com/quocanhngo/memento/internal/repository"
	"github.com/quocanhngo/memento/pkg/notification"
	"github.com/sirupsen/logrus"
)

// PushService handles subscription and manual send business logic
type PushService struct {
	store       repository.SubscriberStore
	composer    *notify.Composer
	dispatcher  *notification.Dispatcher
	deliveries  repository.DeliveryLog
	publicKey   string
	fallbackTZ  string
	concurrency int
	log         logrus.FieldLogger
	now         func() time.Time
}

type PushServiceConfig struct {
	PublicKey        string
	FallbackTimezone string
	Concurrency      int
}

func NewPushService(
	store repository.SubscriberStore,
	composer *notify.Composer,
	dispatcher *notification.Dispatcher,
	deliveries repository.DeliveryLog,
	cfg PushServiceConfig,
	log logrus.FieldLogger,
) *PushService {
	if deliveries == nil {
		deliveries = repository.NopDeliveryLog{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &PushService{
		store:       store,
		composer:    composer,
		dispatcher:  dispatcher,
		deliveries:  deliveries,
		publicKey:   cfg.PublicKey,
		fallbackTZ:  cfg.FallbackTimezone,
		concurrency: cfg.Concurrency,
		log:         log.WithField("component", "push_service"),
		now:         time.Now,
	}
}

// PublicKey returns the VAPID public key clients subscribe with ("" if unset)
func (s *PushService) PublicKey() string {
	return s.publicKey
}

// Subscribe creates or refreshes a subscriber. Re-subscribing keeps the
// stored preferences and last send date; a request without a timezone keeps
// the stored one.
func (s *PushService) Subscribe(ctx context.Context, req model.SubscribeRequest) (*model.Subscriber, error) {
	sub, err := model.NewSubscriber(req, s.fallbackTZ, s.now())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Timezone) == "" {
		existing, err := s.store.Find(ctx, sub.Endpoint)
		switch {
		case err == nil:
			sub.Timezone = existing.Timezone
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	saved, err := s.store.Upsert(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"endpoint": model.ShortEndpoint(saved.Endpoint),
		"timezone": saved.Timezone,
	}).Info("✅ Subscriber saved")
	return saved, nil
}

// UpdatePreferences merges the provided fields into an existing subscriber
func (s *PushService) UpdatePreferences(ctx context.Context, req model.UpdatePreferencesRequest) (*model.Subscriber, error) {
	endpoint, patch, err := req.Patch(s.fallbackTZ)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.store.Find(ctx, endpoint)
	}
	return s.store.UpdatePreferences(ctx, endpoint, patch)
}

// Unsubscribe removes a subscriber; unknown endpoints are not an error
func (s *PushService) Unsubscribe(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", model.ErrValidation)
	}
	if err := s.store.Remove(ctx, endpoint); err != nil {
		return err
	}
	s.log.WithField("endpoint", model.ShortEndpoint(endpoint)).Info("👋 Subscriber removed")
	return nil
}

// SendTest sends a test notification to one subscriber, or to all when no
// endpoint is given. Caller fields override the composed payload. Returns the
// number of deliveries.
func (s *PushService) SendTest(ctx context.Context, req model.SendTestRequest) (int, error) {
	subs, err := s.targets(ctx, req.Endpoint)
	if err != nil {
		return 0, err
	}
	return s.manualSend(ctx, subs, model.SourceTest, func(sub model.Subscriber, now time.Time) model.Payload {
		return notify.WithOverrides(s.composer.Compose(sub, now), req.Title, req.Body, req.URL)
	}), nil
}

// SendNow sends the regular daily reminder immediately, bypassing eligibility.
// It does not count as the day's scheduled send.
func (s *PushService) SendNow(ctx context.Context, endpoint string) (int, error) {
	subs, err := s.targets(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	return s.manualSend(ctx, subs, model.SourceSendNow, s.composer.Compose), nil
}

// Preview computes what the next reminder would say about remaining life
func (s *PushService) Preview(ctx context.Context, endpoint string) (*model.PreviewResponse, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", model.ErrValidation)
	}
	sub, err := s.store.Find(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &model.PreviewResponse{}
	if pct, ok := lifespan.RemainingPercent(sub.Preferences, now); ok {
		resp.PercentRemaining = &pct
	}
	if w, ok := lifespan.WeeksOf(sub.Preferences, now); ok {
		resp.TotalWeeks = w.Total
		resp.PastWeeks = w.Past
	}
	return resp, nil
}

// RecentDeliveries returns the newest delivery log entries
func (s *PushService) RecentDeliveries(ctx context.Context, limit int) ([]model.DeliveryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.deliveries.Recent(ctx, limit)
}

func (s *PushService) targets(ctx context.Context, endpoint string) ([]model.Subscriber, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return s.store.ListAll(ctx)
	}
	sub, err := s.store.Find(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return []model.Subscriber{*sub}, nil
}

// manualSend dispatches to subs and removes the ones reported gone. It never
// touches LastSentLocalDate.
func (s *PushService) manualSend(
	ctx context.Context,
	subs []model.Subscriber,
	source model.DeliverySource,
	compose func(model.Subscriber, time.Time) model.Payload,
) int {
	if len(subs) == 0 {
		return 0
	}

	now := s.now()
	targets := make([]notification.Target, len(subs))
	for i, sub := range subs {
		targets[i] = notification.Target{Subscriber: sub, Payload: compose(sub, now)}
	}

	results := s.dispatcher.SendAll(ctx, targets, s.concurrency)

	sent := 0
	var gone []string
	records := make([]model.DeliveryRecord, 0, len(results))
	for i, res := range results {
		switch res.Outcome {
		case notification.Delivered:
			sent++
		case notification.Gone:
			gone = append(gone, res.Endpoint)
		}
		metrics.RecordDispatch(string(source), string(res.Outcome))
		records = append(records, model.NewDeliveryRecord(now, res.Endpoint, source, string(res.Outcome), targets[i].Payload, res.Err))
	}

	if len(gone) > 0 {
		if err := s.store.ApplyBatch(ctx, repository.Batch{Remove: gone}); err != nil {
			s.log.WithError(err).Error("❌ Failed to remove gone subscribers")
		}
	}
	if err := s.deliveries.Append(ctx, records...); err != nil {
		s.log.WithError(err).Warn("⚠️  Failed to append delivery log")
	}

	s.log.WithFields(logrus.Fields{
		"source":  source,
		"targets": len(targets),
		"sent":    sent,
		"removed": len(gone),
	}).Info("📨 Manual send finished")
	return sent
}

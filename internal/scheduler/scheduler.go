package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/quocanhngo/memento/internal/metrics"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/internal/notify"
	"github.com/quocanhngo/memento/internal/repository"
	"github.com/quocanhngo/memento/pkg/notification"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Config controls when and how reminders go out
type Config struct {
	SendAt      string // local "HH:MM"
	Fallback    *time.Location
	CronSpec    string
	Concurrency int
}

// Decision is the eligibility of one subscriber at one instant
type Decision struct {
	Due       bool
	DateKey   string // local YYYY-MM-DD
	LocalTime string // local HH:MM
}

// Report summarizes a tick
type Report struct {
	Evaluated int
	Due       int
	Sent      int
	Removed   int
	Failed    int
	Skipped   bool
}

// Scheduler sends the daily reminder at SendAt in each subscriber's zone
type Scheduler struct {
	store      repository.SubscriberStore
	composer   *notify.Composer
	dispatcher *notification.Dispatcher
	deliveries repository.DeliveryLog
	lock       TickLock
	cfg        Config
	log        logrus.FieldLogger
	cron       *cron.Cron
}

func New(
	store repository.SubscriberStore,
	composer *notify.Composer,
	dispatcher *notification.Dispatcher,
	deliveries repository.DeliveryLog,
	lock TickLock,
	cfg Config,
	log logrus.FieldLogger,
) *Scheduler {
	if lock == nil {
		lock = NoLock{}
	}
	if deliveries == nil {
		deliveries = repository.NopDeliveryLog{}
	}
	if cfg.Fallback == nil {
		cfg.Fallback = time.UTC
	}
	if cfg.CronSpec == "" {
		cfg.CronSpec = "* * * * *"
	}
	return &Scheduler{
		store:      store,
		composer:   composer,
		dispatcher: dispatcher,
		deliveries: deliveries,
		lock:       lock,
		cfg:        cfg,
		log:        log.WithField("component", "scheduler"),
	}
}

// Start registers the tick with cron and starts it. Overlapping ticks are skipped.
func (s *Scheduler) Start() error {
	cronLog := cron.PrintfLogger(s.log)
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := s.cron.AddFunc(s.cfg.CronSpec, func() {
		s.Tick(context.Background(), time.Now())
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.CronSpec, err)
	}

	s.cron.Start()
	s.log.WithFields(logrus.Fields{
		"send_at":  s.cfg.SendAt,
		"fallback": s.cfg.Fallback.String(),
		"cron":     s.cfg.CronSpec,
	}).Info("⏰ Scheduler started")
	return nil
}

// Stop stops cron and waits for a running tick until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("✅ Scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("⚠️  Scheduler stop timed out with a tick in flight")
	}
}

// Evaluate decides whether sub is due at now. A subscriber is due during the
// minute whose local wall clock equals sendAt, unless it was already sent
// that local day.
func Evaluate(sub model.Subscriber, now time.Time, sendAt string, fallback *time.Location) Decision {
	local := now.In(sub.Location(fallback))
	d := Decision{
		DateKey:   local.Format(model.DateKeyLayout),
		LocalTime: local.Format("15:04"),
	}
	alreadySent := sub.LastSentLocalDate != nil && *sub.LastSentLocalDate == d.DateKey
	d.Due = d.LocalTime == sendAt && !alreadySent
	return d
}

// Tick evaluates every subscriber at now, dispatches to the due ones and
// commits the results in one store write. Failures for one subscriber never
// abort the others; a failed store read skips the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) Report {
	start := time.Now()
	var report Report

	subs, err := s.store.ListAll(ctx)
	if err != nil {
		s.log.WithError(err).Error("❌ Tick skipped: failed to list subscribers")
		metrics.RecordTick(metrics.TickStoreError, time.Since(start))
		report.Skipped = true
		return report
	}
	report.Evaluated = len(subs)

	var targets []notification.Target
	dateKeys := make(map[string]string)
	for _, sub := range subs {
		d := Evaluate(sub, now, s.cfg.SendAt, s.cfg.Fallback)
		if !d.Due {
			continue
		}
		targets = append(targets, notification.Target{
			Subscriber: sub,
			Payload:    s.composer.Compose(sub, now),
		})
		dateKeys[sub.Endpoint] = d.DateKey
	}
	report.Due = len(targets)
	metrics.SetSnapshot(len(subs), len(targets))

	if len(targets) == 0 {
		metrics.RecordTick(metrics.TickOK, time.Since(start))
		return report
	}

	acquired, err := s.lock.Acquire(ctx, now.Truncate(time.Minute))
	if err != nil || !acquired {
		if err != nil {
			s.log.WithError(err).Error("❌ Tick skipped: tick lock unavailable")
		} else {
			s.log.Debug("Tick claimed by another instance")
		}
		metrics.RecordTick(metrics.TickLocked, time.Since(start))
		report.Skipped = true
		return report
	}

	results := s.dispatcher.SendAll(ctx, targets, s.cfg.Concurrency)

	batch := repository.Batch{MarkSent: make(map[string]string)}
	records := make([]model.DeliveryRecord, 0, len(results))
	for i, res := range results {
		switch res.Outcome {
		case notification.Delivered:
			batch.MarkSent[res.Endpoint] = dateKeys[res.Endpoint]
			report.Sent++
		case notification.Gone:
			batch.Remove = append(batch.Remove, res.Endpoint)
			report.Removed++
		default:
			report.Failed++
		}
		metrics.RecordDispatch(string(model.SourceScheduled), string(res.Outcome))
		records = append(records, model.NewDeliveryRecord(now, res.Endpoint, model.SourceScheduled,
			string(res.Outcome), targets[i].Payload, res.Err))
	}

	if err := s.store.ApplyBatch(ctx, batch); err != nil {
		s.log.WithError(err).Error("❌ Failed to commit tick results")
	}
	if err := s.deliveries.Append(ctx, records...); err != nil {
		s.log.WithError(err).Warn("⚠️  Failed to append delivery log")
	}

	s.log.WithFields(logrus.Fields{
		"due":     report.Due,
		"sent":    report.Sent,
		"removed": report.Removed,
		"failed":  report.Failed,
	}).Info("📬 Daily reminders dispatched")
	metrics.RecordTick(metrics.TickOK, time.Since(start))
	return report
}

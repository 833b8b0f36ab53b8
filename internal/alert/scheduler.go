package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dahamkakooza/agrogram-gateway/internal/data"
	"github.com/dahamkakooza/agrogram-gateway/internal/outbox"
)

// fetchTimeout bounds each data-gateway call during an alert run. Alerts
// run off the request path, so this is looser than the USSD budget.
const fetchTimeout = 5 * time.Second

// Scheduler fires alert runs on a cron schedule. Each run walks the
// subscription table, fetches fresh content per subscription, and enqueues
// one outbox message per subscriber.
type Scheduler struct {
	cron   *cron.Cron
	subs   *Store
	gw     data.Gateway
	outbox *outbox.Store
}

func NewScheduler(subs *Store, gw data.Gateway, ob *outbox.Store) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		subs:   subs,
		gw:     gw,
		outbox: ob,
	}
}

// Start registers the schedule and begins the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid alert schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	slog.Info("alert scheduler started", "schedule", schedule)
	return nil
}

// Stop halts the cron loop; a run already in progress completes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Reschedule replaces the cron schedule, used on config hot-reload. An
// invalid new schedule leaves the scheduler stopped and is reported to
// the caller.
func (s *Scheduler) Reschedule(enabled bool, schedule string) error {
	s.cron.Stop()
	s.cron = cron.New(cron.WithSeconds())
	if !enabled {
		slog.Info("alert scheduler disabled")
		return nil
	}
	return s.Start(schedule)
}

// RunOnce executes one alert run. A subscription whose fetch fails is
// skipped this run, not unsubscribed; the next run tries again.
func (s *Scheduler) RunOnce() {
	subs := s.subs.List()
	if len(subs) == 0 {
		return
	}
	slog.Info("alert run starting", "subscriptions", len(subs))

	enqueued := 0
	for _, sub := range subs {
		body, err := s.compose(sub)
		if err != nil {
			slog.Warn("alert fetch failed, skipping subscriber this run",
				"phone", sub.Phone, "kind", sub.Kind, "topic", sub.Topic, "error", err)
			continue
		}
		s.outbox.Enqueue(sub.Phone, body)
		enqueued++
	}
	slog.Info("alert run finished", "enqueued", enqueued, "skipped", len(subs)-enqueued)
}

func (s *Scheduler) compose(sub Subscription) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	switch sub.Kind {
	case KindWeather:
		report, err := s.gw.Weather(ctx, sub.Topic)
		if err != nil {
			return "", err
		}
		return "Agrogram daily weather for " + report.Region + ": " +
			report.Summary + ", " + strconv.Itoa(report.TempC) + "C", nil
	case KindTip:
		tip, err := s.gw.Tip(ctx, sub.Topic)
		if err != nil {
			return "", err
		}
		return "Agrogram tip (" + tip.Crop + "): " + tip.Text, nil
	}
	return "", fmt.Errorf("unknown subscription kind %q", sub.Kind)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/lock"
	"github.com/besikta/inspection-server/internal/metrics"
	"github.com/besikta/inspection-server/internal/models"
)

const (
	// DefaultFollowUpSchedule runs the batch every morning.
	DefaultFollowUpSchedule = "0 6 * * *"

	followUpLeaseKey  = "followups:lease"
	followUpPeriodKey = "followups:period:"
	periodLayout      = "2006-01-02"
	periodMarkerTTL   = 48 * time.Hour
)

// RunReport summarizes one scheduler batch.
type RunReport struct {
	Period     string        `json:"period"`
	Forced     bool          `json:"forced"`
	Processed  int           `json:"processed"`
	FollowedUp int           `json:"followed_up"`
	Escalated  int           `json:"escalated"`
	Expired    int           `json:"expired"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

type schedulerOptions struct {
	Schedule string
	Cron     *cron.Cron
	LeaseTTL time.Duration
	Logger   *zap.SugaredLogger
	Metrics  *metrics.Metrics
}

// SchedulerOption applies configuration to the follow-up scheduler.
type SchedulerOption func(*schedulerOptions)

// WithSchedule sets the cron expression of the daily batch.
func WithSchedule(spec string) SchedulerOption {
	return func(o *schedulerOptions) {
		o.Schedule = spec
	}
}

// WithCron supplies a preconfigured cron instance.
func WithCron(c *cron.Cron) SchedulerOption {
	return func(o *schedulerOptions) {
		o.Cron = c
	}
}

// WithLeaseTTL bounds how long a crashed run keeps other processes out.
func WithLeaseTTL(ttl time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		o.LeaseTTL = ttl
	}
}

// FollowUpScheduler runs the time-driven offer transitions. Each run holds
// a lease so only one process works the batch, and marks its calendar day
// so a second run on the same day is a no-op.
type FollowUpScheduler struct {
	offers   *OfferService
	locker   lock.Locker
	cron     *cron.Cron
	schedule string
	leaseTTL time.Duration
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewFollowUpScheduler wires the scheduler around the offer service.
func NewFollowUpScheduler(offers *OfferService, locker lock.Locker, opts ...SchedulerOption) *FollowUpScheduler {
	options := schedulerOptions{
		Schedule: DefaultFollowUpSchedule,
		LeaseTTL: 10 * time.Minute,
		Logger:   offers.Logger,
		Metrics:  offers.Metrics,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop().Sugar()
	}
	cronEngine := options.Cron
	if cronEngine == nil {
		cronEngine = cron.New(cron.WithLocation(offers.Policy().Loc()))
	}
	return &FollowUpScheduler{
		offers:   offers,
		locker:   locker,
		cron:     cronEngine,
		schedule: options.Schedule,
		leaseTTL: options.LeaseTTL,
		logger:   options.Logger,
		metrics:  options.Metrics,
	}
}

// Run schedules the batch and blocks until ctx is cancelled.
func (s *FollowUpScheduler) Run(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		_, err = s.cron.AddFunc(s.schedule, func() { s.runScheduled(ctx) })
		if err == nil {
			s.cron.Start()
			s.logger.Infow("Follow-up scheduler started", "schedule", s.schedule)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule follow-ups %q: %w", s.schedule, err)
	}

	<-ctx.Done()
	s.stop()
	return nil
}

func (s *FollowUpScheduler) stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		s.logger.Info("Follow-up scheduler stopped")
	})
}

func (s *FollowUpScheduler) runScheduled(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Follow-up run panicked", "panic", r)
		}
	}()
	report, err := s.RunOnce(ctx, false)
	switch {
	case errors.Is(err, lock.ErrLeaseHeld):
		s.logger.Infow("Follow-up run skipped, lease held elsewhere")
	case errors.Is(err, lifecycle.ErrSchedulerSkew):
		s.logger.Infow("Follow-up run skipped, period already processed", "period", report.Period)
	case err != nil:
		s.logger.Errorw("Follow-up run failed", "error", err)
	}
}

// RunOnce processes every awaiting offer once. It returns lock.ErrLeaseHeld
// when another process is running the batch and lifecycle.ErrSchedulerSkew
// when the current day was already processed and force is false. A forced
// rerun still never applies a transition twice on one day.
func (s *FollowUpScheduler) RunOnce(ctx context.Context, force bool) (RunReport, error) {
	start := time.Now()
	policy := s.offers.Policy()
	now := s.offers.now()
	report := RunReport{
		Period: now.In(policy.Loc()).Format(periodLayout),
		Forced: force,
	}

	lease, err := s.locker.Acquire(ctx, followUpLeaseKey, s.leaseTTL)
	if err != nil {
		s.finish(&report, start, resultFor(err))
		return report, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warnw("Failed to release follow-up lease", "error", err)
		}
	}()

	fresh, err := s.locker.MarkPeriod(ctx, followUpPeriodKey+report.Period, periodMarkerTTL)
	if err != nil {
		s.finish(&report, start, "error")
		return report, fmt.Errorf("mark follow-up period: %w", err)
	}
	if !fresh && !force {
		s.finish(&report, start, "skew")
		return report, lifecycle.ErrSchedulerSkew
	}

	offers, err := s.offers.Store.ListOffersByStatus(ctx, models.OfferAwaitingResponse)
	if err != nil {
		s.finish(&report, start, "error")
		return report, fmt.Errorf("list awaiting offers: %w", err)
	}
	for _, o := range offers {
		if ctx.Err() != nil {
			break
		}
		report.Processed++
		s.processOffer(ctx, o.ID, policy, now, &report)
	}

	result := "ok"
	if report.Failed > 0 {
		result = "partial"
	}
	s.finish(&report, start, result)
	s.logger.Infow("Follow-up run complete",
		"period", report.Period,
		"forced", force,
		"processed", report.Processed,
		"followed_up", report.FollowedUp,
		"escalated", report.Escalated,
		"expired", report.Expired,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, ctx.Err()
}

// processOffer applies expire, then escalate and follow-up. An expired offer
// gets nothing else.
func (s *FollowUpScheduler) processOffer(ctx context.Context, id string, policy lifecycle.FollowUpPolicy, now time.Time, report *RunReport) {
	steps := []struct {
		name  string
		apply func(models.Offer) (lifecycle.OfferChange, error)
		count *int
	}{
		{lifecycle.OfferExpire, func(o models.Offer) (lifecycle.OfferChange, error) {
			return lifecycle.ExpireOffer(o, policy, now)
		}, &report.Expired},
		{lifecycle.OfferEscalate, func(o models.Offer) (lifecycle.OfferChange, error) {
			return lifecycle.EscalateOffer(o, policy, now)
		}, &report.Escalated},
		{lifecycle.OfferFollowUp, func(o models.Offer) (lifecycle.OfferChange, error) {
			return lifecycle.FollowUpOffer(o, policy, now)
		}, &report.FollowedUp},
	}

	applied := false
	for _, step := range steps {
		_, err := s.offers.applySystem(ctx, id, step.name, step.apply)
		switch {
		case err == nil:
			*step.count++
			applied = true
			s.metrics.SchedulerOffer(step.name)
			if step.name == lifecycle.OfferExpire {
				return
			}
		case skippable(err):
		default:
			report.Failed++
			s.metrics.SchedulerOffer("failed")
			s.logger.Errorw("Follow-up transition failed",
				"offer_id", id,
				"transition", step.name,
				"error", err,
			)
			return
		}
	}
	if !applied {
		report.Skipped++
	}
}

func (s *FollowUpScheduler) finish(report *RunReport, start time.Time, result string) {
	report.Duration = time.Since(start)
	s.metrics.SchedulerRun(result, report.Duration)
}

// skippable errors mean the offer needs nothing today, or was answered
// between the listing and the transition.
func skippable(err error) bool {
	return errors.Is(err, lifecycle.ErrNotDue) ||
		errors.Is(err, lifecycle.ErrSchedulerSkew) ||
		errors.Is(err, lifecycle.ErrInvalidTransition)
}

func resultFor(err error) string {
	if errors.Is(err, lock.ErrLeaseHeld) {
		return "lease_held"
	}
	return "error"
}

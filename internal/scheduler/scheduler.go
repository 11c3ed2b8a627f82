// Package scheduler drives the periodic billing jobs: cycle provisioning,
// cycle close, reminder escalation and gateway reaping. Each job runs to
// completion before its next trigger; jobs never overlap with themselves.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingcycledomain "github.com/strataops/ledgerline/internal/billingcycle/domain"
	"github.com/strataops/ledgerline/internal/clock"
	obsmetrics "github.com/strataops/ledgerline/internal/observability/metrics"
	paymentdomain "github.com/strataops/ledgerline/internal/payment/domain"
	reminderdomain "github.com/strataops/ledgerline/internal/reminder/domain"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

const (
	jobEnsureCycles   = "ensure_cycles"
	jobCloseCycles    = "close_cycles"
	jobReminderSweep  = "reminder_sweep"
	jobReminderExpire = "reminder_expire"
	jobReapGateway    = "reap_gateway"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	CycleSvc    billingcycledomain.Service
	ReminderSvc reminderdomain.Service
	PaymentSvc  paymentdomain.Service
	Locker      Locker
	Config      Config `optional:"true"`
}

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock

	cycleSvc    billingcycledomain.Service
	reminderSvc reminderdomain.Service
	paymentSvc  paymentdomain.Service
	locker      Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.CycleSvc == nil || p.ReminderSvc == nil || p.PaymentSvc == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}

	return &Scheduler{
		db:    p.DB,
		log:   p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:   p.Config.withDefaults(),
		genID: p.GenID,
		clock: p.Clock,

		cycleSvc:    p.CycleSvc,
		reminderSvc: p.ReminderSvc,
		paymentSvc:  p.PaymentSvc,
		locker:      p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	release, acquired, err := s.locker.Acquire(ctx, name, s.cfg.JobTimeout+s.cfg.RunInterval)
	if err != nil {
		s.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
		return nil
	}
	if !acquired {
		// Another instance holds this job.
		return nil
	}
	defer release()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err = fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	s.log.Warn("job failed", zap.String("job", name), zap.Error(err))

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{jobEnsureCycles, s.EnsureCyclesJob},
		{jobCloseCycles, s.CloseCyclesJob},
		{jobReminderSweep, s.ReminderSweepJob},
		{jobReminderExpire, s.ReminderExpireJob},
		{jobReapGateway, s.ReapGatewayJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) EnsureCyclesJob(ctx context.Context) error {
	ensured, err := s.cycleSvc.EnsureUpcomingCycles(ctx)
	if err != nil {
		return err
	}

	obsmetrics.Scheduler().AddBatchProcessed(jobEnsureCycles, "billing_cycles", ensured)

	return nil
}

type workBillingCycle struct {
	ID    snowflake.ID
	OrgID snowflake.ID
}

func (s *Scheduler) CloseCyclesJob(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error

	var cycles []workBillingCycle
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, org_id FROM billing_cycles
		WHERE status = ? AND period_end <= ?
		ORDER BY period_end ASC, id ASC
		LIMIT ?
	`, billingcycledomain.BillingCycleStatusOpen, now, s.cfg.BatchSize).Scan(&cycles).Error
	if err != nil {
		return err
	}

	closed := 0
	for _, cycle := range cycles {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		_, err := s.cycleSvc.CloseCycle(ctx, cycle.OrgID.String(), cycle.ID.String())
		switch {
		case err == nil:
			closed++
		case errors.Is(err, billingcycledomain.ErrCycleHasOpenInvoices):
			// Still collecting; retried on a later pass.
		case errors.Is(err, billingcycledomain.ErrInvalidStateTransition):
			// Lost the close race to another instance.
		default:
			jobErr = errors.Join(jobErr, fmt.Errorf("close cycle %s: %w", cycle.ID, err))
		}
	}

	obsmetrics.Scheduler().AddBatchProcessed(jobCloseCycles, "billing_cycles", closed)

	return jobErr
}

func (s *Scheduler) ReminderSweepJob(ctx context.Context) error {
	res, err := s.reminderSvc.Sweep(ctx)
	if res != nil {
		obsmetrics.Scheduler().AddBatchProcessed(jobReminderSweep, "reminders", res.Sent)
	}

	return err
}

func (s *Scheduler) ReminderExpireJob(ctx context.Context) error {
	expired, err := s.reminderSvc.ExpireOverdue(ctx)
	obsmetrics.Scheduler().AddBatchProcessed(jobReminderExpire, "reminders", expired)

	return err
}

func (s *Scheduler) ReapGatewayJob(ctx context.Context) error {
	reaped, err := s.paymentSvc.ReapExpiredGatewayPayments(ctx)
	if err != nil {
		return err
	}

	if reaped > 0 {
		s.log.Info("reaped stale gateway attempts", zap.Int64("count", reaped))
	}
	obsmetrics.Scheduler().AddBatchProcessed(jobReapGateway, "invoices", int(reaped))

	return nil
}

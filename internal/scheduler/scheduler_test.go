package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingcycledomain "github.com/strataops/ledgerline/internal/billingcycle/domain"
	"github.com/strataops/ledgerline/internal/clock"
	paymentdomain "github.com/strataops/ledgerline/internal/payment/domain"
	reminderdomain "github.com/strataops/ledgerline/internal/reminder/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubCycleSvc struct {
	billingcycledomain.Service

	mu          sync.Mutex
	ensured     int
	closeErr    error
	closedIDs   []string
	ensureDelay time.Duration
}

func (s *stubCycleSvc) EnsureUpcomingCycles(ctx context.Context) (int, error) {
	if s.ensureDelay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.ensureDelay):
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured++
	return 2, nil
}

func (s *stubCycleSvc) CloseCycle(ctx context.Context, orgID, cycleID string) (*billingcycledomain.BillingCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return nil, s.closeErr
	}
	s.closedIDs = append(s.closedIDs, cycleID)
	return &billingcycledomain.BillingCycle{Status: billingcycledomain.BillingCycleStatusClosed}, nil
}

type stubReminderSvc struct {
	reminderdomain.Service

	sweeps   int
	expired  int
	sweepErr error
}

func (s *stubReminderSvc) Sweep(ctx context.Context) (*reminderdomain.SweepResult, error) {
	s.sweeps++
	return &reminderdomain.SweepResult{Scanned: 3, Sent: 3}, s.sweepErr
}

func (s *stubReminderSvc) ExpireOverdue(ctx context.Context) (int, error) {
	s.expired++
	return 1, nil
}

type stubPaymentSvc struct {
	paymentdomain.Service

	reaps int
}

func (s *stubPaymentSvc) ReapExpiredGatewayPayments(ctx context.Context) (int64, error) {
	s.reaps++
	return 1, nil
}

type lockAttempt struct {
	name     string
	acquired bool
}

type recordingLocker struct {
	mu       sync.Mutex
	denied   map[string]bool
	attempts []lockAttempt
	released []string
}

func (l *recordingLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.denied[name] {
		l.attempts = append(l.attempts, lockAttempt{name, false})
		return nil, false, nil
	}

	l.attempts = append(l.attempts, lockAttempt{name, true})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = append(l.released, name)
	}, true, nil
}

type fixture struct {
	sched    *Scheduler
	cycles   *stubCycleSvc
	reminder *stubReminderSvc
	payments *stubPaymentSvc
	locker   *recordingLocker
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, name string, cfg Config) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&billingcycledomain.BillingCycle{})
	assert.NoError(t, err)

	node, _ := snowflake.NewNode(1)
	cycles := &stubCycleSvc{}
	reminder := &stubReminderSvc{}
	payments := &stubPaymentSvc{}
	locker := &recordingLocker{denied: map[string]bool{}}
	fc := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))

	sched, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fc,
		CycleSvc:    cycles,
		ReminderSvc: reminder,
		PaymentSvc:  payments,
		Locker:      locker,
		Config:      cfg,
	})
	assert.NoError(t, err)

	return &fixture{
		sched:    sched,
		cycles:   cycles,
		reminder: reminder,
		payments: payments,
		locker:   locker,
		clock:    fc,
	}
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	f := newFixture(t, "sched_all", Config{})

	err := f.sched.RunOnce(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, 1, f.cycles.ensured)
	assert.Equal(t, 1, f.reminder.sweeps)
	assert.Equal(t, 1, f.reminder.expired)
	assert.Equal(t, 1, f.payments.reaps)

	// Every acquired lock is released again.
	assert.Len(t, f.locker.released, len(f.locker.attempts))
}

func TestEnabledJobsFilter(t *testing.T) {
	f := newFixture(t, "sched_filter", Config{EnabledJobs: []string{"reminder_sweep"}})

	err := f.sched.RunOnce(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, 0, f.cycles.ensured)
	assert.Equal(t, 1, f.reminder.sweeps)
	assert.Equal(t, 0, f.payments.reaps)
}

func TestLockedOutJobIsSkippedWithoutError(t *testing.T) {
	f := newFixture(t, "sched_locked", Config{})
	f.locker.denied["ensure_cycles"] = true

	err := f.sched.RunOnce(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, 0, f.cycles.ensured)
	assert.Equal(t, 1, f.reminder.sweeps)
}

func TestJobErrorDoesNotBlockOtherJobs(t *testing.T) {
	f := newFixture(t, "sched_err", Config{})
	f.reminder.sweepErr = errors.New("smtp_down")

	err := f.sched.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reminder_sweep")

	// The failing sweep still lets later jobs run.
	assert.Equal(t, 1, f.reminder.expired)
	assert.Equal(t, 1, f.payments.reaps)
}

func TestJobTimeoutIsSoft(t *testing.T) {
	f := newFixture(t, "sched_timeout", Config{JobTimeout: 20 * time.Millisecond})
	f.cycles.ensureDelay = 200 * time.Millisecond

	err := f.sched.RunOnce(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, 0, f.cycles.ensured)
	assert.Equal(t, 1, f.reminder.sweeps)
}

func TestCloseCyclesJobSkipsOpenInvoiceCycles(t *testing.T) {
	f := newFixture(t, "sched_close", Config{})
	node, _ := snowflake.NewNode(2)
	now := f.clock.Now()

	err := f.sched.db.Create(&billingcycledomain.BillingCycle{
		ID:          node.Generate(),
		OrgID:       node.Generate(),
		Name:        "2026-03",
		PeriodStart: now.AddDate(0, -1, 0),
		PeriodEnd:   now.AddDate(0, 0, -1),
		Status:      billingcycledomain.BillingCycleStatusOpen,
	}).Error
	assert.NoError(t, err)

	f.cycles.closeErr = billingcycledomain.ErrCycleHasOpenInvoices
	err = f.sched.CloseCyclesJob(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, f.cycles.closedIDs)

	f.cycles.closeErr = nil
	err = f.sched.CloseCyclesJob(context.Background())
	assert.NoError(t, err)
	assert.Len(t, f.cycles.closedIDs, 1)
}

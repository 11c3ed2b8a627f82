package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/strataops/ledgerline/internal/clock"
	"github.com/strataops/ledgerline/internal/config"
	"github.com/strataops/ledgerline/internal/reminder/domain"
	"github.com/strataops/ledgerline/internal/reminder/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubNotifier struct {
	sent    []snowflake.ID
	failFor map[string]bool
}

func (n *stubNotifier) Notify(_ context.Context, state *domain.ReminderState) error {
	if n.failFor[state.Recipient] {
		return errors.New("smtp_unavailable")
	}
	n.sent = append(n.sent, state.EntityID)
	return nil
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	clock    *clock.FakeClock
	notifier *stubNotifier
	node     *snowflake.Node
	orgID    string
}

var testBillingConfig = config.BillingConfig{
	DueDays:              7,
	ReapThresholdMinutes: 10,
	Reminders: []config.ReminderProfile{
		{EntityType: "lease_renewal", LeadDays: 7, StageOffsetDays: []int{3}, MaxReminders: 2, GraceDays: 5},
		{EntityType: "card_fee", LeadDays: 0, StageOffsetDays: []int{1}, MaxReminders: 3, GraceDays: 2},
	},
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&domain.ReminderState{})
	assert.NoError(t, err)

	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	notifier := &stubNotifier{failFor: map[string]bool{}}

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Clock:    fc,
		Billing:  config.NewStaticBillingConfigHolder(testBillingConfig),
		Notifier: notifier,
	})

	return &fixture{
		db:       db,
		svc:      svc,
		clock:    fc,
		notifier: notifier,
		node:     node,
		orgID:    node.Generate().String(),
	}
}

func (f *fixture) upsert(t *testing.T, entityType, entityID string, due time.Time) *domain.ReminderState {
	t.Helper()

	state, err := f.svc.Upsert(context.Background(), &domain.UpsertRequest{
		OrganizationID: f.orgID,
		EntityType:     entityType,
		EntityID:       entityID,
		DueAt:          due,
		Recipient:      "resident@example.com",
	})
	assert.NoError(t, err)

	return state
}

func TestUpsertSchedulesFirstReminder(t *testing.T) {
	f := newFixture(t, "reminder_upsert")
	now := f.clock.Now()

	entityID := f.node.Generate().String()
	state := f.upsert(t, "lease_renewal", entityID, now.AddDate(0, 0, 14))

	assert.Equal(t, domain.ReminderStatusPending, state.Status)
	assert.Equal(t, 0, state.ReminderCount)
	if assert.NotNil(t, state.NextRemindAt) {
		// Stage 1 fires leadDays ahead of the due date.
		assert.Equal(t, now.AddDate(0, 0, 7), state.NextRemindAt.UTC())
	}

	_, err := f.svc.Upsert(context.Background(), &domain.UpsertRequest{
		OrganizationID: f.orgID,
		EntityType:     "unknown_type",
		EntityID:       entityID,
		DueAt:          now,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEntityType)
}

func TestSweepEscalatesAndCaps(t *testing.T) {
	f := newFixture(t, "reminder_escalate")
	ctx := context.Background()
	now := f.clock.Now()

	entityID := f.node.Generate().String()
	// Due in 7 days, lead 7: stage 1 is due immediately.
	f.upsert(t, "lease_renewal", entityID, now.AddDate(0, 0, 7))

	res, err := f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	state, err := f.svc.Get(ctx, f.orgID, "lease_renewal", entityID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ReminderStatusReminded, state.Status)
	assert.Equal(t, 1, state.ReminderCount)
	if assert.NotNil(t, state.NextRemindAt) {
		// Stage 2 is offset from the send, not the due date.
		assert.Equal(t, f.clock.Now().AddDate(0, 0, 3), state.NextRemindAt.UTC())
	}

	// Nothing due until the stage offset elapses.
	f.clock.Advance(24 * time.Hour)
	res, err = f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.Sent)

	f.clock.Advance(48 * time.Hour)
	res, err = f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	state, err = f.svc.Get(ctx, f.orgID, "lease_renewal", entityID)
	assert.NoError(t, err)
	assert.Equal(t, 2, state.ReminderCount)
	assert.Nil(t, state.NextRemindAt)

	// Max reached, later sweeps leave the count alone.
	f.clock.Advance(10 * 24 * time.Hour)
	res, err = f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.Sent)

	state, err = f.svc.Get(ctx, f.orgID, "lease_renewal", entityID)
	assert.NoError(t, err)
	assert.Equal(t, 2, state.ReminderCount)
}

func TestSweepSameDayDoesNotDoubleIncrement(t *testing.T) {
	f := newFixture(t, "reminder_same_day")
	ctx := context.Background()
	now := f.clock.Now()

	entityID := f.node.Generate().String()
	f.upsert(t, "lease_renewal", entityID, now.AddDate(0, 0, 7))

	res, err := f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	// Force the schedule back so the same obligation looks due again
	// within the same day.
	err = f.db.Exec(`UPDATE reminder_states SET next_remind_at = ?`, now).Error
	assert.NoError(t, err)

	res, err = f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.Sent)

	state, err := f.svc.Get(ctx, f.orgID, "lease_renewal", entityID)
	assert.NoError(t, err)
	assert.Equal(t, 1, state.ReminderCount)
}

func TestSweepIsolatesNotifierFailures(t *testing.T) {
	f := newFixture(t, "reminder_isolation")
	ctx := context.Background()
	now := f.clock.Now()

	goodID := f.node.Generate().String()
	f.upsert(t, "card_fee", goodID, now)

	badID := f.node.Generate().String()
	bad, err := f.svc.Upsert(ctx, &domain.UpsertRequest{
		OrganizationID: f.orgID,
		EntityType:     "card_fee",
		EntityID:       badID,
		DueAt:          now,
		Recipient:      "broken@example.com",
	})
	assert.NoError(t, err)
	f.notifier.failFor["broken@example.com"] = true

	res, err := f.svc.Sweep(ctx)
	assert.Error(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)

	// The failed obligation keeps its schedule and is retried by the
	// next sweep once delivery recovers.
	state, err := f.svc.Get(ctx, f.orgID, "card_fee", bad.EntityID.String())
	assert.NoError(t, err)
	assert.Equal(t, 0, state.ReminderCount)

	f.notifier.failFor["broken@example.com"] = false
	res, err = f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestDismissHidesUntilNextStage(t *testing.T) {
	f := newFixture(t, "reminder_dismiss")
	ctx := context.Background()
	now := f.clock.Now()

	entityID := f.node.Generate().String()
	f.upsert(t, "lease_renewal", entityID, now.AddDate(0, 0, 7))

	_, err := f.svc.Sweep(ctx)
	assert.NoError(t, err)

	state, err := f.svc.Dismiss(ctx, f.orgID, "lease_renewal", entityID)
	assert.NoError(t, err)
	if assert.NotNil(t, state.DismissedUntil) && assert.NotNil(t, state.NextRemindAt) {
		assert.Equal(t, state.NextRemindAt.UTC(), state.DismissedUntil.UTC())
	}

	// Once the next stage fires the dismissal no longer hides it.
	f.clock.Advance(3 * 24 * time.Hour)
	res, err := f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	state, err = f.svc.Get(ctx, f.orgID, "lease_renewal", entityID)
	assert.NoError(t, err)
	assert.Equal(t, 2, state.ReminderCount)
}

func TestResolveStopsReminders(t *testing.T) {
	f := newFixture(t, "reminder_resolve")
	ctx := context.Background()
	now := f.clock.Now()

	entityID := f.node.Generate().String()
	f.upsert(t, "card_fee", entityID, now)

	state, err := f.svc.Resolve(ctx, f.orgID, "card_fee", entityID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ReminderStatusResolved, state.Status)
	assert.NotNil(t, state.ResolvedAt)

	res, err := f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.Sent)

	_, err = f.svc.Resolve(ctx, f.orgID, "card_fee", entityID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = f.svc.Decline(ctx, f.orgID, "card_fee", entityID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestExpireOverdueAndRevive(t *testing.T) {
	f := newFixture(t, "reminder_expire")
	ctx := context.Background()
	now := f.clock.Now()

	entityID := f.node.Generate().String()
	// Grace for lease_renewal is 5 days; six days overdue. Two sweeps
	// exhaust the schedule (max 2 reminders) before expiry runs.
	f.upsert(t, "lease_renewal", entityID, now.AddDate(0, 0, -6))

	res, err := f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	f.clock.Advance(3 * 24 * time.Hour)
	res, err = f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	// Overdue but with an unexhausted schedule, this one must survive.
	freshID := f.node.Generate().String()
	f.upsert(t, "lease_renewal", freshID, now.AddDate(0, 0, -6))

	expired, err := f.svc.ExpireOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, expired)

	state, err := f.svc.Get(ctx, f.orgID, "lease_renewal", entityID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ReminderStatusExpired, state.Status)
	assert.Nil(t, state.NextRemindAt)

	fresh, err := f.svc.Get(ctx, f.orgID, "lease_renewal", freshID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ReminderStatusPending, fresh.Status)
	assert.Equal(t, 0, fresh.ReminderCount)

	_, err = f.svc.Resolve(ctx, f.orgID, "lease_renewal", freshID)
	assert.NoError(t, err)

	res, err = f.svc.Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.Sent)

	// A fresh obligation for the same entity restarts the cycle.
	revived := f.upsert(t, "lease_renewal", entityID, now.AddDate(0, 0, 14))
	assert.Equal(t, domain.ReminderStatusPending, revived.Status)
	assert.NotNil(t, revived.NextRemindAt)
}

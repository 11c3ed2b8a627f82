package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/strataops/ledgerline/internal/clock"
	"github.com/strataops/ledgerline/internal/config"
	"github.com/strataops/ledgerline/internal/observability/metrics"
	"github.com/strataops/ledgerline/internal/reminder/domain"
)

const sweepBatchSize = 200

// ServiceParam defines dependencies for the reminder service.
type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Notifier domain.Notifier
}

type serviceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	notifier domain.Notifier
}

// NewService constructs the reminder escalation service.
func NewService(p ServiceParam) domain.Service {
	return &serviceImpl{
		db:       p.DB,
		log:      p.Log.Named("reminder.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		billing:  p.Billing,
		notifier: p.Notifier,
	}
}

func (s *serviceImpl) Upsert(ctx context.Context, req *domain.UpsertRequest) (*domain.ReminderState, error) {
	orgID, err := snowflake.ParseString(req.OrganizationID)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	if req.EntityType == "" {
		return nil, domain.ErrInvalidEntityType
	}

	entityID, err := snowflake.ParseString(req.EntityID)
	if err != nil {
		return nil, domain.ErrInvalidEntityID
	}

	profile, ok := s.billing.Get().Profile(req.EntityType)
	if !ok {
		return nil, domain.ErrInvalidEntityType
	}

	firstAt := req.DueAt.AddDate(0, 0, -profile.LeadDays)

	existing, err := s.repo.FindByEntity(ctx, s.db, orgID, req.EntityType, entityID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.Status == domain.ReminderStatusDeclined || existing.Status == domain.ReminderStatusResolved {
			return nil, domain.ErrInvalidStateTransition
		}

		existing.DueAt = req.DueAt
		existing.Recipient = req.Recipient
		existing.Payload = req.Payload
		existing.Status = domain.ReminderStatusPending
		existing.DismissedUntil = nil
		if existing.ReminderCount < profile.MaxReminders {
			existing.NextRemindAt = &firstAt
		} else {
			existing.NextRemindAt = nil
		}

		if err := s.repo.Reschedule(ctx, s.db, existing); err != nil {
			return nil, err
		}

		return existing, nil
	}

	state := &domain.ReminderState{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		EntityType:   req.EntityType,
		EntityID:     entityID,
		Status:       domain.ReminderStatusPending,
		DueAt:        req.DueAt,
		NextRemindAt: &firstAt,
		Recipient:    req.Recipient,
		Payload:      req.Payload,
	}

	if err := s.repo.Insert(ctx, s.db, state); err != nil {
		return nil, err
	}

	return state, nil
}

func (s *serviceImpl) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	now := s.clock.Now()
	result := &domain.SweepResult{}

	due, err := s.repo.ListDue(ctx, s.db, now, sweepBatchSize)
	if err != nil {
		return nil, err
	}

	var sweepErrs []error
	for i := range due {
		state := &due[i]
		result.Scanned++

		sent, err := s.remindOne(ctx, state, now)
		if err != nil {
			result.Failed++
			metrics.Billing().RecordReminderError(state.EntityType)
			s.log.Warn("reminder send failed",
				zap.String("entity_type", state.EntityType),
				zap.String("entity_id", state.EntityID.String()),
				zap.Error(err),
			)
			sweepErrs = append(sweepErrs, fmt.Errorf("%s/%s: %w", state.EntityType, state.EntityID, err))
			continue
		}

		if sent {
			result.Sent++
		}
	}

	return result, errors.Join(sweepErrs...)
}

func (s *serviceImpl) remindOne(ctx context.Context, state *domain.ReminderState, now time.Time) (bool, error) {
	profile, ok := s.billing.Get().Profile(state.EntityType)
	if !ok {
		return false, fmt.Errorf("no reminder profile for entity type %q", state.EntityType)
	}

	if state.ReminderCount >= profile.MaxReminders {
		return false, nil
	}

	if state.LastRemindedAt != nil && sameDay(*state.LastRemindedAt, now) {
		return false, nil
	}

	if err := s.notifier.Notify(ctx, state); err != nil {
		return false, err
	}

	next := nextRemindAt(profile, state.ReminderCount+1, now)

	rows, err := s.repo.MarkReminded(ctx, s.db, state.ID, state.ReminderCount, now, next)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		// Lost the race to a concurrent sweep; its send counts.
		return false, nil
	}

	metrics.Billing().RecordReminderSend(state.EntityType)

	return true, nil
}

// nextRemindAt computes the schedule after the given send. Stages past
// the first fire at fixed offsets from the previous reminder, the last
// configured offset repeating. Nil once the count reaches the cap.
func nextRemindAt(profile config.ReminderProfile, sentCount int, sentAt time.Time) *time.Time {
	if sentCount >= profile.MaxReminders {
		return nil
	}

	idx := sentCount - 1
	if idx >= len(profile.StageOffsetDays) {
		idx = len(profile.StageOffsetDays) - 1
	}

	next := sentAt.AddDate(0, 0, profile.StageOffsetDays[idx])
	return &next
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (s *serviceImpl) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0

	var expireErrs []error
	for _, profile := range s.billing.Get().Reminders {
		cutoff := now.AddDate(0, 0, -profile.GraceDays)

		rows, err := s.repo.ExpireOverdue(ctx, s.db, profile.EntityType, cutoff, profile.MaxReminders)
		if err != nil {
			expireErrs = append(expireErrs, fmt.Errorf("%s: %w", profile.EntityType, err))
			continue
		}

		total += int(rows)
	}

	return total, errors.Join(expireErrs...)
}

func (s *serviceImpl) Dismiss(ctx context.Context, orgID, entityType, entityID string) (*domain.ReminderState, error) {
	state, err := s.find(ctx, orgID, entityType, entityID)
	if err != nil {
		return nil, err
	}

	profile, ok := s.billing.Get().Profile(state.EntityType)
	if !ok {
		return nil, domain.ErrInvalidEntityType
	}

	// Hidden until the next stage fires, so a dismissed reminder n
	// still surfaces reminder n+1.
	until := state.DueAt.AddDate(0, 0, profile.GraceDays)
	if state.NextRemindAt != nil {
		until = *state.NextRemindAt
	}

	rows, err := s.repo.SetDismissedUntil(ctx, s.db, state.ID, until)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrInvalidStateTransition
	}

	state.DismissedUntil = &until

	return state, nil
}

func (s *serviceImpl) Decline(ctx context.Context, orgID, entityType, entityID string) (*domain.ReminderState, error) {
	return s.terminate(ctx, orgID, entityType, entityID, domain.ReminderStatusDeclined)
}

func (s *serviceImpl) Resolve(ctx context.Context, orgID, entityType, entityID string) (*domain.ReminderState, error) {
	return s.terminate(ctx, orgID, entityType, entityID, domain.ReminderStatusResolved)
}

func (s *serviceImpl) terminate(ctx context.Context, orgID, entityType, entityID string, status domain.ReminderStatus) (*domain.ReminderState, error) {
	state, err := s.find(ctx, orgID, entityType, entityID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	rows, err := s.repo.SetTerminal(ctx, s.db, state.ID, status, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrInvalidStateTransition
	}

	state.Status = status
	state.NextRemindAt = nil
	state.ResolvedAt = &now

	return state, nil
}

func (s *serviceImpl) Get(ctx context.Context, orgID, entityType, entityID string) (*domain.ReminderState, error) {
	return s.find(ctx, orgID, entityType, entityID)
}

func (s *serviceImpl) find(ctx context.Context, orgID, entityType, entityID string) (*domain.ReminderState, error) {
	org, err := snowflake.ParseString(orgID)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	if entityType == "" {
		return nil, domain.ErrInvalidEntityType
	}

	entity, err := snowflake.ParseString(entityID)
	if err != nil {
		return nil, domain.ErrInvalidEntityID
	}

	state, err := s.repo.FindByEntity(ctx, s.db, org, entityType, entity)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrNotFound
	}

	return state, nil
}

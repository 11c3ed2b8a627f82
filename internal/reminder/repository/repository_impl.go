package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/strataops/ledgerline/internal/reminder/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, state *domain.ReminderState) error {
	return db.WithContext(ctx).Create(state).Error
}

func (r *repo) FindByEntity(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType string, entityID snowflake.ID) (*domain.ReminderState, error) {
	var state domain.ReminderState
	err := db.WithContext(ctx).
		Raw(`
			SELECT * FROM reminder_states
			WHERE org_id = ? AND entity_type = ? AND entity_id = ?
		`, orgID, entityType, entityID).
		Scan(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if state.ID == 0 {
		return nil, nil
	}

	return &state, nil
}

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, state *domain.ReminderState) error {
	return db.WithContext(ctx).Exec(`
		UPDATE reminder_states
		SET due_at = ?,
			next_remind_at = ?,
			recipient = ?,
			payload = ?,
			status = ?,
			dismissed_until = NULL,
			resolved_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		state.DueAt,
		state.NextRemindAt,
		state.Recipient,
		state.Payload,
		state.Status,
		state.ID,
	).Error
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.ReminderState, error) {
	var states []domain.ReminderState
	err := db.WithContext(ctx).
		Raw(`
			SELECT * FROM reminder_states
			WHERE status IN ('PENDING', 'REMINDED')
			  AND next_remind_at IS NOT NULL
			  AND next_remind_at <= ?
			  AND (dismissed_until IS NULL OR dismissed_until <= ?)
			ORDER BY next_remind_at ASC
			LIMIT ?
		`, now, now, limit).
		Scan(&states).Error
	if err != nil {
		return nil, err
	}

	return states, nil
}

func (r *repo) MarkReminded(ctx context.Context, db *gorm.DB, id snowflake.ID, priorCount int, remindedAt time.Time, nextRemindAt *time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(`
		UPDATE reminder_states
		SET status = 'REMINDED',
			reminder_count = reminder_count + 1,
			last_reminded_at = ?,
			next_remind_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND reminder_count = ? AND status IN ('PENDING', 'REMINDED')
	`, remindedAt, nextRemindAt, id, priorCount)
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

func (r *repo) ExpireOverdue(ctx context.Context, db *gorm.DB, entityType string, cutoff time.Time, minReminders int) (int64, error) {
	// Rows that have not exhausted their reminder schedule stay live.
	res := db.WithContext(ctx).Exec(`
		UPDATE reminder_states
		SET status = 'EXPIRED',
			next_remind_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE entity_type = ?
		  AND status IN ('PENDING', 'REMINDED')
		  AND due_at < ?
		  AND reminder_count >= ?
	`, entityType, cutoff, minReminders)
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

func (r *repo) SetDismissedUntil(ctx context.Context, db *gorm.DB, id snowflake.ID, until time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(`
		UPDATE reminder_states
		SET dismissed_until = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('PENDING', 'REMINDED')
	`, until, id)
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

func (r *repo) SetTerminal(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.ReminderStatus, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(`
		UPDATE reminder_states
		SET status = ?,
			next_remind_at = NULL,
			resolved_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('PENDING', 'REMINDED')
	`, status, at, id)
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists reminder states.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, state *ReminderState) error

	FindByEntity(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType string, entityID snowflake.ID) (*ReminderState, error)

	// Reschedule updates due date, recipient and next reminder time on
	// an existing row, reviving an EXPIRED state back to PENDING.
	Reschedule(ctx context.Context, db *gorm.DB, state *ReminderState) error

	// ListDue returns non-terminal states whose next_remind_at has
	// passed and which are not currently dismissed.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]ReminderState, error)

	// MarkReminded records one delivered reminder. Guarded on the
	// current reminder_count so a concurrent sweep cannot double-send.
	MarkReminded(ctx context.Context, db *gorm.DB, id snowflake.ID, priorCount int, remindedAt time.Time, nextRemindAt *time.Time) (int64, error)

	// ExpireOverdue flips PENDING and REMINDED states whose due date
	// lies before the cutoff to EXPIRED. Only states that already
	// received at least minReminders reminders are eligible.
	ExpireOverdue(ctx context.Context, db *gorm.DB, entityType string, cutoff time.Time, minReminders int) (int64, error)

	// SetDismissedUntil hides the state until the given time.
	SetDismissedUntil(ctx context.Context, db *gorm.DB, id snowflake.ID, until time.Time) (int64, error)

	// SetTerminal moves a non-terminal state to DECLINED or RESOLVED.
	SetTerminal(ctx context.Context, db *gorm.DB, id snowflake.ID, status ReminderStatus, at time.Time) (int64, error)
}

// Package domain contains persistence models for escalating reminders
// on unresolved obligations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ReminderStatus represents reminder lifecycle states.
type ReminderStatus string

const (
	ReminderStatusPending  ReminderStatus = "PENDING"
	ReminderStatusReminded ReminderStatus = "REMINDED"
	ReminderStatusDeclined ReminderStatus = "DECLINED"
	ReminderStatusResolved ReminderStatus = "RESOLVED"
	ReminderStatusExpired  ReminderStatus = "EXPIRED"
)

// Terminal reports whether the status admits no further reminders.
func (s ReminderStatus) Terminal() bool {
	return s == ReminderStatusDeclined || s == ReminderStatusResolved || s == ReminderStatusExpired
}

// ReminderState tracks one obligation's escalation. The entity key is
// unique: one obligation carries one state row for its whole life.
type ReminderState struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	OrgID          snowflake.ID      `gorm:"column:org_id;not null;index"`
	EntityType     string            `gorm:"type:text;not null;uniqueIndex:idx_reminder_states_entity,priority:1"`
	EntityID       snowflake.ID      `gorm:"not null;uniqueIndex:idx_reminder_states_entity,priority:2"`
	Status         ReminderStatus    `gorm:"type:text;not null;default:'PENDING'"`
	DueAt          time.Time         `gorm:"not null"`
	NextRemindAt   *time.Time        `gorm:"index"`
	ReminderCount  int               `gorm:"not null;default:0"`
	LastRemindedAt *time.Time        `gorm:""`
	DismissedUntil *time.Time        `gorm:""`
	Recipient      string            `gorm:"type:text"`
	Payload        datatypes.JSONMap `gorm:"type:jsonb"`
	ResolvedAt     *time.Time        `gorm:""`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ReminderState) TableName() string { return "reminder_states" }

// Package domain contains billing cycle models and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingCycleStatus represents invoicing progress for a cycle.
type BillingCycleStatus string

const (
	BillingCycleStatusOpen   BillingCycleStatus = "OPEN"
	BillingCycleStatusClosed BillingCycleStatus = "CLOSED"
)

// BillingCycle represents one billing window. The (org, name, period)
// key is unique so concurrent ensure calls converge on a single row.
type BillingCycle struct {
	ID          snowflake.ID       `gorm:"primaryKey"`
	OrgID       snowflake.ID       `gorm:"not null;uniqueIndex:idx_billing_cycles_org_period,priority:1"`
	Name        string             `gorm:"type:text;not null;uniqueIndex:idx_billing_cycles_org_period,priority:2"`
	PeriodStart time.Time          `gorm:"not null;uniqueIndex:idx_billing_cycles_org_period,priority:3"`
	PeriodEnd   time.Time          `gorm:"not null;uniqueIndex:idx_billing_cycles_org_period,priority:4"`
	Status      BillingCycleStatus `gorm:"type:text;not null;default:'OPEN'"`
	ClosedAt    *time.Time         `gorm:""`
	CreatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingCycle) TableName() string { return "billing_cycles" }

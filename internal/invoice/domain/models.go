// Package domain contains persistence models for the invoice ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusPublished InvoiceStatus = "PUBLISHED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusVoid      InvoiceStatus = "VOID"
)

// Terminal reports whether the status admits no further transition.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// Invoice is one receivable in the ledger. TxnRef is the idempotency
// key of an in-flight gateway attempt and is unique across invoices.
type Invoice struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID  `json:"org_id" gorm:"column:org_id;not null;index"`
	BillingCycleID snowflake.ID  `json:"billing_cycle_id" gorm:"index"`
	Code           string        `json:"code" gorm:"type:text;not null;uniqueIndex:idx_invoices_org_code,priority:2"`
	UnitID         snowflake.ID  `json:"unit_id" gorm:"index"`
	ResidentID     snowflake.ID  `json:"resident_id" gorm:"index"`
	Status         InvoiceStatus `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	Currency       string        `json:"currency" gorm:"type:text;not null;default:'VND'"`
	Subtotal       int64         `json:"subtotal" gorm:"not null;default:0"`
	TaxTotal       int64         `json:"tax_total" gorm:"not null;default:0"`
	Total          int64         `json:"total" gorm:"not null;default:0"`
	AmountPaid     int64         `json:"amount_paid" gorm:"not null;default:0"`
	DueAt          *time.Time    `json:"due_at" gorm:""`
	PublishedAt    *time.Time    `json:"published_at" gorm:""`
	PaidAt         *time.Time    `json:"paid_at" gorm:""`
	VoidedAt       *time.Time    `json:"voided_at" gorm:""`
	VoidReason     string        `json:"void_reason,omitempty" gorm:"type:text"`

	GatewayName         string     `json:"gateway_name" gorm:"type:text"`
	TxnRef              *string    `json:"txn_ref" gorm:"type:text;uniqueIndex:idx_invoices_txn_ref"`
	GatewayResponseCode *string    `json:"gateway_response_code" gorm:"type:text"`
	GatewayBankCode     *string    `json:"gateway_bank_code" gorm:"type:text"`
	GatewayCardType     *string    `json:"gateway_card_type" gorm:"type:text"`
	GatewayInitiatedAt  *time.Time `json:"gateway_initiated_at" gorm:""`

	ReminderCount  int               `json:"reminder_count" gorm:"not null;default:0"`
	LastRemindedAt *time.Time        `json:"last_reminded_at" gorm:""`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Lines []InvoiceLine `json:"lines" gorm:"-"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Balance is the amount still owed on the invoice.
func (i *Invoice) Balance() int64 {
	return i.Total - i.AmountPaid
}

// InvoiceLine is a single priced service on an invoice.
type InvoiceLine struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	InvoiceID     snowflake.ID   `json:"invoice_id" gorm:"not null;index"`
	ServiceCode   string         `json:"service_code" gorm:"type:text;not null"`
	Description   string         `json:"description" gorm:"type:text"`
	ExternalRef   string         `json:"external_ref" gorm:"type:text"`
	Quantity      float64        `json:"quantity" gorm:"type:numeric;not null;default:0"`
	UnitPrice     int64          `json:"unit_price" gorm:"not null;default:0"`
	Amount        int64          `json:"amount" gorm:"not null;default:0"`
	TaxRate       float64        `json:"tax_rate" gorm:"type:numeric;not null;default:0"`
	TaxAmount     int64          `json:"tax_amount" gorm:"not null;default:0"`
	TierBreakdown datatypes.JSON `json:"tier_breakdown" gorm:"type:jsonb"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

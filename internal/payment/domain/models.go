// Package domain contains persistence models for payments and their
// allocations against invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentMethod identifies how the money arrived.
type PaymentMethod string

const (
	PaymentMethodGateway      PaymentMethod = "GATEWAY"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// PaymentStatus represents payment record states.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is one settled (or failed) receipt of funds.
type Payment struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID  `json:"org_id" gorm:"column:org_id;not null;index"`
	ReceiptNumber string        `json:"receipt_number" gorm:"type:text;not null;uniqueIndex:idx_payments_receipt_number"`
	Method        PaymentMethod `json:"method" gorm:"type:text;not null"`
	GatewayName   string        `json:"gateway_name" gorm:"type:text"`
	TxnRef        *string       `json:"txn_ref" gorm:"type:text;index"`
	Amount        int64         `json:"amount" gorm:"not null"`
	Currency      string        `json:"currency" gorm:"type:text;not null;default:'VND'"`
	Status        PaymentStatus `json:"status" gorm:"type:text;not null;default:'COMPLETED'"`
	ResponseCode  *string       `json:"response_code" gorm:"type:text"`
	BankCode      *string       `json:"bank_code" gorm:"type:text"`
	CardType      *string       `json:"card_type" gorm:"type:text"`
	PayerName     string        `json:"payer_name" gorm:"type:text"`
	Note          string        `json:"note" gorm:"type:text"`
	ReceivedAt    *time.Time    `json:"received_at" gorm:""`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Allocations []PaymentAllocation `json:"allocations" gorm:"-"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// PaymentAllocation applies a slice of one payment to exactly one
// target: a whole invoice or a single invoice line.
type PaymentAllocation struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	PaymentID     snowflake.ID  `json:"payment_id" gorm:"not null;index"`
	InvoiceID     *snowflake.ID `json:"invoice_id,omitempty" gorm:"index"`
	InvoiceLineID *snowflake.ID `json:"invoice_line_id,omitempty" gorm:"index"`
	Amount        int64         `json:"amount" gorm:"not null"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentAllocation) TableName() string { return "payment_allocations" }

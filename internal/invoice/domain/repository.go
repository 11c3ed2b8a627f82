package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository holds the guarded writes of the invoice state machine.
// Transition methods return the number of rows affected so callers can
// detect a lost status race without locking the row.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice, lines []InvoiceLine) error
	ReplaceLines(ctx context.Context, db *gorm.DB, invoice *Invoice, lines []InvoiceLine) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByTxnRef(ctx context.Context, db *gorm.DB, txnRef string) (*Invoice, error)
	ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLine, error)
	FindLineByID(ctx context.Context, db *gorm.DB, lineID snowflake.ID) (*InvoiceLine, error)
	ListByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) ([]Invoice, error)
	CountOpenByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) (int64, error)

	MarkPublished(ctx context.Context, db *gorm.DB, id snowflake.ID, publishedAt time.Time, dueAt time.Time) (int64, error)
	MarkVoid(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, voidedAt time.Time) (int64, error)
	ApplyPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, paidAt time.Time) (int64, error)
	SetGatewayAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, gateway, txnRef string, initiatedAt time.Time) (int64, error)
	SettleGatewayAttempt(ctx context.Context, db *gorm.DB, txnRef, responseCode string, bankCode, cardType *string) (int64, error)
	ReapGatewayAttempts(ctx context.Context, db *gorm.DB, cutoff time.Time, responseCode string) (int64, error)
	RecordReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, remindedAt time.Time) (int64, error)
}

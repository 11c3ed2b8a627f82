package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice, lines []invoicedomain.InvoiceLine) error {
	if err := db.WithContext(ctx).Create(invoice).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&lines).Error
}

func (r *repo) ReplaceLines(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice, lines []invoicedomain.InvoiceLine) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_lines WHERE invoice_id = ?`,
		invoice.ID,
	).Error; err != nil {
		return err
	}
	if len(lines) > 0 {
		if err := db.WithContext(ctx).Create(&lines).Error; err != nil {
			return err
		}
	}
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET subtotal = ?, tax_total = ?, total = ?, updated_at = ? WHERE id = ?`,
		invoice.Subtotal,
		invoice.TaxTotal,
		invoice.Total,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) FindByTxnRef(ctx context.Context, db *gorm.DB, txnRef string) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("txn_ref = ?", txnRef).
		Take(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]invoicedomain.InvoiceLine, error) {
	var lines []invoicedomain.InvoiceLine
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repo) FindLineByID(ctx context.Context, db *gorm.DB, lineID snowflake.ID) (*invoicedomain.InvoiceLine, error) {
	var line invoicedomain.InvoiceLine
	err := db.WithContext(ctx).
		Where("id = ?", lineID).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

func (r *repo) ListByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND billing_cycle_id = ?", orgID, cycleID).
		Order("id ASC").
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) CountOpenByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("org_id = ? AND billing_cycle_id = ? AND status IN ?", orgID, cycleID, []invoicedomain.InvoiceStatus{
			invoicedomain.InvoiceStatusDraft,
			invoicedomain.InvoiceStatusPublished,
		}).
		Count(&count).Error
	return count, err
}

func (r *repo) MarkPublished(ctx context.Context, db *gorm.DB, id snowflake.ID, publishedAt, dueAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, published_at = ?, due_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.InvoiceStatusPublished,
		publishedAt,
		dueAt,
		publishedAt,
		id,
		invoicedomain.InvoiceStatusDraft,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkVoid(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, voidedAt time.Time) (int64, error) {
	// An invoice with money already applied can no longer be voided.
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, void_reason = ?, voided_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?) AND amount_paid = 0`,
		invoicedomain.InvoiceStatusVoid,
		reason,
		voidedAt,
		voidedAt,
		id,
		invoicedomain.InvoiceStatusDraft,
		invoicedomain.InvoiceStatusPublished,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ApplyPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, paidAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			amount_paid = amount_paid + ?,
			status = CASE WHEN amount_paid + ? >= total THEN ? ELSE status END,
			paid_at = CASE WHEN amount_paid + ? >= total THEN ? ELSE paid_at END,
			updated_at = ?
		 WHERE id = ? AND status = ?`,
		amount,
		amount,
		invoicedomain.InvoiceStatusPaid,
		amount,
		paidAt,
		paidAt,
		id,
		invoicedomain.InvoiceStatusPublished,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SetGatewayAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, gateway, txnRef string, initiatedAt time.Time) (int64, error) {
	// A settled attempt may be replaced; an in-flight one may not.
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			gateway_name = ?, txn_ref = ?, gateway_response_code = NULL,
			gateway_bank_code = NULL, gateway_card_type = NULL,
			gateway_initiated_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?
		   AND (txn_ref IS NULL OR gateway_response_code IS NOT NULL)`,
		gateway,
		txnRef,
		initiatedAt,
		initiatedAt,
		id,
		invoicedomain.InvoiceStatusPublished,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SettleGatewayAttempt(ctx context.Context, db *gorm.DB, txnRef, responseCode string, bankCode, cardType *string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			gateway_response_code = ?, gateway_bank_code = ?, gateway_card_type = ?, updated_at = ?
		 WHERE txn_ref = ? AND gateway_response_code IS NULL`,
		responseCode,
		bankCode,
		cardType,
		time.Now().UTC(),
		txnRef,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ReapGatewayAttempts(ctx context.Context, db *gorm.DB, cutoff time.Time, responseCode string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET gateway_response_code = ?, updated_at = ?
		 WHERE txn_ref IS NOT NULL AND gateway_response_code IS NULL
		   AND gateway_initiated_at < ?`,
		responseCode,
		time.Now().UTC(),
		cutoff,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) RecordReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, remindedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET reminder_count = reminder_count + 1, last_reminded_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		remindedAt,
		remindedAt,
		id,
		invoicedomain.InvoiceStatusPublished,
	)
	return res.RowsAffected, res.Error
}

package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/strataops/ledgerline/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment, allocations []paymentdomain.PaymentAllocation) error {
	if err := db.WithContext(ctx).Create(payment).Error; err != nil {
		return err
	}
	if len(allocations) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&allocations).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) FindByTxnRef(ctx context.Context, db *gorm.DB, txnRef string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).
		Where("txn_ref = ?", txnRef).
		Take(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListAllocations(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]paymentdomain.PaymentAllocation, error) {
	var allocations []paymentdomain.PaymentAllocation
	err := db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&allocations).Error
	return allocations, err
}

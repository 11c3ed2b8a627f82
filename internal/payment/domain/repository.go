package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment, allocations []PaymentAllocation) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	FindByTxnRef(ctx context.Context, db *gorm.DB, txnRef string) (*Payment, error)
	ListAllocations(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]PaymentAllocation, error)
}

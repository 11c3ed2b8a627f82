package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pricing *ServicePricing) error
	InsertTiers(ctx context.Context, db *gorm.DB, tiers []PricingTier) error
	DeleteTiers(ctx context.Context, db *gorm.DB, pricingID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ServicePricing, error)
	FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*ServicePricing, error)
	ListTiers(ctx context.Context, db *gorm.DB, pricingID snowflake.ID) ([]PricingTier, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]ServicePricing, error)
	SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool) (int64, error)
}

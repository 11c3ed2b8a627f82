package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pricing *pricingdomain.ServicePricing) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO service_pricings (
			id, org_id, code, name, pricing_model, unit_price, tax_rate, currency, active,
			effective_from, effective_until, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pricing.ID,
		pricing.OrgID,
		pricing.Code,
		pricing.Name,
		pricing.PricingModel,
		pricing.UnitPrice,
		pricing.TaxRate,
		pricing.Currency,
		pricing.Active,
		pricing.EffectiveFrom,
		pricing.EffectiveUntil,
		pricing.Metadata,
		pricing.CreatedAt,
		pricing.UpdatedAt,
	).Error
}

func (r *repo) InsertTiers(ctx context.Context, db *gorm.DB, tiers []pricingdomain.PricingTier) error {
	if len(tiers) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&tiers).Error
}

func (r *repo) DeleteTiers(ctx context.Context, db *gorm.DB, pricingID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM pricing_tiers WHERE service_pricing_id = ?`,
		pricingID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*pricingdomain.ServicePricing, error) {
	var pricing pricingdomain.ServicePricing
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, pricing_model, unit_price, tax_rate, currency, active,
		 effective_from, effective_until, metadata, created_at, updated_at
		 FROM service_pricings WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&pricing).Error
	if err != nil {
		return nil, err
	}
	if pricing.ID == 0 {
		return nil, nil
	}
	return &pricing, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*pricingdomain.ServicePricing, error) {
	var pricing pricingdomain.ServicePricing
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, pricing_model, unit_price, tax_rate, currency, active,
		 effective_from, effective_until, metadata, created_at, updated_at
		 FROM service_pricings WHERE org_id = ? AND code = ?`,
		orgID,
		code,
	).Scan(&pricing).Error
	if err != nil {
		return nil, err
	}
	if pricing.ID == 0 {
		return nil, nil
	}
	return &pricing, nil
}

func (r *repo) ListTiers(ctx context.Context, db *gorm.DB, pricingID snowflake.ID) ([]pricingdomain.PricingTier, error) {
	var tiers []pricingdomain.PricingTier
	err := db.WithContext(ctx).Raw(
		`SELECT id, service_pricing_id, tier_order, min_quantity, max_quantity, unit_price, active,
		 effective_from, effective_until, created_at, updated_at
		 FROM pricing_tiers WHERE service_pricing_id = ? ORDER BY effective_from ASC, tier_order ASC`,
		pricingID,
	).Scan(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]pricingdomain.ServicePricing, error) {
	var items []pricingdomain.ServicePricing
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, pricing_model, unit_price, tax_rate, currency, active,
		 effective_from, effective_until, metadata, created_at, updated_at
		 FROM service_pricings WHERE org_id = ? ORDER BY code ASC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE service_pricings SET active = ?, updated_at = ? WHERE org_id = ? AND id = ? AND active <> ?`,
		active,
		time.Now().UTC(),
		orgID,
		id,
		active,
	)
	return res.RowsAffected, res.Error
}

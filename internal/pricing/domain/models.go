package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PricingModel string

const (
	PricingModelFlat   PricingModel = "FLAT"
	PricingModelTiered PricingModel = "TIERED"
)

// ServicePricing is the priced catalog entry for one billable service.
type ServicePricing struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	Code           string            `json:"code" gorm:"type:text;not null;uniqueIndex:idx_service_pricings_org_code,priority:2"`
	Name           string            `json:"name" gorm:"type:text;not null"`
	PricingModel   PricingModel      `json:"pricing_model" gorm:"type:text;not null;default:FLAT"`
	UnitPrice      int64             `json:"unit_price" gorm:"not null;default:0"`
	TaxRate        float64           `json:"tax_rate" gorm:"type:numeric;not null;default:0"`
	Currency       string            `json:"currency" gorm:"type:text;not null;default:VND"`
	Active         bool              `json:"active" gorm:"not null;default:true"`
	EffectiveFrom  time.Time         `json:"effective_from" gorm:"not null;default:CURRENT_TIMESTAMP"`
	EffectiveUntil *time.Time        `json:"effective_until,omitempty" gorm:""`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Tiers []PricingTier `json:"tiers,omitempty" gorm:"-"`
}

func (ServicePricing) TableName() string { return "service_pricings" }

// EffectiveAt reports whether the flat price applies on the given date.
func (p ServicePricing) EffectiveAt(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveUntil == nil || at.Before(*p.EffectiveUntil)
}

// PricingTier is one progressive band of a tiered price. MinQuantity is
// inclusive, MaxQuantity exclusive; a nil MaxQuantity means open-ended.
// Bands are versioned by effective date: the versions sharing one
// effective window partition the quantity axis together.
type PricingTier struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	ServicePricingID snowflake.ID `json:"service_pricing_id" gorm:"column:service_pricing_id;not null;index"`
	TierOrder        int          `json:"tier_order" gorm:"not null"`
	MinQuantity      float64      `json:"min_quantity" gorm:"type:numeric;not null"`
	MaxQuantity      *float64     `json:"max_quantity,omitempty" gorm:"type:numeric"`
	UnitPrice        int64        `json:"unit_price" gorm:"not null"`
	Active           bool         `json:"active" gorm:"not null;default:true"`
	EffectiveFrom    time.Time    `json:"effective_from" gorm:"not null;default:CURRENT_TIMESTAMP"`
	EffectiveUntil   *time.Time   `json:"effective_until,omitempty" gorm:""`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PricingTier) TableName() string { return "pricing_tiers" }

// EffectiveAt reports whether the band applies on the given date.
func (t PricingTier) EffectiveAt(at time.Time) bool {
	if at.Before(t.EffectiveFrom) {
		return false
	}
	return t.EffectiveUntil == nil || at.Before(*t.EffectiveUntil)
}

// QuoteLine is the contribution of a single tier to a quote.
type QuoteLine struct {
	TierOrder   int      `json:"tier_order"`
	MinQuantity float64  `json:"min_quantity"`
	MaxQuantity *float64 `json:"max_quantity,omitempty"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   int64    `json:"unit_price"`
	Amount      int64    `json:"amount"`
}

// Quote is the priced result for a quantity of one service.
type Quote struct {
	ServiceCode string      `json:"service_code"`
	Quantity    float64     `json:"quantity"`
	AsOf        time.Time   `json:"as_of"`
	Currency    string      `json:"currency"`
	Amount      int64       `json:"amount"`
	TaxRate     float64     `json:"tax_rate"`
	TaxAmount   int64       `json:"tax_amount"`
	Lines       []QuoteLine `json:"lines,omitempty"`
}

package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	ReplaceTiers(ctx context.Context, req ReplaceTiersRequest) (*Response, error)
	Get(ctx context.Context, organizationID, id string) (*Response, error)
	GetByCode(ctx context.Context, organizationID, code string) (*Response, error)
	List(ctx context.Context, organizationID string) ([]Response, error)
	Deactivate(ctx context.Context, organizationID, id string) error
	// Price quotes a quantity against the tiers (or flat price)
	// effective on asOf. A zero asOf means now.
	Price(ctx context.Context, organizationID, code string, quantity float64, asOf time.Time) (*Quote, error)
}

type TierInput struct {
	MinQuantity    float64    `json:"min_quantity"`
	MaxQuantity    *float64   `json:"max_quantity"`
	UnitPrice      int64      `json:"unit_price"`
	EffectiveFrom  *time.Time `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until"`
}

type CreateRequest struct {
	OrganizationID string         `json:"organization_id"`
	Code           string         `json:"code"`
	Name           string         `json:"name"`
	PricingModel   PricingModel   `json:"pricing_model"`
	UnitPrice      int64          `json:"unit_price"`
	TaxRate        float64        `json:"tax_rate"`
	Currency       string         `json:"currency"`
	EffectiveFrom  *time.Time     `json:"effective_from"`
	EffectiveUntil *time.Time     `json:"effective_until"`
	Tiers          []TierInput    `json:"tiers"`
	Metadata       map[string]any `json:"metadata"`
}

type ReplaceTiersRequest struct {
	OrganizationID string      `json:"organization_id"`
	PricingID      string      `json:"pricing_id"`
	Tiers          []TierInput `json:"tiers"`
}

type TierResponse struct {
	ID             string     `json:"id"`
	TierOrder      int        `json:"tier_order"`
	MinQuantity    float64    `json:"min_quantity"`
	MaxQuantity    *float64   `json:"max_quantity,omitempty"`
	UnitPrice      int64      `json:"unit_price"`
	Active         bool       `json:"active"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
}

type Response struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Code           string         `json:"code"`
	Name           string         `json:"name"`
	PricingModel   PricingModel   `json:"pricing_model"`
	UnitPrice      int64          `json:"unit_price"`
	TaxRate        float64        `json:"tax_rate"`
	Currency       string         `json:"currency"`
	Active         bool           `json:"active"`
	EffectiveFrom  time.Time      `json:"effective_from"`
	EffectiveUntil *time.Time     `json:"effective_until,omitempty"`
	Tiers          []TierResponse `json:"tiers,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidModel        = errors.New("invalid_pricing_model")
	ErrInvalidUnitPrice    = errors.New("invalid_unit_price")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrInvalidEffective    = errors.New("invalid_effective_range")
	ErrInvalidID           = errors.New("invalid_id")
	ErrDuplicateCode       = errors.New("duplicate_code")
	ErrNotFound            = errors.New("not_found")
	ErrPricingInactive     = errors.New("pricing_inactive")

	// ErrPricingNotConfigured means neither tiers nor a flat price are
	// effective on the requested date.
	ErrPricingNotConfigured = errors.New("pricing_not_configured")

	ErrTierEmpty          = errors.New("tier_set_empty")
	ErrTierFirstMin       = errors.New("tier_first_min_not_zero")
	ErrTierGap            = errors.New("tier_gap")
	ErrTierOverlap        = errors.New("tier_overlap")
	ErrTierUnbounded      = errors.New("tier_not_open_ended")
	ErrTierBounds         = errors.New("tier_bounds_inverted")
	ErrTierVersionOverlap = errors.New("tier_version_overlap")
)

package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	"github.com/strataops/ledgerline/internal/pricing/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, name string) (pricingdomain.Service, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&pricingdomain.ServicePricing{},
		&pricingdomain.PricingTier{},
	)
	assert.NoError(t, err)

	node, _ := snowflake.NewNode(1)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, node
}

func ptr(v float64) *float64 { return &v }

func TestPricing_TieredQuote(t *testing.T) {
	svc, node := newTestService(t, "pricing_tiered")
	ctx := context.Background()
	orgID := node.Generate().String()

	created, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "Electricity",
		Name:           "Electricity",
		PricingModel:   pricingdomain.PricingModelTiered,
		Currency:       "VND",
		Tiers: []pricingdomain.TierInput{
			{MinQuantity: 0, MaxQuantity: ptr(10), UnitPrice: 1000},
			{MinQuantity: 10, MaxQuantity: ptr(30), UnitPrice: 800},
			{MinQuantity: 30, UnitPrice: 600},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, "electricity", created.Code)
	assert.Len(t, created.Tiers, 3)

	// Spans the first two bands: 10*1000 + 15*800.
	quote, err := svc.Price(ctx, orgID, "electricity", 25, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(22000), quote.Amount)
	assert.Len(t, quote.Lines, 2)
	assert.Equal(t, float64(10), quote.Lines[0].Quantity)
	assert.Equal(t, float64(15), quote.Lines[1].Quantity)

	// Entirely inside the first band.
	quote, err = svc.Price(ctx, orgID, "electricity", 5, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(5000), quote.Amount)
	assert.Len(t, quote.Lines, 1)

	// Reaches the open-ended band: 10*1000 + 20*800 + 10*600.
	quote, err = svc.Price(ctx, orgID, "electricity", 40, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(32000), quote.Amount)
	assert.Len(t, quote.Lines, 3)
}

func TestPricing_ZeroQuantityQuotesZero(t *testing.T) {
	svc, node := newTestService(t, "pricing_zero")
	ctx := context.Background()
	orgID := node.Generate().String()

	_, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "water",
		Name:           "Water",
		PricingModel:   pricingdomain.PricingModelFlat,
		UnitPrice:      15000,
	})
	assert.NoError(t, err)

	quote, err := svc.Price(ctx, orgID, "water", 0, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), quote.Amount)
	assert.Empty(t, quote.Lines)

	quote, err = svc.Price(ctx, orgID, "water", -3, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), quote.Amount)
}

func TestPricing_FlatQuote(t *testing.T) {
	svc, node := newTestService(t, "pricing_flat")
	ctx := context.Background()
	orgID := node.Generate().String()

	_, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "parking-fee",
		Name:           "Parking",
		UnitPrice:      120000,
	})
	assert.NoError(t, err)

	quote, err := svc.Price(ctx, orgID, "parking-fee", 2, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(240000), quote.Amount)
	assert.Empty(t, quote.Lines)
}

func TestPricing_TierValidation(t *testing.T) {
	svc, node := newTestService(t, "pricing_validation")
	ctx := context.Background()
	orgID := node.Generate().String()

	cases := []struct {
		name  string
		tiers []pricingdomain.TierInput
		want  error
	}{
		{
			name: "first min not zero",
			tiers: []pricingdomain.TierInput{
				{MinQuantity: 5, MaxQuantity: ptr(10), UnitPrice: 100},
				{MinQuantity: 10, UnitPrice: 50},
			},
			want: pricingdomain.ErrTierFirstMin,
		},
		{
			name: "gap between bands",
			tiers: []pricingdomain.TierInput{
				{MinQuantity: 0, MaxQuantity: ptr(10), UnitPrice: 100},
				{MinQuantity: 15, UnitPrice: 50},
			},
			want: pricingdomain.ErrTierGap,
		},
		{
			name: "overlapping bands",
			tiers: []pricingdomain.TierInput{
				{MinQuantity: 0, MaxQuantity: ptr(10), UnitPrice: 100},
				{MinQuantity: 8, UnitPrice: 50},
			},
			want: pricingdomain.ErrTierOverlap,
		},
		{
			name: "last band bounded",
			tiers: []pricingdomain.TierInput{
				{MinQuantity: 0, MaxQuantity: ptr(10), UnitPrice: 100},
				{MinQuantity: 10, MaxQuantity: ptr(20), UnitPrice: 50},
			},
			want: pricingdomain.ErrTierUnbounded,
		},
		{
			name:  "empty set",
			tiers: nil,
			want:  pricingdomain.ErrTierEmpty,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, pricingdomain.CreateRequest{
				OrganizationID: orgID,
				Code:           "svc-" + tc.name,
				Name:           "Svc",
				PricingModel:   pricingdomain.PricingModelTiered,
				Tiers:          tc.tiers,
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPricing_ReplaceTiers(t *testing.T) {
	svc, node := newTestService(t, "pricing_replace")
	ctx := context.Background()
	orgID := node.Generate().String()

	created, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "electricity",
		Name:           "Electricity",
		PricingModel:   pricingdomain.PricingModelTiered,
		Tiers: []pricingdomain.TierInput{
			{MinQuantity: 0, MaxQuantity: ptr(10), UnitPrice: 1000},
			{MinQuantity: 10, UnitPrice: 800},
		},
	})
	assert.NoError(t, err)

	updated, err := svc.ReplaceTiers(ctx, pricingdomain.ReplaceTiersRequest{
		OrganizationID: orgID,
		PricingID:      created.ID,
		Tiers: []pricingdomain.TierInput{
			{MinQuantity: 0, MaxQuantity: ptr(20), UnitPrice: 900},
			{MinQuantity: 20, UnitPrice: 700},
		},
	})
	assert.NoError(t, err)
	assert.Len(t, updated.Tiers, 2)

	quote, err := svc.Price(ctx, orgID, "electricity", 30, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(20*900+10*700), quote.Amount)
}

func tptr(v time.Time) *time.Time { return &v }

func TestPricing_QuoteComputesTax(t *testing.T) {
	svc, node := newTestService(t, "pricing_tax")
	ctx := context.Background()
	orgID := node.Generate().String()

	created, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "maintenance",
		Name:           "Maintenance",
		UnitPrice:      150000,
		TaxRate:        0.08,
	})
	assert.NoError(t, err)
	assert.Equal(t, 0.08, created.TaxRate)

	quote, err := svc.Price(ctx, orgID, "maintenance", 2, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, int64(300000), quote.Amount)
	assert.Equal(t, 0.08, quote.TaxRate)
	assert.Equal(t, int64(24000), quote.TaxAmount)
	assert.False(t, quote.AsOf.IsZero())
}

func TestPricing_TaxRateValidation(t *testing.T) {
	svc, node := newTestService(t, "pricing_tax_validation")
	ctx := context.Background()
	orgID := node.Generate().String()

	for _, rate := range []float64{-0.1, 1, 1.5} {
		_, err := svc.Create(ctx, pricingdomain.CreateRequest{
			OrganizationID: orgID,
			Code:           "fee",
			Name:           "Fee",
			UnitPrice:      1000,
			TaxRate:        rate,
		})
		assert.ErrorIs(t, err, pricingdomain.ErrInvalidTaxRate)
	}
}

func TestPricing_EffectiveDatedTierVersions(t *testing.T) {
	svc, node := newTestService(t, "pricing_versions")
	ctx := context.Background()
	orgID := node.Generate().String()

	cutover := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "electricity",
		Name:           "Electricity",
		PricingModel:   pricingdomain.PricingModelTiered,
		EffectiveFrom:  tptr(start),
		Tiers: []pricingdomain.TierInput{
			{MinQuantity: 0, MaxQuantity: ptr(10), UnitPrice: 1000, EffectiveFrom: tptr(start), EffectiveUntil: tptr(cutover)},
			{MinQuantity: 10, UnitPrice: 800, EffectiveFrom: tptr(start), EffectiveUntil: tptr(cutover)},
			{MinQuantity: 0, MaxQuantity: ptr(10), UnitPrice: 1200, EffectiveFrom: tptr(cutover)},
			{MinQuantity: 10, UnitPrice: 900, EffectiveFrom: tptr(cutover)},
		},
	})
	assert.NoError(t, err)

	// Before the cutover the old bands apply: 10*1000 + 10*800.
	quote, err := svc.Price(ctx, orgID, "electricity", 20, cutover.AddDate(0, 0, -1))
	assert.NoError(t, err)
	assert.Equal(t, int64(18000), quote.Amount)

	// On and after the cutover the new bands apply: 10*1200 + 10*900.
	quote, err = svc.Price(ctx, orgID, "electricity", 20, cutover)
	assert.NoError(t, err)
	assert.Equal(t, int64(21000), quote.Amount)

	// Before any version takes effect there is nothing to rate with.
	_, err = svc.Price(ctx, orgID, "electricity", 20, start.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, pricingdomain.ErrPricingNotConfigured)
}

func TestPricing_TierVersionOverlapRejected(t *testing.T) {
	svc, node := newTestService(t, "pricing_version_overlap")
	ctx := context.Background()
	orgID := node.Generate().String()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	overlap := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "electricity",
		Name:           "Electricity",
		PricingModel:   pricingdomain.PricingModelTiered,
		EffectiveFrom:  tptr(start),
		Tiers: []pricingdomain.TierInput{
			{MinQuantity: 0, UnitPrice: 1000, EffectiveFrom: tptr(start)},
			{MinQuantity: 0, UnitPrice: 1200, EffectiveFrom: tptr(overlap)},
		},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrTierVersionOverlap)
}

func TestPricing_FlatQuoteOutsideEffectiveWindow(t *testing.T) {
	svc, node := newTestService(t, "pricing_flat_window")
	ctx := context.Background()
	orgID := node.Generate().String()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "parking-fee",
		Name:           "Parking",
		UnitPrice:      120000,
		EffectiveFrom:  tptr(from),
		EffectiveUntil: tptr(until),
	})
	assert.NoError(t, err)

	quote, err := svc.Price(ctx, orgID, "parking-fee", 1, from.AddDate(0, 3, 0))
	assert.NoError(t, err)
	assert.Equal(t, int64(120000), quote.Amount)

	_, err = svc.Price(ctx, orgID, "parking-fee", 1, until)
	assert.ErrorIs(t, err, pricingdomain.ErrPricingNotConfigured)
	_, err = svc.Price(ctx, orgID, "parking-fee", 1, from.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, pricingdomain.ErrPricingNotConfigured)
}

func TestPricing_InactiveRejectsQuote(t *testing.T) {
	svc, node := newTestService(t, "pricing_inactive")
	ctx := context.Background()
	orgID := node.Generate().String()

	created, err := svc.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "cleaning",
		Name:           "Cleaning",
		UnitPrice:      50000,
	})
	assert.NoError(t, err)

	err = svc.Deactivate(ctx, orgID, created.ID)
	assert.NoError(t, err)

	_, err = svc.Price(ctx, orgID, "cleaning", 1, time.Time{})
	assert.ErrorIs(t, err, pricingdomain.ErrPricingInactive)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingcycledomain "github.com/strataops/ledgerline/internal/billingcycle/domain"
	"github.com/strataops/ledgerline/internal/clock"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	invoicerepo "github.com/strataops/ledgerline/internal/invoice/repository"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   billingcycledomain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
	orgID snowflake.ID
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&billingcycledomain.BillingCycle{},
		&pricingdomain.ServicePricing{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
	)
	assert.NoError(t, err)

	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fc,
		InvoiceRepo: invoicerepo.Provide(),
	})

	return &fixture{
		db:    db,
		svc:   svc,
		clock: fc,
		node:  node,
		orgID: node.Generate(),
	}
}

func (f *fixture) seedActivePricing(t *testing.T) {
	t.Helper()

	err := f.db.Create(&pricingdomain.ServicePricing{
		ID:           f.node.Generate(),
		OrgID:        f.orgID,
		Code:         "management-fee",
		Name:         "Management Fee",
		PricingModel: pricingdomain.PricingModelFlat,
		UnitPrice:    20000,
		Currency:     "VND",
		Active:       true,
	}).Error
	assert.NoError(t, err)
}

func TestEnsureCycleFindOrCreate(t *testing.T) {
	f := newFixture(t, "cycle_ensure")
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	req := &billingcycledomain.EnsureRequest{
		OrganizationID: f.orgID.String(),
		Name:           "2026-03",
		PeriodStart:    start,
		PeriodEnd:      start.AddDate(0, 1, 0),
	}

	first, err := f.svc.EnsureCycle(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, billingcycledomain.BillingCycleStatusOpen, first.Status)

	again, err := f.svc.EnsureCycle(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	var count int64
	f.db.Raw(`SELECT COUNT(*) FROM billing_cycles`).Scan(&count)
	assert.Equal(t, int64(1), count)

	_, err = f.svc.EnsureCycle(ctx, &billingcycledomain.EnsureRequest{
		OrganizationID: f.orgID.String(),
		Name:           "bad",
		PeriodStart:    start,
		PeriodEnd:      start,
	})
	assert.ErrorIs(t, err, billingcycledomain.ErrInvalidPeriod)
}

func TestEnsureUpcomingCyclesIsIdempotent(t *testing.T) {
	f := newFixture(t, "cycle_upcoming")
	ctx := context.Background()

	f.seedActivePricing(t)

	ensured, err := f.svc.EnsureUpcomingCycles(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, ensured)

	cycles, err := f.svc.List(ctx, &billingcycledomain.ListRequest{OrganizationID: f.orgID.String()})
	assert.NoError(t, err)
	assert.Len(t, cycles.Cycles, 2)
	assert.Equal(t, "2026-03", cycles.Cycles[0].Name)
	assert.Equal(t, "2026-04", cycles.Cycles[1].Name)

	// A second pass converges on the same two rows.
	_, err = f.svc.EnsureUpcomingCycles(ctx)
	assert.NoError(t, err)

	var count int64
	f.db.Raw(`SELECT COUNT(*) FROM billing_cycles`).Scan(&count)
	assert.Equal(t, int64(2), count)

	// Crossing a month boundary extends the horizon by one cycle.
	f.clock.Advance(20 * 24 * time.Hour)
	_, err = f.svc.EnsureUpcomingCycles(ctx)
	assert.NoError(t, err)

	f.db.Raw(`SELECT COUNT(*) FROM billing_cycles`).Scan(&count)
	assert.Equal(t, int64(3), count)
}

func TestCloseCycleRequiresSettledInvoices(t *testing.T) {
	f := newFixture(t, "cycle_close")
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycle, err := f.svc.EnsureCycle(ctx, &billingcycledomain.EnsureRequest{
		OrganizationID: f.orgID.String(),
		Name:           "2026-03",
		PeriodStart:    start,
		PeriodEnd:      start.AddDate(0, 1, 0),
	})
	assert.NoError(t, err)

	invoice := &invoicedomain.Invoice{
		ID:             f.node.Generate(),
		OrgID:          f.orgID,
		Code:           "INV-202603-1",
		Status:         invoicedomain.InvoiceStatusPublished,
		BillingCycleID: cycle.ID,
		Currency:       "VND",
		Subtotal:       100000,
		Total:          100000,
	}
	assert.NoError(t, f.db.Create(invoice).Error)

	_, err = f.svc.CloseCycle(ctx, f.orgID.String(), cycle.ID.String())
	assert.ErrorIs(t, err, billingcycledomain.ErrCycleHasOpenInvoices)

	rows, err := invoicerepo.Provide().ApplyPayment(ctx, f.db, invoice.ID, 100000, f.clock.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	closed, err := f.svc.CloseCycle(ctx, f.orgID.String(), cycle.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, billingcycledomain.BillingCycleStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	_, err = f.svc.CloseCycle(ctx, f.orgID.String(), cycle.ID.String())
	assert.ErrorIs(t, err, billingcycledomain.ErrInvalidStateTransition)
}

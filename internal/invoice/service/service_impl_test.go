package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/strataops/ledgerline/internal/config"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	invoicerepo "github.com/strataops/ledgerline/internal/invoice/repository"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	pricingrepo "github.com/strataops/ledgerline/internal/pricing/repository"
	pricingservice "github.com/strataops/ledgerline/internal/pricing/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     invoicedomain.Service
	repo    invoicedomain.Repository
	pricing pricingdomain.Service
	node    *snowflake.Node
	orgID   string
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&pricingdomain.ServicePricing{},
		&pricingdomain.PricingTier{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
	)
	assert.NoError(t, err)

	node, _ := snowflake.NewNode(1)
	log := zap.NewNop()

	pricingSvc := pricingservice.New(pricingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  pricingrepo.Provide(),
	})

	repo := invoicerepo.Provide()
	svc := NewService(ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       repo,
		PricingSvc: pricingSvc,
		Billing:    config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})

	return &fixture{
		db:      db,
		svc:     svc,
		repo:    repo,
		pricing: pricingSvc,
		node:    node,
		orgID:   node.Generate().String(),
	}
}

func (f *fixture) seedFlatPricing(t *testing.T, code string, unitPrice int64) {
	t.Helper()
	_, err := f.pricing.Create(context.Background(), pricingdomain.CreateRequest{
		OrganizationID: f.orgID,
		Code:           code,
		Name:           code,
		UnitPrice:      unitPrice,
	})
	assert.NoError(t, err)
}

func (f *fixture) draft(t *testing.T, lines ...invoicedomain.LineInput) *invoicedomain.Invoice {
	t.Helper()
	invoice, err := f.svc.CreateDraft(context.Background(), invoicedomain.CreateDraftRequest{
		OrganizationID: f.orgID,
		ResidentID:     f.node.Generate().String(),
		Lines:          lines,
	})
	assert.NoError(t, err)
	return invoice
}

func TestInvoice_DraftPublishLifecycle(t *testing.T) {
	f := newFixture(t, "invoice_lifecycle")
	ctx := context.Background()
	f.seedFlatPricing(t, "maintenance", 500000)

	invoice := f.draft(t, invoicedomain.LineInput{ServiceCode: "maintenance", Quantity: 1})
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, int64(500000), invoice.Total)
	assert.NotEmpty(t, invoice.Code)

	published, err := f.svc.Publish(ctx, f.orgID, invoice.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPublished, published.Status)
	assert.NotNil(t, published.DueAt)
	assert.NotNil(t, published.PublishedAt)
	assert.WithinDuration(t,
		published.PublishedAt.AddDate(0, 0, config.DefaultBillingConfig().DueDays),
		*published.DueAt,
		time.Second,
	)

	// A second publish loses the status guard.
	_, err = f.svc.Publish(ctx, f.orgID, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStateTransition)
}

func TestInvoice_PublishZeroTotalRejected(t *testing.T) {
	f := newFixture(t, "invoice_zero_total")
	ctx := context.Background()
	f.seedFlatPricing(t, "water", 10000)

	invoice := f.draft(t, invoicedomain.LineInput{ServiceCode: "water", Quantity: 0})
	assert.Equal(t, int64(0), invoice.Total)

	_, err := f.svc.Publish(ctx, f.orgID, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrEmptyInvoice)
}

func TestInvoice_VoidRules(t *testing.T) {
	f := newFixture(t, "invoice_void")
	ctx := context.Background()
	f.seedFlatPricing(t, "cleaning", 80000)

	invoice := f.draft(t, invoicedomain.LineInput{ServiceCode: "cleaning", Quantity: 1})

	voided, err := f.svc.Void(ctx, f.orgID, invoice.ID.String(), "duplicate charge")
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusVoid, voided.Status)
	assert.NotNil(t, voided.VoidedAt)
	assert.Equal(t, "duplicate charge", voided.VoidReason)

	// A paid invoice may not be voided.
	second := f.draft(t, invoicedomain.LineInput{ServiceCode: "cleaning", Quantity: 2})
	_, err = f.svc.Publish(ctx, f.orgID, second.ID.String())
	assert.NoError(t, err)

	affected, err := f.repo.ApplyPayment(ctx, f.db, second.ID, second.Total, time.Now().UTC())
	assert.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	_, err = f.svc.Void(ctx, f.orgID, second.ID.String(), "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStateTransition)
}

func TestInvoice_VoidRejectsPartiallyPaid(t *testing.T) {
	f := newFixture(t, "invoice_void_partial")
	ctx := context.Background()
	f.seedFlatPricing(t, "maintenance", 100000)

	invoice := f.draft(t, invoicedomain.LineInput{ServiceCode: "maintenance", Quantity: 1})
	_, err := f.svc.Publish(ctx, f.orgID, invoice.ID.String())
	assert.NoError(t, err)

	affected, err := f.repo.ApplyPayment(ctx, f.db, invoice.ID, 60000, time.Now().UTC())
	assert.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	_, err = f.svc.Void(ctx, f.orgID, invoice.ID.String(), "tenant dispute")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStateTransition)

	reloaded, err := f.svc.Get(ctx, f.orgID, invoice.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPublished, reloaded.Status)
	assert.Equal(t, int64(60000), reloaded.AmountPaid)
}

func TestInvoice_TaxComputedFromPricing(t *testing.T) {
	f := newFixture(t, "invoice_tax")
	ctx := context.Background()

	_, err := f.pricing.Create(ctx, pricingdomain.CreateRequest{
		OrganizationID: f.orgID,
		Code:           "maintenance",
		Name:           "maintenance",
		UnitPrice:      100000,
		TaxRate:        0.1,
	})
	assert.NoError(t, err)

	invoice := f.draft(t, invoicedomain.LineInput{ServiceCode: "maintenance", Quantity: 2})
	assert.Equal(t, int64(200000), invoice.Subtotal)
	assert.Equal(t, int64(20000), invoice.TaxTotal)
	assert.Equal(t, int64(220000), invoice.Total)

	assert.Len(t, invoice.Lines, 1)
	assert.Equal(t, 0.1, invoice.Lines[0].TaxRate)
	assert.Equal(t, int64(20000), invoice.Lines[0].TaxAmount)
}

func TestInvoice_PartialPaymentKeepsPublished(t *testing.T) {
	f := newFixture(t, "invoice_partial")
	ctx := context.Background()
	f.seedFlatPricing(t, "maintenance", 100000)

	invoice := f.draft(t, invoicedomain.LineInput{ServiceCode: "maintenance", Quantity: 1})
	_, err := f.svc.Publish(ctx, f.orgID, invoice.ID.String())
	assert.NoError(t, err)

	affected, err := f.repo.ApplyPayment(ctx, f.db, invoice.ID, 60000, time.Now().UTC())
	assert.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	reloaded, err := f.svc.Get(ctx, f.orgID, invoice.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPublished, reloaded.Status)
	assert.Equal(t, int64(60000), reloaded.AmountPaid)
	assert.Equal(t, int64(40000), reloaded.Balance())

	affected, err = f.repo.ApplyPayment(ctx, f.db, invoice.ID, 40000, time.Now().UTC())
	assert.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	reloaded, err = f.svc.Get(ctx, f.orgID, invoice.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, reloaded.Status)
	assert.NotNil(t, reloaded.PaidAt)
}

func TestInvoice_ReplaceDraftLinesRecomputesTotal(t *testing.T) {
	f := newFixture(t, "invoice_replace_lines")
	ctx := context.Background()
	f.seedFlatPricing(t, "water", 10000)

	invoice := f.draft(t, invoicedomain.LineInput{ServiceCode: "water", Quantity: 2})
	assert.Equal(t, int64(20000), invoice.Total)

	updated, err := f.svc.ReplaceDraftLines(ctx, invoicedomain.ReplaceLinesRequest{
		OrganizationID: f.orgID,
		InvoiceID:      invoice.ID.String(),
		Lines: []invoicedomain.LineInput{
			{ServiceCode: "water", Quantity: 5},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(50000), updated.Total)
	assert.Len(t, updated.Lines, 1)

	// Published invoices are immutable.
	_, err = f.svc.Publish(ctx, f.orgID, invoice.ID.String())
	assert.NoError(t, err)
	_, err = f.svc.ReplaceDraftLines(ctx, invoicedomain.ReplaceLinesRequest{
		OrganizationID: f.orgID,
		InvoiceID:      invoice.ID.String(),
		Lines: []invoicedomain.LineInput{
			{ServiceCode: "water", Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStateTransition)
}

func TestInvoice_ListFiltersByStatus(t *testing.T) {
	f := newFixture(t, "invoice_list")
	ctx := context.Background()
	f.seedFlatPricing(t, "maintenance", 100000)

	first := f.draft(t, invoicedomain.LineInput{ServiceCode: "maintenance", Quantity: 1})
	f.draft(t, invoicedomain.LineInput{ServiceCode: "maintenance", Quantity: 2})

	_, err := f.svc.Publish(ctx, f.orgID, first.ID.String())
	assert.NoError(t, err)

	status := invoicedomain.InvoiceStatusPublished
	resp, err := f.svc.List(ctx, invoicedomain.ListRequest{
		OrganizationID: f.orgID,
		Status:         &status,
	})
	assert.NoError(t, err)
	assert.Len(t, resp.Invoices, 1)
	assert.Equal(t, first.ID, resp.Invoices[0].ID)

	resp, err = f.svc.List(ctx, invoicedomain.ListRequest{OrganizationID: f.orgID})
	assert.NoError(t, err)
	assert.Len(t, resp.Invoices, 2)
	assert.False(t, resp.HasMore)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/strataops/ledgerline/internal/config"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	"github.com/strataops/ledgerline/internal/observability/metrics"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	"github.com/strataops/ledgerline/pkg/db/option"
	"github.com/strataops/ledgerline/pkg/db/pagination"
	"github.com/strataops/ledgerline/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       invoicedomain.Repository
	PricingSvc pricingdomain.Service
	Billing    *config.BillingConfigHolder
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	repo        invoicedomain.Repository
	invoicerepo repository.Repository[invoicedomain.Invoice]
	pricingSvc  pricingdomain.Service
	billing     *config.BillingConfigHolder
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,

		repo:        p.Repo,
		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		pricingSvc:  p.PricingSvc,
		billing:     p.Billing,
	}
}

func (s *Service) CreateDraft(ctx context.Context, req invoicedomain.CreateDraftRequest) (*invoicedomain.Invoice, error) {
	orgID, err := parseID(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if len(req.Lines) == 0 {
		return nil, invoicedomain.ErrEmptyInvoice
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "VND"
	}

	now := time.Now().UTC()
	invoice := &invoicedomain.Invoice{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Status:    invoicedomain.InvoiceStatusDraft,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	invoice.Code = invoiceCode(now, invoice.ID)
	if req.BillingCycleID != "" {
		if invoice.BillingCycleID, err = parseID(req.BillingCycleID); err != nil {
			return nil, invoicedomain.ErrInvalidID
		}
	}
	if req.UnitID != "" {
		if invoice.UnitID, err = parseID(req.UnitID); err != nil {
			return nil, invoicedomain.ErrInvalidID
		}
	}
	if req.ResidentID != "" {
		if invoice.ResidentID, err = parseID(req.ResidentID); err != nil {
			return nil, invoicedomain.ErrInvalidID
		}
	}
	if req.Metadata != nil {
		invoice.Metadata = datatypes.JSONMap(req.Metadata)
	}

	lines, err := s.priceLines(ctx, req.OrganizationID, invoice.ID, req.Lines, now)
	if err != nil {
		return nil, err
	}
	applyTotals(invoice, lines)

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, invoice, lines)
	}); err != nil {
		return nil, err
	}

	invoice.Lines = lines
	s.log.Info("invoice drafted",
		zap.String("org_id", orgID.String()),
		zap.String("invoice_code", invoice.Code),
		zap.Int64("total", invoice.Total),
	)
	return invoice, nil
}

func (s *Service) ReplaceDraftLines(ctx context.Context, req invoicedomain.ReplaceLinesRequest) (*invoicedomain.Invoice, error) {
	orgID, err := parseID(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	if len(req.Lines) == 0 {
		return nil, invoicedomain.ErrEmptyInvoice
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		return nil, invoicedomain.ErrInvalidStateTransition
	}

	now := time.Now().UTC()
	lines, err := s.priceLines(ctx, req.OrganizationID, invoice.ID, req.Lines, now)
	if err != nil {
		return nil, err
	}
	applyTotals(invoice, lines)
	invoice.UpdatedAt = now

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.ReplaceLines(ctx, tx, invoice, lines)
	}); err != nil {
		return nil, err
	}

	invoice.Lines = lines
	return invoice, nil
}

func (s *Service) Publish(ctx context.Context, organizationID, id string) (*invoicedomain.Invoice, error) {
	orgID, invoiceID, err := parseIDs(organizationID, id)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if invoice.Total <= 0 {
		return nil, invoicedomain.ErrEmptyInvoice
	}

	now := time.Now().UTC()
	dueAt := now.AddDate(0, 0, s.billing.Get().DueDays)
	affected, err := s.repo.MarkPublished(ctx, s.db, invoiceID, now, dueAt)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, invoicedomain.ErrInvalidStateTransition
	}

	metrics.Billing().RecordInvoiceTransition(
		string(invoicedomain.InvoiceStatusDraft),
		string(invoicedomain.InvoiceStatusPublished),
	)
	s.log.Info("invoice published",
		zap.String("invoice_code", invoice.Code),
		zap.Time("due_at", dueAt),
	)
	return s.repo.FindByID(ctx, s.db, orgID, invoiceID)
}

func (s *Service) Void(ctx context.Context, organizationID, id, reason string) (*invoicedomain.Invoice, error) {
	orgID, invoiceID, err := parseIDs(organizationID, id)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}

	affected, err := s.repo.MarkVoid(ctx, s.db, invoiceID, strings.TrimSpace(reason), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, invoicedomain.ErrInvalidStateTransition
	}

	metrics.Billing().RecordInvoiceTransition(string(invoice.Status), string(invoicedomain.InvoiceStatusVoid))
	return s.repo.FindByID(ctx, s.db, orgID, invoiceID)
}

func (s *Service) Get(ctx context.Context, organizationID, id string) (*invoicedomain.Invoice, error) {
	orgID, invoiceID, err := parseIDs(organizationID, id)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	invoice.Lines, err = s.repo.ListLines(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) FindByTxnRef(ctx context.Context, txnRef string) (*invoicedomain.Invoice, error) {
	txnRef = strings.TrimSpace(txnRef)
	if txnRef == "" {
		return nil, invoicedomain.ErrInvalidID
	}
	invoice, err := s.repo.FindByTxnRef(ctx, s.db, txnRef)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) (invoicedomain.ListResponse, error) {
	orgID, err := parseID(req.OrganizationID)
	if err != nil || orgID == 0 {
		return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidOrganization
	}

	filter := &invoicedomain.Invoice{OrgID: orgID}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.BillingCycleID != nil {
		if filter.BillingCycleID, err = parseID(*req.BillingCycleID); err != nil {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidID
		}
	}
	if req.ResidentID != nil {
		if filter.ResidentID, err = parseID(*req.ResidentID); err != nil {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidID
		}
	}

	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	options := []option.QueryOption{
		option.WithOrder("id ASC"),
		option.WithLimit(limit + 1),
	}
	if req.Cursor != "" {
		cursor, err := pagination.DecodeCursor(req.Cursor)
		if err != nil {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidID
		}
		options = append(options, option.WithWhere("id > ?", cursor.ID))
	}
	if req.DueFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_at",
			Operator: option.GTE,
			Value:    *req.DueFrom,
		}))
	}
	if req.DueTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_at",
			Operator: option.LTE,
			Value:    *req.DueTo,
		}))
	}

	rows, err := s.invoicerepo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}

	rows, pageInfo := pagination.BuildCursorPageInfo(rows, limit, func(inv *invoicedomain.Invoice) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: inv.ID.String()})
		return token
	})

	resp := invoicedomain.ListResponse{PageInfo: *pageInfo}
	for _, row := range rows {
		resp.Invoices = append(resp.Invoices, *row)
	}
	return resp, nil
}

// priceLines rates each requested line through the pricing engine.
func (s *Service) priceLines(ctx context.Context, organizationID string, invoiceID snowflake.ID, inputs []invoicedomain.LineInput, now time.Time) ([]invoicedomain.InvoiceLine, error) {
	lines := make([]invoicedomain.InvoiceLine, 0, len(inputs))
	for _, input := range inputs {
		if input.Quantity < 0 {
			return nil, invoicedomain.ErrInvalidQuantity
		}
		asOf := now
		if input.ServiceDate != nil {
			asOf = input.ServiceDate.UTC()
		}
		quote, err := s.pricingSvc.Price(ctx, organizationID, input.ServiceCode, input.Quantity, asOf)
		if err != nil {
			return nil, err
		}

		line := invoicedomain.InvoiceLine{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			ServiceCode: quote.ServiceCode,
			Description: input.Description,
			ExternalRef: input.ExternalRef,
			Quantity:    input.Quantity,
			Amount:      quote.Amount,
			TaxRate:     quote.TaxRate,
			TaxAmount:   quote.TaxAmount,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if input.Quantity > 0 && len(quote.Lines) == 0 {
			line.UnitPrice = int64(math.Round(float64(quote.Amount) / input.Quantity))
		}
		if len(quote.Lines) > 0 {
			if raw, err := json.Marshal(quote.Lines); err == nil {
				line.TierBreakdown = datatypes.JSON(raw)
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func applyTotals(invoice *invoicedomain.Invoice, lines []invoicedomain.InvoiceLine) {
	var subtotal, taxTotal int64
	for _, line := range lines {
		subtotal += line.Amount
		taxTotal += line.TaxAmount
	}
	invoice.Subtotal = subtotal
	invoice.TaxTotal = taxTotal
	invoice.Total = subtotal + taxTotal
}

func invoiceCode(now time.Time, id snowflake.ID) string {
	return fmt.Sprintf("INV-%s-%s", now.Format("200601"), id)
}

func parseIDs(organizationID, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, err := parseID(organizationID)
	if err != nil || orgID == 0 {
		return 0, 0, invoicedomain.ErrInvalidOrganization
	}
	parsed, err := parseID(id)
	if err != nil {
		return 0, 0, invoicedomain.ErrInvalidID
	}
	return orgID, parsed, nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}

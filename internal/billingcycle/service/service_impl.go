package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingcycledomain "github.com/strataops/ledgerline/internal/billingcycle/domain"
	"github.com/strataops/ledgerline/internal/clock"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	"github.com/strataops/ledgerline/pkg/db"
	"github.com/strataops/ledgerline/pkg/db/option"
	"github.com/strataops/ledgerline/pkg/db/pagination"
	"github.com/strataops/ledgerline/pkg/repository"
)

// ServiceParam defines dependencies for the billing cycle service.
type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	InvoiceRepo invoicedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	invoicerepo invoicedomain.Repository
	cyclerepo   repository.Repository[billingcycledomain.BillingCycle]
}

// NewService constructs the billing cycle service.
func NewService(p ServiceParam) billingcycledomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billingcycle.service"),
		genID: p.GenID,
		clock: p.Clock,

		invoicerepo: p.InvoiceRepo,
		cyclerepo:   repository.ProvideStore[billingcycledomain.BillingCycle](p.DB),
	}
}

func (s *Service) EnsureCycle(ctx context.Context, req *billingcycledomain.EnsureRequest) (*billingcycledomain.BillingCycle, error) {
	orgID, err := snowflake.ParseString(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, billingcycledomain.ErrInvalidOrganization
	}

	if req.Name == "" {
		return nil, billingcycledomain.ErrInvalidName
	}

	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, billingcycledomain.ErrInvalidPeriod
	}

	return s.ensureCycle(ctx, orgID, req.Name, req.PeriodStart, req.PeriodEnd)
}

func (s *Service) ensureCycle(ctx context.Context, orgID snowflake.ID, name string, start, end time.Time) (*billingcycledomain.BillingCycle, error) {
	existing, err := s.findCycle(ctx, orgID, name, start, end)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	cycle := &billingcycledomain.BillingCycle{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Name:        name,
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      billingcycledomain.BillingCycleStatusOpen,
	}

	if err := s.db.WithContext(ctx).Create(cycle).Error; err != nil {
		// A concurrent ensure won the insert; its row is the cycle.
		if db.IsDuplicateKeyErr(err) {
			return s.findCycle(ctx, orgID, name, start, end)
		}
		return nil, err
	}

	s.log.Info("billing cycle created",
		zap.String("org_id", orgID.String()),
		zap.String("name", name),
	)

	return cycle, nil
}

func (s *Service) findCycle(ctx context.Context, orgID snowflake.ID, name string, start, end time.Time) (*billingcycledomain.BillingCycle, error) {
	var cycle billingcycledomain.BillingCycle
	err := s.db.WithContext(ctx).Raw(`
		SELECT * FROM billing_cycles
		WHERE org_id = ? AND name = ? AND period_start = ? AND period_end = ?
	`, orgID, name, start, end).Scan(&cycle).Error
	if err != nil {
		return nil, err
	}

	if cycle.ID == 0 {
		return nil, nil
	}

	return &cycle, nil
}

func (s *Service) EnsureUpcomingCycles(ctx context.Context) (int, error) {
	now := s.clock.Now()

	orgIDs, err := s.listBillableOrgs(ctx)
	if err != nil {
		return 0, err
	}

	ensured := 0
	for _, orgID := range orgIDs {
		for _, start := range []time.Time{monthStart(now), monthStart(now).AddDate(0, 1, 0)} {
			end := start.AddDate(0, 1, 0)
			name := start.Format("2006-01")

			if _, err := s.ensureCycle(ctx, orgID, name, start, end); err != nil {
				return ensured, fmt.Errorf("ensure cycle %s for org %s: %w", name, orgID, err)
			}
			ensured++
		}
	}

	return ensured, nil
}

func (s *Service) listBillableOrgs(ctx context.Context) ([]snowflake.ID, error) {
	var orgIDs []snowflake.ID
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT org_id FROM service_pricings WHERE active = ? ORDER BY org_id
	`, true).Scan(&orgIDs).Error
	if err != nil {
		return nil, err
	}

	return orgIDs, nil
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func (s *Service) CloseCycle(ctx context.Context, orgID, cycleID string) (*billingcycledomain.BillingCycle, error) {
	cycle, err := s.Get(ctx, orgID, cycleID)
	if err != nil {
		return nil, err
	}

	open, err := s.invoicerepo.CountOpenByCycle(ctx, s.db, cycle.OrgID, cycle.ID)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, billingcycledomain.ErrCycleHasOpenInvoices
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Exec(`
		UPDATE billing_cycles
		SET status = ?, closed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND org_id = ? AND status = ?
	`,
		billingcycledomain.BillingCycleStatusClosed,
		now,
		cycle.ID,
		cycle.OrgID,
		billingcycledomain.BillingCycleStatusOpen,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, billingcycledomain.ErrInvalidStateTransition
	}

	cycle.Status = billingcycledomain.BillingCycleStatusClosed
	cycle.ClosedAt = &now

	return cycle, nil
}

func (s *Service) Get(ctx context.Context, orgID, cycleID string) (*billingcycledomain.BillingCycle, error) {
	org, err := snowflake.ParseString(orgID)
	if err != nil || org == 0 {
		return nil, billingcycledomain.ErrInvalidOrganization
	}

	id, err := snowflake.ParseString(cycleID)
	if err != nil || id == 0 {
		return nil, billingcycledomain.ErrInvalidID
	}

	cycle, err := s.cyclerepo.FindOne(ctx, &billingcycledomain.BillingCycle{ID: id, OrgID: org})
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, billingcycledomain.ErrNotFound
	}

	return cycle, nil
}

func (s *Service) List(ctx context.Context, req *billingcycledomain.ListRequest) (*billingcycledomain.ListResponse, error) {
	orgID, err := snowflake.ParseString(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, billingcycledomain.ErrInvalidOrganization
	}

	filter := &billingcycledomain.BillingCycle{OrgID: orgID}
	if req.Status != "" {
		filter.Status = req.Status
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
			return nil, billingcycledomain.ErrInvalidID
		}
		options = append(options, option.WithWhere("id > ?", cursor.ID))
	}

	rows, err := s.cyclerepo.Find(ctx, filter, options...)
	if err != nil {
		return nil, err
	}

	rows, pageInfo := pagination.BuildCursorPageInfo(rows, limit, func(c *billingcycledomain.BillingCycle) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: c.ID.String()})
		return token
	})

	resp := &billingcycledomain.ListResponse{PageInfo: *pageInfo}
	for _, row := range rows {
		resp.Cycles = append(resp.Cycles, *row)
	}

	return resp, nil
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/redis/go-redis/v9"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	"github.com/strataops/ledgerline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const cacheTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  pricingdomain.Repository
	Redis *redis.Client `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  pricingdomain.Repository
	redis *redis.Client
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricing.service"),
		genID: p.GenID,
		repo:  p.Repo,
		redis: p.Redis,
	}
}

func (s *Service) Create(ctx context.Context, req pricingdomain.CreateRequest) (*pricingdomain.Response, error) {
	orgID, err := parseID(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	code := normalizeCode(req.Code)
	if code == "" {
		return nil, pricingdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricingdomain.ErrInvalidName
	}

	if req.TaxRate < 0 || req.TaxRate >= 1 {
		return nil, pricingdomain.ErrInvalidTaxRate
	}

	now := time.Now().UTC()
	effectiveFrom := now
	if req.EffectiveFrom != nil {
		effectiveFrom = req.EffectiveFrom.UTC()
	}
	if req.EffectiveUntil != nil && !effectiveFrom.Before(*req.EffectiveUntil) {
		return nil, pricingdomain.ErrInvalidEffective
	}

	model := req.PricingModel
	if model == "" {
		model = pricingdomain.PricingModelFlat
	}
	switch model {
	case pricingdomain.PricingModelFlat:
		if req.UnitPrice < 0 {
			return nil, pricingdomain.ErrInvalidUnitPrice
		}
		if len(req.Tiers) > 0 {
			return nil, pricingdomain.ErrInvalidModel
		}
	case pricingdomain.PricingModelTiered:
		if err := validateTierVersions(req.Tiers, effectiveFrom, req.EffectiveUntil); err != nil {
			return nil, err
		}
	default:
		return nil, pricingdomain.ErrInvalidModel
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "VND"
	}

	entity := &pricingdomain.ServicePricing{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		Code:          code,
		Name:          name,
		PricingModel:  model,
		UnitPrice:     req.UnitPrice,
		TaxRate:       req.TaxRate,
		Currency:      currency,
		Active:        true,
		EffectiveFrom: effectiveFrom,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.EffectiveUntil != nil {
		until := req.EffectiveUntil.UTC()
		entity.EffectiveUntil = &until
	}
	if req.Metadata != nil {
		entity.Metadata = datatypes.JSONMap(req.Metadata)
	}

	tiers := buildTiers(s.genID, entity.ID, req.Tiers, effectiveFrom, entity.EffectiveUntil, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, entity); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return pricingdomain.ErrDuplicateCode
			}
			return err
		}
		return s.repo.InsertTiers(ctx, tx, tiers)
	})
	if err != nil {
		return nil, err
	}

	entity.Tiers = tiers
	s.invalidateCache(ctx, orgID, code)
	s.log.Info("service pricing created",
		zap.String("org_id", orgID.String()),
		zap.String("code", code),
		zap.String("model", string(model)),
	)
	return toResponse(entity), nil
}

func (s *Service) ReplaceTiers(ctx context.Context, req pricingdomain.ReplaceTiersRequest) (*pricingdomain.Response, error) {
	orgID, err := parseID(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}
	pricingID, err := parseID(req.PricingID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, pricingID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, pricingdomain.ErrNotFound
	}
	if err := validateTierVersions(req.Tiers, entity.EffectiveFrom, entity.EffectiveUntil); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tiers := buildTiers(s.genID, entity.ID, req.Tiers, entity.EffectiveFrom, entity.EffectiveUntil, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteTiers(ctx, tx, entity.ID); err != nil {
			return err
		}
		if err := s.repo.InsertTiers(ctx, tx, tiers); err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE service_pricings SET pricing_model = ?, updated_at = ? WHERE id = ?`,
			pricingdomain.PricingModelTiered,
			now,
			entity.ID,
		).Error
	})
	if err != nil {
		return nil, err
	}

	entity.PricingModel = pricingdomain.PricingModelTiered
	entity.UpdatedAt = now
	entity.Tiers = tiers
	s.invalidateCache(ctx, orgID, entity.Code)
	return toResponse(entity), nil
}

func (s *Service) Get(ctx context.Context, organizationID, id string) (*pricingdomain.Response, error) {
	orgID, err := parseID(organizationID)
	if err != nil || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}
	pricingID, err := parseID(id)
	if err != nil {
		return nil, pricingdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, pricingID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, pricingdomain.ErrNotFound
	}
	if entity.PricingModel == pricingdomain.PricingModelTiered {
		entity.Tiers, err = s.repo.ListTiers(ctx, s.db, entity.ID)
		if err != nil {
			return nil, err
		}
	}
	return toResponse(entity), nil
}

func (s *Service) GetByCode(ctx context.Context, organizationID, code string) (*pricingdomain.Response, error) {
	orgID, err := parseID(organizationID)
	if err != nil || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	entity, err := s.loadPricing(ctx, orgID, normalizeCode(code))
	if err != nil {
		return nil, err
	}
	return toResponse(entity), nil
}

func (s *Service) List(ctx context.Context, organizationID string) ([]pricingdomain.Response, error) {
	orgID, err := parseID(organizationID)
	if err != nil || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]pricingdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Deactivate(ctx context.Context, organizationID, id string) error {
	orgID, err := parseID(organizationID)
	if err != nil || orgID == 0 {
		return pricingdomain.ErrInvalidOrganization
	}
	pricingID, err := parseID(id)
	if err != nil {
		return pricingdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, pricingID)
	if err != nil {
		return err
	}
	if entity == nil {
		return pricingdomain.ErrNotFound
	}

	if _, err := s.repo.SetActive(ctx, s.db, orgID, pricingID, false); err != nil {
		return err
	}
	s.invalidateCache(ctx, orgID, entity.Code)
	return nil
}

// Price quotes a quantity of a service against the tier version (or
// flat price) effective on asOf. A zero or negative quantity yields a
// zero-amount quote without touching any tier.
func (s *Service) Price(ctx context.Context, organizationID, code string, quantity float64, asOf time.Time) (*pricingdomain.Quote, error) {
	orgID, err := parseID(organizationID)
	if err != nil || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	entity, err := s.loadPricing(ctx, orgID, normalizeCode(code))
	if err != nil {
		return nil, err
	}
	if !entity.Active {
		return nil, pricingdomain.ErrPricingInactive
	}

	quote := &pricingdomain.Quote{
		ServiceCode: entity.Code,
		Quantity:    quantity,
		AsOf:        asOf,
		Currency:    entity.Currency,
		TaxRate:     entity.TaxRate,
	}
	if quantity <= 0 {
		return quote, nil
	}

	if entity.PricingModel == pricingdomain.PricingModelFlat {
		if !entity.EffectiveAt(asOf) {
			return nil, pricingdomain.ErrPricingNotConfigured
		}
		quote.Amount = roundAmount(quantity * float64(entity.UnitPrice))
		quote.TaxAmount = roundAmount(float64(quote.Amount) * entity.TaxRate)
		return quote, nil
	}

	tiers := effectiveTiers(entity.Tiers, asOf)
	if len(tiers) == 0 {
		return nil, pricingdomain.ErrPricingNotConfigured
	}
	for _, tier := range tiers {
		upper := quantity
		if tier.MaxQuantity != nil && *tier.MaxQuantity < upper {
			upper = *tier.MaxQuantity
		}
		applicable := upper - tier.MinQuantity
		if applicable <= 0 {
			continue
		}
		amount := roundAmount(applicable * float64(tier.UnitPrice))
		quote.Amount += amount
		quote.Lines = append(quote.Lines, pricingdomain.QuoteLine{
			TierOrder:   tier.TierOrder,
			MinQuantity: tier.MinQuantity,
			MaxQuantity: tier.MaxQuantity,
			Quantity:    applicable,
			UnitPrice:   tier.UnitPrice,
			Amount:      amount,
		})
	}
	quote.TaxAmount = roundAmount(float64(quote.Amount) * entity.TaxRate)
	return quote, nil
}

// effectiveTiers keeps the active bands whose effective range contains
// asOf, ordered by band.
func effectiveTiers(tiers []pricingdomain.PricingTier, asOf time.Time) []pricingdomain.PricingTier {
	selected := make([]pricingdomain.PricingTier, 0, len(tiers))
	for _, tier := range tiers {
		if tier.Active && tier.EffectiveAt(asOf) {
			selected = append(selected, tier)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].TierOrder < selected[j].TierOrder
	})
	return selected
}

// loadPricing resolves a pricing with its tiers, through the cache when
// a redis client is configured.
func (s *Service) loadPricing(ctx context.Context, orgID snowflake.ID, code string) (*pricingdomain.ServicePricing, error) {
	if code == "" {
		return nil, pricingdomain.ErrInvalidCode
	}

	if s.redis != nil {
		raw, err := s.redis.Get(ctx, cacheKey(orgID, code)).Bytes()
		if err == nil {
			var cached pricingdomain.ServicePricing
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	entity, err := s.repo.FindByCode(ctx, s.db, orgID, code)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, pricingdomain.ErrNotFound
	}
	if entity.PricingModel == pricingdomain.PricingModelTiered {
		entity.Tiers, err = s.repo.ListTiers(ctx, s.db, entity.ID)
		if err != nil {
			return nil, err
		}
	}

	if s.redis != nil {
		if raw, err := json.Marshal(entity); err == nil {
			if err := s.redis.Set(ctx, cacheKey(orgID, code), raw, cacheTTL).Err(); err != nil {
				s.log.Warn("pricing cache set failed", zap.Error(err))
			}
		}
	}
	return entity, nil
}

func (s *Service) invalidateCache(ctx context.Context, orgID snowflake.ID, code string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, cacheKey(orgID, code)).Err(); err != nil {
		s.log.Warn("pricing cache invalidation failed", zap.Error(err))
	}
}

func cacheKey(orgID snowflake.ID, code string) string {
	return fmt.Sprintf("ledgerline:pricing:%s:%s", orgID, code)
}

// validateTiers enforces that the bands partition the whole quantity
// axis: first min is zero, each min equals the previous max, and the
// last band is open-ended.
func validateTiers(tiers []pricingdomain.TierInput) error {
	if len(tiers) == 0 {
		return pricingdomain.ErrTierEmpty
	}
	if tiers[0].MinQuantity != 0 {
		return pricingdomain.ErrTierFirstMin
	}
	for i, tier := range tiers {
		if tier.UnitPrice < 0 {
			return pricingdomain.ErrInvalidUnitPrice
		}
		last := i == len(tiers)-1
		if last {
			if tier.MaxQuantity != nil {
				return pricingdomain.ErrTierUnbounded
			}
			continue
		}
		if tier.MaxQuantity == nil {
			return pricingdomain.ErrTierOverlap
		}
		if *tier.MaxQuantity <= tier.MinQuantity {
			return pricingdomain.ErrTierBounds
		}
		next := tiers[i+1]
		if next.MinQuantity > *tier.MaxQuantity {
			return pricingdomain.ErrTierGap
		}
		if next.MinQuantity < *tier.MaxQuantity {
			return pricingdomain.ErrTierOverlap
		}
	}
	return nil
}

// tierWindow is a normalized effective range. A nil until means the
// version never expires.
type tierWindow struct {
	from  time.Time
	until *time.Time
}

func normalizeWindow(input pricingdomain.TierInput, defaultFrom time.Time, defaultUntil *time.Time) tierWindow {
	w := tierWindow{from: defaultFrom, until: defaultUntil}
	if input.EffectiveFrom != nil {
		w.from = input.EffectiveFrom.UTC()
	}
	if input.EffectiveUntil != nil {
		until := input.EffectiveUntil.UTC()
		w.until = &until
	}
	return w
}

func equalUntil(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func windowsOverlap(a, b tierWindow) bool {
	if a.until != nil && !b.from.Before(*a.until) {
		return false
	}
	if b.until != nil && !a.from.Before(*b.until) {
		return false
	}
	return true
}

// validateTierVersions groups the bands by effective window and checks
// every version independently. Bands without an explicit window inherit
// the pricing's own range. Distinct versions must not share any instant.
func validateTierVersions(inputs []pricingdomain.TierInput, defaultFrom time.Time, defaultUntil *time.Time) error {
	if len(inputs) == 0 {
		return pricingdomain.ErrTierEmpty
	}

	windows := make([]tierWindow, 0, len(inputs))
	groups := make([][]pricingdomain.TierInput, 0, len(inputs))
	for _, input := range inputs {
		w := normalizeWindow(input, defaultFrom, defaultUntil)
		if w.until != nil && !w.from.Before(*w.until) {
			return pricingdomain.ErrInvalidEffective
		}
		matched := false
		for i, existing := range windows {
			if existing.from.Equal(w.from) && equalUntil(existing.until, w.until) {
				groups[i] = append(groups[i], input)
				matched = true
				break
			}
		}
		if !matched {
			windows = append(windows, w)
			groups = append(groups, []pricingdomain.TierInput{input})
		}
	}

	for i := range windows {
		for j := i + 1; j < len(windows); j++ {
			if windowsOverlap(windows[i], windows[j]) {
				return pricingdomain.ErrTierVersionOverlap
			}
		}
	}
	for _, group := range groups {
		if err := validateTiers(group); err != nil {
			return err
		}
	}
	return nil
}

func buildTiers(genID *snowflake.Node, pricingID snowflake.ID, inputs []pricingdomain.TierInput, defaultFrom time.Time, defaultUntil *time.Time, now time.Time) []pricingdomain.PricingTier {
	tiers := make([]pricingdomain.PricingTier, 0, len(inputs))
	windows := make([]tierWindow, 0, len(inputs))
	orders := make([]int, 0, len(inputs))
	for _, input := range inputs {
		w := normalizeWindow(input, defaultFrom, defaultUntil)
		key := -1
		for i, existing := range windows {
			if existing.from.Equal(w.from) && equalUntil(existing.until, w.until) {
				key = i
				break
			}
		}
		if key == -1 {
			windows = append(windows, w)
			orders = append(orders, 0)
			key = len(windows) - 1
		}
		orders[key]++
		tiers = append(tiers, pricingdomain.PricingTier{
			ID:               genID.Generate(),
			ServicePricingID: pricingID,
			TierOrder:        orders[key],
			MinQuantity:      input.MinQuantity,
			MaxQuantity:      input.MaxQuantity,
			UnitPrice:        input.UnitPrice,
			Active:           true,
			EffectiveFrom:    windows[key].from,
			EffectiveUntil:   windows[key].until,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return tiers
}

func toResponse(p *pricingdomain.ServicePricing) *pricingdomain.Response {
	resp := &pricingdomain.Response{
		ID:             p.ID.String(),
		OrganizationID: p.OrgID.String(),
		Code:           p.Code,
		Name:           p.Name,
		PricingModel:   p.PricingModel,
		UnitPrice:      p.UnitPrice,
		TaxRate:        p.TaxRate,
		Currency:       p.Currency,
		Active:         p.Active,
		EffectiveFrom:  p.EffectiveFrom,
		EffectiveUntil: p.EffectiveUntil,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	for _, tier := range p.Tiers {
		resp.Tiers = append(resp.Tiers, pricingdomain.TierResponse{
			ID:             tier.ID.String(),
			TierOrder:      tier.TierOrder,
			MinQuantity:    tier.MinQuantity,
			MaxQuantity:    tier.MaxQuantity,
			UnitPrice:      tier.UnitPrice,
			Active:         tier.Active,
			EffectiveFrom:  tier.EffectiveFrom,
			EffectiveUntil: tier.EffectiveUntil,
		})
	}
	return resp
}

func normalizeCode(code string) string {
	return slug.Make(strings.TrimSpace(code))
}

func roundAmount(value float64) int64 {
	return int64(math.Round(value))
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}

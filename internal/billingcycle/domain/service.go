package domain

import (
	"context"
	"errors"
	"time"

	"github.com/strataops/ledgerline/pkg/db/pagination"
)

var (
	ErrInvalidOrganization  = errors.New("invalid_organization_id")
	ErrInvalidID            = errors.New("invalid_billing_cycle_id")
	ErrInvalidName          = errors.New("invalid_billing_cycle_name")
	ErrInvalidPeriod        = errors.New("invalid_billing_cycle_period")
	ErrNotFound             = errors.New("billing_cycle_not_found")
	ErrCycleHasOpenInvoices = errors.New("billing_cycle_has_open_invoices")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
)

// EnsureRequest identifies one billing window to find or create.
type EnsureRequest struct {
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}

// ListRequest filters billing cycles for one organization.
type ListRequest struct {
	OrganizationID string             `json:"organization_id"`
	Status         BillingCycleStatus `json:"status,omitempty"`
	Limit          int                `json:"limit,omitempty"`
	Cursor         string             `json:"cursor,omitempty"`
}

// ListResponse carries one page of cycles.
type ListResponse struct {
	pagination.PageInfo
	Cycles []BillingCycle `json:"cycles"`
}

// Response is the external representation of a billing cycle.
type Response struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	Name           string             `json:"name"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	Status         BillingCycleStatus `json:"status"`
	ClosedAt       *time.Time         `json:"closed_at,omitempty"`
}

// Service manages billing windows ahead of invoicing need.
type Service interface {
	// EnsureCycle finds or creates the cycle for a period. Concurrent
	// callers racing on the same period all receive the same row.
	EnsureCycle(ctx context.Context, req *EnsureRequest) (*BillingCycle, error)

	// EnsureUpcomingCycles guarantees the current and next monthly
	// cycle exist for every organization with active pricing.
	EnsureUpcomingCycles(ctx context.Context) (int, error)

	// CloseCycle finalizes a cycle once none of its invoices remain open.
	CloseCycle(ctx context.Context, orgID, cycleID string) (*BillingCycle, error)

	Get(ctx context.Context, orgID, cycleID string) (*BillingCycle, error)

	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
}

// ToResponse converts a model to its external form.
func ToResponse(c *BillingCycle) *Response {
	if c == nil {
		return nil
	}

	return &Response{
		ID:             c.ID.String(),
		OrganizationID: c.OrgID.String(),
		Name:           c.Name,
		PeriodStart:    c.PeriodStart,
		PeriodEnd:      c.PeriodEnd,
		Status:         c.Status,
		ClosedAt:       c.ClosedAt,
	}
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/strataops/ledgerline/pkg/db/pagination"
)

type LineInput struct {
	ServiceCode string     `json:"service_code"`
	Description string     `json:"description"`
	ExternalRef string     `json:"external_ref"`
	Quantity    float64    `json:"quantity"`
	ServiceDate *time.Time `json:"service_date"`
}

type CreateDraftRequest struct {
	OrganizationID string         `json:"organization_id"`
	BillingCycleID string         `json:"billing_cycle_id"`
	UnitID         string         `json:"unit_id"`
	ResidentID     string         `json:"resident_id"`
	Currency       string         `json:"currency"`
	Lines          []LineInput    `json:"lines"`
	Metadata       map[string]any `json:"metadata"`
}

type ReplaceLinesRequest struct {
	OrganizationID string      `json:"organization_id"`
	InvoiceID      string      `json:"invoice_id"`
	Lines          []LineInput `json:"lines"`
}

type ListRequest struct {
	OrganizationID string
	Status         *InvoiceStatus
	BillingCycleID *string
	ResidentID     *string
	DueFrom        *time.Time
	DueTo          *time.Time
	Limit          int
	Cursor         string
}

type ListResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	CreateDraft(ctx context.Context, req CreateDraftRequest) (*Invoice, error)
	ReplaceDraftLines(ctx context.Context, req ReplaceLinesRequest) (*Invoice, error)
	Publish(ctx context.Context, organizationID, id string) (*Invoice, error)
	Void(ctx context.Context, organizationID, id, reason string) (*Invoice, error)
	Get(ctx context.Context, organizationID, id string) (*Invoice, error)
	FindByTxnRef(ctx context.Context, txnRef string) (*Invoice, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidQuantity        = errors.New("invalid_quantity")
	ErrEmptyInvoice           = errors.New("empty_invoice")
	ErrNotFound               = errors.New("not_found")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
)

package domain

import (
	"context"
	"errors"
	"net/url"
)

// GatewayIntent is the signed redirect produced for one payment attempt.
type GatewayIntent struct {
	TxnRef     string `json:"txn_ref"`
	PaymentURL string `json:"payment_url"`
	Amount     int64  `json:"amount"`
}

type InitiateGatewayRequest struct {
	OrganizationID string `json:"organization_id"`
	InvoiceID      string `json:"invoice_id"`
	ClientIP       string `json:"-"`
	Locale         string `json:"locale"`
}

// CallbackResult reports how a gateway notification was applied.
type CallbackResult struct {
	TxnRef       string `json:"txn_ref"`
	ResponseCode string `json:"response_code"`
	Succeeded    bool   `json:"succeeded"`
	Replayed     bool   `json:"replayed"`
	InvoiceCode  string `json:"invoice_code"`
}

// AllocationInput targets a whole invoice or one invoice line, never
// both at once.
type AllocationInput struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceLineID string `json:"invoice_line_id"`
	Amount        int64  `json:"amount"`
}

type ManualPaymentRequest struct {
	OrganizationID string            `json:"organization_id"`
	Method         PaymentMethod     `json:"method"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	PayerName      string            `json:"payer_name"`
	Note           string            `json:"note"`
	Allocations    []AllocationInput `json:"allocations"`
}

type Service interface {
	InitiateGatewayPayment(ctx context.Context, req InitiateGatewayRequest) (*GatewayIntent, error)
	ReconcileCallback(ctx context.Context, params url.Values) (*CallbackResult, error)
	RecordManualPayment(ctx context.Context, req ManualPaymentRequest) (*Payment, error)
	ReapExpiredGatewayPayments(ctx context.Context) (int64, error)
	Get(ctx context.Context, organizationID, id string) (*Payment, error)
	Receipt(ctx context.Context, organizationID, id string) ([]byte, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidMethod       = errors.New("invalid_method")
	ErrNotFound            = errors.New("not_found")
	ErrInvoiceNotPayable   = errors.New("invoice_not_payable")
	ErrPaymentInFlight     = errors.New("payment_in_flight")
	ErrAllocationMismatch  = errors.New("allocation_mismatch")
	ErrAllocationTarget    = errors.New("allocation_target_ambiguous")
	ErrAllocationExceeds   = errors.New("allocation_exceeds_balance")
	ErrUnknownTxnRef       = errors.New("unknown_txn_ref")
)

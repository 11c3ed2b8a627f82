package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/strataops/ledgerline/internal/config"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	"github.com/strataops/ledgerline/internal/observability/metrics"
	paymentdomain "github.com/strataops/ledgerline/internal/payment/domain"
	"github.com/strataops/ledgerline/internal/payment/gateway"
	"github.com/strataops/ledgerline/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// reapResponseCode is stamped on gateway attempts that never called back.
const reapResponseCode = "TIMEOUT"

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Gateway     *gateway.Client
	Billing     *config.BillingConfigHolder
	PDF         pdf.Provider `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	gateway     *gateway.Client
	billing     *config.BillingConfigHolder
	pdf         pdf.Provider
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,

		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		gateway:     p.Gateway,
		billing:     p.Billing,
		pdf:         p.PDF,
	}
}

func (s *Service) InitiateGatewayPayment(ctx context.Context, req paymentdomain.InitiateGatewayRequest) (*paymentdomain.GatewayIntent, error) {
	orgID, err := parseID(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, paymentdomain.ErrNotFound
	}
	if invoice.Status != invoicedomain.InvoiceStatusPublished || invoice.Balance() <= 0 {
		return nil, paymentdomain.ErrInvoiceNotPayable
	}

	now := time.Now().UTC()
	txnRef := s.genID.Generate().String()

	affected, err := s.invoiceRepo.SetGatewayAttempt(ctx, s.db, invoiceID, "vnpay", txnRef, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// The guard lost either to a concurrent attempt or a status change.
		current, err := s.invoiceRepo.FindByID(ctx, s.db, orgID, invoiceID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.TxnRef != nil && current.GatewayResponseCode == nil {
			return nil, paymentdomain.ErrPaymentInFlight
		}
		return nil, paymentdomain.ErrInvoiceNotPayable
	}

	paymentURL, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
		TxnRef:    txnRef,
		Amount:    invoice.Balance(),
		OrderInfo: invoice.Code,
		Currency:  invoice.Currency,
		Locale:    req.Locale,
		ClientIP:  req.ClientIP,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	metrics.Billing().RecordPaymentEvent("vnpay", "initiated")
	s.log.Info("gateway payment initiated",
		zap.String("invoice_code", invoice.Code),
		zap.String("txn_ref", txnRef),
		zap.Int64("amount", invoice.Balance()),
	)
	return &paymentdomain.GatewayIntent{
		TxnRef:     txnRef,
		PaymentURL: paymentURL,
		Amount:     invoice.Balance(),
	}, nil
}

// ReconcileCallback applies one gateway notification. Replays of an
// already-settled txn_ref are acknowledged without side effects.
func (s *Service) ReconcileCallback(ctx context.Context, params url.Values) (*paymentdomain.CallbackResult, error) {
	cb, err := s.gateway.VerifyCallback(params)
	if err != nil {
		metrics.Billing().RecordPaymentEvent("vnpay", "callback_rejected")
		return nil, err
	}

	invoice, err := s.invoiceRepo.FindByTxnRef(ctx, s.db, cb.TxnRef)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, paymentdomain.ErrUnknownTxnRef
	}

	result := &paymentdomain.CallbackResult{
		TxnRef:       cb.TxnRef,
		ResponseCode: cb.ResponseCode,
		Succeeded:    cb.Succeeded(s.gateway.SuccessCode()),
		InvoiceCode:  invoice.Code,
	}

	amount := cb.Amount
	if amount <= 0 {
		amount = invoice.Balance()
	}
	paidAt := time.Now().UTC()
	if cb.PaidAt != nil {
		paidAt = *cb.PaidAt
	}

	// Settle and apply atomically: a failed apply must also roll the
	// settle back, so the retry hits a still-open attempt instead of a
	// replay.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.invoiceRepo.SettleGatewayAttempt(ctx, tx, cb.TxnRef, cb.ResponseCode, nilIfEmpty(cb.BankCode), nilIfEmpty(cb.CardType))
		if err != nil {
			return err
		}
		if affected == 0 {
			result.Replayed = true
			return nil
		}

		if !result.Succeeded {
			return nil
		}

		applied, err := s.invoiceRepo.ApplyPayment(ctx, tx, invoice.ID, amount, paidAt)
		if err != nil {
			return err
		}
		if applied == 0 {
			return invoicedomain.ErrInvalidStateTransition
		}

		payment := &paymentdomain.Payment{
			ID:            s.genID.Generate(),
			OrgID:         invoice.OrgID,
			ReceiptNumber: newReceiptNumber(),
			Method:        paymentdomain.PaymentMethodGateway,
			GatewayName:   "vnpay",
			TxnRef:        &cb.TxnRef,
			Amount:        amount,
			Currency:      invoice.Currency,
			Status:        paymentdomain.PaymentStatusCompleted,
			ResponseCode:  &cb.ResponseCode,
			BankCode:      nilIfEmpty(cb.BankCode),
			CardType:      nilIfEmpty(cb.CardType),
			ReceivedAt:    &paidAt,
			CreatedAt:     paidAt,
			UpdatedAt:     paidAt,
		}
		allocations := []paymentdomain.PaymentAllocation{{
			ID:        s.genID.Generate(),
			PaymentID: payment.ID,
			InvoiceID: &invoice.ID,
			Amount:    amount,
			CreatedAt: paidAt,
		}}
		return s.repo.Insert(ctx, tx, payment, allocations)
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		metrics.Billing().RecordPaymentEvent("vnpay", "callback_replayed")
		return result, nil
	}
	if !result.Succeeded {
		metrics.Billing().RecordPaymentEvent("vnpay", "callback_failed")
		s.log.Info("gateway payment failed",
			zap.String("txn_ref", cb.TxnRef),
			zap.String("response_code", cb.ResponseCode),
		)
		return result, nil
	}

	metrics.Billing().RecordPaymentEvent("vnpay", "callback_succeeded")
	metrics.Billing().RecordInvoiceTransition(
		string(invoicedomain.InvoiceStatusPublished),
		string(invoicedomain.InvoiceStatusPaid),
	)
	s.log.Info("gateway payment reconciled",
		zap.String("invoice_code", invoice.Code),
		zap.String("txn_ref", cb.TxnRef),
		zap.Int64("amount", amount),
	)
	return result, nil
}

func (s *Service) RecordManualPayment(ctx context.Context, req paymentdomain.ManualPaymentRequest) (*paymentdomain.Payment, error) {
	orgID, err := parseID(req.OrganizationID)
	if err != nil || orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	switch req.Method {
	case paymentdomain.PaymentMethodCash, paymentdomain.PaymentMethodBankTransfer:
	default:
		return nil, paymentdomain.ErrInvalidMethod
	}
	if len(req.Allocations) == 0 {
		return nil, paymentdomain.ErrAllocationMismatch
	}

	var sum int64
	for _, alloc := range req.Allocations {
		if alloc.Amount <= 0 {
			return nil, paymentdomain.ErrInvalidAmount
		}
		if (alloc.InvoiceID == "") == (alloc.InvoiceLineID == "") {
			return nil, paymentdomain.ErrAllocationTarget
		}
		sum += alloc.Amount
	}
	// Allocations may leave a remainder on the payment, never exceed it.
	if sum > req.Amount {
		return nil, paymentdomain.ErrAllocationMismatch
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "VND"
	}

	now := time.Now().UTC()
	payment := &paymentdomain.Payment{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		ReceiptNumber: newReceiptNumber(),
		Method:        req.Method,
		Amount:        req.Amount,
		Currency:      currency,
		Status:        paymentdomain.PaymentStatusCompleted,
		PayerName:     strings.TrimSpace(req.PayerName),
		Note:          strings.TrimSpace(req.Note),
		ReceivedAt:    &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	allocations := make([]paymentdomain.PaymentAllocation, 0, len(req.Allocations))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, alloc := range req.Allocations {
			record := paymentdomain.PaymentAllocation{
				ID:        s.genID.Generate(),
				PaymentID: payment.ID,
				Amount:    alloc.Amount,
				CreatedAt: now,
			}

			var invoiceID snowflake.ID
			if alloc.InvoiceLineID != "" {
				lineID, err := parseID(alloc.InvoiceLineID)
				if err != nil {
					return paymentdomain.ErrInvalidID
				}
				line, err := s.invoiceRepo.FindLineByID(ctx, tx, lineID)
				if err != nil {
					return err
				}
				if line == nil {
					return paymentdomain.ErrNotFound
				}
				if alloc.Amount > line.Amount+line.TaxAmount {
					return paymentdomain.ErrAllocationExceeds
				}
				invoiceID = line.InvoiceID
				record.InvoiceLineID = &lineID
			} else {
				invoiceID, err = parseID(alloc.InvoiceID)
				if err != nil {
					return paymentdomain.ErrInvalidID
				}
				id := invoiceID
				record.InvoiceID = &id
			}

			invoice, err := s.invoiceRepo.FindByID(ctx, tx, orgID, invoiceID)
			if err != nil {
				return err
			}
			if invoice == nil {
				return paymentdomain.ErrNotFound
			}
			if invoice.Status != invoicedomain.InvoiceStatusPublished {
				return paymentdomain.ErrInvoiceNotPayable
			}
			if alloc.Amount > invoice.Balance() {
				return paymentdomain.ErrAllocationExceeds
			}

			applied, err := s.invoiceRepo.ApplyPayment(ctx, tx, invoiceID, alloc.Amount, now)
			if err != nil {
				return err
			}
			if applied == 0 {
				return paymentdomain.ErrInvoiceNotPayable
			}
			allocations = append(allocations, record)
		}
		return s.repo.Insert(ctx, tx, payment, allocations)
	})
	if err != nil {
		return nil, err
	}

	payment.Allocations = allocations
	metrics.Billing().RecordPaymentEvent(string(req.Method), "manual_recorded")
	s.log.Info("manual payment recorded",
		zap.String("org_id", orgID.String()),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.Int64("amount", payment.Amount),
		zap.Int("allocations", len(allocations)),
	)
	return payment, nil
}

// ReapExpiredGatewayPayments settles attempts older than the configured
// threshold so the invoices become payable again.
func (s *Service) ReapExpiredGatewayPayments(ctx context.Context) (int64, error) {
	threshold := time.Duration(s.billing.Get().ReapThresholdMinutes) * time.Minute
	cutoff := time.Now().UTC().Add(-threshold)

	reaped, err := s.invoiceRepo.ReapGatewayAttempts(ctx, s.db, cutoff, reapResponseCode)
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		metrics.Billing().RecordPaymentEvent("vnpay", "attempt_reaped")
		s.log.Info("expired gateway attempts reaped",
			zap.Int64("count", reaped),
			zap.Time("cutoff", cutoff),
		)
	}
	return reaped, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id string) (*paymentdomain.Payment, error) {
	orgID, err := parseID(organizationID)
	if err != nil || orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	paymentID, err := parseID(id)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}

	payment, err := s.repo.FindByID(ctx, s.db, orgID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrNotFound
	}
	payment.Allocations, err = s.repo.ListAllocations(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) Receipt(ctx context.Context, organizationID, id string) ([]byte, error) {
	payment, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if s.pdf == nil {
		return nil, paymentdomain.ErrNotFound
	}

	orgID, _ := parseID(organizationID)
	data := pdf.ReceiptData{
		ReceiptNumber: payment.ReceiptNumber,
		PayerName:     payment.PayerName,
		Method:        string(payment.Method),
		Currency:      payment.Currency,
		Total:         fmt.Sprintf("%d", payment.Amount),
	}
	if payment.ReceivedAt != nil {
		data.DatePaid = payment.ReceivedAt.Format("2006-01-02")
	}
	for _, alloc := range payment.Allocations {
		line := pdf.ReceiptLine{Amount: fmt.Sprintf("%d", alloc.Amount)}
		invoiceID := alloc.InvoiceID
		if invoiceID == nil && alloc.InvoiceLineID != nil {
			invoiceLine, err := s.invoiceRepo.FindLineByID(ctx, s.db, *alloc.InvoiceLineID)
			if err != nil {
				return nil, err
			}
			if invoiceLine != nil {
				invoiceID = &invoiceLine.InvoiceID
				line.Description = invoiceLine.Description
			}
		}
		if invoiceID != nil {
			invoice, err := s.invoiceRepo.FindByID(ctx, s.db, orgID, *invoiceID)
			if err != nil {
				return nil, err
			}
			if invoice != nil {
				line.InvoiceCode = invoice.Code
			}
		}
		data.Lines = append(data.Lines, line)
	}

	reader, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

func newReceiptNumber() string {
	return "RCP-" + ulid.Make().String()
}

func nilIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}

package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	billingcycledomain "github.com/strataops/ledgerline/internal/billingcycle/domain"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	paymentdomain "github.com/strataops/ledgerline/internal/payment/domain"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	reminderdomain "github.com/strataops/ledgerline/internal/reminder/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isPricingValidationError(err),
		isInvoiceValidationError(err),
		isPaymentValidationError(err),
		isReminderValidationError(err),
		isBillingCycleValidationError(err):
		return true
	default:
		return false
	}
}

func isPricingValidationError(err error) bool {
	switch err {
	case pricingdomain.ErrInvalidOrganization,
		pricingdomain.ErrInvalidCode,
		pricingdomain.ErrInvalidName,
		pricingdomain.ErrInvalidModel,
		pricingdomain.ErrInvalidUnitPrice,
		pricingdomain.ErrInvalidTaxRate,
		pricingdomain.ErrInvalidEffective,
		pricingdomain.ErrInvalidID,
		pricingdomain.ErrTierEmpty,
		pricingdomain.ErrTierFirstMin,
		pricingdomain.ErrTierGap,
		pricingdomain.ErrTierOverlap,
		pricingdomain.ErrTierUnbounded,
		pricingdomain.ErrTierBounds,
		pricingdomain.ErrTierVersionOverlap:
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch err {
	case invoicedomain.ErrInvalidOrganization,
		invoicedomain.ErrInvalidID,
		invoicedomain.ErrInvalidQuantity,
		invoicedomain.ErrEmptyInvoice:
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch err {
	case paymentdomain.ErrInvalidOrganization,
		paymentdomain.ErrInvalidID,
		paymentdomain.ErrInvalidAmount,
		paymentdomain.ErrInvalidMethod,
		paymentdomain.ErrAllocationMismatch,
		paymentdomain.ErrAllocationExceeds,
		paymentdomain.ErrAllocationTarget:
		return true
	default:
		return false
	}
}

func isReminderValidationError(err error) bool {
	switch err {
	case reminderdomain.ErrInvalidOrganization,
		reminderdomain.ErrInvalidEntityType,
		reminderdomain.ErrInvalidEntityID,
		reminderdomain.ErrInvalidRecipient:
		return true
	default:
		return false
	}
}

func isBillingCycleValidationError(err error) bool {
	switch err {
	case billingcycledomain.ErrInvalidOrganization,
		billingcycledomain.ErrInvalidID,
		billingcycledomain.ErrInvalidName,
		billingcycledomain.ErrInvalidPeriod:
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, pricingdomain.ErrDuplicateCode),
		errors.Is(err, pricingdomain.ErrPricingInactive),
		errors.Is(err, pricingdomain.ErrPricingNotConfigured),
		errors.Is(err, invoicedomain.ErrInvalidStateTransition),
		errors.Is(err, reminderdomain.ErrInvalidStateTransition),
		errors.Is(err, billingcycledomain.ErrInvalidStateTransition),
		errors.Is(err, billingcycledomain.ErrCycleHasOpenInvoices),
		errors.Is(err, paymentdomain.ErrPaymentInFlight),
		errors.Is(err, paymentdomain.ErrInvoiceNotPayable):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, pricingdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrUnknownTxnRef),
		errors.Is(err, reminderdomain.ErrNotFound),
		errors.Is(err, billingcycledomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
